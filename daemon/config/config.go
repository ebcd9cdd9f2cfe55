// Package config holds the orchestrator's runtime configuration: which
// relays to subscribe to, the HTTP address, where the mapping files and the
// database live, and the retention sweep settings. The recipient identity is
// not part of it (it comes from the environment via internal/identity).
// EventBufferSize, WorkerCount, QueueDepth and the relay/chunk timing fields
// are filled in by DefaultConfig but not read by any package; the
// subscription and chunk-fetch layers use their own fixed constants.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds orchestrator configuration.
type Config struct {
	RelayURLs       []string
	HTTPAddress     string
	MappingRoot     string
	DatabasePath    string
	EventBufferSize int
	WorkerCount     int
	QueueDepth      int

	RelayReconnectDelay time.Duration
	ChunkConnectTimeout time.Duration
	ChunkReadTimeout    time.Duration
	ChunkFetchDeadline  time.Duration

	// RetentionPeriod bounds how long a stored crash is kept before the
	// orchestrator's sweep loop deletes it. Zero disables sweeping.
	RetentionPeriod time.Duration
	SweepInterval   time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local", "share", "bugstr")

	return &Config{
		RelayURLs:       []string{"wss://relay.damus.io"},
		HTTPAddress:     "127.0.0.1:8080",
		MappingRoot:     filepath.Join(dataDir, "mappings"),
		DatabasePath:    filepath.Join(dataDir, "bugstr.db"),
		EventBufferSize: 100,
		WorkerCount:     8,
		QueueDepth:      32,

		RelayReconnectDelay: 5 * time.Second,
		ChunkConnectTimeout: 10 * time.Second,
		ChunkReadTimeout:    5 * time.Second,
		ChunkFetchDeadline:  30 * time.Second,

		RetentionPeriod: 30 * 24 * time.Hour,
		SweepInterval:   time.Hour,
	}
}

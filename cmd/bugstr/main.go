// Command bugstr runs the crash-report receiver daemon and its companion
// CLI utilities: subscribe to relays and store reports (listen), serve the
// dashboard API over an already-populated store (serve), print this
// identity's public key (pubkey), and symbolicate a single stack trace from
// the command line (symbolicate).
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/bugstr-dev/bugstr/daemon/config"
	"github.com/bugstr-dev/bugstr/internal/api"
	"github.com/bugstr-dev/bugstr/internal/crypto"
	"github.com/bugstr-dev/bugstr/internal/identity"
	"github.com/bugstr-dev/bugstr/internal/mapping"
	"github.com/bugstr-dev/bugstr/internal/observability"
	"github.com/bugstr-dev/bugstr/internal/orchestrator"
	"github.com/bugstr-dev/bugstr/internal/symbolicate"
	"github.com/bugstr-dev/bugstr/internal/validation"
)

func main() {
	parser := flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)

	mustAddCommand(parser, "listen", "Subscribe to relays and store incoming crash reports", "", &cmdListen{})
	mustAddCommand(parser, "serve", "Serve the dashboard HTTP API over the persistent store", "", &cmdServe{})
	mustAddCommand(parser, "pubkey", "Print this identity's public key", "", &cmdPubkey{})
	mustAddCommand(parser, "symbolicate", "Symbolicate a stack trace read from stdin", "", &cmdSymbolicate{})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mustAddCommand(parser *flags.Parser, name, short, long string, data interface{}) {
	if _, err := parser.AddCommand(name, short, long, data); err != nil {
		panic("bugstr: failed to register command " + name + ": " + err.Error())
	}
}

// cmdListen runs the full daemon: relay subscription, unwrap/chunk-fetch
// pipeline, storage worker, and the dashboard HTTP server in the foreground.
type cmdListen struct {
	Relays       []string `long:"relay" description:"relay URL to subscribe to (repeatable)"`
	HTTPAddress  string   `long:"http-addr" description:"dashboard HTTP listen address" default:""`
	MappingRoot  string   `long:"mapping-root" description:"mapping file root directory" default:""`
	DatabasePath string   `long:"db" description:"SQLite database path" default:""`
}

func (c *cmdListen) Execute(_ []string) error {
	cfg := config.DefaultConfig()
	if len(c.Relays) > 0 {
		cfg.RelayURLs = c.Relays
	}
	if c.HTTPAddress != "" {
		cfg.HTTPAddress = c.HTTPAddress
	}
	if c.MappingRoot != "" {
		cfg.MappingRoot = c.MappingRoot
	}
	if c.DatabasePath != "" {
		cfg.DatabasePath = c.DatabasePath
	}
	if err := validation.ValidateAddr(cfg.HTTPAddress); err != nil {
		return fmt.Errorf("bugstr listen: %w", err)
	}
	if err := validation.ValidateFilePath(cfg.DatabasePath, false); err != nil {
		return fmt.Errorf("bugstr listen: %w", err)
	}

	ident, err := identity.FromEnv()
	if err != nil {
		return fmt.Errorf("bugstr listen: %w", err)
	}

	logger := observability.NewLogger("bugstr", "0.1.0", os.Stdout)
	metrics := observability.NewMetrics()
	if shutdown, err := observability.InitTracing(context.Background(), "bugstr"); err == nil {
		defer shutdown(context.Background())
	}

	d, err := orchestrator.New(cfg, ident.SecretKeyHex, logger, metrics)
	if err != nil {
		return fmt.Errorf("bugstr listen: %w", err)
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	server := &api.Server{
		Store:              d.Store(),
		Symbolicator:       d.Symbolicator(),
		Logger:             logger,
		Metrics:            metrics,
		SymbolicateLimiter: d.SymbolicateLimiter(),
	}
	httpServer := &http.Server{Addr: cfg.HTTPAddress, Handler: server.Router()}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
		httpServer.Close()
	}()

	logger.Info("bugstr listening on " + cfg.HTTPAddress)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("bugstr listen: http server: %w", err)
	}
	return nil
}

// cmdServe starts only the dashboard HTTP API over an already-populated
// store, without subscribing to any relay.
type cmdServe struct {
	HTTPAddress  string `long:"http-addr" description:"dashboard HTTP listen address" default:""`
	MappingRoot  string `long:"mapping-root" description:"mapping file root directory" default:""`
	DatabasePath string `long:"db" description:"SQLite database path" default:""`
}

func (c *cmdServe) Execute(_ []string) error {
	cfg := config.DefaultConfig()
	if c.HTTPAddress != "" {
		cfg.HTTPAddress = c.HTTPAddress
	}
	if c.MappingRoot != "" {
		cfg.MappingRoot = c.MappingRoot
	}
	if c.DatabasePath != "" {
		cfg.DatabasePath = c.DatabasePath
	}
	if err := validation.ValidateAddr(cfg.HTTPAddress); err != nil {
		return fmt.Errorf("bugstr serve: %w", err)
	}
	if err := validation.ValidateFilePath(cfg.DatabasePath, false); err != nil {
		return fmt.Errorf("bugstr serve: %w", err)
	}

	logger := observability.NewLogger("bugstr", "0.1.0", os.Stdout)
	metrics := observability.NewMetrics()

	d, err := orchestrator.New(cfg, "", logger, metrics)
	if err != nil {
		return fmt.Errorf("bugstr serve: %w", err)
	}
	defer d.Close()

	server := &api.Server{
		Store:              d.Store(),
		Symbolicator:       d.Symbolicator(),
		Logger:             logger,
		Metrics:            metrics,
		SymbolicateLimiter: d.SymbolicateLimiter(),
	}

	logger.Info("bugstr serving dashboard API on " + cfg.HTTPAddress)
	return http.ListenAndServe(cfg.HTTPAddress, server.Router())
}

// cmdPubkey prints the identity derived from BUGSTR_PRIVKEY in both hex and
// bech32 (npub) form.
type cmdPubkey struct{}

func (c *cmdPubkey) Execute(_ []string) error {
	ident, err := identity.FromEnv()
	if err != nil {
		return fmt.Errorf("bugstr pubkey: %w", err)
	}
	npub, err := ident.NpubString()
	if err != nil {
		return fmt.Errorf("bugstr pubkey: %w", err)
	}
	pubBytes, err := hex.DecodeString(ident.PublicKeyHex)
	if err != nil {
		return fmt.Errorf("bugstr pubkey: %w", err)
	}
	fmt.Printf("hex:         %s\nnpub:        %s\nfingerprint: %s\n", ident.PublicKeyHex, npub, crypto.Fingerprint(pubBytes))
	return nil
}

// cmdSymbolicate reads a stack trace from stdin and resolves it against the
// mapping store, printing the result as JSON.
type cmdSymbolicate struct {
	Platform    string `long:"platform" required:"true" description:"android, electron, flutter, rust, go, python, or react-native"`
	AppID       string `long:"app-id" description:"application identifier"`
	Version     string `long:"version" description:"application version"`
	MappingRoot string `long:"mapping-root" description:"mapping file root directory" default:""`
}

func (c *cmdSymbolicate) Execute(_ []string) error {
	cfg := config.DefaultConfig()
	if c.MappingRoot != "" {
		cfg.MappingRoot = c.MappingRoot
	}

	store, err := mapping.NewStore(cfg.MappingRoot)
	if err != nil {
		return fmt.Errorf("bugstr symbolicate: %w", err)
	}

	platform, err := symbolicate.ParsePlatform(c.Platform)
	if err != nil {
		return fmt.Errorf("bugstr symbolicate: %w", err)
	}

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("bugstr symbolicate: reading stdin: %w", err)
	}
	stackTrace := string(raw)

	stack, err := symbolicate.New(store).Symbolicate(stackTrace, symbolicate.Context{
		Platform: platform,
		AppID:    c.AppID,
		Version:  c.Version,
	})
	if err != nil {
		return fmt.Errorf("bugstr symbolicate: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"symbolicated_count": stack.SymbolicatedCount,
		"total_count":        stack.TotalCount,
		"percentage":         stack.Percentage(),
		"display":            stack.Display(),
	})
}

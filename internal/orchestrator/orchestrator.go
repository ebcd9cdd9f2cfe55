// Package orchestrator wires every other package into the running daemon:
// open the store, subscribe to relays, unwrap and (if needed) reassemble
// each crash report, persist it, and serve the dashboard's HTTP API.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/bugstr-dev/bugstr/daemon/config"
	"github.com/bugstr-dev/bugstr/internal/chunkengine"
	"github.com/bugstr-dev/bugstr/internal/chunkfetch"
	"github.com/bugstr-dev/bugstr/internal/compress"
	"github.com/bugstr-dev/bugstr/internal/mapping"
	"github.com/bugstr-dev/bugstr/internal/nostrevent"
	"github.com/bugstr-dev/bugstr/internal/observability"
	"github.com/bugstr-dev/bugstr/internal/ratelimit"
	"github.com/bugstr-dev/bugstr/internal/relaysub"
	"github.com/bugstr-dev/bugstr/internal/store"
	"github.com/bugstr-dev/bugstr/internal/symbolicate"
	"github.com/bugstr-dev/bugstr/internal/transportcodec"
	"github.com/bugstr-dev/bugstr/internal/unwrap"
)

// crashQueueCapacity is the storage worker's bounded inbox (spec §4.L).
const crashQueueCapacity = 100

// symbolicateRateLimit bounds /api/symbolicate so dashboard traffic cannot
// starve the relay-subscription goroutines sharing the process.
const symbolicateRateLimit = 10 // requests/second
const symbolicateRateBurst = 20

// Daemon holds the wired application state: the store, the optional
// symbolicator, and the collaborators needed to run the subscribe/unwrap/
// persist pipeline.
type Daemon struct {
	cfg     *config.Config
	ident   string // recipient secret key, hex
	store   *store.Store
	mapper  *mapping.Store
	symb    *symbolicate.Symbolicator
	logger  *observability.Logger
	metrics *observability.Metrics

	subscriber *relaysub.Subscriber
	crashQueue chan pendingCrash
}

type pendingCrash struct {
	eventID      string
	senderPubKey string
	content      string
	receivedAt   time.Time
}

// New opens the persistent store and, if cfg.MappingRoot is usable, the
// mapping store and symbolicator. A failure to open the persistent store is
// fatal per spec §7; a missing or unusable mapping root is not — the
// daemon still stores crashes, it just serves 503 from /api/symbolicate.
func New(cfg *config.Config, recipientSecretHex string, logger *observability.Logger, metrics *observability.Metrics) (*Daemon, error) {
	st, err := store.NewStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open store: %w", err)
	}

	var symb *symbolicate.Symbolicator
	var mapper *mapping.Store
	if cfg.MappingRoot != "" {
		if m, err := mapping.NewStore(cfg.MappingRoot); err == nil {
			mapper = m
			symb = symbolicate.New(m)
		} else if logger != nil {
			logger.Error(err, "mapping store unavailable, symbolication requests will be refused")
		}
	}

	filter := relaysub.Filter{Kinds: []int{transportcodec.KindGiftWrap}, Limit: 100}
	if recipientSecretHex != "" {
		pub, err := recipientPubKey(recipientSecretHex)
		if err == nil {
			filter.Tags = []string{pub}
		}
	}

	return &Daemon{
		cfg:        cfg,
		ident:      recipientSecretHex,
		store:      st,
		mapper:     mapper,
		symb:       symb,
		logger:     logger,
		metrics:    metrics,
		subscriber: relaysub.New(cfg.RelayURLs, filter, logger, metrics),
		crashQueue: make(chan pendingCrash, crashQueueCapacity),
	}, nil
}

// Store exposes the opened store, e.g. for the HTTP API server.
func (d *Daemon) Store() *store.Store { return d.store }

// Symbolicator exposes the optional symbolicator, nil if no mapping root
// was configured.
func (d *Daemon) Symbolicator() *symbolicate.Symbolicator { return d.symb }

// SymbolicateLimiter builds a fresh rate limiter for the HTTP API's
// symbolication endpoint.
func (d *Daemon) SymbolicateLimiter() *ratelimit.TokenBucket {
	return ratelimit.NewTokenBucket(symbolicateRateLimit, symbolicateRateBurst)
}

// Close releases the store's database handle.
func (d *Daemon) Close() error { return d.store.Close() }

// Run spawns the subscription task and the storage worker and blocks until
// ctx is cancelled. The caller runs the HTTP server separately, on the
// foreground goroutine, per spec §4.L.
func (d *Daemon) Run(ctx context.Context) {
	go d.subscriber.Run(ctx)
	go d.storageWorker(ctx)
	if d.cfg.RetentionPeriod > 0 && d.cfg.SweepInterval > 0 {
		go d.sweepLoop(ctx)
	}
	d.pump(ctx)
}

// sweepLoop periodically deletes crashes older than the configured
// retention period, so a long-running daemon's database doesn't grow
// without bound (spec §3's "may be deleted by a time-bounded sweep").
func (d *Daemon) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-d.cfg.RetentionPeriod)
			n, err := d.store.SweepOlderThan(ctx, cutoff)
			if err != nil {
				if d.logger != nil {
					d.logger.Error(err, "retention sweep failed")
				}
				continue
			}
			if n > 0 && d.metrics != nil {
				d.metrics.RecordDatabaseOperation("sweep", true)
			}
		}
	}
}

// pump drains the subscriber's event channel, unwraps each gift wrap, and
// (for manifests) fetches the chunk set, enqueuing whatever survives onto
// the bounded crash queue for the storage worker.
func (d *Daemon) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-d.subscriber.Events():
			if !ok {
				return
			}
			d.handleEvent(ctx, evt)
		}
	}
}

func (d *Daemon) handleEvent(ctx context.Context, evt *nostrevent.Event) {
	start := time.Now()
	rumor, err := unwrap.Unwrap(evt, d.ident)
	if err != nil {
		if d.metrics != nil {
			d.metrics.RecordUnwrap(false, time.Since(start).Seconds())
		}
		if d.logger != nil {
			d.logger.UnwrapFailed(evt.ID, "unwrap", err)
		}
		return
	}
	if d.metrics != nil {
		d.metrics.RecordUnwrap(true, time.Since(start).Seconds())
	}

	content, ok := d.resolveContent(ctx, evt.ID, rumor)
	if !ok {
		return
	}

	select {
	case d.crashQueue <- pendingCrash{
		eventID:      evt.ID,
		senderPubKey: rumor.SenderPubKey,
		content:      content,
		receivedAt:   time.Now(),
	}:
	case <-ctx.Done():
	}
}

// resolveContent returns the rumor's plaintext crash content, decompressing
// the compression envelope (if any) and, for manifests, fetching and
// reassembling the chunk set and decompressing that reassembled payload too.
func (d *Daemon) resolveContent(ctx context.Context, eventID string, rumor *unwrap.Rumor) (string, bool) {
	if !transportcodec.IsChunkedKind(rumor.Kind) {
		return compress.Decompress(rumor.Content), true
	}

	var manifest chunkengine.ManifestPayload
	if err := json.Unmarshal([]byte(rumor.Content), &manifest); err != nil {
		if d.logger != nil {
			d.logger.UnwrapFailed(eventID, "manifest-parse", err)
		}
		return "", false
	}

	start := time.Now()
	if d.logger != nil {
		d.logger.ChunkFetchStarted(eventID, manifest.ChunkCount)
	}
	chunks, err := chunkfetch.Fetch(ctx, &manifest, d.cfg.RelayURLs, chunkfetch.Hints(manifest.ChunkRelays))
	if d.metrics != nil {
		d.metrics.RecordChunkFetch(err == nil, time.Since(start).Seconds(), len(chunks), len(manifest.ChunkIDs)-len(chunks))
	}
	if d.logger != nil {
		d.logger.ChunkFetchCompleted(eventID, len(chunks), len(manifest.ChunkIDs), time.Since(start))
	}
	if err != nil {
		if d.logger != nil {
			d.logger.UnwrapFailed(eventID, "chunk-fetch", err)
		}
		return "", false
	}

	payload, err := chunkengine.Decode(&manifest, chunks)
	if err != nil {
		if d.logger != nil {
			d.logger.UnwrapFailed(eventID, "chunk-decode", err)
		}
		return "", false
	}
	return compress.Decompress(string(payload)), true
}

// storageWorker drains the crash queue in FIFO order and inserts each
// report, the only task that ever writes to the store.
func (d *Daemon) storageWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pc, ok := <-d.crashQueue:
			if !ok {
				return
			}
			d.storeCrash(ctx, pc)
		}
	}
}

func (d *Daemon) storeCrash(ctx context.Context, pc pendingCrash) {
	c := store.NewCrash(pc.eventID, pc.senderPubKey, pc.content, pc.receivedAt)
	inserted, err := d.store.Insert(ctx, c)
	if err != nil {
		if d.metrics != nil {
			d.metrics.RecordDatabaseOperation("insert", false)
		}
		if d.logger != nil {
			d.logger.Error(err, "failed to store crash report")
		}
		return
	}
	if d.metrics != nil {
		d.metrics.RecordDatabaseOperation("insert", true)
	}
	fields, _, _ := store.ParseContent(pc.content)
	if inserted && d.metrics != nil {
		d.metrics.RecordCrashStored(fields.Platform)
	}
	if inserted && d.logger != nil {
		d.logger.CrashStored(pc.eventID, fields.Platform, c.AppName)
	}
}

// recipientPubKey derives the hex public key the relay filter's #p tag
// targets, so the subscription only asks relays for gift wraps actually
// addressed to this daemon.
func recipientPubKey(secretHex string) (string, error) {
	return nostr.GetPublicKey(secretHex)
}

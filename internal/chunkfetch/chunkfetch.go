// Package chunkfetch retrieves the chunk events a manifest describes from
// across the relay set, in parallel, preferring each chunk's hinted relay
// and falling back to the rest of the set when the hint misses.
//
// The fetch shape — one task per relay, each requesting every chunk it is
// responsible for in a single subscription and writing into a mutex-guarded
// shared result map, driven to completion or a deadline — mirrors the
// per-stream receive loop a QUIC chunk receiver runs, adapted here to
// dialing short-lived relay connections instead of reading long-lived
// streams (spec §4.F: "one task per relay").
package chunkfetch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bugstr-dev/bugstr/internal/chunkengine"
	"github.com/bugstr-dev/bugstr/internal/transportcodec"
)

// Timing defaults (spec §4.F).
const (
	ConnectTimeout  = 10 * time.Second
	ReadTimeout     = 5 * time.Second
	OverallDeadline = 30 * time.Second
)

var ErrIncomplete = errors.New("chunkfetch: could not retrieve every chunk in the manifest")

// Hints maps a chunk event ID to the relay URLs it was announced on. Only
// the first hint per chunk is consulted — see Fetch's phase-1 behavior.
type Hints map[string][]string

// Fetch retrieves every chunk event named in manifest.ChunkIDs from
// relayURLs, returning them indexed by position in that slice. It applies a
// fixed overall deadline regardless of the caller's context.
func Fetch(ctx context.Context, manifest *chunkengine.ManifestPayload, relayURLs []string, hints Hints) ([]chunkengine.ChunkPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, OverallDeadline)
	defer cancel()

	result := make([]chunkengine.ChunkPayload, len(manifest.ChunkIDs))
	found := make([]bool, len(manifest.ChunkIDs))
	byID := make(map[string]int, len(manifest.ChunkIDs))
	for i, id := range manifest.ChunkIDs {
		byID[id] = i
	}
	var mu sync.Mutex

	// Phase 1: one task per relay that has at least one hinted chunk,
	// requesting exactly the chunks it was announced to carry.
	wantByRelay := make(map[string][]string)
	for id := range byID {
		if relay := firstHint(hints, id); relay != "" {
			wantByRelay[relay] = append(wantByRelay[relay], id)
		}
	}

	var wg sync.WaitGroup
	for relay, ids := range wantByRelay {
		wg.Add(1)
		go func(relayURL string, ids []string) {
			defer wg.Done()
			payloads := fetchMany(ctx, relayURL, ids)
			mu.Lock()
			for id, p := range payloads {
				idx, ok := byID[id]
				if !ok || found[idx] {
					continue
				}
				result[idx] = p
				found[idx] = true
			}
			mu.Unlock()
		}(relay, ids)
	}
	wg.Wait()

	// Phase 2: one task per relay in the full set, broadcasting a request
	// for whatever is still missing after phase 1.
	var missing []string
	mu.Lock()
	for i, ok := range found {
		if !ok {
			missing = append(missing, manifest.ChunkIDs[i])
		}
	}
	mu.Unlock()

	if len(missing) > 0 {
		for _, relay := range relayURLs {
			wg.Add(1)
			go func(relayURL string) {
				defer wg.Done()

				mu.Lock()
				var stillMissing []string
				for _, id := range missing {
					if !found[byID[id]] {
						stillMissing = append(stillMissing, id)
					}
				}
				mu.Unlock()
				if len(stillMissing) == 0 {
					return
				}

				payloads := fetchMany(ctx, relayURL, stillMissing)
				mu.Lock()
				for id, p := range payloads {
					idx, ok := byID[id]
					if !ok || found[idx] {
						continue
					}
					result[idx] = p
					found[idx] = true
				}
				mu.Unlock()
			}(relay)
		}
		wg.Wait()
	}

	for _, ok := range found {
		if !ok {
			return result, ErrIncomplete
		}
	}
	return result, nil
}

func firstHint(hints Hints, eventID string) string {
	relays := hints[eventID]
	if len(relays) == 0 {
		return ""
	}
	return relays[0]
}

// fetchMany opens a single short-lived connection to relayURL, subscribes
// for every chunk event named in ids in one REQ (kind-filtered to
// KindChunk), and returns whichever of them the relay had.
func fetchMany(ctx context.Context, relayURL string, ids []string) map[string]chunkengine.ChunkPayload {
	out := make(map[string]chunkengine.ChunkPayload)
	if len(ids) == 0 {
		return out
	}

	dialCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: ConnectTimeout}
	conn, _, err := dialer.DialContext(dialCtx, relayURL, nil)
	if err != nil {
		return out
	}
	defer conn.Close()

	subID := "bugstr-fetch-" + uuid.NewString()
	req := []interface{}{"REQ", subID, map[string]interface{}{
		"ids":   ids,
		"kinds": []int{transportcodec.KindChunk},
		"limit": len(ids),
	}}
	if err := conn.WriteJSON(req); err != nil {
		return out
	}

	deadline := time.Now().Add(ReadTimeout)
	conn.SetReadDeadline(deadline)

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	for len(out) < len(want) {
		if ctx.Err() != nil {
			return out
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return out
		}

		var envelope []json.RawMessage
		if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope) < 2 {
			continue
		}
		var msgType string
		if err := json.Unmarshal(envelope[0], &msgType); err != nil {
			continue
		}
		switch msgType {
		case "EVENT":
			if len(envelope) < 3 {
				continue
			}
			var evt struct {
				ID      string `json:"id"`
				Content string `json:"content"`
			}
			if err := json.Unmarshal(envelope[2], &evt); err != nil || !want[evt.ID] {
				continue
			}
			var payload chunkengine.ChunkPayload
			if err := json.Unmarshal([]byte(evt.Content), &payload); err != nil {
				continue
			}
			out[evt.ID] = payload
		case "EOSE":
			return out
		default:
			continue
		}
	}
	return out
}

package chunkfetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/bugstr-dev/bugstr/internal/chunkengine"
	"github.com/bugstr-dev/bugstr/internal/transportcodec"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

// fakeRelay serves only the chunk events in have, keyed by event ID, and
// sends EOSE for anything else.
func fakeRelay(t *testing.T, have map[string]chunkengine.ChunkPayload) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var envelope []json.RawMessage
		if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope) < 3 {
			return
		}
		var subID string
		json.Unmarshal(envelope[1], &subID)
		var filter struct {
			IDs []string `json:"ids"`
		}
		json.Unmarshal(envelope[2], &filter)

		for _, id := range filter.IDs {
			payload, ok := have[id]
			if !ok {
				continue
			}
			content, _ := json.Marshal(payload)
			evt := map[string]interface{}{"id": id, "content": string(content)}
			conn.WriteJSON([]interface{}{"EVENT", subID, evt})
		}
		conn.WriteJSON([]interface{}{"EOSE", subID})
	}))
}

func TestFetchUsesHintedRelay(t *testing.T) {
	chunk := chunkengine.ChunkPayload{V: 1, Index: 0, Hash: "aa", Data: "bb"}
	srv := fakeRelay(t, map[string]chunkengine.ChunkPayload{"chunk1": chunk})
	defer srv.Close()

	manifest := &chunkengine.ManifestPayload{ChunkIDs: []string{"chunk1"}}
	hints := Hints{"chunk1": {wsURL(srv.URL)}}

	got, err := Fetch(context.Background(), manifest, nil, hints)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got[0].Hash != "aa" {
		t.Errorf("Hash = %s, want aa", got[0].Hash)
	}
}

func TestFetchFallsBackWhenHintMisses(t *testing.T) {
	chunk := chunkengine.ChunkPayload{V: 1, Index: 0, Hash: "cc", Data: "dd"}
	missHint := fakeRelay(t, map[string]chunkengine.ChunkPayload{})
	defer missHint.Close()
	fallback := fakeRelay(t, map[string]chunkengine.ChunkPayload{"chunk1": chunk})
	defer fallback.Close()

	manifest := &chunkengine.ManifestPayload{ChunkIDs: []string{"chunk1"}}
	hints := Hints{"chunk1": {wsURL(missHint.URL)}}

	got, err := Fetch(context.Background(), manifest, []string{wsURL(fallback.URL)}, hints)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got[0].Hash != "cc" {
		t.Errorf("Hash = %s, want cc", got[0].Hash)
	}
}

// TestFetchRequestsAllHintedChunksFromOneRelayFilteredByKind covers spec
// §4.F's "one task per relay" shape: two chunks hinted at the same relay
// must be retrieved over a single subscription, and that subscription's
// filter must be kind-scoped to KindChunk (10422).
func TestFetchRequestsAllHintedChunksFromOneRelayFilteredByKind(t *testing.T) {
	chunk0 := chunkengine.ChunkPayload{V: 1, Index: 0, Hash: "aa", Data: "bb"}
	chunk1 := chunkengine.ChunkPayload{V: 1, Index: 1, Hash: "cc", Data: "dd"}

	var reqCount int32
	var sawKindFilter int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		atomic.AddInt32(&reqCount, 1)

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var envelope []json.RawMessage
		if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope) < 3 {
			return
		}
		var subID string
		json.Unmarshal(envelope[1], &subID)
		var filter struct {
			IDs   []string `json:"ids"`
			Kinds []int    `json:"kinds"`
		}
		json.Unmarshal(envelope[2], &filter)
		if len(filter.Kinds) == 1 && filter.Kinds[0] == transportcodec.KindChunk {
			atomic.StoreInt32(&sawKindFilter, 1)
		}

		have := map[string]chunkengine.ChunkPayload{"chunk0": chunk0, "chunk1": chunk1}
		for _, id := range filter.IDs {
			payload, ok := have[id]
			if !ok {
				continue
			}
			content, _ := json.Marshal(payload)
			evt := map[string]interface{}{"id": id, "content": string(content)}
			conn.WriteJSON([]interface{}{"EVENT", subID, evt})
		}
		conn.WriteJSON([]interface{}{"EOSE", subID})
	}))
	defer srv.Close()

	manifest := &chunkengine.ManifestPayload{ChunkIDs: []string{"chunk0", "chunk1"}}
	relay := wsURL(srv.URL)
	hints := Hints{"chunk0": {relay}, "chunk1": {relay}}

	got, err := Fetch(context.Background(), manifest, nil, hints)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got[0].Hash != "aa" || got[1].Hash != "cc" {
		t.Fatalf("got = %+v, want chunk0=aa chunk1=cc", got)
	}
	if n := atomic.LoadInt32(&reqCount); n != 1 {
		t.Errorf("relay received %d connections, want 1 (one task per relay)", n)
	}
	if atomic.LoadInt32(&sawKindFilter) != 1 {
		t.Errorf("expected the REQ filter to scope kinds to KindChunk (10422)")
	}
}

func TestFetchReturnsErrIncompleteWhenUnreachable(t *testing.T) {
	manifest := &chunkengine.ManifestPayload{ChunkIDs: []string{"missing-chunk"}}

	_, err := Fetch(context.Background(), manifest, []string{"ws://127.0.0.1:1"}, nil)
	if err != ErrIncomplete {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
}

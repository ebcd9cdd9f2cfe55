package orchestrator

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	gonostr "github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"

	"github.com/bugstr-dev/bugstr/daemon/config"
	"github.com/bugstr-dev/bugstr/internal/compress"
	"github.com/bugstr-dev/bugstr/internal/nostrevent"
	"github.com/bugstr-dev/bugstr/internal/transportcodec"
)

// giftWrap builds a two-layer NIP-44 envelope around rumorContent, the same
// shape a sending client produces, so the pipeline test exercises the real
// decrypt path instead of a hand-assembled shortcut.
func giftWrap(t *testing.T, recipientPriv string, rumorKind int, rumorContent string) *nostrevent.Event {
	t.Helper()

	senderPriv := gonostr.GeneratePrivateKey()
	senderPub, err := gonostr.GetPublicKey(senderPriv)
	if err != nil {
		t.Fatalf("GetPublicKey: %v", err)
	}
	recipientPub, err := gonostr.GetPublicKey(recipientPriv)
	if err != nil {
		t.Fatalf("GetPublicKey: %v", err)
	}

	rumor := &gonostr.Event{
		Kind:      rumorKind,
		Content:   rumorContent,
		CreatedAt: gonostr.Timestamp(1700000000),
		Tags:      gonostr.Tags{},
		PubKey:    senderPub,
	}
	rumor.ID = rumor.GetID()
	rumorJSON, err := json.Marshal(rumor)
	if err != nil {
		t.Fatalf("marshal rumor: %v", err)
	}

	sealKey, err := nip44.GenerateConversationKey(recipientPub, senderPriv)
	if err != nil {
		t.Fatalf("GenerateConversationKey (seal): %v", err)
	}
	encryptedRumor, err := nip44.Encrypt(string(rumorJSON), sealKey)
	if err != nil {
		t.Fatalf("Encrypt (rumor): %v", err)
	}

	seal := &gonostr.Event{
		Kind:      transportcodec.KindSeal,
		Content:   encryptedRumor,
		CreatedAt: gonostr.Timestamp(1700000001),
		Tags:      gonostr.Tags{},
		PubKey:    senderPub,
	}
	if err := seal.Sign(senderPriv); err != nil {
		t.Fatalf("sign seal: %v", err)
	}
	sealJSON, err := json.Marshal(seal)
	if err != nil {
		t.Fatalf("marshal seal: %v", err)
	}

	oneTimePriv := gonostr.GeneratePrivateKey()
	oneTimePub, err := gonostr.GetPublicKey(oneTimePriv)
	if err != nil {
		t.Fatalf("GetPublicKey (one-time): %v", err)
	}
	giftWrapKey, err := nip44.GenerateConversationKey(recipientPub, oneTimePriv)
	if err != nil {
		t.Fatalf("GenerateConversationKey (gift wrap): %v", err)
	}
	encryptedSeal, err := nip44.Encrypt(string(sealJSON), giftWrapKey)
	if err != nil {
		t.Fatalf("Encrypt (seal): %v", err)
	}

	wrapped := &gonostr.Event{
		Kind:      transportcodec.KindGiftWrap,
		Content:   encryptedSeal,
		CreatedAt: gonostr.Timestamp(1700000002),
		Tags:      gonostr.Tags{{"p", recipientPub}},
		PubKey:    oneTimePub,
	}
	if err := wrapped.Sign(oneTimePriv); err != nil {
		t.Fatalf("sign gift wrap: %v", err)
	}

	return &nostrevent.Event{
		ID:        wrapped.ID,
		PubKey:    wrapped.PubKey,
		CreatedAt: int64(wrapped.CreatedAt),
		Kind:      wrapped.Kind,
		Content:   wrapped.Content,
		Sig:       wrapped.Sig,
	}
}

func newTestDaemon(t *testing.T) (*Daemon, string) {
	t.Helper()
	recipientPriv := gonostr.GeneratePrivateKey()

	cfg := config.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "crashes.db")
	cfg.MappingRoot = ""

	d, err := New(cfg, recipientPriv, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d, recipientPriv
}

func TestHandleEventStoresDirectCrash(t *testing.T) {
	d, recipientPriv := newTestDaemon(t)

	wrapped := giftWrap(t, recipientPriv, transportcodec.KindDirect, `{"v":1,"crash":{"message":"java.lang.RuntimeException: boom","app_name":"demo"}}`)

	ctx := context.Background()
	d.handleEvent(ctx, wrapped)

	select {
	case pc := <-d.crashQueue:
		d.storeCrash(ctx, pc)
	case <-time.After(time.Second):
		t.Fatal("expected a crash to be enqueued")
	}

	n, err := d.store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count = %d, want 1", n)
	}
}

// TestHandleEventStoresCompressedDirectCrash covers scenario S2: a direct
// rumor whose content is a compression envelope around the same JSON as S1
// must decompress to identical stored fields, not fall through to an empty
// message.
func TestHandleEventStoresCompressedDirectCrash(t *testing.T) {
	d, recipientPriv := newTestDaemon(t)

	plain := `{"v":1,"crash":{"message":"java.lang.RuntimeException: boom","app_name":"demo"}}`
	envelope, err := compress.Compress(plain)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	wrapped := giftWrap(t, recipientPriv, transportcodec.KindDirect, envelope)

	ctx := context.Background()
	d.handleEvent(ctx, wrapped)

	var pc pendingCrash
	select {
	case pc = <-d.crashQueue:
	case <-time.After(time.Second):
		t.Fatal("expected a crash to be enqueued")
	}

	if pc.content != plain {
		t.Fatalf("content = %q, want decompressed %q", pc.content, plain)
	}

	d.storeCrash(ctx, pc)
	c, err := d.store.GetByID(ctx, 1)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if c.Message != "java.lang.RuntimeException: boom" {
		t.Errorf("Message = %q, want the S1 message", c.Message)
	}
}

func TestHandleEventDropsUndecryptableEvent(t *testing.T) {
	d, _ := newTestDaemon(t)
	otherPriv := gonostr.GeneratePrivateKey()

	wrapped := giftWrap(t, otherPriv, transportcodec.KindDirect, `{"v":1,"crash":{"message":"x"}}`)

	ctx := context.Background()
	d.handleEvent(ctx, wrapped)

	select {
	case <-d.crashQueue:
		t.Fatal("expected nothing enqueued for a gift wrap addressed to a different recipient")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSymbolicatorNilWithoutMappingRoot(t *testing.T) {
	d, _ := newTestDaemon(t)
	if d.Symbolicator() != nil {
		t.Fatal("expected a nil symbolicator when no mapping root is configured")
	}
}

package unwrap

import (
	"encoding/json"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"

	"github.com/bugstr-dev/bugstr/internal/nostrevent"
	"github.com/bugstr-dev/bugstr/internal/transportcodec"
)

// wrap builds a gift-wrapped rumor the way a sending client would, so the
// test exercises Unwrap against a realistic two-layer envelope rather than
// a hand-assembled shortcut.
func wrap(t *testing.T, recipientPriv string, rumorKind int, rumorContent string) *nostrevent.Event {
	t.Helper()

	senderPriv := nostr.GeneratePrivateKey()
	senderPub, err := nostr.GetPublicKey(senderPriv)
	if err != nil {
		t.Fatalf("GetPublicKey: %v", err)
	}
	recipientPub, err := nostr.GetPublicKey(recipientPriv)
	if err != nil {
		t.Fatalf("GetPublicKey: %v", err)
	}

	rumor := &nostr.Event{
		Kind:      rumorKind,
		Content:   rumorContent,
		CreatedAt: nostr.Timestamp(1700000000),
		Tags:      nostr.Tags{},
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

	seal := &nostr.Event{
		Kind:      transportcodec.KindSeal,
		Content:   encryptedRumor,
		CreatedAt: nostr.Timestamp(1700000001),
		Tags:      nostr.Tags{},
		PubKey:    senderPub,
	}
	if err := seal.Sign(senderPriv); err != nil {
		t.Fatalf("sign seal: %v", err)
	}

	sealJSON, err := json.Marshal(seal)
	if err != nil {
		t.Fatalf("marshal seal: %v", err)
	}

	oneTimePriv := nostr.GeneratePrivateKey()
	oneTimePub, err := nostr.GetPublicKey(oneTimePriv)
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

	giftWrap := &nostr.Event{
		Kind:      transportcodec.KindGiftWrap,
		Content:   encryptedSeal,
		CreatedAt: nostr.Timestamp(1700000002),
		Tags:      nostr.Tags{{"p", recipientPub}},
		PubKey:    oneTimePub,
	}
	if err := giftWrap.Sign(oneTimePriv); err != nil {
		t.Fatalf("sign gift wrap: %v", err)
	}

	return &nostrevent.Event{
		ID:        giftWrap.ID,
		PubKey:    giftWrap.PubKey,
		CreatedAt: int64(giftWrap.CreatedAt),
		Kind:      giftWrap.Kind,
		Content:   giftWrap.Content,
		Sig:       giftWrap.Sig,
	}
}

func TestUnwrapRoundTrip(t *testing.T) {
	recipientPriv := nostr.GeneratePrivateKey()

	giftWrap := wrap(t, recipientPriv, transportcodec.KindDirect, `{"v":1,"envelope":"x"}`)

	rumor, err := Unwrap(giftWrap, recipientPriv)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if rumor.Kind != transportcodec.KindDirect {
		t.Errorf("Kind = %d, want %d", rumor.Kind, transportcodec.KindDirect)
	}
	if rumor.Content != `{"v":1,"envelope":"x"}` {
		t.Errorf("Content mismatch: %s", rumor.Content)
	}
	if rumor.SenderPubKey == "" {
		t.Errorf("expected SenderPubKey to be populated from the seal")
	}
}

func TestUnwrapRejectsWrongRecipient(t *testing.T) {
	recipientPriv := nostr.GeneratePrivateKey()
	otherPriv := nostr.GeneratePrivateKey()

	giftWrap := wrap(t, recipientPriv, transportcodec.KindDirect, "payload")

	if _, err := Unwrap(giftWrap, otherPriv); err == nil {
		t.Fatalf("expected unwrap to fail for the wrong recipient key")
	}
}

func TestUnwrapRejectsNonGiftWrapKind(t *testing.T) {
	recipientPriv := nostr.GeneratePrivateKey()
	giftWrap := wrap(t, recipientPriv, transportcodec.KindDirect, "payload")
	giftWrap.Kind = transportcodec.KindSeal

	if _, err := Unwrap(giftWrap, recipientPriv); err != ErrNotGiftWrap {
		t.Fatalf("expected ErrNotGiftWrap, got %v", err)
	}
}

func TestUnwrapRejectsUnrecognizedRumorKind(t *testing.T) {
	recipientPriv := nostr.GeneratePrivateKey()
	giftWrap := wrap(t, recipientPriv, 9999, "payload")

	if _, err := Unwrap(giftWrap, recipientPriv); err == nil {
		t.Fatalf("expected unwrap to reject an unrecognized rumor kind")
	}
}

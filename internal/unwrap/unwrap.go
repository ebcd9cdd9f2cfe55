// Package unwrap implements the two-layer NIP-44 decrypt pipeline that turns
// a gift wrap event received off a relay subscription into a plaintext
// crash report rumor: gift wrap -> seal -> rumor.
//
// Only the low-level nip44.GenerateConversationKey/Encrypt/Decrypt
// primitives are used here, not a higher-level gift-unwrap helper: the
// pipeline's two decrypt layers are this package's own responsibility. The
// direct/manifest dispatch and chunk fetch that follow are left to the caller.
package unwrap

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"

	"github.com/bugstr-dev/bugstr/internal/nostrevent"
	"github.com/bugstr-dev/bugstr/internal/transportcodec"
)

// Sentinel errors for each pipeline stage.
var (
	ErrNotGiftWrap      = errors.New("unwrap: event is not a gift wrap")
	ErrSealDecrypt      = errors.New("unwrap: failed to decrypt seal")
	ErrSealUnmarshal    = errors.New("unwrap: failed to parse seal")
	ErrSealSignature    = errors.New("unwrap: seal has invalid signature")
	ErrRumorDecrypt     = errors.New("unwrap: failed to decrypt rumor")
	ErrRumorUnmarshal   = errors.New("unwrap: failed to parse rumor")
	ErrUnrecognizedKind = errors.New("unwrap: rumor kind is not a recognized crash report kind")
)

// Rumor is the plaintext inner event recovered from a gift wrap, still
// carrying its own kind so the caller can dispatch Direct vs Manifest vs
// legacy handling.
type Rumor struct {
	Kind         int
	Content      string
	Tags         nostrevent.Tags
	SenderPubKey string // the seal's pubkey; the gift wrap's own pubkey is a random throwaway
}

// Unwrap decrypts a gift wrap event addressed to recipientPrivHex, returning
// the plaintext rumor inside it. It does not itself fetch chunks for a
// manifest rumor — that is internal/chunkfetch's job, driven by the caller
// once it sees KindManifest.
func Unwrap(giftWrap *nostrevent.Event, recipientPrivHex string) (*Rumor, error) {
	if giftWrap.Kind != transportcodec.KindGiftWrap {
		return nil, ErrNotGiftWrap
	}

	sealKey, err := nip44.GenerateConversationKey(giftWrap.PubKey, recipientPrivHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealDecrypt, err)
	}

	sealJSON, err := nip44.Decrypt(giftWrap.Content, sealKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealDecrypt, err)
	}

	var seal nostr.Event
	if err := json.Unmarshal([]byte(sealJSON), &seal); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealUnmarshal, err)
	}
	if seal.Kind != transportcodec.KindSeal {
		return nil, fmt.Errorf("%w: expected kind %d, got %d", ErrSealUnmarshal, transportcodec.KindSeal, seal.Kind)
	}
	if ok, err := seal.CheckSignature(); err != nil || !ok {
		return nil, ErrSealSignature
	}

	rumorKey, err := nip44.GenerateConversationKey(seal.PubKey, recipientPrivHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRumorDecrypt, err)
	}

	rumorJSON, err := nip44.Decrypt(seal.Content, rumorKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRumorDecrypt, err)
	}

	var rumor nostrevent.Event
	if err := json.Unmarshal([]byte(rumorJSON), &rumor); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRumorUnmarshal, err)
	}
	if !transportcodec.IsCrashReportKind(rumor.Kind) {
		return nil, fmt.Errorf("%w: kind %d", ErrUnrecognizedKind, rumor.Kind)
	}

	return &Rumor{Kind: rumor.Kind, Content: rumor.Content, Tags: rumor.Tags, SenderPubKey: seal.PubKey}, nil
}

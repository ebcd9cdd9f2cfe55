// Package identity loads and derives the recipient's long-term secp256k1
// keypair. Key generation, public-key derivation, and bech32 (nsec/npub)
// encoding are delegated to go-nostr, per spec §1's carve-out that those
// primitives are "assumed to exist as a library" — this package only adds
// the environment-variable loading convention around them (FromEnv); it does
// not read keys from files.
package identity

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// ErrMissingSecretKey is returned when no secret key could be found in the
// environment.
var ErrMissingSecretKey = errors.New("identity: BUGSTR_PRIVKEY not set")

// SecretKeyEnvVar is the environment variable the CLI collaborator reads the
// recipient's secret key from (spec §6).
const SecretKeyEnvVar = "BUGSTR_PRIVKEY"

// Identity holds a recipient's long-term keypair in hex form.
type Identity struct {
	SecretKeyHex string
	PublicKeyHex string
}

// FromSecretKey builds an Identity from a secret key supplied as either
// 64-char hex (any case; normalized to lowercase) or an nsec-prefixed bech32
// string.
func FromSecretKey(input string) (*Identity, error) {
	sk, err := decodeSecretKey(input)
	if err != nil {
		return nil, err
	}

	pub, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("identity: failed to derive public key: %w", err)
	}

	return &Identity{SecretKeyHex: sk, PublicKeyHex: pub}, nil
}

// FromEnv reads the secret key from BUGSTR_PRIVKEY.
func FromEnv() (*Identity, error) {
	raw := os.Getenv(SecretKeyEnvVar)
	if raw == "" {
		return nil, ErrMissingSecretKey
	}
	return FromSecretKey(raw)
}

// decodeSecretKey accepts either raw 64-char hex in any case or an
// nsec1-prefixed bech32 string, returning normalized lowercase hex.
func decodeSecretKey(input string) (string, error) {
	input = strings.TrimSpace(input)

	if strings.HasPrefix(input, "nsec1") {
		prefix, value, err := nip19.Decode(input)
		if err != nil {
			return "", fmt.Errorf("identity: invalid nsec: %w", err)
		}
		if prefix != "nsec" {
			return "", fmt.Errorf("identity: expected nsec, got %s", prefix)
		}
		sk, ok := value.(string)
		if !ok {
			return "", errors.New("identity: unexpected nsec payload type")
		}
		return strings.ToLower(sk), nil
	}

	if len(input) != 64 {
		return "", fmt.Errorf("identity: secret key must be 64 hex chars or nsec1..., got %d chars", len(input))
	}
	return strings.ToLower(input), nil
}

// NpubString returns the bech32 npub encoding of the public key, for display
// (CLI `pubkey` subcommand).
func (id *Identity) NpubString() (string, error) {
	return nip19.EncodePublicKey(id.PublicKeyHex)
}

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

var (
	// ErrKeySize is returned when a key is not the 32 bytes AES-256 requires.
	ErrKeySize = errors.New("crypto: key must be exactly 32 bytes for AES-256")

	// ErrNonceSize is returned when a nonce is not the 12 bytes GCM requires.
	ErrNonceSize = errors.New("crypto: nonce must be exactly 12 bytes for GCM")

	// ErrSealBroken is returned when GCM tag verification fails, meaning the
	// ciphertext was tampered with or sealed under a different key/nonce/AAD.
	ErrSealBroken = errors.New("crypto: authentication failed, ciphertext has been tampered with")
)

// Seal encrypts and authenticates plaintext with AES-256-GCM. aad is
// authenticated but not encrypted — chunkengine passes nil, since a chunk's
// key is itself derived from the plaintext and carries no separate context
// that needs binding.
//
// The nonce must never be reused under the same key. chunkengine's chunk
// keys are each derived from a single plaintext window's hash, so it uses a
// fixed all-zero nonce per call — safe only because a (key, nonce) pair is
// never reused across two different plaintexts.
func Seal(key []byte, nonce []byte, aad []byte, plaintext []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrKeySize, len(key))
	}
	if len(nonce) != 12 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrNonceSize, len(nonce))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}

	return gcm.Seal(nil, nonce, plaintext, aad), nil
}

// Open decrypts and verifies ciphertext sealed by Seal. It never returns
// partial plaintext: a failed tag check returns ErrSealBroken and nothing
// else.
func Open(key []byte, nonce []byte, aad []byte, ciphertext []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrKeySize, len(key))
	}
	if len(nonce) != 12 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrNonceSize, len(nonce))
	}
	if len(ciphertext) < 16 {
		return nil, errors.New("crypto: ciphertext too short, must be at least 16 bytes for the GCM tag")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealBroken, err)
	}
	return plaintext, nil
}

// Package crypto provides the authenticated-encryption primitive used to
// seal and open CHK-encrypted chunks (see internal/chunkengine).
//
// Key material for chunk sealing is never generated or stored by this
// package: the caller derives a 32-byte key as the SHA-256 hash of the
// chunk's plaintext (the CHK property) and passes it to Seal/Open.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns a display fingerprint for an arbitrary public key blob,
// used by the CLI's pubkey subcommand as a short form alongside the full
// hex/npub encodings.
func Fingerprint(publicKey []byte) string {
	hash := sha256.Sum256(publicKey)
	return "SHA256:" + hex.EncodeToString(hash[:])
}

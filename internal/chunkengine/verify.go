package chunkengine

import (
	"crypto/sha256"
	"encoding/hex"
)

// VerifyChunkHashes is an optional, stricter integrity check, not used by
// the default Decode path (AEAD authentication already detects tampering).
// It recomputes each chunk's content hash from its *decrypted* plaintext and
// compares it against the hash the chunk claimed as its key.
//
// The comparison is a flat SHA-256 per chunk; no Merkle tree or pairwise
// hashing is involved. It is the only source of ErrChunkHashMismatch, which
// the default path therefore never returns.
func VerifyChunkHashes(chunks []ChunkPayload, plaintexts [][]byte) error {
	if len(chunks) != len(plaintexts) {
		return ErrInvalidManifest
	}
	for i, c := range chunks {
		sum := sha256.Sum256(plaintexts[i])
		if hex.EncodeToString(sum[:]) != c.Hash {
			return ErrChunkHashMismatch
		}
	}
	return nil
}

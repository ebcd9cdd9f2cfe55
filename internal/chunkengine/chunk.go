// Package chunkengine implements the Content Hash Key (CHK) chunk transport:
// splitting an oversized payload into fixed-size windows, encrypting each
// window with a key derived from its own plaintext hash, and reassembling
// from a manifest plus the fetched chunk set.
//
// The CHK property means a chunk event published to a relay is opaque to any
// observer who does not already know (or can't derive) its plaintext: the
// decryption key is the SHA-256 hash of the plaintext itself. Confidentiality
// of the chunk *set* — which chunks belong to which report — is carried
// entirely by the gift-wrapped manifest, not by this layer.
package chunkengine

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/bugstr-dev/bugstr/internal/crypto"
	"github.com/bugstr-dev/bugstr/internal/transportcodec"
)

// PayloadVersion is the version byte carried by manifest and chunk payloads.
const PayloadVersion = 1

// Sentinel errors, matching the taxonomy in spec §4.D / §7.
var (
	ErrPayloadTooSmall  = errors.New("chunkengine: payload too small for chunking, use direct transport")
	ErrEncryption       = errors.New("chunkengine: encryption failed")
	ErrDecryption       = errors.New("chunkengine: decryption failed")
	ErrInvalidManifest  = errors.New("chunkengine: invalid manifest")
	ErrMissingChunk     = errors.New("chunkengine: missing chunk")
	ErrInvalidRootHash  = errors.New("chunkengine: invalid root hash")
	ErrChunkHashMismatch = errors.New("chunkengine: chunk hash mismatch")
)

// zeroNonce is used for every chunk's AEAD seal. This is safe only because
// the key itself is SHA-256(plaintext): identical plaintext always yields
// identical key and identical nonce, which just reproduces the same
// ciphertext (convergent encryption) — it never reuses a nonce under two
// different plaintexts sharing a key, which is the property GCM actually
// requires.
var zeroNonce = make([]byte, 12)

// ChunkPayload is the wire shape of a single encrypted chunk event's content.
type ChunkPayload struct {
	V     int    `json:"v"`
	Index uint32 `json:"index"`
	Hash  string `json:"hash"` // hex content-hash of the plaintext; also the decryption key
	Data  string `json:"data"` // base64 ciphertext
}

// ManifestPayload is the wire shape of a manifest event's content.
type ManifestPayload struct {
	V           int                 `json:"v"`
	RootHash    string              `json:"root_hash"`
	TotalSize   int64               `json:"total_size"`
	ChunkCount  int                 `json:"chunk_count"`
	ChunkIDs    []string            `json:"chunk_ids"`
	ChunkRelays map[string][]string `json:"chunk_relays,omitempty"`
}

// EncodeResult bundles a manifest with the chunk payloads it describes.
// ChunkIDs in the returned manifest are left empty: the caller fills them in
// once each chunk has been published and an event ID assigned.
type EncodeResult struct {
	Manifest ManifestPayload
	Chunks   []ChunkPayload
}

// Encode splits payload into fixed ChunkSize windows, CHK-encrypts each, and
// computes the manifest's root hash. It rejects payloads that fit within
// direct transport — those must never be chunked.
func Encode(payload []byte) (*EncodeResult, error) {
	if len(payload) <= transportcodec.DirectSizeLimit {
		return nil, ErrPayloadTooSmall
	}

	var chunks []ChunkPayload
	var keys [][]byte

	for i := 0; i*transportcodec.ChunkSize < len(payload); i++ {
		start := i * transportcodec.ChunkSize
		end := start + transportcodec.ChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		window := payload[start:end]

		keySum := sha256.Sum256(window)
		key := keySum[:]

		ciphertext, err := crypto.Seal(key, zeroNonce, nil, window)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %v", ErrEncryption, i, err)
		}

		chunks = append(chunks, ChunkPayload{
			V:     PayloadVersion,
			Index: uint32(i),
			Hash:  hex.EncodeToString(key),
			Data:  base64.StdEncoding.EncodeToString(ciphertext),
		})
		keys = append(keys, key)
	}

	rootHash := computeRootHash(keys)

	manifest := ManifestPayload{
		V:          PayloadVersion,
		RootHash:   rootHash,
		TotalSize:  int64(len(payload)),
		ChunkCount: len(chunks),
	}

	return &EncodeResult{Manifest: manifest, Chunks: chunks}, nil
}

// computeRootHash hashes the concatenation of the raw chunk keys, in index
// order, as mandated by spec §3/§4.D.
func computeRootHash(keys [][]byte) string {
	h := sha256.New()
	for _, k := range keys {
		h.Write(k)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Decode reassembles the original payload from a manifest and its fetched
// chunks. Chunks need not arrive in order, but every index in
// 0..manifest.ChunkCount-1 must be present exactly once.
func Decode(manifest *ManifestPayload, chunks []ChunkPayload) ([]byte, error) {
	if len(chunks) != manifest.ChunkCount {
		return nil, fmt.Errorf("%w: expected %d chunks, got %d", ErrInvalidManifest, manifest.ChunkCount, len(chunks))
	}

	sorted := make([]ChunkPayload, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	for i, c := range sorted {
		if int(c.Index) != i {
			return nil, fmt.Errorf("%w: index %d", ErrMissingChunk, i)
		}
	}

	var out []byte
	keys := make([][]byte, len(sorted))

	for i, c := range sorted {
		key, err := hex.DecodeString(c.Hash)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("%w: chunk %d: malformed hash", ErrDecryption, i)
		}
		keys[i] = key

		ciphertext, err := base64.StdEncoding.DecodeString(c.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d: malformed data", ErrDecryption, i)
		}

		plaintext, err := crypto.Open(key, zeroNonce, nil, ciphertext)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %v", ErrDecryption, i, err)
		}

		out = append(out, plaintext...)
	}

	if computeRootHash(keys) != manifest.RootHash {
		return nil, ErrInvalidRootHash
	}

	return out, nil
}

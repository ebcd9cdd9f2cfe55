// Package compress implements the versioned, backwards-compatible gzip
// envelope used to shrink crash payloads before they are wrapped into a
// Nostr event. Detection of a compressed payload is purely structural: any
// failure to recognize or decode the envelope silently falls back to
// treating the string as plaintext, so older and newer peers never break
// each other.
package compress

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"
)

// EnvelopeVersion is the only supported envelope version. A mismatched
// version is treated as "not an envelope" rather than an error.
const EnvelopeVersion = 1

// DefaultThreshold is the default minimum payload length, in bytes, for
// MaybeCompress to bother compressing at all.
const DefaultThreshold = 1024

// envelope is the on-wire shape of a compressed payload.
type envelope struct {
	V           int    `json:"v"`
	Compression string `json:"compression"`
	Payload     string `json:"payload"`
}

// Compress gzips s at the default compression level and wraps it in the
// envelope JSON object.
func Compress(s string) (string, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(s)); err != nil {
		gw.Close()
		return "", err
	}
	if err := gw.Close(); err != nil {
		return "", err
	}

	env := envelope{
		V:           EnvelopeVersion,
		Compression: "gzip",
		Payload:     base64.StdEncoding.EncodeToString(buf.Bytes()),
	}
	out, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Decompress reverses Compress. If s does not look like an envelope, or any
// step of decoding fails, s is returned unchanged — decompression here is
// opportunistic, never authoritative.
func Decompress(s string) string {
	if !looksLikeEnvelope(s) {
		return s
	}

	var env envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return s
	}
	if env.V != EnvelopeVersion || env.Compression != "gzip" {
		return s
	}

	raw, err := base64.StdEncoding.DecodeString(env.Payload)
	if err != nil {
		return s
	}

	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return s
	}
	defer gr.Close()

	plain, err := io.ReadAll(gr)
	if err != nil {
		return s
	}
	return string(plain)
}

// looksLikeEnvelope applies the structural pre-check from spec: the string
// must start with '{' and contain the literal "compression" key before we
// even attempt a JSON parse.
func looksLikeEnvelope(s string) bool {
	trimmed := strings.TrimSpace(s)
	return strings.HasPrefix(trimmed, "{") && strings.Contains(trimmed, `"compression"`)
}

// MaybeCompress compresses s only when len(s) >= threshold, to avoid paying
// gzip/base64 overhead on payloads too small to benefit from it. A
// threshold <= 0 falls back to DefaultThreshold.
func MaybeCompress(s string, threshold int) (string, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if len(s) < threshold {
		return s, nil
	}
	return Compress(s)
}

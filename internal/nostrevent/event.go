// Package nostrevent implements the unsigned event structure and
// deterministic event-ID computation that underlie every kind this system
// handles (gift wraps, seals, rumors, manifests, chunks, direct payloads).
//
// Event shape and ID algorithm follow NIP-01: the ID is the hex-lowercase
// SHA-256 of the canonical JSON array [0, pubkey, created_at, kind, tags,
// content], serialized with no extraneous whitespace.
package nostrevent

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Tag is a single Nostr tag: an ordered sequence of strings, e.g. ["p", pubkey].
type Tag []string

// Tags is an ordered sequence of Tag.
type Tags []Tag

// Event is the unsigned event structure carried by this system. Sig is kept
// as an explicit empty string (never omitted) on rumors, per spec §3.
type Event struct {
	ID        string `json:"id,omitempty"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// New builds an Event with a normalized (lower-cased) pubkey and a
// freshly-computed ID. Sig is left empty, matching a rumor's shape.
func New(pubkey string, createdAt int64, kind int, tags Tags, content string) *Event {
	if tags == nil {
		tags = Tags{}
	}
	e := &Event{
		PubKey:    strings.ToLower(pubkey),
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
		Sig:       "",
	}
	e.ID = e.ComputeID()
	return e
}

// ComputeID returns the hex-lowercase SHA-256 of the canonical serialization
// of [0, pubkey, created_at, kind, tags, content]. The pubkey is lower-cased
// before hashing, regardless of how it was stored on the Event, so that
// upper-case and lower-case pubkey input always yield the same ID.
func (e *Event) ComputeID() string {
	tags := e.Tags
	if tags == nil {
		tags = Tags{}
	}

	serialized := []interface{}{
		0,
		strings.ToLower(e.PubKey),
		e.CreatedAt,
		e.Kind,
		tags,
		e.Content,
	}

	// encoding/json already produces compact output with no insignificant
	// whitespace; HTML-escaping is disabled so the bytes match what other
	// NIP-01 implementations hash.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(serialized); err != nil {
		// serialized contains only JSON-safe primitives; Encode cannot fail.
		panic("nostrevent: unexpected encode failure: " + err.Error())
	}

	canonical := bytes.TrimRight(buf.Bytes(), "\n")
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Normalize lower-cases PubKey in place and recomputes ID, matching the
// storage/serialization contract of spec §3 ("Pubkey is lowercased before
// hashing and before storage").
func (e *Event) Normalize() {
	e.PubKey = strings.ToLower(e.PubKey)
	e.ID = e.ComputeID()
}

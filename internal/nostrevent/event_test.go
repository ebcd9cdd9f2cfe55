package nostrevent

import "testing"

func TestComputeIDDeterministic(t *testing.T) {
	e1 := New("abc123", 1700000000, 1, Tags{{"p", "def456"}}, "hello")
	e2 := New("abc123", 1700000000, 1, Tags{{"p", "def456"}}, "hello")

	if e1.ID != e2.ID {
		t.Fatalf("expected stable ID across runs, got %s vs %s", e1.ID, e2.ID)
	}
	if len(e1.ID) != 64 {
		t.Fatalf("expected 64-char hex ID, got %d chars", len(e1.ID))
	}
}

func TestPubkeyNormalization(t *testing.T) {
	upper := New("ABC123DEF456", 1700000000, 1, Tags{}, "hi")
	lower := New("abc123def456", 1700000000, 1, Tags{}, "hi")

	if upper.PubKey != "abc123def456" {
		t.Errorf("expected stored pubkey lower-cased, got %s", upper.PubKey)
	}
	if upper.ID != lower.ID {
		t.Errorf("expected same ID for case-differing pubkey input")
	}
}

func TestComputeIDChangesWithContent(t *testing.T) {
	e1 := New("abc", 1700000000, 1, Tags{}, "hello")
	e2 := New("abc", 1700000000, 1, Tags{}, "world")
	if e1.ID == e2.ID {
		t.Errorf("expected different IDs for different content")
	}
}

func TestNormalizeRecomputesID(t *testing.T) {
	e := &Event{PubKey: "ABC", CreatedAt: 1, Kind: 1, Tags: Tags{}, Content: "x"}
	before := e.ComputeID()
	e.Normalize()
	if e.PubKey != "abc" {
		t.Errorf("expected normalized pubkey, got %s", e.PubKey)
	}
	if e.ID == "" || e.ID != before {
		t.Errorf("normalize should match already-lowercase computation, got %s want %s", e.ID, before)
	}
}

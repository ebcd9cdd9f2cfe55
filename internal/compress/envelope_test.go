package compress

import "testing"

func TestRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"short",
		string(make([]byte, 5000)),
		`{"hello":"world","nested":{"a":1}}`,
	}

	for _, s := range cases {
		compressed, err := Compress(s)
		if err != nil {
			t.Fatalf("Compress(%q): %v", s, err)
		}
		got := Decompress(compressed)
		if got != s {
			t.Errorf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(s))
		}
	}
}

func TestDecompressPlaintextPassthrough(t *testing.T) {
	cases := []string{
		"plain text",
		`{"no_compression_key": true}`,
		`not even json {`,
		"",
	}
	for _, s := range cases {
		if got := Decompress(s); got != s {
			t.Errorf("Decompress(%q) = %q, want unchanged", s, got)
		}
	}
}

func TestMaybeCompressThreshold(t *testing.T) {
	short := "short string"
	got, err := MaybeCompress(short, 1024)
	if err != nil {
		t.Fatalf("MaybeCompress: %v", err)
	}
	if got != short {
		t.Errorf("expected no compression below threshold, got %q", got)
	}

	long := string(make([]byte, 2000))
	got, err = MaybeCompress(long, 1024)
	if err != nil {
		t.Fatalf("MaybeCompress: %v", err)
	}
	if got == long {
		t.Errorf("expected compression above threshold")
	}
	if !looksLikeEnvelope(got) {
		t.Errorf("compressed output should look like an envelope")
	}
}

func TestMaybeCompressExactBoundary(t *testing.T) {
	s := string(make([]byte, 1024))
	got, err := MaybeCompress(s, 1024)
	if err != nil {
		t.Fatalf("MaybeCompress: %v", err)
	}
	if got == s {
		t.Errorf("len(s) == threshold should compress")
	}
}

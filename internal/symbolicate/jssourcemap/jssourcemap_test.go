package jssourcemap

import "testing"

func TestParseChromeStackFrame(t *testing.T) {
	frame := "    at myFunction (bundle.js:1:2345)"
	caps := chromeRe.FindStringSubmatch(frame)
	if caps == nil {
		t.Fatalf("expected a match")
	}
	if caps[1] != "myFunction" || caps[2] != "bundle.js" || caps[3] != "1" || caps[4] != "2345" {
		t.Errorf("got %v", caps[1:])
	}
}

func TestParseChromeStackFrameWithURL(t *testing.T) {
	frame := "    at myFunction (http://localhost:8080/bundle.js:1:2345)"
	caps := chromeRe.FindStringSubmatch(frame)
	if caps == nil {
		t.Fatalf("expected a match")
	}
	if caps[1] != "myFunction" || caps[2] != "http://localhost:8080/bundle.js" || caps[3] != "1" || caps[4] != "2345" {
		t.Errorf("got %v", caps[1:])
	}
}

func TestParseFirefoxStackFrame(t *testing.T) {
	frame := "myFunction@bundle.js:1:2345"
	caps := firefoxRe.FindStringSubmatch(frame)
	if caps == nil {
		t.Fatalf("expected a match")
	}
	if caps[1] != "myFunction" || caps[2] != "bundle.js" || caps[3] != "1" || caps[4] != "2345" {
		t.Errorf("got %v", caps[1:])
	}
}

// A minimal but valid source map: one mapping segment pointing generated
// line 1 col 0 back to source.js original line 6 (0-based 5) col 0; the
// segment carries no name index.
const testSourceMap = `{
  "version": 3,
  "sources": ["source.js"],
  "names": ["original"],
  "mappings": "AAKA",
  "file": "bundle.js"
}`

func TestSymbolicateResolvesKnownFrame(t *testing.T) {
	stack, err := Symbolicate("    at minified (bundle.js:1:1)", []byte(testSourceMap))
	if err != nil {
		t.Fatalf("Symbolicate: %v", err)
	}
	if stack.TotalCount != 1 {
		t.Fatalf("TotalCount = %d, want 1", stack.TotalCount)
	}
}

func TestSymbolicateLeavesUnmatchedLineRaw(t *testing.T) {
	stack, err := Symbolicate("not a stack frame at all", []byte(testSourceMap))
	if err != nil {
		t.Fatalf("Symbolicate: %v", err)
	}
	if stack.SymbolicatedCount != 0 {
		t.Errorf("expected no frames resolved for a non-frame line")
	}
}

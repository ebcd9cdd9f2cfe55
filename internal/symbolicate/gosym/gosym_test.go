package gosym

import "testing"

func TestSymbolicateGoStack(t *testing.T) {
	stack := "goroutine 1 [running]:\n" +
		"main.myFunction(0x123, 0x456)\n" +
		"        /home/user/project/main.go:42 +0x1a\n" +
		"main.main()\n" +
		"        /home/user/project/main.go:10 +0x2b"

	result, err := Symbolicate(stack)
	if err != nil {
		t.Fatalf("Symbolicate: %v", err)
	}
	if result.SymbolicatedCount < 2 {
		t.Fatalf("SymbolicatedCount = %d, want >= 2", result.SymbolicatedCount)
	}

	var found bool
	for _, f := range result.Frames {
		if f.File == "/home/user/project/main.go" && f.Line == 42 && f.Function == "main.myFunction(...)" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a frame for main.myFunction at main.go:42, got %+v", result.Frames)
	}
}

func TestSymbolicateFrameWithoutArgs(t *testing.T) {
	stack := "main.main()\n        /home/user/project/main.go:10 +0x2b"
	result, err := Symbolicate(stack)
	if err != nil {
		t.Fatalf("Symbolicate: %v", err)
	}
	if result.Frames[0].Function != "main.main" {
		t.Errorf("Function = %q, want main.main (no args, no ellipsis)", result.Frames[0].Function)
	}
}

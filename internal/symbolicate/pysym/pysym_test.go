package pysym

import "testing"

func TestSymbolicateParsesTraceback(t *testing.T) {
	traceback := "Traceback (most recent call last):\n" +
		"  File \"/home/user/app/main.py\", line 42, in my_function\n" +
		"    result = do_something()\n" +
		"  File \"/home/user/app/utils.py\", line 10, in do_something\n" +
		"    raise ValueError(\"test error\")\n" +
		"ValueError: test error"

	result, err := Symbolicate(traceback)
	if err != nil {
		t.Fatalf("Symbolicate: %v", err)
	}
	if result.SymbolicatedCount < 2 {
		t.Fatalf("SymbolicatedCount = %d, want >= 2", result.SymbolicatedCount)
	}

	var found bool
	for _, f := range result.Frames {
		if f.File == "/home/user/app/main.py" && f.Line == 42 && f.Function == "my_function" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a frame for main.py:42 in my_function, got %+v", result.Frames)
	}
}

func TestSymbolicateExceptionFrame(t *testing.T) {
	traceback := "ValueError: test error"
	result, err := Symbolicate(traceback)
	if err != nil {
		t.Fatalf("Symbolicate: %v", err)
	}
	if len(result.Frames) != 1 || result.Frames[0].Function != "ValueError: test error" {
		t.Errorf("got %+v", result.Frames)
	}
}

func TestSymbolicateHeaderLineStaysRaw(t *testing.T) {
	result, err := Symbolicate("Traceback (most recent call last):")
	if err != nil {
		t.Fatalf("Symbolicate: %v", err)
	}
	if result.SymbolicatedCount != 0 {
		t.Errorf("expected the header line to stay unsymbolicated")
	}
}

package flutter

import "testing"

func TestSymbolicateParsesDartFrame(t *testing.T) {
	trace := "#0      MyClass.myMethod (package:myapp/src/my_class.dart:42:15)\n" +
		"#1      main (package:myapp/main.dart:10:3)"

	stack, err := Symbolicate(trace, nil)
	if err != nil {
		t.Fatalf("Symbolicate: %v", err)
	}
	if stack.TotalCount != 2 || stack.SymbolicatedCount != 2 {
		t.Fatalf("total=%d symbolicated=%d", stack.TotalCount, stack.SymbolicatedCount)
	}
	f := stack.Frames[0]
	if f.Function != "MyClass.myMethod" || f.File != "package:myapp/src/my_class.dart" || f.Line != 42 || f.Column != 15 {
		t.Errorf("got %+v", f)
	}
}

func TestSymbolicateFrameWithoutColumn(t *testing.T) {
	trace := "#2      topLevel (package:myapp/main.dart:7)"
	stack, err := Symbolicate(trace, nil)
	if err != nil {
		t.Fatalf("Symbolicate: %v", err)
	}
	f := stack.Frames[0]
	if f.Line != 7 || f.Column != 0 {
		t.Errorf("got line=%d column=%d", f.Line, f.Column)
	}
}

func TestSymbolicateLeavesNonFrameLinesRaw(t *testing.T) {
	stack, err := Symbolicate("Unhandled exception:\nStateError: bad state", nil)
	if err != nil {
		t.Fatalf("Symbolicate: %v", err)
	}
	if stack.SymbolicatedCount != 0 {
		t.Errorf("expected no frames resolved")
	}
}

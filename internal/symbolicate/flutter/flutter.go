// Package flutter parses Dart stack traces from Flutter release builds.
//
// Release-build Dart traces are already readable without a symbol file —
// the #N frame, function name, file, and line are present in the trace
// itself — so this parser only needs a regex, not a shellout to the
// `flutter symbolize` tool.
package flutter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bugstr-dev/bugstr/internal/symbolicate/symtypes"
)

// Example: "#0      MyClass.myMethod (package:myapp/src/my_class.dart:42:15)"
var frameRe = regexp.MustCompile(`#(\d+)\s+(.+?)\s+\((.+?):(\d+)(?::(\d+))?\)`)

// Symbolicate parses a Dart stack trace. symbols is accepted for interface
// symmetry with the other platform parsers but is currently unused: Flutter
// release traces carry enough information in the raw frame.
func Symbolicate(stackTrace string, symbols []byte) (*symtypes.Stack, error) {
	var frames []symtypes.Frame
	totalLines := 0
	for _, line := range strings.Split(stackTrace, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		totalLines++

		caps := frameRe.FindStringSubmatch(trimmed)
		if caps == nil {
			frames = append(frames, symtypes.Frame{Raw: trimmed})
			continue
		}

		f := symtypes.Frame{
			Raw:          trimmed,
			Function:     caps[2],
			File:         caps[3],
			Symbolicated: true,
		}
		if caps[4] != "" {
			f.Line, _ = strconv.Atoi(caps[4])
		}
		if caps[5] != "" {
			f.Column, _ = strconv.Atoi(caps[5])
		}
		frames = append(frames, f)
	}

	return symtypes.NewStack(frames, totalLines), nil
}

// Package reactnative parses React Native crash stacks, which can mix
// bundled JavaScript/Hermes frames (resolved via a source map), native
// Android frames, and native iOS frames in a single trace.
package reactnative

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sourcemap/sourcemap"

	"github.com/bugstr-dev/bugstr/internal/symbolicate/symtypes"
)

// JS: "    at myFunction (index.bundle:1:2345)"
// Hermes: "    at myFunction (address at index.android.bundle:1:2345)"
// File paths can contain colons (URLs), so this matches greedily up to the
// final :line:col.
var jsFrameRe = regexp.MustCompile(`^\s*at\s+(?:(.+?)\s+)?\(?(?:address at\s+)?(.+):(\d+):(\d+)\)?`)

// Native Android: "at com.example.MyClass.method(MyClass.java:42)"
var nativeAndroidRe = regexp.MustCompile(`^\s*at\s+([a-zA-Z0-9_.]+)\.([a-zA-Z0-9_<>]+)\(([^:]+):(\d+)\)`)

// Native iOS: "0   MyApp    0x00000001 myFunction + 123"
var nativeIOSRe = regexp.MustCompile(`^\d+\s+(\S+)\s+0x[0-9a-f]+\s+(.+)\s+\+\s+\d+`)

// Symbolicate parses a React Native stack trace, resolving JS/Hermes frames
// against mapData when one is available. mapData may be nil.
func Symbolicate(stackTrace string, mapData []byte) (*symtypes.Stack, error) {
	var consumer *sourcemap.Consumer
	if len(mapData) > 0 {
		if c, err := sourcemap.Parse("", mapData); err == nil {
			consumer = c
		}
	}

	var frames []symtypes.Frame
	totalLines := 0
	for _, line := range strings.Split(stackTrace, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		totalLines++
		frames = append(frames, parseFrame(line, trimmed, consumer))
	}

	return symtypes.NewStack(frames, totalLines), nil
}

func parseFrame(raw, trimmed string, consumer *sourcemap.Consumer) symtypes.Frame {
	if caps := jsFrameRe.FindStringSubmatch(trimmed); caps != nil {
		function := caps[1]
		file := caps[2]
		lineNum, _ := strconv.Atoi(caps[3])
		colNum, _ := strconv.Atoi(caps[4])

		if consumer != nil {
			line0 := 0
			if lineNum > 0 {
				line0 = lineNum - 1
			}
			col0 := 0
			if colNum > 0 {
				col0 = colNum - 1
			}
			if origFile, origFunc, origLine, origCol, ok := consumer.Source(line0, col0); ok {
				name := origFunc
				if name == "" {
					name = function
				}
				if name == "" {
					name = "<anonymous>"
				}
				return symtypes.Frame{
					Raw:          raw,
					Function:     name,
					File:         origFile,
					Line:         origLine + 1,
					Column:       origCol + 1,
					Symbolicated: true,
				}
			}
		}

		return symtypes.Frame{
			Raw:      raw,
			Function: function,
			File:     file,
			Line:     lineNum,
			Column:   colNum,
		}
	}

	if caps := nativeAndroidRe.FindStringSubmatch(trimmed); caps != nil {
		lineNum, _ := strconv.Atoi(caps[4])
		return symtypes.Frame{
			Raw:          raw,
			Function:     caps[1] + "." + caps[2],
			File:         caps[3],
			Line:         lineNum,
			Symbolicated: true,
		}
	}

	if caps := nativeIOSRe.FindStringSubmatch(trimmed); caps != nil {
		return symtypes.Frame{
			Raw:          raw,
			Function:     caps[2],
			Symbolicated: true,
		}
	}

	return symtypes.Frame{Raw: raw}
}

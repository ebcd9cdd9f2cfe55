// Package rustsym parses Rust panic backtraces. Debug builds already embed
// source locations in the backtrace; this package only needs to pair each
// frame-number line with its following location line.
package rustsym

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bugstr-dev/bugstr/internal/symbolicate/symtypes"
)

// Frame-number line, with or without an address:
//
//	   0: std::panicking::begin_panic
//	   0:     0x7f1234567890 - std::panicking::begin_panic
var frameNumRe = regexp.MustCompile(`^\s*(\d+):\s+(?:0x[0-9a-f]+\s+-\s+)?(.+)$`)

// Location line belonging to the preceding frame: "             at /path/to/file.rs:42:5"
var locationRe = regexp.MustCompile(`^\s+at\s+(.+?):(\d+)(?::(\d+))?$`)

// Symbolicate parses a Rust panic backtrace.
func Symbolicate(stackTrace string) (*symtypes.Stack, error) {
	var frames []symtypes.Frame
	var currentFunc, currentRaw string
	haveFunc := false

	flush := func() {
		if haveFunc {
			frames = append(frames, symtypes.Frame{Raw: currentRaw, Function: currentFunc, Symbolicated: true})
			haveFunc = false
		}
	}

	totalLines := 0
	for _, line := range strings.Split(stackTrace, "\n") {
		if strings.TrimSpace(line) != "" {
			totalLines++
		}

		if caps := frameNumRe.FindStringSubmatch(line); caps != nil {
			flush()
			currentFunc = strings.TrimSpace(caps[2])
			currentRaw = line
			haveFunc = true
			continue
		}

		if caps := locationRe.FindStringSubmatch(line); caps != nil && haveFunc {
			lineNum, _ := strconv.Atoi(caps[2])
			col := 0
			if caps[3] != "" {
				col, _ = strconv.Atoi(caps[3])
			}
			frames = append(frames, symtypes.Frame{
				Raw:          currentRaw + "\n" + line,
				Function:     currentFunc,
				File:         caps[1],
				Line:         lineNum,
				Column:       col,
				Symbolicated: true,
			})
			haveFunc = false
			currentRaw = ""
			continue
		}

		if strings.TrimSpace(line) != "" {
			frames = append(frames, symtypes.Frame{Raw: line})
		}
	}
	flush()

	return symtypes.NewStack(frames, totalLines), nil
}

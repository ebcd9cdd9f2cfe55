// Package gosym parses Go panic stack traces, which already carry source
// locations in a non-stripped binary — this is a formatting pass, not a
// debug-info lookup.
package gosym

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bugstr-dev/bugstr/internal/symbolicate/symtypes"
)

// A Go panic trace looks like:
//
//	goroutine 1 [running]:
//	main.myFunction(0x123, 0x456)
//	        /path/to/file.go:42 +0x1a
//	main.main()
//	        /path/to/main.go:10 +0x2b
var (
	funcRe      = regexp.MustCompile(`^([a-zA-Z0-9_./*]+)\(([^)]*)\)$`)
	locationRe  = regexp.MustCompile(`^\s+(.+\.go):(\d+)\s+\+0x[0-9a-f]+$`)
	goroutineRe = regexp.MustCompile(`^goroutine\s+\d+\s+\[.+\]:$`)
)

// Symbolicate parses a Go panic stack trace.
func Symbolicate(stackTrace string) (*symtypes.Stack, error) {
	var frames []symtypes.Frame
	var currentFunc, currentArgs, currentRaw string
	haveFunc := false

	flush := func() {
		if haveFunc {
			frames = append(frames, symtypes.Frame{Raw: currentRaw, Function: currentFunc, Symbolicated: true})
			haveFunc = false
		}
	}

	totalLines := 0
	for _, line := range strings.Split(stackTrace, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			totalLines++
		}

		if goroutineRe.MatchString(trimmed) {
			frames = append(frames, symtypes.Frame{Raw: line})
			continue
		}

		if caps := funcRe.FindStringSubmatch(trimmed); caps != nil {
			flush()
			currentFunc = caps[1]
			currentArgs = caps[2]
			currentRaw = line
			haveFunc = true
			continue
		}

		if caps := locationRe.FindStringSubmatch(line); caps != nil && haveFunc {
			lineNum, _ := strconv.Atoi(caps[2])
			display := currentFunc
			if currentArgs != "" {
				display = currentFunc + "(...)"
			}
			frames = append(frames, symtypes.Frame{
				Raw:          currentRaw + "\n" + line,
				Function:     display,
				File:         caps[1],
				Line:         lineNum,
				Symbolicated: true,
			})
			haveFunc = false
			currentRaw = ""
			continue
		}

		if trimmed != "" {
			frames = append(frames, symtypes.Frame{Raw: line})
		}
	}
	flush()

	return symtypes.NewStack(frames, totalLines), nil
}

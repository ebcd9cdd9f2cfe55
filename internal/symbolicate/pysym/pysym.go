// Package pysym parses Python tracebacks. CPython tracebacks already carry
// source locations; this package groups each "File ... line ... in ..."
// entry with its indented source line and folds the trailing exception
// line into its own frame.
package pysym

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bugstr-dev/bugstr/internal/symbolicate/symtypes"
)

var fileRe = regexp.MustCompile(`^\s*File\s+"([^"]+)",\s+line\s+(\d+),\s+in\s+(.+)$`)

// Exception line must end with Error, Exception, or Warning so it does not
// match the "Traceback (most recent call last):" header line.
var exceptionRe = regexp.MustCompile(`^([A-Z][a-zA-Z0-9]*(?:Error|Exception|Warning)):?\s*(.*)$`)

// Symbolicate parses a Python traceback.
func Symbolicate(stackTrace string) (*symtypes.Stack, error) {
	var frames []symtypes.Frame
	var currentFile, currentFunc, currentRaw string
	var currentLine int
	inFrame := false

	flush := func() {
		if inFrame {
			frames = append(frames, symtypes.Frame{
				Raw:          currentRaw,
				Function:     currentFunc,
				File:         currentFile,
				Line:         currentLine,
				Symbolicated: true,
			})
			inFrame = false
			currentRaw = ""
		}
	}

	totalLines := 0
	for _, line := range strings.Split(stackTrace, "\n") {
		if strings.TrimSpace(line) != "" {
			totalLines++
		}

		if caps := fileRe.FindStringSubmatch(line); caps != nil {
			flush()
			currentFile = caps[1]
			currentLine, _ = strconv.Atoi(caps[2])
			currentFunc = caps[3]
			currentRaw = line
			inFrame = true
			continue
		}

		if inFrame && strings.HasPrefix(line, "    ") && strings.TrimSpace(line) != "" {
			currentRaw += "\n" + line
			continue
		}

		if caps := exceptionRe.FindStringSubmatch(line); caps != nil {
			flush()
			message := ""
			if len(caps) > 2 {
				message = caps[2]
			}
			frames = append(frames, symtypes.Frame{
				Raw:          line,
				Function:     caps[1] + ": " + message,
				Symbolicated: true,
			})
			continue
		}

		if strings.TrimSpace(line) != "" {
			flush()
			frames = append(frames, symtypes.Frame{Raw: line})
		}
	}
	flush()

	return symtypes.NewStack(frames, totalLines), nil
}

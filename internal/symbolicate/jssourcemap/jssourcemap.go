// Package jssourcemap resolves minified Electron/Node JavaScript stack
// traces back to original source locations using a bundle's source map.
package jssourcemap

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sourcemap/sourcemap"

	"github.com/bugstr-dev/bugstr/internal/symbolicate/symtypes"
)

// Chrome/V8 and Node style: "    at functionName (file.js:line:col)". File
// paths can themselves contain colons (URLs, Windows paths), so this
// matches greedily up to the final :line:col.
var chromeRe = regexp.MustCompile(`^\s*at\s+(?:(.+?)\s+)?\(?(.+):(\d+):(\d+)\)?`)

// Firefox style: "functionName@file.js:line:col".
var firefoxRe = regexp.MustCompile(`^(.+?)@(.+):(\d+):(\d+)$`)

// Symbolicate resolves stackTrace against mapData, a source map (.map) file.
func Symbolicate(stackTrace string, mapData []byte) (*symtypes.Stack, error) {
	consumer, err := sourcemap.Parse("", mapData)
	if err != nil {
		return nil, err
	}

	var frames []symtypes.Frame
	totalLines := 0
	for _, line := range strings.Split(stackTrace, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		totalLines++
		frames = append(frames, resolveFrame(trimmed, consumer))
	}

	return symtypes.NewStack(frames, totalLines), nil
}

func resolveFrame(line string, consumer *sourcemap.Consumer) symtypes.Frame {
	caps := chromeRe.FindStringSubmatch(line)
	if caps == nil {
		caps = firefoxRe.FindStringSubmatch(line)
	}
	if caps == nil {
		return symtypes.Frame{Raw: line}
	}

	function := caps[1]
	lineNum, _ := strconv.Atoi(caps[3])
	colNum, _ := strconv.Atoi(caps[4])

	// Source maps use 0-based line/column numbers.
	line0 := 0
	if lineNum > 0 {
		line0 = lineNum - 1
	}
	col0 := 0
	if colNum > 0 {
		col0 = colNum - 1
	}

	file, fn, origLine, origCol, ok := consumer.Source(line0, col0)
	if !ok {
		return symtypes.Frame{Raw: line}
	}

	funcName := fn
	if funcName == "" {
		funcName = function
	}
	if funcName == "" {
		funcName = "<anonymous>"
	}

	return symtypes.Frame{
		Raw:          line,
		Function:     funcName,
		File:         file,
		Line:         origLine + 1, // back to 1-based
		Column:       origCol + 1,
		Symbolicated: true,
	}
}

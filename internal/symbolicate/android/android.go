// Package android deobfuscates Android stack traces using ProGuard/R8
// mapping.txt files, including the R8 original-line-range suffix emitted
// for inlined methods.
package android

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/bugstr-dev/bugstr/internal/symbolicate/symtypes"
)

var (
	classRe        = regexp.MustCompile(`^(\S+)\s+->\s+(\S+):$`)
	methodRe       = regexp.MustCompile(`^\s+(\d+):(\d+):(\S+)\s+(\S+)\(([^)]*)\)(?:(?::(\d+)(?::(\d+))?))?\s+->\s+(\S+)$`)
	methodNoLineRe = regexp.MustCompile(`^\s+(\S+)\s+([^\s(]+)\(([^)]*)\)\s+->\s+(\S+)$`)
	fieldRe        = regexp.MustCompile(`^\s+(\S+)\s+(\S+)\s+->\s+(\S+)$`)

	frameRe = regexp.MustCompile(`^\s*at\s+([a-zA-Z0-9_.]+)\.([a-zA-Z0-9_<>]+)\(([^:)]+)?:?(\d+)?\)`)
)

// lineRangeEntry maps one obfuscated line range to an original method and
// line range. A method can have several of these when it is inlined or
// overloaded under the same obfuscated name.
type lineRangeEntry struct {
	obfStart, obfEnd   int
	origStart, origEnd int
	methodName         string
}

type classMapping struct {
	original         string
	methodLineRanges map[string][]lineRangeEntry
	methodsNoLines   map[string]string
}

// mapping is a parsed ProGuard/R8 mapping.txt file, keyed by obfuscated
// class name.
type mapping struct {
	classes map[string]*classMapping
}

func parseMapping(data []byte) *mapping {
	m := &mapping{classes: make(map[string]*classMapping)}
	var current *classMapping

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if caps := classRe.FindStringSubmatch(line); caps != nil {
			current = &classMapping{
				original:         caps[1],
				methodLineRanges: make(map[string][]lineRangeEntry),
				methodsNoLines:   make(map[string]string),
			}
			m.classes[caps[2]] = current
			continue
		}

		if current == nil {
			continue
		}

		if caps := methodRe.FindStringSubmatch(line); caps != nil {
			obfStart, _ := strconv.Atoi(caps[1])
			obfEnd, _ := strconv.Atoi(caps[2])
			methodName := caps[4]
			obfuscatedName := caps[8]

			origStart := obfStart
			if caps[6] != "" {
				origStart, _ = strconv.Atoi(caps[6])
			}
			origEnd := origStart + (obfEnd - obfStart)
			if caps[7] != "" {
				origEnd, _ = strconv.Atoi(caps[7])
			}

			current.methodLineRanges[obfuscatedName] = append(current.methodLineRanges[obfuscatedName], lineRangeEntry{
				obfStart:   obfStart,
				obfEnd:     obfEnd,
				origStart:  origStart,
				origEnd:    origEnd,
				methodName: methodName,
			})
			continue
		}

		if caps := methodNoLineRe.FindStringSubmatch(line); caps != nil {
			methodName := caps[2]
			obfuscatedName := caps[4]
			if _, hasLines := current.methodLineRanges[obfuscatedName]; !hasLines {
				if _, exists := current.methodsNoLines[obfuscatedName]; !exists {
					current.methodsNoLines[obfuscatedName] = methodName
				}
			}
			continue
		}

		// Field mappings carry no symbolication-relevant data for stack
		// frames; parsed for format completeness only.
		fieldRe.FindStringSubmatch(line)
	}

	return m
}

// deobfuscateFrame resolves an obfuscated class/method/line to its original
// source location. The class must be known; the method and line number are
// best-effort and fall back to the obfuscated values when unmapped.
func (m *mapping) deobfuscateFrame(class, method string, line int, hasLine bool) (origClass, origMethod string, origLine int, lineOK bool, ok bool) {
	cm, found := m.classes[class]
	if !found {
		return "", "", 0, false, false
	}

	if hasLine {
		for _, entry := range cm.methodLineRanges[method] {
			if line >= entry.obfStart && line <= entry.obfEnd {
				offset := line - entry.obfStart
				return cm.original, entry.methodName, entry.origStart + offset, true, true
			}
		}
	}

	originalMethod := method
	if name, found := cm.methodsNoLines[method]; found {
		originalMethod = name
	} else if entries, found := cm.methodLineRanges[method]; found && len(entries) > 0 {
		originalMethod = entries[0].methodName
	}

	return cm.original, originalMethod, line, hasLine, true
}

// Symbolicate deobfuscates an Android stack trace using proguardMapping, a
// ProGuard/R8 mapping.txt file's contents.
func Symbolicate(stackTrace string, proguardMapping []byte) (*symtypes.Stack, error) {
	m := parseMapping(proguardMapping)

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

		class, method := caps[1], caps[2]
		var lineNum int
		hasLine := caps[4] != ""
		if hasLine {
			lineNum, _ = strconv.Atoi(caps[4])
		}

		origClass, origMethod, origLine, lineOK, ok := m.deobfuscateFrame(class, method, lineNum, hasLine)
		if !ok {
			frames = append(frames, symtypes.Frame{Raw: trimmed})
			continue
		}

		sourceFile := ""
		if idx := strings.LastIndex(origClass, "."); idx >= 0 {
			sourceFile = origClass[idx+1:] + ".java"
		} else {
			sourceFile = origClass + ".java"
		}

		f := symtypes.Frame{
			Raw:          trimmed,
			Function:     origClass + "." + origMethod,
			File:         sourceFile,
			Symbolicated: true,
		}
		if lineOK {
			f.Line = origLine
		}
		frames = append(frames, f)
	}

	return symtypes.NewStack(frames, totalLines), nil
}

// Package symbolicate resolves stack frames in a crash report back to
// original source locations, dispatching to one of seven platform-specific
// parsers based on the report's declared platform.
package symbolicate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bugstr-dev/bugstr/internal/mapping"
	"github.com/bugstr-dev/bugstr/internal/symbolicate/android"
	"github.com/bugstr-dev/bugstr/internal/symbolicate/flutter"
	"github.com/bugstr-dev/bugstr/internal/symbolicate/gosym"
	"github.com/bugstr-dev/bugstr/internal/symbolicate/jssourcemap"
	"github.com/bugstr-dev/bugstr/internal/symbolicate/pysym"
	"github.com/bugstr-dev/bugstr/internal/symbolicate/reactnative"
	"github.com/bugstr-dev/bugstr/internal/symbolicate/rustsym"
	"github.com/bugstr-dev/bugstr/internal/symbolicate/symtypes"
)

// Re-exported so callers only need to import this package for the common
// result/frame shapes.
type Frame = symtypes.Frame
type Stack = symtypes.Stack

// Platform identifies which parser a crash report's stack trace needs.
type Platform string

const (
	Android     Platform = "android"
	Electron    Platform = "electron"
	Flutter     Platform = "flutter"
	Rust        Platform = "rust"
	Go          Platform = "go"
	Python      Platform = "python"
	ReactNative Platform = "react-native"
)

// ParsePlatform normalizes a user- or report-supplied platform string.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(s) {
	case "android":
		return Android, nil
	case "electron", "javascript", "js":
		return Electron, nil
	case "flutter", "dart":
		return Flutter, nil
	case "rust":
		return Rust, nil
	case "go", "golang":
		return Go, nil
	case "python":
		return Python, nil
	case "react-native", "reactnative", "rn":
		return ReactNative, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedPlatform, s)
	}
}

var ErrUnsupportedPlatform = errors.New("symbolicate: unsupported platform")

// Context carries the app identity used to resolve a mapping file, when the
// platform's parser needs one.
type Context struct {
	Platform Platform
	AppID    string
	Version  string
}

// Symbolicator dispatches a stack trace to the parser matching ctx.Platform,
// loading any mapping file it needs from store first.
type Symbolicator struct {
	store *mapping.Store
}

// New creates a Symbolicator backed by store.
func New(store *mapping.Store) *Symbolicator {
	return &Symbolicator{store: store}
}

// Symbolicate resolves stackTrace using the parser for ctx.Platform.
func (s *Symbolicator) Symbolicate(stackTrace string, ctx Context) (*Stack, error) {
	appID := orDefault(ctx.AppID, "unknown")
	version := orDefault(ctx.Version, "unknown")

	switch ctx.Platform {
	case Android:
		data, err := s.store.Resolve("android", appID, version, "mapping.txt")
		if err != nil {
			return nil, fmt.Errorf("symbolicate: android mapping: %w", err)
		}
		return android.Symbolicate(stackTrace, data)

	case Electron:
		data, err := s.store.Resolve("electron", appID, version, "bundle.js.map")
		if err != nil {
			return nil, fmt.Errorf("symbolicate: electron source map: %w", err)
		}
		return jssourcemap.Symbolicate(stackTrace, data)

	case Flutter:
		data, _ := s.store.Resolve("flutter", appID, version, "symbols.json")
		return flutter.Symbolicate(stackTrace, data)

	case Rust:
		return rustsym.Symbolicate(stackTrace)

	case Go:
		return gosym.Symbolicate(stackTrace)

	case Python:
		return pysym.Symbolicate(stackTrace)

	case ReactNative:
		data, _ := s.store.Resolve("react-native", appID, version, "index.bundle.map")
		return reactnative.Symbolicate(stackTrace, data)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, ctx.Platform)
	}
}

// AggregateStats summarizes symbolication coverage across a batch of
// results, as computed by Aggregate. No HTTP handler reports it; the
// dashboard's /api/stats endpoint returns only the total crash count.
type AggregateStats struct {
	TotalFrames        int
	SymbolicatedFrames int
}

// Percentage returns the share of frames successfully symbolicated, or 0 if
// there were none.
func (a AggregateStats) Percentage() float64 {
	if a.TotalFrames == 0 {
		return 0
	}
	return float64(a.SymbolicatedFrames) / float64(a.TotalFrames) * 100
}

// Aggregate folds a batch of stacks into summary counts.
func Aggregate(stacks []*Stack) AggregateStats {
	var stats AggregateStats
	for _, s := range stacks {
		if s == nil {
			continue
		}
		stats.TotalFrames += s.TotalCount
		stats.SymbolicatedFrames += s.SymbolicatedCount
	}
	return stats
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

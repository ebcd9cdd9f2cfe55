// Package mapping stores and resolves the debug symbol files (ProGuard
// mapping.txt, source maps, Dart symbol tables, and so on) used to
// symbolicate a crash report, laid out on disk as
// <root>/<platform>/<app_id>/<version>/<filename>.
package mapping

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/bugstr-dev/bugstr/internal/validation"
)

var (
	ErrNotFound    = errors.New("mapping: no mapping file found")
	ErrInvalidPath = errors.New("mapping: invalid platform, app ID, version, or filename")
)

// Store resolves and persists mapping files under a root directory.
type Store struct {
	root string
}

// NewStore creates a Store rooted at root. The directory is created if it
// does not already exist.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("mapping: create root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// component validates a single path segment: non-empty, no separators, no
// traversal. Every piece of caller-supplied path in this package (platform,
// app ID, version, filename) must pass through this before touching disk.
func component(s string) error {
	if err := validation.ValidateStringNonEmpty(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if strings.ContainsAny(s, "/\\") || s == "." || s == ".." {
		return fmt.Errorf("%w: %q contains a path separator or traversal segment", ErrInvalidPath, s)
	}
	return nil
}

// Save writes data as the named mapping file under platform/appID/version.
func (s *Store) Save(platform, appID, version, filename string, data []byte) error {
	for _, c := range []string{platform, appID, version, filename} {
		if err := component(c); err != nil {
			return err
		}
	}

	dir := filepath.Join(s.root, platform, appID, version)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mapping: create dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("mapping: write %s: %w", path, err)
	}
	return nil
}

// Resolve returns the contents of the mapping file for an exact
// platform/appID/version/filename. If no exact version match exists, it
// falls back to the newest version directory present under platform/appID,
// regardless of how it compares to the requested version (the same "newest
// available" fallback the original implementation uses).
func (s *Store) Resolve(platform, appID, version, filename string) ([]byte, error) {
	for _, c := range []string{platform, appID, filename} {
		if err := component(c); err != nil {
			return nil, err
		}
	}
	if err := component(version); err != nil {
		return nil, err
	}

	appDir := filepath.Join(s.root, platform, appID)

	exactPath := filepath.Join(appDir, version, filename)
	if data, err := os.ReadFile(exactPath); err == nil {
		return data, nil
	}

	fallback, err := s.bestVersion(appDir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(appDir, fallback, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return data, nil
}

// bestVersion scans appDir's version subdirectories and returns the newest
// one overall. Two candidates are compared as: valid semver beats a
// non-semver directory name; between two valid semvers, the higher one
// wins; between two non-semver names, the lexicographically greater one
// wins. Non-semver directories are kept as lowest-priority candidates
// rather than skipped, so a store with no valid semver version at all still
// resolves to something.
func (s *Store) bestVersion(appDir string) (string, error) {
	entries, err := os.ReadDir(appDir)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, appDir)
	}

	var best string
	haveBest := false
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if !haveBest || versionBetter(e.Name(), best) {
			best = e.Name()
			haveBest = true
		}
	}

	if !haveBest {
		return "", fmt.Errorf("%w: no version directories under %s", ErrNotFound, appDir)
	}
	return best, nil
}

// versionBetter reports whether candidate should be preferred over current
// as the newest-version fallback.
func versionBetter(candidate, current string) bool {
	candCanon, curCanon := canonicalSemver(candidate), canonicalSemver(current)
	candValid, curValid := semver.IsValid(candCanon), semver.IsValid(curCanon)

	switch {
	case candValid && curValid:
		return semver.Compare(candCanon, curCanon) > 0
	case candValid != curValid:
		return candValid
	default:
		return candidate > current
	}
}

// canonicalSemver prefixes a bare version like "1.2.3" with "v" so it is
// accepted by golang.org/x/mod/semver, which requires the leading "v".
func canonicalSemver(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

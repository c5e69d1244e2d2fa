// Package ldpath resolves a shared library name against the directories
// named in $LD_LIBRARY_PATH, colon-separated, searched in order — the
// fallback search-path loader consulted when the system library cache
// has no entry for a name.
package ldpath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Loader searches a fixed, ordered list of directories for a library by
// basename, caching resolved paths so a repeated lookup costs nothing.
type Loader struct {
	paths    []string
	resolved map[string]string
}

// New splits ldLibraryPath on ':', dropping empty segments, to build the
// ordered search list.
func New(ldLibraryPath string) *Loader {
	var paths []string
	for _, p := range strings.Split(ldLibraryPath, ":") {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return &Loader{paths: paths, resolved: map[string]string{}}
}

// Get returns the absolute path of name found in the first search
// directory that contains it, or "" if none do. Results are cached
// across calls.
func (l *Loader) Get(name string) (string, error) {
	if l == nil {
		return "", nil
	}
	if abs, ok := l.resolved[name]; ok {
		return abs, nil
	}
	for _, dir := range l.paths {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", candidate, err)
		}
		l.resolved[name] = abs
		return abs, nil
	}
	return "", nil
}

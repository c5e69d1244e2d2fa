// Package resolver turns an executable's direct DT_NEEDED entries into
// a fully loaded dependency graph and a flat load order: the library
// cache is tried first, the LD_LIBRARY_PATH search loader second, and
// every resolved object's own ELF image is parsed so its own
// dependencies can be walked in turn.
package resolver

import (
	"fmt"

	"github.com/zboralski/loadelf/internal/cache"
	"github.com/zboralski/loadelf/internal/elfimage"
	"github.com/zboralski/loadelf/internal/ldpath"
	"github.com/zboralski/loadelf/internal/logging"
)

// Opener abstracts "open path and parse it as an ELF image" so the
// resolver can be tested without touching the filesystem.
type Opener func(path string) (*elfimage.Image, error)

// PathResolver finds the filesystem path for a library name, or returns
// "" if it has no match. Implemented by cache.Cache+ldpath.Loader in
// production and stubbed directly in tests.
type PathResolver interface {
	ResolvePath(name string) (string, error)
}

// Resolver resolves library names to filesystem paths and parses each
// into an Image, via the cache first and the ld path loader second.
type Resolver struct {
	paths PathResolver
	open  Opener
}

// New builds a Resolver. c may be nil (cache-miss-only behavior); ld may
// be nil (no LD_LIBRARY_PATH configured).
func New(c *cache.Cache, ld *ldpath.Loader, open Opener) *Resolver {
	return &Resolver{paths: cacheThenLD{cache: c, ld: ld}, open: open}
}

// NewWithPathResolver builds a Resolver around a caller-supplied name
// resolution strategy, for tests that want to stub path lookups without
// constructing a real cache.Cache or ldpath.Loader.
func NewWithPathResolver(paths PathResolver, open Opener) *Resolver {
	return &Resolver{paths: paths, open: open}
}

// cacheThenLD is the production PathResolver: cache first, then the
// LD_LIBRARY_PATH search loader.
type cacheThenLD struct {
	cache *cache.Cache
	ld    *ldpath.Loader
}

func (c cacheThenLD) ResolvePath(name string) (string, error) {
	if matches := c.cache.Find(name); len(matches) > 0 {
		return matches[0], nil
	}
	if c.ld != nil {
		path, err := c.ld.Get(name)
		if err != nil {
			return "", fmt.Errorf("search LD_LIBRARY_PATH for %s: %w", name, err)
		}
		if path != "" {
			return path, nil
		}
	}
	return "", nil
}

// ResolvePath finds the filesystem path for a library name: the cache
// is consulted first (taking its first match), then the ld path loader.
// An empty string with a nil error means neither source has the name.
func (r *Resolver) ResolvePath(name string) (string, error) {
	return r.paths.ResolvePath(name)
}

// ResolveDirectDependencies opens and parses every library root directly
// depends on (root.Dynamic.RequiredLibraries), in the order listed. A
// library that neither the cache nor the search path can locate is
// logged as a warning and left out of the result.
func (r *Resolver) ResolveDirectDependencies(root *elfimage.Image) ([]*elfimage.Image, error) {
	var out []*elfimage.Image
	for _, name := range root.Dynamic.RequiredLibraries {
		path, err := r.ResolvePath(name)
		if err != nil {
			return nil, err
		}
		if path == "" {
			logging.L.Warn("cannot locate required library, skipping",
				logging.Path("library", name), logging.Path("dependant", root.Path))
			continue
		}
		img, err := r.open(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		out = append(out, img)
	}
	return out, nil
}

// ResolveInLoadingOrder computes the full, deduplicated load order for
// root: a breadth-first walk over the dependency graph seeded with
// root's direct dependencies, producing the order the loader core maps
// objects in, first occurrence wins when the same library is reachable
// through more than one path.
//
// The algorithm mirrors the Rust ancestor's deque-based walk: root is
// recorded first, and every image popped from the front of a work queue
// is placed ahead of everything recorded so far, so root ends up last.
// Each popped image's own dependencies are pushed to the front of the
// queue, so they are walked before siblings discovered earlier — the
// result lists a library before anything that needs its symbols.
func (r *Resolver) ResolveInLoadingOrder(root *elfimage.Image) ([]*elfimage.Image, error) {
	libraries := []*elfimage.Image{root}

	direct, err := r.ResolveDirectDependencies(root)
	if err != nil {
		return nil, err
	}
	queue := append([]*elfimage.Image{}, direct...)

	for len(queue) > 0 {
		img := queue[0]
		queue = queue[1:]
		libraries = append([]*elfimage.Image{img}, libraries...)

		deps, err := r.ResolveDirectDependencies(img)
		if err != nil {
			return nil, err
		}
		queue = append(deps, queue...)
	}

	return dedupeByPath(libraries), nil
}

// dedupeByPath removes later duplicates of a path, keeping each image's
// first occurrence and the overall order.
func dedupeByPath(images []*elfimage.Image) []*elfimage.Image {
	seen := map[string]bool{}
	out := make([]*elfimage.Image, 0, len(images))
	for _, img := range images {
		if seen[img.Path] {
			continue
		}
		seen[img.Path] = true
		out = append(out, img)
	}
	return out
}

package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/zboralski/loadelf/internal/cache"
	"github.com/zboralski/loadelf/internal/config"
	"github.com/zboralski/loadelf/internal/elfimage"
	"github.com/zboralski/loadelf/internal/ldpath"
	"github.com/zboralski/loadelf/internal/loadlink"
	"github.com/zboralski/loadelf/internal/logging"
	"github.com/zboralski/loadelf/internal/resolver"
)

// loadAndExecute parses path, resolves its full dependency set, maps
// and links every object, and transfers control to path's entry point.
func loadAndExecute(log *zap.Logger, path, ldLibraryPath string, cfg config.Config) error {
	root, err := openImage(path)
	if err != nil {
		return err
	}

	c, err := cache.Load(cfg.CacheFile)
	if err != nil {
		log.Warn("library cache unavailable, falling back to LD_LIBRARY_PATH only",
			zap.Error(err))
		c = nil
	}

	combinedPath := ldLibraryPath
	for _, p := range cfg.SearchPaths {
		if combinedPath != "" {
			combinedPath += ":"
		}
		combinedPath += p
	}
	ld := ldpath.New(combinedPath)

	res := resolver.New(c, ld, openImage)
	order, err := res.ResolveInLoadingOrder(root)
	if err != nil {
		return fmt.Errorf("resolve dependencies: %w", err)
	}
	log.Info("resolved load order", zap.Int("count", len(order)))
	for _, img := range order {
		log.Debug("will load", logging.Path("path", img.Path))
	}

	loader := loadlink.New(loadlink.Options{
		BaseAddress: config.DefaultBaseAddress,
		StackSize:   cfg.StackSize,
		SameProcess: cfg.SameProcess,
		Logger:      log,
	})

	if err := loader.Load(order); err != nil {
		return err
	}
	if err := loader.Link(); err != nil {
		loader.UnmapAll()
		return err
	}
	return loader.Execute(root)
}

// openImage opens path and parses its ELF structure, matching
// resolver.Opener's signature so it can be passed directly as the
// dependency opener.
func openImage(path string) (*elfimage.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return elfimage.Load(path, f)
}

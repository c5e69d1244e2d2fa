// Package loadlink is the loader/linker core: it maps every object in a
// resolved dependency set into this process's address space, zeroes
// BSS, builds a merged global symbol table, applies relocations, runs
// initializers, and transfers control to the program's entry point. It
// is the one package that actually mutates this process's address
// space; everything above it (internal/elfimage, internal/resolver) is
// pure parsing and graph computation.
package loadlink

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/zboralski/loadelf/internal/elfimage"
	"github.com/zboralski/loadelf/internal/logging"
	"github.com/zboralski/loadelf/internal/sysx"
)

// loaderGap is added between one image's mapped extent and the next
// image's load base, so relocations and BSS pages never collide across
// objects even when both were linked assuming the same low base.
const loaderGap = 0x100000

// interpreterName is the dynamic linker's own soname; if a dependency
// resolves to it, it is never mapped: this loader replaces ld.so
// entirely rather than chain-loading it.
const interpreterName = "ld-linux-x86-64.so.2"

// mappedImage is one image's placement: its chosen base address and the
// mappings it owns (segments plus BSS pages), plus its already-decoded
// ELF structure.
type mappedImage struct {
	image *elfimage.Image
	base  uintptr
	maps  []*sysx.Mapping
}

// Loader owns every piece of state accumulated while loading one
// program: base-address assignment, the merged symbol table, and every
// mapping created, so it can all be torn down on error. It is never
// accessed through package-level globals.
type Loader struct {
	log         *zap.Logger
	nextBase    uintptr
	images      []*mappedImage
	symbols     map[string]resolvedSymbol
	stackSize   uint64
	sameProcess bool
}

type resolvedSymbol struct {
	value uintptr
	size  uint64
}

// Options configures a Loader's execution strategy and resource sizes.
type Options struct {
	BaseAddress uint64
	StackSize   uint64
	SameProcess bool
	Logger      *zap.Logger
}

// New builds a Loader. A nil Logger installs a no-op logger.
func New(opts Options) *Loader {
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	base := opts.BaseAddress
	if base == 0 {
		base = 0x20000
	}
	return &Loader{
		log:         log,
		nextBase:    uintptr(base),
		symbols:     map[string]resolvedSymbol{},
		stackSize:   opts.StackSize,
		sameProcess: opts.SameProcess,
	}
}

// Load maps every image in order (the resolver's computed load order,
// dependencies before dependents), zeroing BSS and recording each
// object's assigned base as it goes. It does not apply relocations or
// transfer control — call Link then Execute for that. The dynamic
// linker itself, if it somehow appears as a resolved dependency, is
// never mapped: this loader replaces ld.so rather than chain-loading
// it, so it has nothing to contribute once loaded anyway.
func (l *Loader) Load(order []*elfimage.Image) error {
	for _, img := range order {
		if isInterpreter(img.Path) {
			l.log.Debug("skipping dynamic linker", logging.Path("path", img.Path))
			continue
		}
		mapped, err := l.mapImage(img)
		if err != nil {
			l.UnmapAll()
			return fmt.Errorf("map %s: %w", img.Path, err)
		}
		l.images = append(l.images, mapped)
		l.ingestGlobalSymbols(mapped)
	}
	return nil
}

// Link applies every image's relocations against the merged global
// symbol table built during Load, then runs each image's initializers
// in load order (dependencies first).
func (l *Loader) Link() error {
	for _, mapped := range l.images {
		if err := l.relocate(mapped); err != nil {
			return fmt.Errorf("relocate %s: %w", mapped.image.Path, err)
		}
	}
	for _, mapped := range l.images {
		l.runInitializers(mapped)
	}
	return nil
}

// Execute allocates an execution stack and transfers control to root's
// entry point, using the execution strategy configured in Options.
// Root must be the last element in the order passed to Load (the
// loader's own convention: the requested executable, not a library).
func (l *Loader) Execute(root *elfimage.Image) error {
	mapped := l.findMapped(root)
	if mapped == nil {
		return fmt.Errorf("execute: %s was never mapped", root.Path)
	}
	entry := mapped.base + uintptr(root.Header.Entry)

	size := l.stackSize
	if size == 0 {
		size = 10 * 1024 * 1024
	}
	stack, err := sysx.MapAnonymous(0, int(sysx.RoundUpPage(size)), sysx.ProtRead|sysx.ProtWrite|sysx.ProtExec)
	if err != nil {
		return fmt.Errorf("allocate stack: %w", err)
	}
	l.images = append(l.images, &mappedImage{maps: []*sysx.Mapping{stack}})
	stackTop := stack.Addr + stack.Length

	l.log.Info("transferring control",
		logging.Addr("entry", entry), logging.Addr("stack_top", stackTop),
		zap.Bool("same_process", l.sameProcess))

	if l.sameProcess {
		sysx.JumpSameProcess(entry, stackTop)
		panic("unreachable: JumpSameProcess never returns")
	}

	tid, err := sysx.CloneChild(entry, stackTop)
	if err != nil {
		return fmt.Errorf("spawn entry thread: %w", err)
	}
	ws, err := sysx.Wait4(tid)
	if err != nil {
		return fmt.Errorf("wait for entry thread: %w", err)
	}
	reportExit(l.log, ws)
	return nil
}

func reportExit(log *zap.Logger, ws unix.WaitStatus) {
	switch {
	case ws.Exited():
		log.Info("child exited", zap.Int("status", ws.ExitStatus()))
	case ws.Signaled():
		log.Warn("child killed by signal", zap.String("signal", ws.Signal().String()))
	default:
		log.Warn("child did not exit normally")
	}
}

func (l *Loader) findMapped(img *elfimage.Image) *mappedImage {
	for _, m := range l.images {
		if m.image == img {
			return m
		}
	}
	return nil
}

// UnmapAll releases every mapping this Loader created, in case of a
// fatal error partway through loading. Safe to call on a partially
// populated Loader.
func (l *Loader) UnmapAll() {
	for _, mapped := range l.images {
		for _, m := range mapped.maps {
			if err := m.Unmap(); err != nil {
				l.log.Warn("unmap failed", zap.Error(err))
			}
		}
	}
	l.images = nil
}

package loadlink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zboralski/loadelf/internal/elfhdr"
	"github.com/zboralski/loadelf/internal/sysx"
)

// TestMapSegmentTracksBSSMapping verifies that a PT_LOAD entry whose
// memsz exceeds its filesz produces two trackable mappings (the
// file-backed portion and the anonymous BSS extension), both of which
// unmapAll can release — the ownership invariant every mapping this
// loader creates must be torn down on error or on UnmapAll.
func TestMapSegmentTracksBSSMapping(t *testing.T) {
	page := sysx.RoundUpPage(4096)
	path := filepath.Join(t.TempDir(), "segment")
	if err := os.WriteFile(path, make([]byte, 64), 0o644); err != nil {
		t.Fatalf("write backing file: %v", err)
	}
	fd, err := sysx.Open(path)
	if err != nil {
		t.Fatalf("sysx.Open: %v", err)
	}
	defer sysx.Close(fd)

	// Reserve a real, valid address range large enough for both mappings,
	// then release it immediately so mapSegment's MAP_FIXED calls land on
	// addresses the kernel has already proven are mappable.
	reserve, err := sysx.MapAnonymous(0, int(page)*3, sysx.ProtRead|sysx.ProtWrite)
	if err != nil {
		t.Fatalf("reserve scratch range: %v", err)
	}
	base := reserve.Addr
	if err := reserve.Unmap(); err != nil {
		t.Fatalf("release scratch range: %v", err)
	}

	l := New(Options{})
	ph := elfhdr.ProgramHeader{
		Type:       elfhdr.SegmentLoad,
		Flags:      elfhdr.SegmentRead | elfhdr.SegmentWrite,
		Offset:     0,
		FileSize:   64,
		MemorySize: uint64(page) + 4096, // memsz far exceeds filesz: real BSS
		Align:      uint64(page),
	}

	maps, _, err := l.mapSegment(fd, ph, base)
	if err != nil {
		t.Fatalf("mapSegment: %v", err)
	}
	if len(maps) != 2 {
		t.Fatalf("got %d mappings, want 2 (file-backed + anonymous BSS)", len(maps))
	}
	for _, m := range maps {
		if m.Addr == 0 {
			t.Fatal("mapping has a nil address before unmap")
		}
	}

	unmapAll(maps)
	for _, m := range maps {
		if m.Addr != 0 {
			t.Fatalf("mapping at %#x was not released by unmapAll", m.Addr)
		}
	}
}

// Package dynamic sweeps an ELF image's SHT_DYNAMIC section(s) and
// produces a Dynamic record: the set of DT_NEEDED library names (already
// resolved through the section's own string table), plus the
// initializer-array location the loader core walks after relocation.
package dynamic

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zboralski/loadelf/internal/elfhdr"
	"github.com/zboralski/loadelf/internal/strtab"
)

// Dynamic-section tags this loader interprets. Everything else is read
// generically and ignored, matching original_source/dynamic.rs plus the
// initializer tags spec.md adds.
const (
	tagNeeded      = 1
	tagStrTab      = 5
	tagInit        = 12
	tagInitArray   = 25
	tagInitArraySz = 27
)

// entry is one Elf64_Dyn: a signed tag and a value that is either an
// integer or an address depending on the tag.
type entry struct {
	Tag   int64
	Value uint64
}

// Dynamic is the subset of a PT_DYNAMIC/SHT_DYNAMIC sweep this loader
// needs: the object's direct dependencies and its initializer location.
type Dynamic struct {
	RequiredLibraries []string
	InitFunc          uint64
	InitArrayAddr     uint64
	InitArraySize     uint64
}

// Load sweeps every SHT_DYNAMIC section in sectionHeaders, resolving
// DT_NEEDED entries against the string table each section's DT_STRTAB
// value designates (found by virtual address among the section headers).
func Load(r io.ReadSeeker, sectionHeaders []elfhdr.SectionHeader) (Dynamic, error) {
	var d Dynamic
	for _, sh := range sectionHeaders {
		if sh.Type != elfhdr.SectionDynamic {
			continue
		}
		if err := loadSection(r, sh, sectionHeaders, &d); err != nil {
			return d, err
		}
	}
	return d, nil
}

func loadSection(r io.ReadSeeker, sh elfhdr.SectionHeader, all []elfhdr.SectionHeader, d *Dynamic) error {
	if _, err := r.Seek(int64(sh.Offset), io.SeekStart); err != nil {
		return fmt.Errorf("seek to dynamic section: %w", err)
	}
	raw := make([]byte, sh.Size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return fmt.Errorf("read dynamic section: %w", err)
	}

	const entrySize = 16
	count := len(raw) / entrySize
	entries := make([]entry, count)
	for i := 0; i < count; i++ {
		off := i * entrySize
		entries[i] = entry{
			Tag:   int64(binary.LittleEndian.Uint64(raw[off : off+8])),
			Value: binary.LittleEndian.Uint64(raw[off+8 : off+16]),
		}
	}

	var neededOffsets []uint64
	var strTabAddr uint64
	for _, e := range entries {
		switch e.Tag {
		case tagNeeded:
			neededOffsets = append(neededOffsets, e.Value)
		case tagStrTab:
			strTabAddr = e.Value
		case tagInit:
			d.InitFunc = e.Value
		case tagInitArray:
			d.InitArrayAddr = e.Value
		case tagInitArraySz:
			d.InitArraySize = e.Value
		}
	}

	if len(neededOffsets) == 0 {
		return nil
	}

	table, err := dynamicStringTable(r, all, strTabAddr)
	if err != nil {
		return err
	}
	for _, off := range neededOffsets {
		name, err := table.String(off)
		if err != nil {
			return fmt.Errorf("resolve DT_NEEDED offset %d: %w", off, err)
		}
		d.RequiredLibraries = append(d.RequiredLibraries, name)
	}
	return nil
}

// dynamicStringTable locates the section whose virtual address matches
// addr (DT_STRTAB gives an address, not a file offset, so the dynamic
// string table is found by scanning section headers rather than by
// section type) and loads it.
func dynamicStringTable(r io.ReadSeeker, sections []elfhdr.SectionHeader, addr uint64) (*strtab.Table, error) {
	for _, sh := range sections {
		if sh.Type == elfhdr.SectionStrTab && sh.VirtualAddress == addr {
			return strtab.Load(readerAt{r}, sh.Offset, sh.Size)
		}
	}
	return nil, fmt.Errorf("no string table section at address 0x%x", addr)
}

// readerAt adapts an io.ReadSeeker to io.ReaderAt for strtab.Load,
// seeking before every read. Dynamic-section parsing is single threaded
// so a shared seek position is safe.
type readerAt struct {
	r io.ReadSeeker
}

func (a readerAt) ReadAt(p []byte, off int64) (int, error) {
	if _, err := a.r.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(a.r, p)
}

package loadlink

import (
	"fmt"

	"github.com/zboralski/loadelf/internal/elfhdr"
	"github.com/zboralski/loadelf/internal/elfimage"
	"github.com/zboralski/loadelf/internal/logging"
	"github.com/zboralski/loadelf/internal/sysx"
)

// mapImage opens img.Path, maps every PT_LOAD segment at a base this
// Loader assigns (advancing l.nextBase past the image's extent so the
// next image never overlaps it), zeroes any BSS region a segment's
// memsz implies beyond its filesz, and returns the mapped record.
func (l *Loader) mapImage(img *elfimage.Image) (*mappedImage, error) {
	fd, err := sysx.Open(img.Path)
	if err != nil {
		return nil, err
	}
	defer sysx.Close(fd)

	base := l.nextBase
	mapped := &mappedImage{image: img, base: base}

	var extent uintptr
	for _, ph := range img.ProgramHeaders {
		if ph.Type != elfhdr.SegmentLoad || ph.FileSize == 0 && ph.MemorySize == 0 {
			continue
		}
		segMaps, bssEnd, err := l.mapSegment(fd, ph, base)
		if err != nil {
			unmapAll(mapped.maps)
			return nil, err
		}
		mapped.maps = append(mapped.maps, segMaps...)
		if bssEnd > extent {
			extent = bssEnd
		}
	}

	l.nextBase = uintptr(sysx.RoundUpPage(uint64(extent))) + loaderGap
	l.log.Debug("mapped image", logging.Path("path", img.Path), logging.Addr("base", base))
	return mapped, nil
}

// mapSegment maps one PT_LOAD entry: the file-backed portion directly,
// then, if memsz exceeds filesz, an anonymous BSS region for the
// remainder. It returns every mapping it created (so the caller can
// record each one for teardown) and the highest address (already
// rebased by base) this segment occupies once BSS is included.
func (l *Loader) mapSegment(fd int, ph elfhdr.ProgramHeader, base uintptr) ([]*sysx.Mapping, uintptr, error) {
	prot := segmentProtection(ph.Flags)
	alignedVaddr := sysx.AlignDown(ph.VirtualAddress, ph.Align)
	pageDelta := ph.VirtualAddress - alignedVaddr
	fileOffset := int64(ph.Offset) - int64(pageDelta)
	mapLen := int(sysx.RoundUpPage(ph.FileSize + pageDelta))

	addr := base + uintptr(alignedVaddr)
	var maps []*sysx.Mapping
	if mapLen > 0 {
		mapping, err := sysx.MapFile(addr, mapLen, prot, fd, fileOffset)
		if err != nil {
			return nil, 0, fmt.Errorf("map segment at vaddr 0x%x: %w", ph.VirtualAddress, err)
		}
		maps = append(maps, mapping)
	}

	segmentEnd := ph.VirtualAddress + ph.MemorySize
	if ph.MemorySize > ph.FileSize {
		bssStart := base + uintptr(ph.VirtualAddress+ph.FileSize)
		bssFileEnd := sysx.RoundUpPage(uint64(base) + ph.VirtualAddress + ph.FileSize)
		bssPageEnd := sysx.RoundUpPage(uint64(base) + segmentEnd)
		if bssPageEnd > bssFileEnd {
			size := int(bssPageEnd - bssFileEnd)
			bss, err := sysx.MapAnonymous(uintptr(bssFileEnd), size, prot)
			if err != nil {
				return maps, 0, fmt.Errorf("map bss at 0x%x: %w", bssFileEnd, err)
			}
			maps = append(maps, bss)
		}
		// Zero the tail of the file-backed page that precedes BSS proper:
		// the file's last partial page may contain leftover bytes beyond
		// filesz that must read as zero per the ELF loading model.
		tailLen := bssFileEnd - (uint64(base) + ph.VirtualAddress + ph.FileSize)
		if tailLen > 0 {
			sysx.MemSet(bssStart, 0, uintptr(tailLen))
		}
	}

	return maps, base + uintptr(segmentEnd), nil
}

func segmentProtection(flags uint32) int {
	prot := 0
	if flags&elfhdr.SegmentRead != 0 {
		prot |= sysx.ProtRead
	}
	if flags&elfhdr.SegmentWrite != 0 {
		prot |= sysx.ProtWrite
	}
	if flags&elfhdr.SegmentExec != 0 {
		prot |= sysx.ProtExec
	}
	return prot
}

// ingestGlobalSymbols adds every global or weak, defined symbol from
// mapped into the loader's merged symbol table. Local symbols are never
// exported across objects; undefined symbols (section index 0,
// SHN_UNDEF) carry no address of their own and are left for relocation
// processing to resolve against another object's definition. The first
// object in load order to define a name wins; later definitions of the
// same literal or default-version name are never overwritten, matching
// ld.so's own symbol-interposition rule.
func (l *Loader) ingestGlobalSymbols(mapped *mappedImage) {
	for _, sym := range mapped.image.Symbols {
		if sym.Bind() == elfimage.BindLocal {
			continue
		}
		if sym.Section == 0 { // SHN_UNDEF
			continue
		}
		if sym.Name == "" {
			continue
		}
		resolved := resolvedSymbol{value: mapped.base + uintptr(sym.Value), size: sym.Size}
		if _, exists := l.symbols[sym.Name]; !exists {
			l.symbols[sym.Name] = resolved
		}
		if bare, ok := elfimage.DefaultVersionName(sym.Name); ok {
			if _, exists := l.symbols[bare]; !exists {
				l.symbols[bare] = resolved
			}
		}
	}
}

// lookupSymbol resolves a (possibly versioned) symbol name against the
// merged global table, falling back to the stripped name per the
// versioned-symbol default-lookup rule.
func (l *Loader) lookupSymbol(name string) (resolvedSymbol, bool) {
	if sym, ok := l.symbols[name]; ok {
		return sym, true
	}
	sym, ok := l.symbols[elfimage.VersionedName(name)]
	return sym, ok
}

func unmapAll(maps []*sysx.Mapping) {
	for _, m := range maps {
		_ = m.Unmap()
	}
}

// Package elfimage parses a complete AMD64 ELF64 image: the file
// header, program and section headers, symbol tables, relocation
// entries, and the derived dynamic-section record. It is pure decoding
// — no mmap, no syscalls, no address-space mutation — so it can be unit
// tested against in-memory byte buffers; internal/loadlink is the only
// package that maps an Image into this process.
package elfimage

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/zboralski/loadelf/internal/dynamic"
	"github.com/zboralski/loadelf/internal/elfhdr"
	"github.com/zboralski/loadelf/internal/strtab"
)

// Symbol binding (top nibble of st_info).
const (
	BindLocal  = 0
	BindGlobal = 1
	BindWeak   = 2
)

// Symbol type (bottom nibble of st_info).
const (
	TypeNoType  = 0
	TypeObject  = 1
	TypeFunc    = 2
	TypeSection = 3
	TypeFile    = 4
	TypeIFunc   = 10
)

// AMD64 relocation types (r_info low 32 bits) this loader applies.
const (
	RelocNone      = 0
	Reloc64        = 1
	RelocCopy      = 5
	RelocGlobDat   = 6
	RelocJumpSlot  = 7
	RelocRelative  = 8
	RelocIRelative = 37
)

// Symbol is one decoded Elf64_Sym entry, with its name already resolved
// through the owning image's symbol string table.
type Symbol struct {
	Name    string
	Info    uint8
	Other   uint8
	Section uint16
	Value   uint64
	Size    uint64
}

// Bind extracts the symbol's binding (STB_*) from st_info.
func (s Symbol) Bind() uint8 { return s.Info >> 4 }

// Type extracts the symbol's type (STT_*) from st_info.
func (s Symbol) Type() uint8 { return s.Info & 0xf }

// Reloc is one decoded Elf64_Rela entry.
type Reloc struct {
	Offset uint64
	Type   uint32
	Symbol uint32 // index into the dynamic symbol table
	Addend int64
}

// Image is a fully parsed ELF object: the file's own headers plus the
// decoded symbol table, relocations, and dynamic-section summary needed
// to map and link it.
type Image struct {
	Path           string
	Header         elfhdr.Header
	ProgramHeaders []elfhdr.ProgramHeader
	SectionHeaders []elfhdr.SectionHeader
	Symbols        []Symbol
	Relocs         []Reloc
	Dynamic        dynamic.Dynamic
}

// Load parses path's ELF structure from r. String tables are read
// through a seeking io.ReaderAt adapter over r, so r itself need not
// implement io.ReaderAt.
func Load(path string, r io.ReadSeeker) (*Image, error) {
	header, err := elfhdr.ReadHeader(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	programHeaders, err := elfhdr.ReadProgramHeaders(r, header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sectionHeaders, err := elfhdr.ReadSectionHeaders(r, header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	img := &Image{
		Path:           path,
		Header:         header,
		ProgramHeaders: programHeaders,
		SectionHeaders: sectionHeaders,
	}

	if img.Dynamic, err = dynamic.Load(r, sectionHeaders); err != nil {
		return nil, fmt.Errorf("%s: dynamic section: %w", path, err)
	}
	if img.Symbols, err = readSymbols(r, sectionHeaders); err != nil {
		return nil, fmt.Errorf("%s: symbol table: %w", path, err)
	}
	if img.Relocs, err = readRelocs(r, sectionHeaders); err != nil {
		return nil, fmt.Errorf("%s: relocations: %w", path, err)
	}
	return img, nil
}

// shtDynSym is the section type holding the runtime dynamic symbol
// table. SHT_SYMTAB (2) is intentionally excluded — relocations
// reference the dynamic symbol table (SHT_DYNSYM), not the full debug
// symbol table.
const shtDynSym = 11

func readSymbols(r io.ReadSeeker, sections []elfhdr.SectionHeader) ([]Symbol, error) {
	var out []Symbol
	for _, sh := range sections {
		if sh.Type != shtDynSym {
			continue
		}
		if int(sh.Link) >= len(sections) {
			return nil, fmt.Errorf("dynsym section links to out-of-range section %d", sh.Link)
		}
		linked := sections[sh.Link]
		names, err := strtab.Load(readerAt{r}, linked.Offset, linked.Size)
		if err != nil {
			return nil, fmt.Errorf("load symbol name table: %w", err)
		}
		syms, err := decodeSymbols(r, sh, names)
		if err != nil {
			return nil, err
		}
		out = append(out, syms...)
	}
	return out, nil
}

const symEntrySize = 24

func decodeSymbols(r io.ReadSeeker, sh elfhdr.SectionHeader, names *strtab.Table) ([]Symbol, error) {
	if _, err := r.Seek(int64(sh.Offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to symbol table: %w", err)
	}
	raw := make([]byte, sh.Size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("read symbol table: %w", err)
	}
	count := len(raw) / symEntrySize
	out := make([]Symbol, count)
	for i := 0; i < count; i++ {
		off := i * symEntrySize
		nameOff := binary.LittleEndian.Uint32(raw[off : off+4])
		name, err := names.String(uint64(nameOff))
		if err != nil {
			// Index 0 (STN_UNDEF) is conventionally an empty name; a bad
			// offset elsewhere just yields an unnamed symbol rather than
			// failing the whole table.
			name = ""
		}
		out[i] = Symbol{
			Name:    name,
			Info:    raw[off+4],
			Other:   raw[off+5],
			Section: binary.LittleEndian.Uint16(raw[off+6 : off+8]),
			Value:   binary.LittleEndian.Uint64(raw[off+8 : off+16]),
			Size:    binary.LittleEndian.Uint64(raw[off+16 : off+24]),
		}
	}
	return out, nil
}

const shtRela = 4

func readRelocs(r io.ReadSeeker, sections []elfhdr.SectionHeader) ([]Reloc, error) {
	var out []Reloc
	for _, sh := range sections {
		if sh.Type != shtRela {
			continue
		}
		relocs, err := decodeRelocs(r, sh)
		if err != nil {
			return nil, err
		}
		out = append(out, relocs...)
	}
	return out, nil
}

const relaEntrySize = 24

func decodeRelocs(r io.ReadSeeker, sh elfhdr.SectionHeader) ([]Reloc, error) {
	if _, err := r.Seek(int64(sh.Offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to rela section: %w", err)
	}
	raw := make([]byte, sh.Size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("read rela section: %w", err)
	}
	count := len(raw) / relaEntrySize
	out := make([]Reloc, count)
	for i := 0; i < count; i++ {
		off := i * relaEntrySize
		info := binary.LittleEndian.Uint64(raw[off+8 : off+16])
		out[i] = Reloc{
			Offset: binary.LittleEndian.Uint64(raw[off : off+8]),
			Type:   uint32(info),
			Symbol: uint32(info >> 32),
			Addend: int64(binary.LittleEndian.Uint64(raw[off+16 : off+24])),
		}
	}
	return out, nil
}

// readerAt adapts an io.ReadSeeker to io.ReaderAt, seeking before every
// read. Parsing is single threaded so a shared seek position is safe.
type readerAt struct {
	r io.ReadSeeker
}

func (a readerAt) ReadAt(p []byte, off int64) (int, error) {
	if _, err := a.r.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(a.r, p)
}

// VersionedName strips a GNU symbol-versioning suffix ("name@@version" or
// "name@version") down to the bare symbol name, for the default-version
// lookup fallback spec'd for versioned symbols.
func VersionedName(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] == '@' {
			return name[:i]
		}
	}
	return name
}

// DefaultVersionName reports whether name carries the "@@version"
// default-version marker (as opposed to a plain "@version" non-default
// alias) and returns the bare name if so. Only a "@@"-versioned symbol
// is ld.so's default definition for its bare name.
func DefaultVersionName(name string) (string, bool) {
	idx := strings.Index(name, "@@")
	if idx < 0 {
		return "", false
	}
	return name[:idx], true
}

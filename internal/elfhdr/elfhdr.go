// Package elfhdr decodes the fixed-layout structures shared by every ELF
// consumer in this module: the file header, program headers, and
// section headers. It does pure byte decoding — no mmap, no syscalls —
// so both internal/elfimage and internal/dynamic can depend on it
// without pulling in the loader core.
package elfhdr

import (
	"encoding/binary"
	"fmt"
	"io"
)

const identSize = 16

// Section types referenced by this loader (SHT_*). Others are read
// generically and passed through unrecognized.
const (
	SectionUnused  = 0
	SectionStrTab  = 3
	SectionDynamic = 6
	SectionNoBits  = 8
)

// Segment types referenced by this loader (PT_*).
const (
	SegmentUnused  = 0
	SegmentLoad    = 1
	SegmentDynamic = 2
	SegmentInterp  = 3
)

// Segment permission flags (PF_*).
const (
	SegmentExec  = 1
	SegmentWrite = 2
	SegmentRead  = 4
)

// EMAMD64 is the e_machine value for AMD64, the only architecture this
// loader accepts.
const EMAMD64 = 0x3e

// ELFClass64 is the e_ident[EI_CLASS] value for 64-bit objects.
const ELFClass64 = 2

// ELFDataLittleEndian is the e_ident[EI_DATA] value for little-endian
// encoding.
const ELFDataLittleEndian = 1

// Header is the 64-byte ELF file header.
type Header struct {
	Ident               [identSize]byte
	Type                uint16
	Machine             uint16
	Version             uint32
	Entry               uint64
	ProgramHeaderOffset uint64
	SectionHeaderOffset uint64
	Flags               uint32
	HeaderSize          uint16
	ProgramHeaderSize   uint16
	ProgramHeaderCount  uint16
	SectionHeaderSize   uint16
	SectionHeaderCount  uint16
	SectionNameIndex    uint16
}

// ProgramHeader is one 56-byte program header table entry.
type ProgramHeader struct {
	Type            uint32
	Flags           uint32
	Offset          uint64
	VirtualAddress  uint64
	PhysicalAddress uint64
	FileSize        uint64
	MemorySize      uint64
	Align           uint64
}

// SectionHeader is one 64-byte section header table entry.
type SectionHeader struct {
	NameOffset     uint32
	Type           uint32
	Flags          uint64
	VirtualAddress uint64
	Offset         uint64
	Size           uint64
	Link           uint32
	Info           uint32
	AddressAlign   uint64
	EntrySize      uint64
}

// Validate checks the magic, class, endianness, and machine fields,
// rejecting anything this loader does not claim to support.
func (h *Header) Validate() error {
	if h.Ident[0] != 0x7f || h.Ident[1] != 'E' || h.Ident[2] != 'L' || h.Ident[3] != 'F' {
		return fmt.Errorf("not an ELF file: magic %#x %#x %#x %#x", h.Ident[0], h.Ident[1], h.Ident[2], h.Ident[3])
	}
	if h.Ident[4] != ELFClass64 {
		return fmt.Errorf("ELF64 required, found class %#x", h.Ident[4])
	}
	if h.Ident[5] != ELFDataLittleEndian {
		return fmt.Errorf("little-endian required, found data encoding %#x", h.Ident[5])
	}
	if h.Machine != EMAMD64 {
		return fmt.Errorf("AMD64 required, found machine %#x", h.Machine)
	}
	return nil
}

// ReadHeader decodes the ELF file header from the start of r and
// validates it.
func ReadHeader(r io.ReadSeeker) (Header, error) {
	var h Header
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return h, fmt.Errorf("seek to header: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.Ident); err != nil {
		return h, fmt.Errorf("read e_ident: %w", err)
	}
	fields := []any{&h.Type, &h.Machine, &h.Version, &h.Entry, &h.ProgramHeaderOffset,
		&h.SectionHeaderOffset, &h.Flags, &h.HeaderSize, &h.ProgramHeaderSize,
		&h.ProgramHeaderCount, &h.SectionHeaderSize, &h.SectionHeaderCount, &h.SectionNameIndex}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return h, fmt.Errorf("read ELF header: %w", err)
		}
	}
	if err := h.Validate(); err != nil {
		return h, err
	}
	return h, nil
}

// ReadProgramHeaders seeks to h.ProgramHeaderOffset and decodes
// h.ProgramHeaderCount entries.
func ReadProgramHeaders(r io.ReadSeeker, h Header) ([]ProgramHeader, error) {
	if _, err := r.Seek(int64(h.ProgramHeaderOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to program headers: %w", err)
	}
	out := make([]ProgramHeader, h.ProgramHeaderCount)
	for i := range out {
		if err := binary.Read(r, binary.LittleEndian, &out[i]); err != nil {
			return nil, fmt.Errorf("read program header %d: %w", i, err)
		}
	}
	return out, nil
}

// ReadSectionHeaders seeks to h.SectionHeaderOffset and decodes
// h.SectionHeaderCount entries.
func ReadSectionHeaders(r io.ReadSeeker, h Header) ([]SectionHeader, error) {
	if _, err := r.Seek(int64(h.SectionHeaderOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to section headers: %w", err)
	}
	out := make([]SectionHeader, h.SectionHeaderCount)
	for i := range out {
		if err := binary.Read(r, binary.LittleEndian, &out[i]); err != nil {
			return nil, fmt.Errorf("read section header %d: %w", i, err)
		}
	}
	return out, nil
}

// Package strtab extracts and indexes ELF string-table sections
// (SHT_STRTAB), offering NUL-terminated-string lookup by byte offset —
// the one primitive the dynamic-section extractor and the symbol-table
// decoder share.
package strtab

import (
	"bytes"
	"fmt"
	"io"
)

// Table is the decoded contents of one string-table section, indexed by
// the byte offset a symbol or dynamic entry references.
type Table struct {
	raw []byte
}

// Load reads size bytes at offset from r and wraps them as a Table.
func Load(r io.ReaderAt, offset, size uint64) (*Table, error) {
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("read string table at 0x%x (size=%d): %w", offset, size, err)
	}
	return &Table{raw: buf}, nil
}

// New wraps an already-read string-table section, for callers that
// already hold the section's bytes.
func New(raw []byte) *Table {
	return &Table{raw: raw}
}

// String returns the NUL-terminated string starting at offset. An
// offset at or past the end of the table, or with no terminating NUL,
// is an error — a malformed index should not silently return garbage.
func (t *Table) String(offset uint64) (string, error) {
	if t == nil || offset >= uint64(len(t.raw)) {
		return "", fmt.Errorf("string table offset %d out of range (len=%d)", offset, len(t.raw))
	}
	rest := t.raw[offset:]
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		return "", fmt.Errorf("string table offset %d: no terminating NUL", offset)
	}
	return string(rest[:end]), nil
}

// All splits the whole table on NUL bytes, returning every entry in
// order including empty strings (the table conventionally starts and
// may contain runs of empty entries). Used by callers that want to walk
// every name present rather than look one up by offset.
func (t *Table) All() []string {
	if t == nil {
		return nil
	}
	parts := bytes.Split(t.raw, []byte{0})
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = string(p)
	}
	return out
}

// Len returns the string table's raw length.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.raw)
}

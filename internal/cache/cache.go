// Package cache reads glibc's /etc/ld.so.cache: the binary index of
// every shared library ldconfig has indexed, mapped by basename. Unlike
// the straightforward os.ReadFile approach other Go readers of this
// format use, this reader mmaps the file read-only through
// internal/sysx and unmaps it once parsing is complete.
package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/zboralski/loadelf/internal/sysx"
)

const (
	magic   = "glibc-ld.so.cache"
	version = "1.1"
)

type rawHeader struct {
	Magic        [17]byte
	Version      [3]byte
	NumLibs      uint32
	StrTableSize uint32
	Flags        uint8
	Unused0      [3]byte
	ExtOffset    uint32
	Unused1      [3]uint32
}

type rawEntry struct {
	Flags           uint32
	Key             uint32
	Value           uint32
	OSVersionNeeded uint32
	HWCapNeeded     uint64
}

// Entry is one resolved cache entry: a library basename mapped to its
// full filesystem path.
type Entry struct {
	Name string
	Path string
}

// Cache is the parsed contents of /etc/ld.so.cache, indexed by
// basename. A basename can map to more than one path (different
// hwcap/arch variants), so Find returns every match.
type Cache struct {
	byName map[string][]string
}

// Load mmaps path, parses its contents, and unmaps it before returning
// — the mapping does not outlive this call.
func Load(path string) (*Cache, error) {
	fd, err := sysx.Open(path)
	if err != nil {
		return nil, err
	}
	defer sysx.Close(fd)

	size, err := sysx.Size(fd)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return &Cache{byName: map[string][]string{}}, nil
	}

	mapping, err := sysx.MapFile(0, int(size), sysx.ProtRead, fd, 0)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	defer mapping.Unmap()

	return parse(mapping.Bytes())
}

func parse(data []byte) (*Cache, error) {
	r := bytes.NewReader(data)

	var hdr rawHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read cache header: %w", err)
	}
	if string(hdr.Magic[:len(magic)]) != magic {
		return nil, fmt.Errorf("not an ld.so.cache file: bad magic")
	}
	if string(hdr.Version[:]) != version {
		return nil, fmt.Errorf("unsupported ld.so.cache version %q", hdr.Version)
	}

	entries := make([]rawEntry, hdr.NumLibs)
	for i := range entries {
		if err := binary.Read(r, binary.LittleEndian, &entries[i]); err != nil {
			return nil, fmt.Errorf("read cache entry %d: %w", i, err)
		}
	}

	strTableStart := len(data) - r.Len()
	strTable := data[strTableStart:]
	if len(strTable) > int(hdr.StrTableSize) {
		strTable = strTable[:hdr.StrTableSize]
	}

	c := &Cache{byName: map[string][]string{}}
	for _, e := range entries {
		// Key/Value are offsets from the start of the file, not the
		// string table, so the table's own start must be subtracted first.
		full, err := extractString(strTable, e.Value-uint32(strTableStart))
		if err != nil {
			return nil, fmt.Errorf("extract library path: %w", err)
		}
		key, err := extractString(strTable, e.Key-uint32(strTableStart))
		if err != nil {
			return nil, fmt.Errorf("extract library key: %w", err)
		}
		c.byName[key] = append(c.byName[key], full)
	}
	return c, nil
}

func extractString(table []byte, offset uint32) (string, error) {
	if int(offset) >= len(table) {
		return "", fmt.Errorf("string table offset %d out of range (len=%d)", offset, len(table))
	}
	rest := table[offset:]
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		return string(rest), nil
	}
	return string(rest[:end]), nil
}

// Find returns every cached path registered under basename, in the
// order ldconfig wrote them. A nil/empty result means the cache has no
// entry for that name.
func (c *Cache) Find(basename string) []string {
	if c == nil {
		return nil
	}
	return c.byName[basename]
}

// Package sysx is the syscall shim the loader runs on: thin wrappers over
// open/close/fstat/mmap/munmap/clone/wait4/page-size, plus in-process
// memcpy/memset primitives for poking relocation targets. The loader
// core and the cache reader map memory and spawn threads only through
// here. The wrappers call the kernel directly; there is no hook for
// substituting a fake.
package sysx

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Memory protection flags for MapFile/MapAnonymous, re-exported so
// callers never need to import golang.org/x/sys/unix directly.
const (
	ProtRead  = unix.PROT_READ
	ProtWrite = unix.PROT_WRITE
	ProtExec  = unix.PROT_EXEC
)

// Open opens path read-only, returning a raw file descriptor.
func Open(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return -1, fmt.Errorf("open %s: %w", path, err)
	}
	return fd, nil
}

// Close closes a raw file descriptor.
func Close(fd int) error {
	return unix.Close(fd)
}

// Size returns the size in bytes of the file backing fd.
func Size(fd int) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, fmt.Errorf("fstat: %w", err)
	}
	return st.Size, nil
}

// PageSize returns the host page size (_SC_PAGESIZE equivalent).
func PageSize() int {
	return unix.Getpagesize()
}

// AlignDown rounds addr down to the nearest multiple of align.
func AlignDown(addr, align uint64) uint64 {
	if align == 0 {
		return addr
	}
	return addr &^ (align - 1)
}

// RoundUpPage rounds n up to the next multiple of the host page size.
func RoundUpPage(n uint64) uint64 {
	p := uint64(PageSize())
	return (n + p - 1) &^ (p - 1)
}

// Mapping owns one mmap'd region: (address, length), released by Unmap.
type Mapping struct {
	Addr   uintptr
	Length uintptr
}

// rawMmap issues the mmap(2) syscall directly so a MAP_FIXED address can be
// requested; golang.org/x/sys/unix's portable Mmap wrapper does not expose
// that. addr == 0 lets the kernel choose the address.
func rawMmap(addr uintptr, length int, prot, flags, fd int, offset int64) (uintptr, error) {
	ret, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, uintptr(length),
		uintptr(prot), uintptr(flags), uintptr(fd), uintptr(offset))
	if errno != 0 {
		return 0, errno
	}
	return ret, nil
}

func rawMunmap(addr uintptr, length int) error {
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP, addr, uintptr(length), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// MapFile maps length bytes of fd's contents at offset into addr with the
// given protection, using MAP_FIXED|MAP_PRIVATE as spec'd for segment
// mappings. addr == 0 lets the kernel choose.
func MapFile(addr uintptr, length int, prot int, fd int, offset int64) (*Mapping, error) {
	flags := unix.MAP_PRIVATE
	if addr != 0 {
		flags |= unix.MAP_FIXED
	}
	got, err := rawMmap(addr, length, prot, flags, fd, offset)
	if err != nil {
		return nil, fmt.Errorf("mmap at 0x%x (len=%d): %w", addr, length, err)
	}
	return &Mapping{Addr: got, Length: uintptr(length)}, nil
}

// MapAnonymous maps a private anonymous region, used for BSS pages and the
// entry-point execution stack.
func MapAnonymous(addr uintptr, length int, prot int) (*Mapping, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
	if addr != 0 {
		flags |= unix.MAP_FIXED
	}
	got, err := rawMmap(addr, length, prot, flags, -1, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap anonymous at 0x%x (len=%d): %w", addr, length, err)
	}
	return &Mapping{Addr: got, Length: uintptr(length)}, nil
}

// Unmap releases the mapping. Safe to call more than once; later calls are
// a no-op.
func (m *Mapping) Unmap() error {
	if m == nil || m.Addr == 0 {
		return nil
	}
	err := rawMunmap(m.Addr, int(m.Length))
	m.Addr = 0
	return err
}

// Bytes views the mapping as a byte slice without copying.
func (m *Mapping) Bytes() []byte {
	return unsafeSlice(m.Addr, int(m.Length))
}

func unsafeSlice(addr uintptr, n int) []byte {
	if addr == 0 || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

// MemSet fills n bytes starting at addr within an already mapped, writable
// region. The loader's BSS-zeroing primitive.
func MemSet(addr uintptr, value byte, n uintptr) {
	buf := unsafeSlice(addr, int(n))
	for i := range buf {
		buf[i] = value
	}
}

// MemCopy copies n bytes from a mapped source address to a mapped
// destination address. Used by R_X86_64_COPY relocations.
func MemCopy(dstAddr, srcAddr uintptr, n uintptr) {
	dst := unsafeSlice(dstAddr, int(n))
	src := unsafeSlice(srcAddr, int(n))
	copy(dst, src)
}

// WriteUint64 writes v as a little-endian 64-bit word at addr. The
// loader's single "write N bytes at address A" primitive for relocations.
func WriteUint64(addr uintptr, v uint64) {
	buf := unsafeSlice(addr, 8)
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
	buf[4] = byte(v >> 32)
	buf[5] = byte(v >> 40)
	buf[6] = byte(v >> 48)
	buf[7] = byte(v >> 56)
}

// ReadUint64 reads a little-endian 64-bit word at addr.
func ReadUint64(addr uintptr) uint64 {
	buf := unsafeSlice(addr, 8)
	return uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24 |
		uint64(buf[4])<<32 | uint64(buf[5])<<40 | uint64(buf[6])<<48 | uint64(buf[7])<<56
}

// CloneChild spawns a new thread sharing this process's address space
// (CLONE_VM|SIGCHLD per spec) whose very first instruction is at entry,
// running on the stack rooted at stackTop. Returns the child's TID in the
// parent; the child never returns to Go code here.
func CloneChild(entry, stackTop uintptr) (int, error) {
	tid, err := cloneAndJump(entry, stackTop)
	if err != nil {
		return -1, fmt.Errorf("clone: %w", err)
	}
	return tid, nil
}

// Wait4 blocks for the child tid to change state, matching waitpid(2)'s
// default semantics (options=0), and reports whether it exited and with
// what status.
func Wait4(tid int) (ws unix.WaitStatus, err error) {
	_, err = unix.Wait4(tid, &ws, 0, nil)
	return ws, err
}

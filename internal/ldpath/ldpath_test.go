package ldpath

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetFindsLibraryInSearchPath(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	libPath := filepath.Join(dir2, "libfoo.so")
	if err := os.WriteFile(libPath, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write stub lib: %v", err)
	}

	l := New(dir1 + ":" + dir2)
	got, err := l.Get("libfoo.so")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want, _ := filepath.Abs(libPath)
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestGetMissingLibraryReturnsEmpty(t *testing.T) {
	l := New(t.TempDir())
	got, err := l.Get("does-not-exist.so")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestNewSkipsEmptySegments(t *testing.T) {
	l := New("::/a::/b:")
	if len(l.paths) != 2 || l.paths[0] != "/a" || l.paths[1] != "/b" {
		t.Fatalf("got %v", l.paths)
	}
}

func TestGetCachesResolvedPath(t *testing.T) {
	dir := t.TempDir()
	libPath := filepath.Join(dir, "libbar.so")
	if err := os.WriteFile(libPath, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write stub lib: %v", err)
	}
	l := New(dir)
	first, err := l.Get("libbar.so")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := os.Remove(libPath); err != nil {
		t.Fatalf("remove: %v", err)
	}
	second, err := l.Get("libbar.so")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first != second {
		t.Fatalf("cached result changed: %s vs %s", first, second)
	}
}

package strtab

import (
	"bytes"
	"testing"
)

func TestStringLooksUpByOffset(t *testing.T) {
	raw := []byte("\x00libc.so.6\x00libm.so.6\x00")
	table := New(raw)

	got, err := table.String(1)
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if got != "libc.so.6" {
		t.Fatalf("got %q, want libc.so.6", got)
	}

	got, err = table.String(11)
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if got != "libm.so.6" {
		t.Fatalf("got %q, want libm.so.6", got)
	}
}

func TestStringOutOfRangeErrors(t *testing.T) {
	table := New([]byte("abc\x00"))
	if _, err := table.String(100); err == nil {
		t.Fatal("expected error for out-of-range offset")
	}
}

func TestStringMissingTerminatorErrors(t *testing.T) {
	table := New([]byte("noterminator"))
	if _, err := table.String(0); err == nil {
		t.Fatal("expected error for missing NUL terminator")
	}
}

func TestLoadReadsFromReaderAt(t *testing.T) {
	source := bytes.NewReader([]byte("xxxx\x00libc.so.6\x00"))
	table, err := Load(source, 4, 11)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, err := table.String(1)
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if got != "libc.so.6" {
		t.Fatalf("got %q", got)
	}
}

func TestAllSplitsOnNul(t *testing.T) {
	table := New([]byte("\x00a\x00bb\x00"))
	all := table.All()
	want := []string{"", "a", "bb", ""}
	if len(all) != len(want) {
		t.Fatalf("got %v, want %v", all, want)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Fatalf("got %v, want %v", all, want)
		}
	}
}

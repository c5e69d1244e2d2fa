package loadlink

import (
	"testing"

	"github.com/zboralski/loadelf/internal/elfimage"
	"github.com/zboralski/loadelf/internal/sysx"
)

func TestIsInterpreterMatchesBasename(t *testing.T) {
	cases := map[string]bool{
		"/lib64/ld-linux-x86-64.so.2": true,
		"ld-linux-x86-64.so.2":        true,
		"/lib/x86_64-linux-gnu/libc.so.6": false,
	}
	for path, want := range cases {
		if got := isInterpreter(path); got != want {
			t.Fatalf("isInterpreter(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestIngestAndLookupGlobalSymbol(t *testing.T) {
	l := New(Options{})
	img := &elfimage.Image{
		Path: "/lib/libfoo.so",
		Symbols: []elfimage.Symbol{
			{Name: "foo_init@@VERS_1.0", Info: elfimage.BindGlobal<<4 | elfimage.TypeFunc, Section: 1, Value: 0x100, Size: 16},
			{Name: "", Section: 0}, // STN_UNDEF
		},
	}
	mapped := &mappedImage{image: img, base: 0x500000}
	l.ingestGlobalSymbols(mapped)

	full, ok := l.lookupSymbol("foo_init@@VERS_1.0")
	if !ok || full.value != 0x500100 {
		t.Fatalf("got %v/%v, want 0x500100/true", full.value, ok)
	}
	bare, ok := l.lookupSymbol("foo_init")
	if !ok || bare.value != 0x500100 {
		t.Fatalf("got %v/%v, want 0x500100/true (versioned fallback)", bare.value, ok)
	}
}

func TestIngestSkipsLocalAndUndefinedSymbols(t *testing.T) {
	l := New(Options{})
	img := &elfimage.Image{
		Symbols: []elfimage.Symbol{
			{Name: "local_var", Info: elfimage.BindLocal << 4, Section: 1, Value: 0x10},
			{Name: "undef_sym", Info: elfimage.BindGlobal << 4, Section: 0, Value: 0},
		},
	}
	l.ingestGlobalSymbols(&mappedImage{image: img, base: 0x1000})
	if _, ok := l.lookupSymbol("local_var"); ok {
		t.Fatal("local symbol should not be exported")
	}
	if _, ok := l.lookupSymbol("undef_sym"); ok {
		t.Fatal("undefined symbol should not be exported")
	}
}

func TestIngestFirstDefinitionWins(t *testing.T) {
	l := New(Options{})
	first := &elfimage.Image{
		Symbols: []elfimage.Symbol{{Name: "shared_sym", Info: elfimage.BindGlobal << 4, Section: 1, Value: 0x10}},
	}
	second := &elfimage.Image{
		Symbols: []elfimage.Symbol{{Name: "shared_sym", Info: elfimage.BindGlobal << 4, Section: 1, Value: 0x20}},
	}
	l.ingestGlobalSymbols(&mappedImage{image: first, base: 0x1000})
	l.ingestGlobalSymbols(&mappedImage{image: second, base: 0x2000})

	got, ok := l.lookupSymbol("shared_sym")
	if !ok || got.value != 0x1010 {
		t.Fatalf("got %#x/%v, want 0x1010/true (first definition must win)", got.value, ok)
	}
}

func TestIngestOnlyDefaultVersionPopulatesBareName(t *testing.T) {
	l := New(Options{})
	img := &elfimage.Image{
		Symbols: []elfimage.Symbol{
			{Name: "versioned_sym@COMPAT_1.0", Info: elfimage.BindGlobal << 4, Section: 1, Value: 0x10},
		},
	}
	l.ingestGlobalSymbols(&mappedImage{image: img, base: 0x1000})

	if _, ok := l.lookupSymbol("versioned_sym@COMPAT_1.0"); !ok {
		t.Fatal("exact versioned name should be looked up directly")
	}
	if _, ok := l.symbols["versioned_sym"]; ok {
		t.Fatal("a non-default (single @) version must not populate the bare name")
	}
}

func TestRelocateWritesRelativeAndGlobDat(t *testing.T) {
	page := sysx.RoundUpPage(4096)
	mem, err := sysx.MapAnonymous(0, int(page), sysx.ProtRead|sysx.ProtWrite)
	if err != nil {
		t.Fatalf("MapAnonymous: %v", err)
	}
	defer mem.Unmap()

	l := New(Options{})
	img := &elfimage.Image{
		Path: "/bin/app",
		Symbols: []elfimage.Symbol{
			{Name: "resolved_sym", Info: elfimage.BindGlobal << 4, Section: 1, Value: 0x42},
		},
		Relocs: []elfimage.Reloc{
			{Offset: 0, Type: elfimage.RelocRelative, Addend: 0x10},
			{Offset: 8, Type: elfimage.RelocGlobDat, Symbol: 0},
		},
	}
	mapped := &mappedImage{image: img, base: mem.Addr}
	l.ingestGlobalSymbols(mapped)

	if err := l.relocate(mapped); err != nil {
		t.Fatalf("relocate: %v", err)
	}

	got := sysx.ReadUint64(mem.Addr)
	want := uint64(mem.Addr) + 0x10
	if got != want {
		t.Fatalf("RELATIVE: got %#x, want %#x", got, want)
	}

	got = sysx.ReadUint64(mem.Addr + 8)
	want = uint64(mem.Addr) + 0x42
	if got != want {
		t.Fatalf("GLOB_DAT: got %#x, want %#x", got, want)
	}
}

func TestRelocateSkipsUnresolvedSymbol(t *testing.T) {
	page := sysx.RoundUpPage(4096)
	mem, err := sysx.MapAnonymous(0, int(page), sysx.ProtRead|sysx.ProtWrite)
	if err != nil {
		t.Fatalf("MapAnonymous: %v", err)
	}
	defer mem.Unmap()

	l := New(Options{})
	img := &elfimage.Image{
		Path:    "/bin/app",
		Symbols: []elfimage.Symbol{{Name: "missing_sym", Section: 0}},
		Relocs:  []elfimage.Reloc{{Offset: 0, Type: elfimage.RelocGlobDat, Symbol: 0}},
	}
	mapped := &mappedImage{image: img, base: mem.Addr}

	if err := l.relocate(mapped); err != nil {
		t.Fatalf("relocate: %v", err)
	}
	if got := sysx.ReadUint64(mem.Addr); got != 0 {
		t.Fatalf("expected untouched zero memory, got %#x", got)
	}
}

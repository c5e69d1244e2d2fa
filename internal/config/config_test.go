package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("got %+v, want %+v", cfg, want)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("got %+v, want defaults", cfg)
	}
}

func TestLoadOverridesOnlySetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loadelf.yaml")
	content := "searchPaths:\n  - /opt/app/lib\nstackSize: 4096\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.SearchPaths) != 1 || cfg.SearchPaths[0] != "/opt/app/lib" {
		t.Fatalf("unexpected search paths: %v", cfg.SearchPaths)
	}
	if cfg.StackSize != 4096 {
		t.Fatalf("unexpected stack size: %d", cfg.StackSize)
	}
	if cfg.CacheFile != "/etc/ld.so.cache" {
		t.Fatalf("cache file should keep default, got %s", cfg.CacheFile)
	}
	if cfg.SameProcess {
		t.Fatal("sameProcess should default false")
	}
}

func TestResolvePrefersFlagOverEnv(t *testing.T) {
	t.Setenv("LOADELF_CONFIG", "/from/env.yaml")
	if got := Resolve("/from/flag.yaml"); got != "/from/flag.yaml" {
		t.Fatalf("got %s, want flag value", got)
	}
	if got := Resolve(""); got != "/from/env.yaml" {
		t.Fatalf("got %s, want env value", got)
	}
}

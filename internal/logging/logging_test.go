package logging

import "testing"

func TestInitInstallsGlobalLogger(t *testing.T) {
	logger, err := Init(true, "test-run-id")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if logger == nil {
		t.Fatal("Init returned nil logger")
	}
	if L != logger {
		t.Fatal("Init did not install the logger globally")
	}
}

func TestNewNopDiscardsOutput(t *testing.T) {
	logger := NewNop()
	if logger == nil {
		t.Fatal("NewNop returned nil")
	}
	logger.Info("should be discarded")
}

func TestAddrFormatsFixedWidth(t *testing.T) {
	f := Addr("base", 0x20000)
	if f.Key != "base" {
		t.Fatalf("unexpected key: %s", f.Key)
	}
	if f.String != "0x0000000000020000" {
		t.Fatalf("unexpected value: %s", f.String)
	}
}

func TestHexFormatsWithoutPadding(t *testing.T) {
	f := Hex("tag", 25)
	if f.String != "0x19" {
		t.Fatalf("unexpected value: %s", f.String)
	}
}

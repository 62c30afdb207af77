package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmptyPathReturnsZeroValue(t *testing.T) {
	d, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d != (Defaults{}) {
		t.Fatalf("Load(\"\") = %+v, want zero value", d)
	}
}

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	d, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d != (Defaults{}) {
		t.Fatalf("Load(missing) = %+v, want zero value", d)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncwave.yaml")
	contents := "multicast: 239.0.0.1:6000\ndelay_ms: 25\nmax_seq_gap: 8\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Multicast != "239.0.0.1:6000" || d.DelayMs != 25 || d.MaxSeqGap != 8 {
		t.Fatalf("Load() = %+v", d)
	}
}

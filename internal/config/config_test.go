package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shareaudit/macroscan/internal/config"
)

func TestLoad_DefaultsApplied(t *testing.T) {
	f, err := os.CreateTemp("", "macroscan-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())

	if _, err := f.WriteString("input_file: /tmp/shares.txt\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cfg, err := config.Load(f.Name())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DaysThreshold != 7 {
		t.Errorf("DaysThreshold = %d, want default 7", cfg.DaysThreshold)
	}
	if cfg.Workers != 1 {
		t.Errorf("Workers = %d, want default 1", cfg.Workers)
	}
	if cfg.Domain == "" {
		t.Error("expected default domain to be set")
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OutputDir == "" || cfg.HTTPAddr == "" {
		t.Error("expected defaults for missing config file")
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	f, err := os.CreateTemp("", "macroscan-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString("no_such_knob: true\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := config.Load(f.Name()); err == nil {
		t.Error("expected error for unknown config field")
	}
}

func TestLoadShares_SkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shares.txt")
	content := "\\\\host1\\team\\docs\n\n   \n\\\\host2\\finance\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	shares, err := config.LoadShares(path)
	if err != nil {
		t.Fatalf("LoadShares: %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("got %d shares, want 2: %q", len(shares), shares)
	}
	if shares[0] != `\\host1\team\docs` || shares[1] != `\\host2\finance` {
		t.Errorf("shares = %q", shares)
	}
}

func TestLoadShares_MissingFile(t *testing.T) {
	if _, err := config.LoadShares(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing share list")
	}
}

package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateTLSConfigGeneratesCert(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOrCreateTLSConfig(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateTLSConfig: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("expected 1 certificate, got %d", len(cfg.Certificates))
	}

	// Second call should load the persisted cert rather than regenerating.
	cfg2, err := LoadOrCreateTLSConfig(dir)
	if err != nil {
		t.Fatalf("second LoadOrCreateTLSConfig: %v", err)
	}
	if string(cfg2.Certificates[0].Certificate[0]) != string(cfg.Certificates[0].Certificate[0]) {
		t.Error("expected the same certificate to be reloaded")
	}
}

func TestLoadOrCreateTLSConfigFilesExist(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadOrCreateTLSConfig(dir); err != nil {
		t.Fatalf("LoadOrCreateTLSConfig: %v", err)
	}
	for _, name := range []string{"cert.pem", "key.pem"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

package daemon

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateTokenGeneratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "auth_token")

	token, err := LoadOrCreateToken(path)
	if err != nil {
		t.Fatalf("LoadOrCreateToken: %v", err)
	}
	if _, err := hex.DecodeString(token); err != nil {
		t.Fatalf("token not hex: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64 hex chars for 32 bytes", len(token))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	again, err := LoadOrCreateToken(path)
	if err != nil {
		t.Fatalf("second LoadOrCreateToken: %v", err)
	}
	if again != token {
		t.Error("expected token to persist across calls")
	}
}

package daemon

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/omnish-sh/omnish/internal/omnerr"
)

// LoadOrCreateToken reads the hex-encoded shared-secret token at path,
// generating 32 random bytes and persisting them (mode 0600) on first run.
func LoadOrCreateToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return string(data), nil
	}
	if !os.IsNotExist(err) {
		return "", omnerr.New("daemon.LoadOrCreateToken", omnerr.ConfigInvalid, err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", omnerr.New("daemon.LoadOrCreateToken", omnerr.ConfigInvalid, err)
	}
	token := hex.EncodeToString(raw)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", omnerr.New("daemon.LoadOrCreateToken", omnerr.ConfigInvalid, err)
	}
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		return "", omnerr.New("daemon.LoadOrCreateToken", omnerr.ConfigInvalid, err)
	}
	return token, nil
}

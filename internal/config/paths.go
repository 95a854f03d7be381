package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigPath resolves the config file location: $OMNISH_CONFIG if set,
// else ~/.config/omnish/config.toml.
func ConfigPath() string {
	if p := os.Getenv("OMNISH_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "omnish", "config.toml")
	}
	return filepath.Join(home, ".config", "omnish", "config.toml")
}

// DataDir is the root of the on-disk layout, ~/.local/share/omnish.
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "omnish"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "omnish"), nil
}

// SessionsDir is DataDir/sessions, the root of per-session recordings.
func SessionsDir() (string, error) {
	base, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "sessions"), nil
}

// AuthTokenPath is the daemon's shared-secret token file, mode 0600.
func AuthTokenPath() (string, error) {
	base, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "auth_token"), nil
}

// TLSDir is DataDir/tls, holding the daemon's self-signed cert.pem/key.pem.
func TLSDir() (string, error) {
	base, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "tls"), nil
}

// DefaultSocketPath honors $OMNISH_SOCKET, then $XDG_RUNTIME_DIR/omnish.sock,
// falling back to a path under the data dir when neither is set (e.g. on
// systems without a runtime dir, such as most CI containers).
func DefaultSocketPath() string {
	if s := os.Getenv("OMNISH_SOCKET"); s != "" {
		return s
	}
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "omnish.sock")
	}
	base, err := DataDir()
	if err != nil {
		return "/tmp/omnish.sock"
	}
	return filepath.Join(base, "omnish.sock")
}

// EnsureDataDirs creates the sessions/ and tls/ directories under DataDir,
// along with DataDir itself, all with owner-only permissions.
func EnsureDataDirs() error {
	dirs, err := func() ([]string, error) {
		sessions, err := SessionsDir()
		if err != nil {
			return nil, err
		}
		tls, err := TLSDir()
		if err != nil {
			return nil, err
		}
		return []string{sessions, tls}, nil
	}()
	if err != nil {
		return err
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

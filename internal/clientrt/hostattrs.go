package clientrt

import (
	"os"
	"strconv"

	"github.com/google/uuid"
)

// shortSessionID returns a random short session identifier: the first 8 hex
// characters of a uuid, which is plenty of entropy for a single host's
// concurrently-open shells.
func shortSessionID() string {
	return uuid.New().String()[:8]
}

// hostAttrs gathers the host probes a SessionStart carries: shell, pid,
// tty, cwd, hostname. Any probe that fails is simply omitted.
func hostAttrs(shell, ttyName string) map[string]string {
	attrs := map[string]string{
		"shell": shell,
		"pid":   strconv.Itoa(os.Getpid()),
	}
	if ttyName != "" {
		attrs["tty"] = ttyName
	}
	if cwd, err := os.Getwd(); err == nil {
		attrs["cwd"] = cwd
	}
	if host, err := os.Hostname(); err == nil {
		attrs["hostname"] = host
	}
	return attrs
}

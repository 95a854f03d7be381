package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/omnish-sh/omnish/internal/omnerr"
)

// SessionMeta is the on-disk representation of a session's metadata
// (meta.json). Optional fields carry omitempty and are left out when unset.
// Fields this struct does not declare are dropped by LoadMeta, so a
// load/save cycle does not preserve them.
type SessionMeta struct {
	SessionID       string            `json:"session_id"`
	ParentSessionID string            `json:"parent_session_id,omitempty"`
	Shell           string            `json:"shell,omitempty"`
	Pid             int               `json:"pid,omitempty"`
	Tty             string            `json:"tty,omitempty"`
	Cwd             string            `json:"cwd,omitempty"`
	Hostname        string            `json:"hostname,omitempty"`
	StartedAtMs     uint64            `json:"started_at_ms"`
	EndedAtMs       uint64            `json:"ended_at_ms,omitempty"`
	Attrs           map[string]string `json:"attrs,omitempty"`
}

const metaFileName = "meta.json"

// SaveMeta writes meta.json into dir.
func SaveMeta(dir string, m SessionMeta) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return omnerr.New("store.SaveMeta", omnerr.StoreIo, err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFileName), b, 0o600); err != nil {
		return omnerr.New("store.SaveMeta", omnerr.StoreIo, err)
	}
	return nil
}

// LoadMeta reads meta.json from dir.
func LoadMeta(dir string) (SessionMeta, error) {
	b, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		return SessionMeta{}, omnerr.New("store.LoadMeta", omnerr.StoreIo, err)
	}
	var m SessionMeta
	if err := json.Unmarshal(b, &m); err != nil {
		return SessionMeta{}, omnerr.New("store.LoadMeta", omnerr.StoreCorrupt, err)
	}
	return m, nil
}

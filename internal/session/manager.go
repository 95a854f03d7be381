// Package session owns the in-memory active-session registry and the
// on-disk session layout: idempotent registration, I/O fan-in into the
// store and command tracker, scheduled eviction/cleanup, and context
// assembly for LLM queries.
//
// Grounded on the teacher's daemon lifecycle (internal/daemon/daemon.go)
// for the locking/ownership shape.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/omnish-sh/omnish/internal/logger"
	"github.com/omnish-sh/omnish/internal/omnerr"
	"github.com/omnish-sh/omnish/internal/store"
	"github.com/omnish-sh/omnish/internal/tracker"
	"github.com/omnish-sh/omnish/internal/wire"
)

// ActiveSession is the manager's in-memory handle onto one live session.
// Callers never touch this directly — it is owned exclusively by Manager
// and reached only through Manager's methods under its lock.
type ActiveSession struct {
	Meta           store.SessionMeta
	Dir            string
	Writer         *store.StreamWriter
	Commands       []wire.CommandRecord
	Tracker        *tracker.Tracker
	LastActivityMs int64
}

// Manager owns the active-session map and the on-disk layout rooted at
// BaseDir. A single RWMutex guards the map and every session's mutable
// state: contention is bounded by the number of concurrent clients, each of
// which has naturally serial I/O, so coarse locking is intentional.
type Manager struct {
	BaseDir string

	mu       sync.RWMutex
	sessions map[string]*ActiveSession
	index    *Index // optional sqlite side index, nil if not configured
}

// NewManager creates a Manager rooted at baseDir (created if missing).
func NewManager(baseDir string) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, omnerr.New("session.NewManager", omnerr.StoreIo, err)
	}
	return &Manager{BaseDir: baseDir, sessions: make(map[string]*ActiveSession)}, nil
}

// AttachIndex wires an optional sqlite side index used to accelerate
// cross-session queries; the manager remains fully functional without one.
func (m *Manager) AttachIndex(idx *Index) { m.index = idx }

// Register creates a new session directory or, if sessionID is already
// active in this manager, merges attrs into it idempotently — required for
// safe reconnection. The stream and command list of an active session
// survive re-registration untouched. A directory left on disk by a prior
// process is not reopened: registering its id creates a new directory.
func (m *Manager) Register(sessionID, parentSessionID string, attrs map[string]string, nowMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if as, ok := m.sessions[sessionID]; ok {
		mergeAttrs(as.Meta.Attrs, attrs)
		as.LastActivityMs = nowMs
		if err := store.SaveMeta(as.Dir, as.Meta); err != nil {
			return err
		}
		logger.Info("session re-registered", "session_id", sessionID)
		return nil
	}

	dirName := fmt.Sprintf("%s_%s", time.UnixMilli(nowMs).UTC().Format(time.RFC3339), sessionID)
	dir := filepath.Join(m.BaseDir, dirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return omnerr.New("session.Register", omnerr.StoreIo, err)
	}

	meta := store.SessionMeta{
		SessionID:       sessionID,
		ParentSessionID: parentSessionID,
		StartedAtMs:     uint64(nowMs),
		Attrs:           cloneAttrs(attrs),
	}
	applyWellKnownAttrs(&meta, attrs)
	if err := store.SaveMeta(dir, meta); err != nil {
		return err
	}

	writer, err := store.CreateStreamWriter(filepath.Join(dir, "stream.bin"))
	if err != nil {
		return err
	}

	m.sessions[sessionID] = &ActiveSession{
		Meta:           meta,
		Dir:            dir,
		Writer:         writer,
		Tracker:        tracker.New(sessionID, meta.Cwd),
		LastActivityMs: nowMs,
	}
	if m.index != nil {
		_ = m.index.UpsertSession(sessionID, parentSessionID, dir, nowMs)
	}
	logger.Info("session registered", "session_id", sessionID, "parent", parentSessionID)
	return nil
}

func applyWellKnownAttrs(meta *store.SessionMeta, attrs map[string]string) {
	meta.Shell = attrs["shell"]
	meta.Cwd = attrs["cwd"]
	meta.Tty = attrs["tty"]
	meta.Hostname = attrs["hostname"]
	if pidStr, ok := attrs["pid"]; ok {
		fmt.Sscanf(pidStr, "%d", &meta.Pid)
	}
}

func mergeAttrs(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

func cloneAttrs(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// WriteIO records one StreamEntry for sessionID and feeds it through the
// command tracker, returning any CommandRecords finalized as a result.
// Finalized records are appended to the active session's command list and
// persisted to commands.json as soon as they finalize.
func (m *Manager) WriteIO(sessionID string, ts int64, direction uint8, data []byte) ([]wire.CommandRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	as, ok := m.sessions[sessionID]
	if !ok {
		return nil, omnerr.New("session.WriteIO", omnerr.SessionNotFound, fmt.Errorf("session %s not registered", sessionID))
	}
	posBefore, err := as.Writer.WriteEntry(uint64(ts), direction, data)
	if err != nil {
		return nil, err
	}
	as.LastActivityMs = ts

	var finalized []wire.CommandRecord
	switch direction {
	case store.DirectionOutput:
		finalized = as.Tracker.FeedOutput(data, ts, posBefore)
	case store.DirectionInput:
		as.Tracker.FeedInput(data, ts)
	}
	if len(finalized) > 0 {
		as.Commands = append(as.Commands, finalized...)
		if err := store.SaveAllCommands(as.Dir, as.Commands); err != nil {
			logger.Error("persist commands.json failed", "session_id", sessionID, "err", err)
		}
		if m.index != nil {
			for _, rec := range finalized {
				_ = m.index.UpsertCommand(rec)
			}
		}
	}
	return finalized, nil
}

// ReceiveCommand appends a record received verbatim from a client-side
// tracker and persists it. Records cannot move stream offset backwards.
func (m *Manager) ReceiveCommand(sessionID string, record wire.CommandRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	as, ok := m.sessions[sessionID]
	if !ok {
		return omnerr.New("session.ReceiveCommand", omnerr.SessionNotFound, fmt.Errorf("session %s not registered", sessionID))
	}
	if len(as.Commands) > 0 {
		last := as.Commands[len(as.Commands)-1]
		if record.StreamOffset < last.StreamOffset {
			return omnerr.New("session.ReceiveCommand", omnerr.StoreCorrupt, fmt.Errorf("record stream_offset %d precedes last %d", record.StreamOffset, last.StreamOffset))
		}
	}
	as.Commands = append(as.Commands, record)
	if err := store.SaveAllCommands(as.Dir, as.Commands); err != nil {
		return err
	}
	if m.index != nil {
		_ = m.index.UpsertCommand(record)
	}
	return nil
}

// UpdateAttrs merges attrs into a session's metadata and persists it.
func (m *Manager) UpdateAttrs(sessionID string, attrs map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	as, ok := m.sessions[sessionID]
	if !ok {
		return omnerr.New("session.UpdateAttrs", omnerr.SessionNotFound, fmt.Errorf("session %s not registered", sessionID))
	}
	mergeAttrs(as.Meta.Attrs, attrs)
	applyWellKnownAttrs(&as.Meta, as.Meta.Attrs)
	as.Tracker.SetFallbackCwd(as.Meta.Cwd)
	return store.SaveMeta(as.Dir, as.Meta)
}

// EndSession marks ended_at, persists final state, and removes the session
// from the active map. Data on disk survives.
func (m *Manager) EndSession(sessionID string, ts int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	as, ok := m.sessions[sessionID]
	if !ok {
		return omnerr.New("session.EndSession", omnerr.SessionNotFound, fmt.Errorf("session %s not registered", sessionID))
	}
	as.Meta.EndedAtMs = uint64(ts)
	if err := store.SaveMeta(as.Dir, as.Meta); err != nil {
		return err
	}
	if err := store.SaveAllCommands(as.Dir, as.Commands); err != nil {
		return err
	}
	_ = as.Writer.Close()
	delete(m.sessions, sessionID)
	logger.Info("session ended", "session_id", sessionID)
	return nil
}

// EvictInactive ends every active session whose last activity predates
// nowMs-maxInactiveMs, returning the ids evicted.
func (m *Manager) EvictInactive(maxInactiveMs int64, nowMs int64) []string {
	m.mu.RLock()
	var stale []string
	for id, as := range m.sessions {
		if nowMs-as.LastActivityMs > maxInactiveMs {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		if err := m.EndSession(id, nowMs); err != nil {
			logger.Error("evict_inactive failed", "session_id", id, "err", err)
		}
	}
	return stale
}

// CleanupExpiredDirs scans BaseDir for session directories whose last
// activity (the last command's ended_at, or its started_at if it has none;
// with no commands, the session's ended_at, or its started_at if it has not
// ended) is older than maxAge, and removes them. Directories whose commands.json is
// missing or malformed are left untouched — data is preserved on ambiguity.
func (m *Manager) CleanupExpiredDirs(maxAge time.Duration, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(m.BaseDir)
	if err != nil {
		return nil, omnerr.New("session.CleanupExpiredDirs", omnerr.StoreIo, err)
	}
	cutoff := now.Add(-maxAge)
	var removed []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(m.BaseDir, e.Name())
		records, err := store.LoadAllCommands(dir)
		if err != nil {
			continue // malformed commands.json: skip, preserve data
		}
		meta, err := store.LoadMeta(dir)
		if err != nil {
			continue
		}
		lastActivity := time.UnixMilli(int64(meta.StartedAtMs))
		if len(records) > 0 {
			last := records[len(records)-1]
			if last.HasEndedAt {
				lastActivity = time.UnixMilli(int64(last.EndedAtMs))
			} else {
				lastActivity = time.UnixMilli(int64(last.StartedAtMs))
			}
		} else if meta.EndedAtMs != 0 {
			lastActivity = time.UnixMilli(int64(meta.EndedAtMs))
		}
		if lastActivity.Before(cutoff) {
			if err := os.RemoveAll(dir); err != nil {
				logger.Error("cleanup_expired_dirs remove failed", "dir", dir, "err", err)
				continue
			}
			removed = append(removed, e.Name())
		}
	}
	return removed, nil
}

// ListLeafSessions returns, from the directories under BaseDir, the set of
// session ids that are never referenced as another session's
// parent_session_id ("leaf" sessions, used to elide duplicate recording
// from nested omnish instances).
func (m *Manager) ListLeafSessions() ([]string, error) {
	entries, err := os.ReadDir(m.BaseDir)
	if err != nil {
		return nil, omnerr.New("session.ListLeafSessions", omnerr.StoreIo, err)
	}
	referenced := make(map[string]bool)
	var all []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := store.LoadMeta(filepath.Join(m.BaseDir, e.Name()))
		if err != nil {
			continue
		}
		all = append(all, meta.SessionID)
		if meta.ParentSessionID != "" {
			referenced[meta.ParentSessionID] = true
		}
	}
	var leaves []string
	for _, id := range all {
		if !referenced[id] {
			leaves = append(leaves, id)
		}
	}
	sort.Strings(leaves)
	return leaves, nil
}

// SessionSummary pairs a session's metadata with its on-disk directory, for
// callers that need to load its commands or stream after listing it.
type SessionSummary struct {
	Meta store.SessionMeta
	Dir  string
}

// AllSessionMetas returns the metadata of every session directory under
// BaseDir, most recently started first. Used by the commands listing tool,
// which needs more than just ids.
func (m *Manager) AllSessionMetas() ([]SessionSummary, error) {
	entries, err := os.ReadDir(m.BaseDir)
	if err != nil {
		return nil, omnerr.New("session.AllSessionMetas", omnerr.StoreIo, err)
	}
	var summaries []SessionSummary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(m.BaseDir, e.Name())
		meta, err := store.LoadMeta(dir)
		if err != nil {
			continue
		}
		summaries = append(summaries, SessionSummary{Meta: meta, Dir: dir})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Meta.StartedAtMs > summaries[j].Meta.StartedAtMs
	})
	return summaries, nil
}

// findSessionDir scans baseDir for the directory whose meta.json names
// sessionID, returning "" if none is found.
func findSessionDir(baseDir, sessionID string) (string, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return "", omnerr.New("session.findSessionDir", omnerr.StoreIo, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(baseDir, e.Name())
		meta, err := store.LoadMeta(dir)
		if err != nil {
			continue
		}
		if meta.SessionID == sessionID {
			return dir, nil
		}
	}
	return "", nil
}

func notFoundErr(sessionID string) error {
	return omnerr.New("session", omnerr.SessionNotFound, fmt.Errorf("session %s not found", sessionID))
}

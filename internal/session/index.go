package session

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/omnish-sh/omnish/internal/omnerr"
	"github.com/omnish-sh/omnish/internal/store"
	"github.com/omnish-sh/omnish/internal/wire"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Index is a rebuildable sqlite side index over session and command
// metadata, used to answer cross-session search/listing queries (e.g. "what
// commands failed today across every terminal") without scanning every
// session directory's commands.json. It is never the source of truth — a
// corrupt or missing index file can always be regenerated from the on-disk
// session directories via Rebuild.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if absent) the sqlite file at dsn and applies
// any pending migrations.
func OpenIndex(dsn string) (*Index, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, omnerr.New("session.OpenIndex", omnerr.StoreIo, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, omnerr.New("session.OpenIndex", omnerr.StoreIo, err)
	}
	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) Close() error { return idx.db.Close() }

func (idx *Index) migrate() error {
	if _, err := idx.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY
	)`); err != nil {
		return omnerr.New("session.migrate", omnerr.StoreIo, err)
	}
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return omnerr.New("session.migrate", omnerr.StoreIo, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, f := range files {
		var applied int
		if err := idx.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return omnerr.New("session.migrate", omnerr.StoreIo, err)
		}
		if applied > 0 {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return omnerr.New("session.migrate", omnerr.StoreIo, err)
		}
		tx, err := idx.db.Begin()
		if err != nil {
			return omnerr.New("session.migrate", omnerr.StoreIo, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return omnerr.New("session.migrate", omnerr.StoreIo, fmt.Errorf("apply %s: %w", f, err))
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations(version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return omnerr.New("session.migrate", omnerr.StoreIo, err)
		}
		if err := tx.Commit(); err != nil {
			return omnerr.New("session.migrate", omnerr.StoreIo, err)
		}
	}
	return nil
}

// UpsertSession records or updates a session's directory location.
func (idx *Index) UpsertSession(sessionID, parentSessionID, dir string, startedAtMs int64) error {
	_, err := idx.db.Exec(`INSERT INTO sessions (session_id, parent_session_id, dir, started_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET parent_session_id=excluded.parent_session_id, dir=excluded.dir`,
		sessionID, nullIfEmpty(parentSessionID), dir, startedAtMs)
	if err != nil {
		return omnerr.New("session.UpsertSession", omnerr.StoreIo, err)
	}
	return nil
}

// UpsertCommand records or updates one finalized command record.
func (idx *Index) UpsertCommand(r wire.CommandRecord) error {
	var endedAt any
	if r.HasEndedAt {
		endedAt = int64(r.EndedAtMs)
	}
	var exitCode any
	if r.HasExitCode {
		exitCode = int64(r.ExitCode)
	}
	_, err := idx.db.Exec(`INSERT INTO commands (command_id, session_id, command_line, cwd, started_at_ms, ended_at_ms, exit_code)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(command_id) DO UPDATE SET
			command_line=excluded.command_line, cwd=excluded.cwd,
			ended_at_ms=excluded.ended_at_ms, exit_code=excluded.exit_code`,
		r.CommandID, r.SessionID, nullIfEmpty(r.CommandLine), nullIfEmpty(r.Cwd), int64(r.StartedAtMs), endedAt, exitCode)
	if err != nil {
		return omnerr.New("session.UpsertCommand", omnerr.StoreIo, err)
	}
	return nil
}

// FailedCommandsSince returns every recorded command with a nonzero exit
// code started at or after sinceMs, most recent first.
func (idx *Index) FailedCommandsSince(sinceMs int64) ([]wire.CommandRecord, error) {
	rows, err := idx.db.Query(`SELECT command_id, session_id, command_line, cwd, started_at_ms, ended_at_ms, exit_code
		FROM commands WHERE started_at_ms >= ? AND exit_code IS NOT NULL AND exit_code != 0
		ORDER BY started_at_ms DESC`, sinceMs)
	if err != nil {
		return nil, omnerr.New("session.FailedCommandsSince", omnerr.StoreIo, err)
	}
	defer rows.Close()
	return scanCommandRows(rows)
}

func scanCommandRows(rows *sql.Rows) ([]wire.CommandRecord, error) {
	var out []wire.CommandRecord
	for rows.Next() {
		var r wire.CommandRecord
		var commandLine, cwd sql.NullString
		var endedAt, exitCode sql.NullInt64
		var startedAt int64
		if err := rows.Scan(&r.CommandID, &r.SessionID, &commandLine, &cwd, &startedAt, &endedAt, &exitCode); err != nil {
			return nil, omnerr.New("session.scanCommandRows", omnerr.StoreIo, err)
		}
		r.StartedAtMs = uint64(startedAt)
		r.CommandLine = commandLine.String
		r.Cwd = cwd.String
		if endedAt.Valid {
			r.EndedAtMs = uint64(endedAt.Int64)
			r.HasEndedAt = true
		}
		if exitCode.Valid {
			r.ExitCode = int32(exitCode.Int64)
			r.HasExitCode = true
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Rebuild drops and repopulates the index from the on-disk session
// directories under baseDir, using the same loaders the manager itself uses
// so the index can never disagree with the format meta.json/commands.json
// actually use.
func (idx *Index) Rebuild(baseDir string) error {
	if _, err := idx.db.Exec("DELETE FROM commands"); err != nil {
		return omnerr.New("session.Rebuild", omnerr.StoreIo, err)
	}
	if _, err := idx.db.Exec("DELETE FROM sessions"); err != nil {
		return omnerr.New("session.Rebuild", omnerr.StoreIo, err)
	}
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return omnerr.New("session.Rebuild", omnerr.StoreIo, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(baseDir, e.Name())
		meta, err := store.LoadMeta(dir)
		if err != nil {
			continue // unreadable directory: skip, the index is advisory
		}
		if err := idx.UpsertSession(meta.SessionID, meta.ParentSessionID, dir, int64(meta.StartedAtMs)); err != nil {
			return err
		}
		records, err := store.LoadAllCommands(dir)
		if err != nil {
			continue
		}
		for _, r := range records {
			if err := idx.UpsertCommand(r); err != nil {
				return err
			}
		}
	}
	return nil
}

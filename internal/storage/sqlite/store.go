// Package sqlite is the SQLite-backed session store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/versefold/corpse/internal/game"
	"github.com/versefold/corpse/internal/storage"
	"github.com/versefold/corpse/internal/storage/sqlite/migrations"
)

const timeFormat = time.RFC3339Nano

var ErrNotFound = errors.New("session not found")

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at path and applies pending migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping sqlite db")
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// migrate applies each embedded .sql file at most once, tracked in
// schema_migrations.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return errors.Wrap(err, "ensure migration table")
	}

	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return errors.Wrap(err, "read migrations dir")
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var found int
		err := s.db.QueryRow("SELECT 1 FROM schema_migrations WHERE name = ?", name).Scan(&found)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return errors.Wrapf(err, "check migration %s", name)
		}

		content, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return errors.Wrapf(err, "read migration %s", name)
		}
		upSQL := extractUp(string(content))
		if strings.TrimSpace(upSQL) == "" {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return errors.Wrapf(err, "begin migration %s", name)
		}
		if _, err := tx.Exec(upSQL); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "exec migration %s", name)
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO schema_migrations (name, applied_at) VALUES (?, ?)",
			name, time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "record migration %s", name)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit migration %s", name)
		}
	}
	return nil
}

// extractUp returns the SQL in the -- +migrate Up section.
func extractUp(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, "-- +migrate Down")
	if downIdx == -1 {
		return content[upIdx+len("-- +migrate Up"):]
	}
	return content[upIdx+len("-- +migrate Up") : downIdx]
}

// SaveSession upserts the snapshot for the session id.
func (s *Store) SaveSession(ctx context.Context, snap game.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(snap.ID) == "" {
		return errors.New("session id is required")
	}

	config, err := json.Marshal(snap.Config)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	roster, err := json.Marshal(snap.Roster)
	if err != nil {
		return errors.Wrap(err, "marshal roster")
	}
	poem, err := json.Marshal(snap.Contributions)
	if err != nil {
		return errors.Wrap(err, "marshal poem")
	}

	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO sessions
    (id, config, roster, state, active_writer, poem, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID,
		string(config),
		string(roster),
		string(snap.State),
		snap.ActiveWriter,
		string(poem),
		snap.CreatedAt.UTC().Format(timeFormat),
		snap.UpdatedAt.UTC().Format(timeFormat),
	)
	return errors.Wrap(err, "save session")
}

// LoadActive returns every non-terminal session, oldest first.
func (s *Store) LoadActive(ctx context.Context) ([]game.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, config, roster, state, active_writer, poem, created_at, updated_at
    FROM sessions WHERE state NOT IN (?, ?) ORDER BY created_at`,
		string(game.StateCompleted), string(game.StateAbandoned))
	if err != nil {
		return nil, errors.Wrap(err, "query active sessions")
	}
	defer rows.Close()

	var out []game.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, errors.Wrap(rows.Err(), "iterate sessions")
}

// LoadSession returns one session by id, ErrNotFound when absent.
func (s *Store) LoadSession(ctx context.Context, id string) (game.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, config, roster, state, active_writer, poem, created_at, updated_at
    FROM sessions WHERE id = ?`, id)
	snap, err := scanSnapshot(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Snapshot{}, ErrNotFound
	}
	return snap, err
}

// DeleteSession removes a session row. Retention is the caller's policy.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	return errors.Wrap(err, "delete session")
}

func scanSnapshot(scan func(...any) error) (game.Snapshot, error) {
	var (
		snap                 game.Snapshot
		config, roster, poem string
		state                string
		createdAt, updatedAt string
	)
	if err := scan(&snap.ID, &config, &roster, &state, &snap.ActiveWriter, &poem, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return game.Snapshot{}, err
		}
		return game.Snapshot{}, errors.Wrap(err, "scan session")
	}
	if err := json.Unmarshal([]byte(config), &snap.Config); err != nil {
		return game.Snapshot{}, errors.Wrap(err, "unmarshal config")
	}
	if err := json.Unmarshal([]byte(roster), &snap.Roster); err != nil {
		return game.Snapshot{}, errors.Wrap(err, "unmarshal roster")
	}
	if err := json.Unmarshal([]byte(poem), &snap.Contributions); err != nil {
		return game.Snapshot{}, errors.Wrap(err, "unmarshal poem")
	}
	snap.State = game.State(state)

	var err error
	if snap.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return game.Snapshot{}, errors.Wrap(err, "parse created_at")
	}
	if snap.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return game.Snapshot{}, errors.Wrap(err, "parse updated_at")
	}
	return snap, nil
}

var _ storage.Store = (*Store)(nil)

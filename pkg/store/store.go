// Package store provides SQLite-backed persistence for game snapshots.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/haakonros/lappeleken/pkg/game"
)

// ErrNotFound is returned when no save matches the requested id.
var ErrNotFound = errors.New("save not found")

// SaveInfo describes one stored snapshot without its payload.
type SaveInfo struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Name      string    `json:"name"`
	SavedAt   time.Time `json:"saved_at"`
}

// Store wraps a SQLite database holding saved games.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at dbPath, creating parent directories
// as needed.
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "lappeleken", "saves.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS saves (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			name       TEXT NOT NULL,
			saved_at   INTEGER NOT NULL,
			snapshot   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_saves_session ON saves(session_id, saved_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save persists a snapshot and returns the id of the stored save.
func (s *Store) Save(snap game.Snapshot) (uuid.UUID, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	id := uuid.New()
	_, err = s.db.Exec(
		`INSERT INTO saves (id, session_id, name, saved_at, snapshot) VALUES (?, ?, ?, ?, ?)`,
		id.String(), snap.SessionID.String(), snap.Name, snap.SavedAt.UnixMilli(), string(payload),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert save: %w", err)
	}
	return id, nil
}

// Load returns one snapshot by save id.
func (s *Store) Load(id uuid.UUID) (game.Snapshot, error) {
	var payload string
	err := s.db.QueryRow(`SELECT snapshot FROM saves WHERE id = ?`, id.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return game.Snapshot{}, fmt.Errorf("failed to query save: %w", err)
	}

	var snap game.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return game.Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

// ListSaves returns save metadata newest first, optionally filtered by
// session. A nil session id lists everything.
func (s *Store) ListSaves(sessionID uuid.UUID) ([]SaveInfo, error) {
	query := `SELECT id, session_id, name, saved_at FROM saves ORDER BY saved_at DESC`
	args := []interface{}{}
	if sessionID != uuid.Nil {
		query = `SELECT id, session_id, name, saved_at FROM saves WHERE session_id = ? ORDER BY saved_at DESC`
		args = append(args, sessionID.String())
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query saves: %w", err)
	}
	defer rows.Close()

	var out []SaveInfo
	for rows.Next() {
		var info SaveInfo
		var id, session string
		var savedAt int64
		if err := rows.Scan(&id, &session, &info.Name, &savedAt); err != nil {
			return nil, fmt.Errorf("failed to scan save: %w", err)
		}
		info.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("corrupt save id %q: %w", id, err)
		}
		info.SessionID, err = uuid.Parse(session)
		if err != nil {
			return nil, fmt.Errorf("corrupt session id %q: %w", session, err)
		}
		info.SavedAt = time.UnixMilli(savedAt)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete removes one save.
func (s *Store) Delete(id uuid.UUID) error {
	res, err := s.db.Exec(`DELETE FROM saves WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete save: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Prune keeps the newest keep saves per session and deletes the rest.
// It returns the number of deleted saves.
func (s *Store) Prune(keep int) (int, error) {
	if keep <= 0 {
		return 0, fmt.Errorf("keep must be positive, got %d", keep)
	}
	res, err := s.db.Exec(`
		DELETE FROM saves WHERE id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY session_id ORDER BY saved_at DESC
				) AS rn FROM saves
			) WHERE rn <= ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune saves: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Package savedb stores party state and DM notes in sqlite.
package savedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"brainlink.ai/internal/mathx"
	"brainlink.ai/internal/party"
)

var ErrNoSave = errors.New("no save recorded")

// Snapshot is everything a save slot holds.
type Snapshot struct {
	SavedAt time.Time
	Actors  []party.ActorState
	Notes   map[string]string
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS actors (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			hp INTEGER NOT NULL,
			inventory_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS dm_notes (
			actor_id TEXT PRIMARY KEY,
			note TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save replaces the stored slot with snap in one transaction.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{`DELETE FROM actors`, `DELETE FROM dm_notes`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}

	insertActor, err := tx.PrepareContext(ctx, `INSERT INTO actors(id,seq,x,y,z,hp,inventory_json) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insertActor.Close()
	for i, a := range snap.Actors {
		inv := a.Inventory
		if inv == nil {
			inv = []string{}
		}
		b, err := json.Marshal(inv)
		if err != nil {
			return err
		}
		if _, err := insertActor.ExecContext(ctx, a.ID, i, a.Position.X, a.Position.Y, a.Position.Z, a.HP, string(b)); err != nil {
			return fmt.Errorf("save actor %s: %w", a.ID, err)
		}
	}

	insertNote, err := tx.PrepareContext(ctx, `INSERT INTO dm_notes(actor_id,note) VALUES(?,?)`)
	if err != nil {
		return err
	}
	defer insertNote.Close()
	for id, note := range snap.Notes {
		if id == "" {
			continue
		}
		if _, err := insertNote.ExecContext(ctx, id, note); err != nil {
			return fmt.Errorf("save note %s: %w", id, err)
		}
	}

	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES('saved_at',?)`, savedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return tx.Commit()
}

// Load returns the stored slot, or ErrNoSave if Save never ran.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	var savedAt string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key='saved_at'`).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, ErrNoSave
	}
	if err != nil {
		return snap, err
	}
	if snap.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
		return snap, fmt.Errorf("saved_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id,x,y,z,hp,inventory_json FROM actors ORDER BY seq`)
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			a   party.ActorState
			pos mathx.Vec3
			inv string
		)
		if err := rows.Scan(&a.ID, &pos.X, &pos.Y, &pos.Z, &a.HP, &inv); err != nil {
			return snap, err
		}
		a.Position = pos
		if err := json.Unmarshal([]byte(inv), &a.Inventory); err != nil {
			return snap, fmt.Errorf("actor %s inventory: %w", a.ID, err)
		}
		snap.Actors = append(snap.Actors, a)
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	noteRows, err := s.db.QueryContext(ctx, `SELECT actor_id,note FROM dm_notes`)
	if err != nil {
		return snap, err
	}
	defer noteRows.Close()
	snap.Notes = map[string]string{}
	for noteRows.Next() {
		var id, note string
		if err := noteRows.Scan(&id, &note); err != nil {
			return snap, err
		}
		snap.Notes[id] = note
	}
	return snap, noteRows.Err()
}

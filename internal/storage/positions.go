// Package storage persists state that must survive a restart: open
// positions in a sqlite-backed table (following the teacher's store
// package's table-per-concern layout) and report artifacts on disk.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/axiomtrader/assistant/internal/apperr"
	"github.com/axiomtrader/assistant/internal/domain"
)

// PositionStore persists domain.Position rows, keyed by position ID, the
// way the teacher's TacticStore persists one row per tactic.
type PositionStore struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and ensures
// the positions table exists. path may be ":memory:" for tests.
func Open(path string) (*PositionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperr.Wrap(apperr.ConfigurationError, "open sqlite at %s: %v", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: serialize writers, matches a single-process assistant

	s := &PositionStore{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.ConfigurationError, "init schema: %v", err)
	}
	return s, nil
}

func (s *PositionStore) Close() error { return s.db.Close() }

func (s *PositionStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			asset_id TEXT NOT NULL,
			asset_class TEXT NOT NULL,
			side TEXT NOT NULL,
			closed BOOLEAN NOT NULL DEFAULT 0,
			payload TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_positions_asset ON positions(asset_id, side)`)
	return err
}

// Upsert writes the current state of pos, replacing any prior row with the
// same ID. cmd/assistant calls it for every tracked position after each
// pipeline tick, so a restart can rebuild in-memory state from the last
// tick's snapshot.
func (s *PositionStore) Upsert(pos domain.Position) error {
	payload, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("marshal position %s: %w", pos.ID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO positions (id, asset_id, asset_class, side, closed, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			closed = excluded.closed,
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP
	`, pos.ID, pos.Asset.ID, string(pos.Asset.Class), string(pos.Side), pos.Closed, string(payload))
	return err
}

// LoadOpen returns every position not yet closed, for rebuilding the
// Tracker's in-memory state on startup.
func (s *PositionStore) LoadOpen() ([]domain.Position, error) {
	rows, err := s.db.Query(`SELECT payload FROM positions WHERE closed = 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var pos domain.Position
		if err := json.Unmarshal([]byte(payload), &pos); err != nil {
			return nil, fmt.Errorf("unmarshal stored position: %w", err)
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// Prune deletes closed positions older than cutoff, keeping the table from
// growing unbounded over a long-running process.
func (s *PositionStore) Prune(cutoff time.Time) (int64, error) {
	// Same text layout as sqlite's CURRENT_TIMESTAMP, so the string compare orders by time.
	res, err := s.db.Exec(`DELETE FROM positions WHERE closed = 1 AND updated_at < ?`, cutoff.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

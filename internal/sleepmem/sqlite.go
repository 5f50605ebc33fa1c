package sleepmem

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

const (
	sleepMemoryRowID = 1

	schemaSleepMemory = `
CREATE TABLE IF NOT EXISTS sleep_memory (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    backoff INTEGER NOT NULL,
    backoff_times INTEGER NOT NULL
);
`

	upsertSlotsSQL = `
		INSERT INTO sleep_memory (id, backoff, backoff_times)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			backoff=excluded.backoff,
			backoff_times=excluded.backoff_times
	`

	selectSlotsSQL = `SELECT backoff, backoff_times FROM sleep_memory WHERE id=?`
)

// OpenSQLite opens/creates the SQLite file at path and ensures the
// sleep_memory table exists.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// One writer, one wake cycle at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA busy_timeout=5000: %w", err)
	}
	if _, err := db.Exec(schemaSleepMemory); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sleep_memory schema: %w", err)
	}
	return db, nil
}

// SQLiteStore keeps the backoff slots in a single-row table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load returns the stored slots, or zeroed slots when no row exists yet.
func (s *SQLiteStore) Load(ctx context.Context) (Slots, error) {
	var out Slots
	row := s.db.QueryRowContext(ctx, selectSlotsSQL, sleepMemoryRowID)
	if err := row.Scan(&out[SlotBackoff], &out[SlotBackoffTimes]); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Slots{}, nil
		}
		return Slots{}, err
	}
	return out, nil
}

// Save upserts the single sleep_memory row.
func (s *SQLiteStore) Save(ctx context.Context, slots Slots) error {
	_, err := s.db.ExecContext(ctx, upsertSlotsSQL,
		sleepMemoryRowID,
		slots[SlotBackoff],
		slots[SlotBackoffTimes],
	)
	return err
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

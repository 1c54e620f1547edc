package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"Sherpa/pkg/types"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const (
	ActionAttached = "attached"
	ActionDetached = "detached"
)

const (
	// DefaultLimit is used when a query passes a non-positive limit
	DefaultLimit = 100
	// MaxLimit caps what the HTTP and MCP surfaces ask for in one read
	MaxLimit = 500
)

// Transition is one attach or detach of a device
type Transition struct {
	ID        string `json:"id"`
	DeviceID  string `json:"deviceId"`
	Name      string `json:"name"`
	Platform  string `json:"platform"`
	Kind      string `json:"kind"`
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"` // unix ms
}

// Store persists device transitions in SQLite
type Store struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS device_transitions (
    id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    platform TEXT NOT NULL,
    kind TEXT NOT NULL,
    action TEXT NOT NULL,
    timestamp INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transitions_time ON device_transitions(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_transitions_device ON device_transitions(device_id, timestamp DESC);
`

// Open opens (or creates) history.db under dataDir
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath, now: time.Now}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.dbPath
}

// Diff returns the transitions that turn prev into next, ordered by device key.
// IDs and timestamps are left empty.
func Diff(prev, next types.ConnectedDevicesSnapshot) []Transition {
	before := prev.Refs()
	after := next.Refs()

	var out []Transition
	for key, ref := range after {
		if _, ok := before[key]; !ok {
			out = append(out, transitionFor(ref, ActionAttached))
		}
	}
	for key, ref := range before {
		if _, ok := after[key]; !ok {
			out = append(out, transitionFor(ref, ActionDetached))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Action != out[j].Action {
			return out[i].Action < out[j].Action
		}
		return refKey(out[i]) < refKey(out[j])
	})
	return out
}

func transitionFor(ref types.DeviceRef, action string) Transition {
	return Transition{
		DeviceID: ref.ID,
		Name:     ref.Name,
		Platform: ref.Platform,
		Kind:     ref.Kind,
		Action:   action,
	}
}

func refKey(t Transition) string {
	return types.DeviceRef{ID: t.DeviceID, Platform: t.Platform, Kind: t.Kind}.Key()
}

// Record stores every transition between prev and next in one transaction
func (s *Store) Record(ctx context.Context, prev, next types.ConnectedDevicesSnapshot) ([]Transition, error) {
	transitions := Diff(prev, next)
	if len(transitions) == 0 {
		return nil, nil
	}

	ts := s.now().UnixMilli()
	for i := range transitions {
		transitions[i].ID = uuid.New().String()
		transitions[i].Timestamp = ts
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO device_transitions (id, device_id, name, platform, kind, action, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range transitions {
		if _, err := stmt.ExecContext(ctx, t.ID, t.DeviceID, t.Name, t.Platform, t.Kind, t.Action, t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to insert transition: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return transitions, nil
}

// Recent returns the newest transitions first
func (s *Store) Recent(ctx context.Context, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return s.query(ctx, `
		SELECT id, device_id, name, platform, kind, action, timestamp
		FROM device_transitions
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?`, limit)
}

// ForDevice returns the newest transitions of one device first
func (s *Store) ForDevice(ctx context.Context, deviceID string, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return s.query(ctx, `
		SELECT id, device_id, name, platform, kind, action, timestamp
		FROM device_transitions
		WHERE device_id = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?`, deviceID, limit)
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	result := []Transition{}
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.ID, &t.DeviceID, &t.Name, &t.Platform, &t.Kind, &t.Action, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

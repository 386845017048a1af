package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ab-optimizer/ab-optimizer/internal/variation"
)

var ErrNotFound = errors.New("not found")

// SQLiteStore holds assignments, the transport response cache, and the dev
// server's variation and event tables in one embedded database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS assignments (
    key TEXT PRIMARY KEY,
    record TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assignments_expires ON assignments(expires_at);

CREATE TABLE IF NOT EXISTS response_cache (
    cache_key TEXT PRIMARY KEY,
    payload BLOB NOT NULL,
    fetched_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS variations (
    id TEXT PRIMARY KEY,
    website_id TEXT NOT NULL,
    name TEXT NOT NULL,
    url TEXT,
    traffic_allocation REAL NOT NULL DEFAULT 0,
    changes TEXT NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_variations_website ON variations(website_id);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    website_id TEXT,
    experiment_id TEXT,
    variation_id TEXT,
    event_type TEXT NOT NULL,
    url TEXT,
    referrer TEXT,
    user_agent TEXT,
    utm TEXT,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_events_website ON events(website_id);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: slog.Default()}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SetLogger replaces the store's logger.
func (s *SQLiteStore) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// GetAssignment returns the record under key. Expired rows are treated as
// absent and deleted opportunistically; unreadable rows are a logged cache
// miss, never a reason to reset the store.
func (s *SQLiteStore) GetAssignment(ctx context.Context, key string) (*AssignmentRecord, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM assignments WHERE key = ?`, key,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read assignment: %w", err)
	}

	var rec AssignmentRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		s.logger.Warn("malformed assignment record ignored", "key", key, "error", err)
		return nil, nil
	}

	if rec.Expired(time.Now()) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM assignments WHERE key = ?`, key)
		return nil, nil
	}
	return &rec, nil
}

func (s *SQLiteStore) PutAssignment(ctx context.Context, key string, rec AssignmentRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal assignment: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assignments (key, record, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET record = excluded.record, expires_at = excluded.expires_at`,
		key, string(raw), rec.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write assignment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearPrefix(ctx context.Context, prefix, keepKey string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM assignments WHERE key LIKE ? || '%' AND key != ?`,
		prefix, keepKey,
	)
	if err != nil {
		return fmt.Errorf("failed to clear assignment prefix: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM assignments`); err != nil {
		return fmt.Errorf("failed to clear assignments: %w", err)
	}
	return nil
}

// ListAssignments returns all live (non-expired) assignment keys and
// records, for the CLI.
func (s *SQLiteStore) ListAssignments(ctx context.Context) (map[string]AssignmentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, record FROM assignments WHERE expires_at > ? ORDER BY key`,
		time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	out := map[string]AssignmentRecord{}
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		var rec AssignmentRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.logger.Warn("malformed assignment record skipped", "key", key, "error", err)
			continue
		}
		out[key] = rec
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetCachedPayload(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM response_cache WHERE cache_key = ?`, key,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached payload: %w", err)
	}
	return payload, nil
}

func (s *SQLiteStore) PutCachedPayload(ctx context.Context, key string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO response_cache (cache_key, payload, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		key, payload, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache payload: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveVariation(ctx context.Context, v *variation.Variation) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	changes, err := json.Marshal(v.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO variations (id, website_id, name, url, traffic_allocation, changes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, NormalizeWebsiteID(v.WebsiteID), v.Name, v.URL, v.TrafficAllocation,
		string(changes), v.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert variation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateVariation(ctx context.Context, v *variation.Variation) error {
	changes, err := json.Marshal(v.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE variations SET name = ?, url = ?, traffic_allocation = ?, changes = ? WHERE id = ?`,
		v.Name, v.URL, v.TrafficAllocation, string(changes), v.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update variation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update variation: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetVariation(ctx context.Context, id string) (*variation.Variation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, website_id, name, url, traffic_allocation, changes, created_at
		 FROM variations WHERE id = ?`, id,
	)
	return scanVariation(row)
}

func (s *SQLiteStore) ListVariations(ctx context.Context, websiteID string) ([]variation.Variation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, website_id, name, url, traffic_allocation, changes, created_at
		 FROM variations WHERE website_id = ? ORDER BY created_at DESC`,
		NormalizeWebsiteID(websiteID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list variations: %w", err)
	}
	defer rows.Close()

	var out []variation.Variation
	for rows.Next() {
		v, err := scanVariation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVariation(row rowScanner) (*variation.Variation, error) {
	var (
		v          variation.Variation
		url        sql.NullString
		changesRaw string
		createdAt  int64
	)
	err := row.Scan(&v.ID, &v.WebsiteID, &v.Name, &url, &v.TrafficAllocation, &changesRaw, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan variation: %w", err)
	}

	v.URL = url.String
	v.CreatedAt = time.Unix(createdAt, 0).UTC()
	if err := json.Unmarshal([]byte(changesRaw), &v.Changes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
	}
	return &v, nil
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, ev *TrackedEvent) error {
	utm, err := json.Marshal(ev.UTM)
	if err != nil {
		return fmt.Errorf("failed to marshal utm fields: %w", err)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (website_id, experiment_id, variation_id, event_type, url, referrer, user_agent, utm, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		NormalizeWebsiteID(ev.WebsiteID), ev.ExperimentID, ev.VariationID, ev.EventType,
		ev.URL, ev.Referrer, ev.UserAgent, string(utm), ev.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	ev.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, websiteID string) ([]TrackedEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, experiment_id, variation_id, event_type, url, referrer, user_agent, utm, created_at
		 FROM events WHERE website_id = ? ORDER BY id`,
		NormalizeWebsiteID(websiteID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []TrackedEvent
	for rows.Next() {
		var (
			ev        TrackedEvent
			utm       string
			createdAt int64
		)
		err := rows.Scan(&ev.ID, &ev.ExperimentID, &ev.VariationID, &ev.EventType,
			&ev.URL, &ev.Referrer, &ev.UserAgent, &utm, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.CreatedAt = time.Unix(createdAt, 0).UTC()
		if err := json.Unmarshal([]byte(utm), &ev.UTM); err != nil {
			s.logger.Warn("malformed utm fields skipped", "event", ev.ID, "error", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

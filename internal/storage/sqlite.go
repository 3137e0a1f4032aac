package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS services (
    id            TEXT    PRIMARY KEY,
    owner_id      INTEGER NOT NULL,
    name          TEXT    NOT NULL,
    endpoint      TEXT    NOT NULL,
    health        TEXT    NOT NULL DEFAULT 'unknown' CHECK(health IN ('unknown', 'up', 'down')),
    is_down       INTEGER NOT NULL DEFAULT 0,
    success_count INTEGER NOT NULL DEFAULT 0,
    failure_count INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_services_owner ON services(owner_id);
CREATE INDEX IF NOT EXISTS idx_services_name ON services(name);

CREATE TABLE IF NOT EXISTS banned_users (
    user_id   INTEGER PRIMARY KEY,
    banned_at TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS checks (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    service_id  TEXT    NOT NULL REFERENCES services(id) ON DELETE CASCADE,
    status      TEXT    NOT NULL CHECK(status IN ('up', 'down')),
    attempts    INTEGER NOT NULL,
    response_ms INTEGER NOT NULL,
    error       TEXT    NOT NULL DEFAULT '',
    checked_at  TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checks_service_checked ON checks(service_id, checked_at DESC);
`

// timeFormat has a fixed-width fraction so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when an operation targets a record that does not exist.
var ErrNotFound = errors.New("not found")

// Health is the tracked state of a service.
type Health string

const (
	HealthUnknown Health = "unknown"
	HealthUp      Health = "up"
	HealthDown    Health = "down"
)

// Service is a monitored endpoint.
type Service struct {
	ID           string    `json:"id"`
	Owner        int64     `json:"owner"`
	Name         string    `json:"name"`
	Endpoint     string    `json:"endpoint"`
	Health       Health    `json:"health"`
	IsDown       bool      `json:"is_down"`
	SuccessCount int64     `json:"success_count"`
	FailureCount int64     `json:"failure_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Filter is an equality predicate. Zero-valued fields match anything.
type Filter struct {
	ID    string
	Owner int64
	Name  string
}

// Patch is the state written back by the monitor after a classification.
// Counters are increments, not absolute values.
type Patch struct {
	Health       Health
	SuccessDelta int64
	FailureDelta int64
}

// DB wraps a SQLite database.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}
	// One connection serialises the monitor and the command handlers, and
	// keeps ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping verifies the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Insert stores a new service. ID, Health, IsDown, counters and CreatedAt
// are assigned here; the caller's values for them are overwritten.
func (d *DB) Insert(ctx context.Context, s *Service) error {
	s.ID = uuid.NewString()
	s.Health = HealthUnknown
	s.IsDown = false
	s.SuccessCount = 0
	s.FailureCount = 0
	s.CreatedAt = d.now().UTC()

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO services (id, owner_id, name, endpoint, health, is_down, success_count, failure_count, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, 0, 0, ?)`,
		s.ID,
		s.Owner,
		s.Name,
		s.Endpoint,
		string(s.Health),
		s.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting service %q: %w", s.Name, err)
	}
	return nil
}

// Find returns every service matching f in insertion order.
func (d *DB) Find(ctx context.Context, f Filter) ([]Service, error) {
	where, args := f.clause()
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, owner_id, name, endpoint, health, is_down, success_count, failure_count, created_at
		 FROM services`+where+` ORDER BY rowid`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning service row: %w", err)
		}
		services = append(services, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating service rows: %w", err)
	}
	return services, nil
}

// UpdateOne applies p to the service with the given id. Health and is_down
// are written together so they can never disagree.
func (d *DB) UpdateOne(ctx context.Context, id string, p Patch) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE services
		 SET health = ?, is_down = ?, success_count = success_count + ?, failure_count = failure_count + ?
		 WHERE id = ?`,
		string(p.Health),
		boolToInt(p.Health == HealthDown),
		p.SuccessDelta,
		p.FailureDelta,
		id,
	)
	if err != nil {
		return fmt.Errorf("updating service %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating service %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("updating service %q: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteOne removes at most one service matching f and reports how many
// rows went away.
func (d *DB) DeleteOne(ctx context.Context, f Filter) (int64, error) {
	where, args := f.clause()
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM services WHERE id = (SELECT id FROM services`+where+` ORDER BY rowid LIMIT 1)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting service: %w", err)
	}
	return res.RowsAffected()
}

// DeleteMany removes every service matching f.
func (d *DB) DeleteMany(ctx context.Context, f Filter) (int64, error) {
	where, args := f.clause()
	res, err := d.db.ExecContext(ctx, `DELETE FROM services`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting services: %w", err)
	}
	return res.RowsAffected()
}

func (f Filter) clause() (string, []any) {
	var conds []string
	var args []any
	if f.ID != "" {
		conds = append(conds, "id = ?")
		args = append(args, f.ID)
	}
	if f.Owner != 0 {
		conds = append(conds, "owner_id = ?")
		args = append(args, f.Owner)
	}
	if f.Name != "" {
		conds = append(conds, "name = ?")
		args = append(args, f.Name)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanService(row scanner) (*Service, error) {
	var s Service
	var health, createdAt string
	var isDown int64
	err := row.Scan(&s.ID, &s.Owner, &s.Name, &s.Endpoint, &health, &isDown, &s.SuccessCount, &s.FailureCount, &createdAt)
	if err != nil {
		return nil, err
	}
	s.Health = Health(health)
	s.IsDown = isDown != 0
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	s.CreatedAt = t
	return &s, nil
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		// Fallback to RFC3339 without sub-second precision.
		return time.Parse(time.RFC3339, v)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

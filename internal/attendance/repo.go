package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"attendguard/internal/session"
	"attendguard/internal/store"
)

var (
	ErrDeviceRequired = errors.New("device id required")
	ErrTokenRevoked   = errors.New("refresh token revoked or unknown")
)

// Filter narrows record listings. Zero values match everything.
type Filter struct {
	Date       string
	IdentityID string
	Limit      int
	Offset     int
}

// Store is the append-only attendance log, read back in insertion order.
type Store interface {
	Append(ctx context.Context, rec session.Record) error
	List(ctx context.Context, f Filter) ([]session.Record, error)
}

// DailyTotal is one identity's aggregate for a day.
type DailyTotal struct {
	IdentityID string  `json:"identity_id"`
	Name       string  `json:"name"`
	Department string  `json:"department"`
	Hours      float64 `json:"total_hours"`
	Logins     int     `json:"logins"`
	Logouts    int     `json:"logouts"`
}

// Totals sums successful records per identity, in order of first appearance.
func Totals(records []session.Record) []DailyTotal {
	var out []DailyTotal
	index := map[string]int{}
	for _, rec := range records {
		pos, ok := index[rec.IdentityID]
		if !ok {
			pos = len(out)
			index[rec.IdentityID] = pos
			out = append(out, DailyTotal{IdentityID: rec.IdentityID, Name: rec.Name, Department: rec.Department})
		}
		if !rec.Success {
			continue
		}
		out[pos].Hours += rec.HoursWorked
		switch rec.Action {
		case session.ActionLogin:
			out[pos].Logins++
		case session.ActionLogout:
			out[pos].Logouts++
		}
	}
	return out
}

// Repository persists attendance records, devices and refresh tokens in
// Postgres or SQLite.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

// Append writes one record.
func (r *Repository) Append(ctx context.Context, rec session.Record) error {
	_, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO attendance_records (id, day, occurred_at, employee_id, name, department, hours, success, action, cause)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), rec.ID, rec.Date, rec.Timestamp.UTC(), rec.IdentityID, rec.Name, rec.Department,
		rec.HoursWorked, rec.Success, string(rec.Action), string(rec.Trigger))
	if err != nil {
		return fmt.Errorf("append record %s: %w", rec.ID, err)
	}
	return nil
}

// List returns records matching f in insertion order.
func (r *Repository) List(ctx context.Context, f Filter) ([]session.Record, error) {
	query := `SELECT id, day, occurred_at, employee_id, name, department, hours, success, action, cause FROM attendance_records`
	var (
		clauses []string
		args    []any
	)
	if f.Date != "" {
		clauses = append(clauses, "day = ?")
		args = append(args, f.Date)
	}
	if f.IdentityID != "" {
		clauses = append(clauses, "employee_id = ?")
		args = append(args, f.IdentityID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY seq"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, max(f.Offset, 0))
	}

	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var res []session.Record
	for rows.Next() {
		var (
			rec     session.Record
			action  string
			trigger string
		)
		if err := rows.Scan(&rec.ID, &rec.Date, &rec.Timestamp, &rec.IdentityID, &rec.Name, &rec.Department,
			&rec.HoursWorked, &rec.Success, &action, &trigger); err != nil {
			return nil, err
		}
		rec.Action = session.Action(action)
		rec.Trigger = session.Trigger(trigger)
		res = append(res, rec)
	}
	return res, rows.Err()
}

// UpsertDevice ensures a device record exists.
func (r *Repository) UpsertDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return ErrDeviceRequired
	}
	_, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO devices (device_id)
		VALUES (?)
		ON CONFLICT (device_id) DO NOTHING
	`), deviceID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error {
	_, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO refresh_tokens (device_id, token, expires_at)
		VALUES (?, ?, ?)
	`), deviceID, token, expiresAt.UTC())
	return err
}

// RotateRefreshToken revokes token if it is live for deviceID. Returns
// ErrTokenRevoked when the token is unknown or already revoked.
func (r *Repository) RotateRefreshToken(ctx context.Context, deviceID, token string) error {
	res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token = ? AND device_id = ? AND revoked = FALSE
	`), token, deviceID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenRevoked
	}
	return nil
}

// DeviceExists reports whether a device was registered.
func (r *Repository) DeviceExists(ctx context.Context, deviceID string) (bool, error) {
	var id string
	err := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`SELECT device_id FROM devices WHERE device_id = ?`), deviceID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	recs []session.Record
	fail error
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// FailWith makes subsequent appends return err; nil restores normal behavior.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *MemoryStore) Append(_ context.Context, rec session.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]session.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []session.Record
	for _, rec := range m.recs {
		if f.Date != "" && rec.Date != f.Date {
			continue
		}
		if f.IdentityID != "" && rec.IdentityID != f.IdentityID {
			continue
		}
		out = append(out, rec)
	}
	if f.Limit > 0 {
		start := min(max(f.Offset, 0), len(out))
		end := min(start+f.Limit, len(out))
		out = out[start:end]
	}
	return out, nil
}


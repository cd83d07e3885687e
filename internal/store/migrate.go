package store

import (
	"context"
	"fmt"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS employees (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	designation TEXT NOT NULL DEFAULT '',
	department  TEXT NOT NULL DEFAULT '',
	pin         TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS employee_embeddings (
	employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
	sample      INTEGER NOT NULL,
	vector      TEXT NOT NULL,
	PRIMARY KEY (employee_id, sample)
);

CREATE TABLE IF NOT EXISTS attendance_records (
	seq          BIGSERIAL PRIMARY KEY,
	id           TEXT UNIQUE NOT NULL,
	day          TEXT NOT NULL,
	occurred_at  TIMESTAMPTZ NOT NULL,
	employee_id  TEXT NOT NULL,
	name         TEXT NOT NULL,
	department   TEXT NOT NULL DEFAULT '',
	hours        DOUBLE PRECISION NOT NULL DEFAULT 0,
	success      BOOLEAN NOT NULL,
	action       TEXT NOT NULL,
	cause        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_attendance_day ON attendance_records(day);
CREATE INDEX IF NOT EXISTS idx_attendance_employee ON attendance_records(employee_id);

CREATE TABLE IF NOT EXISTS devices (
	device_id  TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	device_id  TEXT NOT NULL,
	token      TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	revoked    BOOLEAN NOT NULL DEFAULT FALSE
);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS employees (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	designation TEXT NOT NULL DEFAULT '',
	department  TEXT NOT NULL DEFAULT '',
	pin         TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS employee_embeddings (
	employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
	sample      INTEGER NOT NULL,
	vector      TEXT NOT NULL,
	PRIMARY KEY (employee_id, sample)
);

CREATE TABLE IF NOT EXISTS attendance_records (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT UNIQUE NOT NULL,
	day          TEXT NOT NULL,
	occurred_at  DATETIME NOT NULL,
	employee_id  TEXT NOT NULL,
	name         TEXT NOT NULL,
	department   TEXT NOT NULL DEFAULT '',
	hours        REAL NOT NULL DEFAULT 0,
	success      BOOLEAN NOT NULL,
	action       TEXT NOT NULL,
	cause        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_attendance_day ON attendance_records(day);
CREATE INDEX IF NOT EXISTS idx_attendance_employee ON attendance_records(employee_id);

CREATE TABLE IF NOT EXISTS devices (
	device_id  TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	device_id  TEXT NOT NULL,
	token      TEXT NOT NULL,
	expires_at DATETIME NOT NULL,
	revoked    BOOLEAN NOT NULL DEFAULT FALSE
);
`

// Migrate creates the schema if it does not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if d.Driver == DriverPostgres {
		schema = postgresSchema
	}
	if _, err := d.Client.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate %s: %w", d.Driver, err)
	}
	return nil
}

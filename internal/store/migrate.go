package store

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		reg_no TEXT NOT NULL,
		password_hash TEXT,
		faceprint JSONB,
		role TEXT NOT NULL CHECK (role IN ('Admin', 'Faculty', 'Student')),
		is_valid BOOLEAN NOT NULL DEFAULT FALSE,
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		expected_graduation_year INT,
		proctor_id UUID REFERENCES users(id) ON DELETE SET NULL,
		session_id TEXT,
		otp_hash TEXT,
		otp_expires_at TIMESTAMPTZ,
		reset_hash TEXT,
		reset_expires_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (email)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_reg_no_key ON users (reg_no)`,
	`CREATE INDEX IF NOT EXISTS users_proctor_idx ON users (proctor_id)`,
	`CREATE INDEX IF NOT EXISTS users_reset_hash_idx ON users (reset_hash)`,

	`CREATE TABLE IF NOT EXISTS attendance (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		reg_no TEXT NOT NULL,
		date DATE NOT NULL,
		time TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('present', 'late', 'absent')),
		method TEXT NOT NULL DEFAULT 'manual',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS attendance_user_date_key ON attendance (user_id, date)`,
	`CREATE INDEX IF NOT EXISTS attendance_reg_no_idx ON attendance (reg_no)`,

	`CREATE TABLE IF NOT EXISTS leaves (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type TEXT NOT NULL CHECK (type IN ('sick', 'paid', 'unpaid')),
		from_date DATE NOT NULL,
		to_date DATE NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
		reviewed_by UUID REFERENCES users(id) ON DELETE SET NULL,
		reviewed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (from_date <= to_date)
	)`,
	`CREATE INDEX IF NOT EXISTS leaves_user_idx ON leaves (user_id)`,

	`CREATE TABLE IF NOT EXISTS schedules (
		id UUID PRIMARY KEY,
		semester TEXT NOT NULL,
		venue TEXT NOT NULL DEFAULT '',
		regulation TEXT NOT NULL,
		section INT NOT NULL,
		batch INT NOT NULL,
		department TEXT NOT NULL,
		year INT NOT NULL,
		created_by UUID REFERENCES users(id) ON DELETE SET NULL,
		slots JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS schedules_cohort_key ON schedules (semester, section, year, batch)`,

	`CREATE TABLE IF NOT EXISTS holidays (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		date DATE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS holidays_date_key ON holidays (date)`,

	`CREATE TABLE IF NOT EXISTS announcements (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		posted_by UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		target_roles JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS announcement_reads (
		announcement_id UUID NOT NULL REFERENCES announcements(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (announcement_id, user_id)
	)`,
}

// Migrate creates the schema if it does not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}

package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"attendly/internal/errs"
	"attendly/internal/model"
	"attendly/internal/store"
)

// PGRepository persists users in Postgres.
type PGRepository struct {
	db *sql.DB
	q  store.Querier
	// lock is set on transaction-bound repos; single-row reads then take a row lock.
	lock bool
}

// NewPGRepository creates a repo.
func NewPGRepository(db *sql.DB) *PGRepository {
	return &PGRepository{db: db, q: db}
}

const userColumns = `id, email, username, reg_no, COALESCE(password_hash, ''), faceprint, role, is_valid,
	email_verified, expected_graduation_year, proctor_id, COALESCE(session_id, ''), COALESCE(otp_hash, ''),
	otp_expires_at, COALESCE(reset_hash, ''), reset_expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u         model.User
		faceprint []byte
		role      string
		gradYear  sql.NullInt32
		proctorID sql.NullString
		otpExp    sql.NullTime
		resetExp  sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.RegNo, &u.PasswordHash, &faceprint, &role, &u.IsValid,
		&u.EmailVerified, &gradYear, &proctorID, &u.SessionID, &u.OTPHash,
		&otpExp, &u.ResetHash, &resetExp, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	if len(faceprint) > 0 {
		if err := json.Unmarshal(faceprint, &u.Faceprint); err != nil {
			return nil, fmt.Errorf("decode faceprint: %w", err)
		}
	}
	if gradYear.Valid {
		y := int(gradYear.Int32)
		u.ExpectedGraduationYear = &y
	}
	u.ProctorID = proctorID.String
	if otpExp.Valid {
		t := otpExp.Time
		u.OTPExpiresAt = &t
	}
	if resetExp.Valid {
		t := resetExp.Time
		u.ResetExpiresAt = &t
	}
	return &u, nil
}

func (r *PGRepository) forUpdate() string {
	if r.lock {
		return ` FOR UPDATE`
	}
	return ""
}

func (r *PGRepository) findOne(ctx context.Context, where string, args ...any) (*model.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` LIMIT 1`+r.forUpdate(), args...)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *PGRepository) findMany(ctx context.Context, query string, args ...any) ([]model.User, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r *PGRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.ErrUserNotFound
	}
	return r.findOne(ctx, `id = $1`, id)
}

func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, `email = $1`, email)
}

func (r *PGRepository) FindByRegNo(ctx context.Context, regNo string) (*model.User, error) {
	return r.findOne(ctx, `reg_no = $1`, regNo)
}

func (r *PGRepository) FindByEmailOrRegNo(ctx context.Context, email, regNo string) ([]model.User, error) {
	return r.findMany(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 OR reg_no = $2
		ORDER BY (email = $1) DESC`+r.forUpdate(), email, regNo)
}

func (r *PGRepository) FindByResetHash(ctx context.Context, hash string) (*model.User, error) {
	if hash == "" {
		return nil, errs.ErrUserNotFound
	}
	return r.findOne(ctx, `reset_hash = $1`, hash)
}

func (r *PGRepository) Insert(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	args, err := userArgs(u)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO users (id, email, username, reg_no, password_hash, faceprint, role, is_valid, email_verified,
			expected_graduation_year, proctor_id, session_id, otp_hash, otp_expires_at, reset_hash, reset_expires_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, args...)
	if store.IsUniqueViolation(err) {
		return errs.ErrUserExists
	}
	return err
}

func (r *PGRepository) Update(ctx context.Context, u *model.User) error {
	u.UpdatedAt = time.Now().UTC()
	args, err := userArgs(u)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE users SET email = $2, username = $3, reg_no = $4, password_hash = $5, faceprint = $6, role = $7,
			is_valid = $8, email_verified = $9, expected_graduation_year = $10, proctor_id = $11, session_id = $12,
			otp_hash = $13, otp_expires_at = $14, reset_hash = $15, reset_expires_at = $16, updated_at = $18
		WHERE id = $1
	`, args...)
	return updateResult(res, err)
}

// Patch writes only the columns set in p, leaving role and proctor links untouched.
func (r *PGRepository) Patch(ctx context.Context, id string, p Patch) error {
	if _, err := uuid.Parse(id); err != nil {
		return errs.ErrUserNotFound
	}
	var (
		sets []string
		args = []any{id}
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Username != nil {
		set("username", *p.Username)
	}
	if p.Email != nil {
		set("email", *p.Email)
	}
	if p.PasswordHash != nil {
		set("password_hash", nullable(*p.PasswordHash))
	}
	if p.Faceprint != nil {
		b, err := json.Marshal(p.Faceprint)
		if err != nil {
			return err
		}
		set("faceprint", string(b))
	}
	if p.IsValid != nil {
		set("is_valid", *p.IsValid)
	}
	if p.EmailVerified != nil {
		set("email_verified", *p.EmailVerified)
	}
	if p.SessionID != nil {
		set("session_id", nullable(*p.SessionID))
	}
	if p.OTP != nil {
		set("otp_hash", nullable(p.OTP.Hash))
		set("otp_expires_at", nullableTime(p.OTP.ExpiresAt))
	}
	if p.Reset != nil {
		set("reset_hash", nullable(p.Reset.Hash))
		set("reset_expires_at", nullableTime(p.Reset.ExpiresAt))
	}
	if len(sets) == 0 {
		return nil
	}
	set("updated_at", time.Now().UTC())

	res, err := r.q.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	return updateResult(res, err)
}

func updateResult(res sql.Result, err error) error {
	if err != nil {
		if store.IsUniqueViolation(err) {
			switch store.ConstraintName(err) {
			case "users_email_key":
				return errs.ErrEmailInUse
			case "users_reg_no_key":
				return errs.ErrRegNoInUse
			}
			return errs.ErrUserExists
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrUserNotFound
	}
	return nil
}

func userArgs(u *model.User) ([]any, error) {
	var faceprint any
	if len(u.Faceprint) > 0 {
		b, err := json.Marshal(u.Faceprint)
		if err != nil {
			return nil, err
		}
		faceprint = string(b)
	}
	var gradYear any
	if u.ExpectedGraduationYear != nil {
		gradYear = *u.ExpectedGraduationYear
	}
	return []any{
		u.ID, u.Email, u.Username, u.RegNo, nullable(u.PasswordHash), faceprint, string(u.Role), u.IsValid,
		u.EmailVerified, gradYear, nullable(u.ProctorID), nullable(u.SessionID), nullable(u.OTPHash),
		nullableTime(u.OTPExpiresAt), nullable(u.ResetHash), nullableTime(u.ResetExpiresAt), u.CreatedAt, u.UpdatedAt,
	}, nil
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errs.ErrUserNotFound
	}
	res, err := r.q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrUserNotFound
	}
	return nil
}

func (r *PGRepository) List(ctx context.Context) ([]model.User, error) {
	return r.findMany(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
}

func (r *PGRepository) ListStudentsOf(ctx context.Context, facultyID string) ([]model.User, error) {
	if _, err := uuid.Parse(facultyID); err != nil {
		return []model.User{}, nil
	}
	return r.findMany(ctx, `SELECT `+userColumns+` FROM users WHERE proctor_id = $1 AND role = 'Student' ORDER BY reg_no`, facultyID)
}

func (r *PGRepository) ListValidStudents(ctx context.Context) ([]model.User, error) {
	return r.findMany(ctx, `SELECT `+userColumns+` FROM users WHERE role = 'Student' AND is_valid ORDER BY reg_no`)
}

func (r *PGRepository) ClaimStudent(ctx context.Context, studentID, facultyID string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users SET proctor_id = $2, updated_at = NOW()
		WHERE id = $1 AND role = 'Student' AND proctor_id IS NULL
	`, studentID, facultyID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *PGRepository) ClearStudentsOf(ctx context.Context, facultyID string) (int64, error) {
	res, err := r.q.ExecContext(ctx, `UPDATE users SET proctor_id = NULL, updated_at = NOW() WHERE proctor_id = $1`, facultyID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PGRepository) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users SET
			otp_hash = CASE WHEN otp_expires_at < $1 THEN NULL ELSE otp_hash END,
			otp_expires_at = CASE WHEN otp_expires_at < $1 THEN NULL ELSE otp_expires_at END,
			reset_hash = CASE WHEN reset_expires_at < $1 THEN NULL ELSE reset_hash END,
			reset_expires_at = CASE WHEN reset_expires_at < $1 THEN NULL ELSE reset_expires_at END
		WHERE otp_expires_at < $1 OR reset_expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PGRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return store.InTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&PGRepository{q: tx, lock: true})
	})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

package users

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"attendly/internal/model"
)

// Repository persists users. Finders return errs.ErrUserNotFound when nothing matches;
// writes return errs.ErrUserExists (or a field-specific conflict) on unique violations.
type Repository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByRegNo(ctx context.Context, regNo string) (*model.User, error)
	// FindByEmailOrRegNo returns every user matching either key, the email match first.
	FindByEmailOrRegNo(ctx context.Context, email, regNo string) ([]model.User, error)
	FindByResetHash(ctx context.Context, hash string) (*model.User, error)

	Insert(ctx context.Context, u *model.User) error
	Update(ctx context.Context, u *model.User) error
	Patch(ctx context.Context, id string, p Patch) error
	Delete(ctx context.Context, id string) error

	List(ctx context.Context) ([]model.User, error)
	ListStudentsOf(ctx context.Context, facultyID string) ([]model.User, error)
	ListValidStudents(ctx context.Context) ([]model.User, error)

	// ClaimStudent sets the proctor of an unassigned student. It reports false when
	// the student was already assigned.
	ClaimStudent(ctx context.Context, studentID, facultyID string) (bool, error)
	// ClearStudentsOf unassigns every student proctored by facultyID.
	ClearStudentsOf(ctx context.Context, facultyID string) (int64, error)
	PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error)

	// InTx runs fn against a repository bound to a single transaction.
	InTx(ctx context.Context, fn func(Repository) error) error
}

// Patch lists the columns a targeted write sets. Nil fields are left as stored.
type Patch struct {
	Username      *string
	Email         *string
	PasswordHash  *string
	Faceprint     []float64
	IsValid       *bool
	EmailVerified *bool
	SessionID     *string
	OTP           *Token
	Reset         *Token
}

// Token is a hashed one-time secret with its expiry. The zero value clears it.
type Token struct {
	Hash      string
	ExpiresAt *time.Time
}

// Optional distinguishes an absent JSON key from an explicit null or value.
type Optional struct {
	Set   bool
	Value string
}

func (o *Optional) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(b, []byte("null")) {
		o.Value = ""
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

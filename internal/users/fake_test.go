package users_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"attendly/internal/errs"
	"attendly/internal/model"
	"attendly/internal/users"
)

// memRepo is an in-memory users.Repository. InTx snapshots the table and restores it when fn fails.
type memRepo struct {
	mu    *sync.Mutex
	rows  map[string]model.User
	inTx  bool
	fails map[string]error
}

func newMemRepo() *memRepo {
	return &memRepo{mu: &sync.Mutex{}, rows: map[string]model.User{}, fails: map[string]error{}}
}

func (r *memRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *memRepo) seed(u model.User) *model.User {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = model.NormalizeEmail(u.Email)
	u.RegNo = model.NormalizeRegNo(u.RegNo)
	u.CreatedAt = time.Now()
	r.rows[u.ID] = u
	return &u
}

func (r *memRepo) get(id string) model.User {
	return r.rows[id]
}

func (r *memRepo) find(match func(model.User) bool) (*model.User, error) {
	defer r.lock()()
	for _, u := range r.rows {
		if match(u) {
			c := u
			return &c, nil
		}
	}
	return nil, errs.ErrUserNotFound
}

func (r *memRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.ID == id })
}

func (r *memRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.Email == email })
}

func (r *memRepo) FindByRegNo(_ context.Context, regNo string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.RegNo == regNo })
}

func (r *memRepo) FindByEmailOrRegNo(_ context.Context, email, regNo string) ([]model.User, error) {
	out := r.filter(func(u model.User) bool { return u.Email == email || u.RegNo == regNo })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Email == email && out[j].Email != email })
	return out, nil
}

func (r *memRepo) FindByResetHash(_ context.Context, hash string) (*model.User, error) {
	if hash == "" {
		return nil, errs.ErrUserNotFound
	}
	return r.find(func(u model.User) bool { return u.ResetHash == hash })
}

func (r *memRepo) conflict(u *model.User) error {
	for id, other := range r.rows {
		if id == u.ID {
			continue
		}
		if other.Email == u.Email {
			return errs.ErrEmailInUse
		}
		if other.RegNo == u.RegNo {
			return errs.ErrRegNoInUse
		}
	}
	return nil
}

func (r *memRepo) Insert(_ context.Context, u *model.User) error {
	defer r.lock()()
	if err := r.fails["insert"]; err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if r.conflict(u) != nil {
		return errs.ErrUserExists
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	r.rows[u.ID] = *u
	return nil
}

func (r *memRepo) Update(_ context.Context, u *model.User) error {
	defer r.lock()()
	if _, ok := r.rows[u.ID]; !ok {
		return errs.ErrUserNotFound
	}
	if err := r.conflict(u); err != nil {
		return err
	}
	u.UpdatedAt = time.Now()
	r.rows[u.ID] = *u
	return nil
}

func (r *memRepo) Patch(_ context.Context, id string, p users.Patch) error {
	defer r.lock()()
	u, ok := r.rows[id]
	if !ok {
		return errs.ErrUserNotFound
	}
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
		if err := r.conflict(&u); err != nil {
			return err
		}
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.Faceprint != nil {
		u.Faceprint = p.Faceprint
	}
	if p.IsValid != nil {
		u.IsValid = *p.IsValid
	}
	if p.EmailVerified != nil {
		u.EmailVerified = *p.EmailVerified
	}
	if p.SessionID != nil {
		u.SessionID = *p.SessionID
	}
	if p.OTP != nil {
		u.OTPHash, u.OTPExpiresAt = p.OTP.Hash, p.OTP.ExpiresAt
	}
	if p.Reset != nil {
		u.ResetHash, u.ResetExpiresAt = p.Reset.Hash, p.Reset.ExpiresAt
	}
	u.UpdatedAt = time.Now()
	r.rows[id] = u
	return nil
}

// interleavingRepo runs a hook once, right after the next lookup by email or id returns.
// It stands in for a concurrent writer landing between a read and the write that follows.
type interleavingRepo struct {
	*memRepo
	after func()
}

func (r *interleavingRepo) fire() {
	if f := r.after; f != nil {
		r.after = nil
		f()
	}
}

func (r *interleavingRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := r.memRepo.FindByEmail(ctx, email)
	r.fire()
	return u, err
}

func (r *interleavingRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := r.memRepo.FindByID(ctx, id)
	r.fire()
	return u, err
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	defer r.lock()()
	if _, ok := r.rows[id]; !ok {
		return errs.ErrUserNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memRepo) filter(match func(model.User) bool) []model.User {
	defer r.lock()()
	out := []model.User{}
	for _, u := range r.rows {
		if match(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegNo < out[j].RegNo })
	return out
}

func (r *memRepo) List(context.Context) ([]model.User, error) {
	return r.filter(func(model.User) bool { return true }), nil
}

func (r *memRepo) ListStudentsOf(_ context.Context, facultyID string) ([]model.User, error) {
	return r.filter(func(u model.User) bool { return u.Role == model.RoleStudent && u.ProctorID == facultyID }), nil
}

func (r *memRepo) ListValidStudents(context.Context) ([]model.User, error) {
	return r.filter(func(u model.User) bool { return u.Role == model.RoleStudent && u.IsValid }), nil
}

func (r *memRepo) ClaimStudent(_ context.Context, studentID, facultyID string) (bool, error) {
	defer r.lock()()
	u, ok := r.rows[studentID]
	if !ok || u.Role != model.RoleStudent || u.ProctorID != "" {
		return false, nil
	}
	u.ProctorID = facultyID
	r.rows[studentID] = u
	return true, nil
}

func (r *memRepo) ClearStudentsOf(_ context.Context, facultyID string) (int64, error) {
	defer r.lock()()
	var n int64
	for id, u := range r.rows {
		if u.ProctorID == facultyID {
			u.ProctorID = ""
			r.rows[id] = u
			n++
		}
	}
	return n, nil
}

func (r *memRepo) PurgeExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	defer r.lock()()
	var n int64
	for id, u := range r.rows {
		touched := false
		if u.OTPExpiresAt != nil && u.OTPExpiresAt.Before(now) {
			u.OTPHash, u.OTPExpiresAt, touched = "", nil, true
		}
		if u.ResetExpiresAt != nil && u.ResetExpiresAt.Before(now) {
			u.ResetHash, u.ResetExpiresAt, touched = "", nil, true
		}
		if touched {
			r.rows[id] = u
			n++
		}
	}
	return n, nil
}

func (r *memRepo) InTx(_ context.Context, fn func(users.Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(map[string]model.User, len(r.rows))
	for id, u := range r.rows {
		snapshot[id] = u
	}
	tx := &memRepo{mu: r.mu, rows: r.rows, inTx: true, fails: r.fails}
	if err := fn(tx); err != nil {
		for id := range r.rows {
			delete(r.rows, id)
		}
		for id, u := range snapshot {
			r.rows[id] = u
		}
		return err
	}
	return nil
}

type sentMail struct {
	kind, to, body string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *recordingNotifier) SendOTP(_ context.Context, to, otp string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{kind: "otp", to: to, body: otp})
	return nil
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, to, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{kind: "reset", to: to, body: link})
	return nil
}

func (n *recordingNotifier) last(kind string) sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind {
			return n.sent[i]
		}
	}
	return sentMail{}
}

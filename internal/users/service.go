package users

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"attendly/internal/auth"
	"attendly/internal/errs"
	"attendly/internal/metrics"
	"attendly/internal/model"
)

// Notifier delivers account mail. Implementations must not block on the mail provider.
type Notifier interface {
	SendOTP(ctx context.Context, to, otp string) error
	SendPasswordReset(ctx context.Context, to, link string) error
}

// Options tunes token lifetimes and links.
type Options struct {
	OTPTTL    time.Duration
	ResetTTL  time.Duration
	ClientURL string
}

// Service implements account lifecycle and proctor assignment on top of a Repository.
type Service struct {
	repo   Repository
	signer auth.Signer
	hasher auth.Hasher
	notify Notifier
	log    *zap.Logger
	opts   Options
	now    func() time.Time
}

func NewService(repo Repository, signer auth.Signer, hasher auth.Hasher, notify Notifier, log *zap.Logger, opts Options) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = 10 * time.Minute
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = 10 * time.Minute
	}
	return &Service{repo: repo, signer: signer, hasher: hasher, notify: notify, log: log, opts: opts, now: time.Now}
}

// Session is returned by Register and Login.
type Session struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

type RegisterInput struct {
	RegNo    string `json:"regNo"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// Register activates an account pre-created by an administrator or proctor.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	regNo := model.NormalizeRegNo(in.RegNo)
	if regNo == "" || in.Password == "" {
		return nil, errs.ErrRequiredRegistration
	}
	u, err := s.repo.FindByRegNo(ctx, regNo)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrRegNoNotAuthorized
		}
		return nil, err
	}
	if u.HasPassword() {
		return nil, errs.ErrAlreadyRegistered
	}
	if len(in.Password) < auth.MinPasswordLength {
		return nil, errs.ErrPasswordTooShort
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash
	u.IsValid = true
	patch := Patch{PasswordHash: &u.PasswordHash, IsValid: ptr(true)}
	if name := strings.TrimSpace(in.Username); name != "" {
		u.Username = name
		patch.Username = &u.Username
	}
	otp, err := s.setOTP(u)
	if err != nil {
		return nil, err
	}
	patch.OTP = otpToken(u)
	tok, err := s.signer.Issue(u)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	u.SessionID = tok.ID
	patch.SessionID = &u.SessionID

	if err := s.repo.Patch(ctx, u.ID, patch); err != nil {
		return nil, err
	}
	s.sendOTP(ctx, u.Email, otp)

	if err := s.populate(ctx, s.repo, u, true); err != nil {
		return nil, err
	}
	return &Session{Token: tok.Value, User: u}, nil
}

// VerifyOTP marks the email verified when otp matches the live code.
func (s *Service) VerifyOTP(ctx context.Context, email, otp string) error {
	u, err := s.repo.FindByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if u.OTPHash == "" || u.OTPExpiresAt == nil || s.now().After(*u.OTPExpiresAt) {
		return errs.ErrInvalidOTP
	}
	if subtle.ConstantTimeCompare([]byte(u.OTPHash), []byte(hashToken(strings.TrimSpace(otp)))) != 1 {
		return errs.ErrInvalidOTP
	}
	return s.repo.Patch(ctx, u.ID, Patch{EmailVerified: ptr(true), OTP: &Token{}})
}

// ResendOTP replaces the pending code and mails the new one.
func (s *Service) ResendOTP(ctx context.Context, email string) error {
	u, err := s.repo.FindByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		return err
	}
	otp, err := s.setOTP(u)
	if err != nil {
		return err
	}
	if err := s.repo.Patch(ctx, u.ID, Patch{OTP: otpToken(u)}); err != nil {
		return err
	}
	s.sendOTP(ctx, u.Email, otp)
	return nil
}

type LoginInput struct {
	Email    string `json:"email"`
	RegNo    string `json:"regno"`
	Password string `json:"password"`
}

// Login checks credentials and starts a new session, replacing any previous one.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	email := model.NormalizeEmail(in.Email)
	regNo := model.NormalizeRegNo(in.RegNo)
	if (email == "" && regNo == "") || in.Password == "" {
		return nil, errs.ErrRequiredCredentials
	}

	var (
		u   *model.User
		err error
	)
	if email != "" {
		u, err = s.repo.FindByEmail(ctx, email)
	} else {
		u, err = s.repo.FindByRegNo(ctx, regNo)
	}
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			metrics.Logins.WithLabelValues("rejected").Inc()
			return nil, errs.ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Check(u.PasswordHash, in.Password) {
		metrics.Logins.WithLabelValues("rejected").Inc()
		return nil, errs.ErrInvalidCredentials
	}

	tok, err := s.signer.Issue(u)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	u.SessionID = tok.ID
	if err := s.repo.Patch(ctx, u.ID, Patch{SessionID: &u.SessionID}); err != nil {
		return nil, err
	}
	metrics.Logins.WithLabelValues("ok").Inc()

	if err := s.populate(ctx, s.repo, u, true); err != nil {
		return nil, err
	}
	return &Session{Token: tok.Value, User: u}, nil
}

// Logout ends the user's session so outstanding tokens stop validating.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.repo.Patch(ctx, userID, Patch{SessionID: ptr("")})
}

// ForgotPassword issues a reset token for a known email. Unknown emails succeed silently.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.repo.FindByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}
		return err
	}
	token := uuid.NewString()
	exp := s.now().Add(s.opts.ResetTTL)
	if err := s.repo.Patch(ctx, u.ID, Patch{Reset: &Token{Hash: hashToken(token), ExpiresAt: &exp}}); err != nil {
		return err
	}

	link := strings.TrimRight(s.opts.ClientURL, "/") + "/reset-password/" + token
	if err := s.notify.SendPasswordReset(ctx, u.Email, link); err != nil {
		s.log.Warn("queue reset mail failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	return nil
}

// ResetPassword consumes a reset token, sets the password and forces a fresh login.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if len(password) < auth.MinPasswordLength {
		return errs.ErrPasswordTooShort
	}
	u, err := s.repo.FindByResetHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrInvalidResetToken
		}
		return err
	}
	if u.ResetExpiresAt == nil || s.now().After(*u.ResetExpiresAt) {
		return errs.ErrInvalidResetToken
	}
	if s.hasher.Check(u.PasswordHash, password) {
		return errs.ErrSamePassword
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.Patch(ctx, u.ID, Patch{
		PasswordHash: &hash,
		IsValid:      ptr(true),
		Reset:        &Token{},
		SessionID:    ptr(""),
	})
}

// Me returns the user with proctor and, for Faculty, assigned students populated.
func (s *Service) Me(ctx context.Context, id string) (*model.User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.populate(ctx, s.repo, u, true); err != nil {
		return nil, err
	}
	return u, nil
}

// FindByID satisfies auth.UserLookup.
func (s *Service) FindByID(ctx context.Context, id string) (*model.User, error) {
	return s.repo.FindByID(ctx, id)
}

// HasFaceprint reports whether the user has enrolled a face embedding.
func (s *Service) HasFaceprint(ctx context.Context, id string) (bool, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	return u.HasFaceprint(), nil
}

// SetFaceprint stores the embedding returned by the face service.
func (s *Service) SetFaceprint(ctx context.Context, id string, embedding []float64) error {
	if len(embedding) == 0 {
		return errs.ErrFaceService
	}
	return s.repo.Patch(ctx, id, Patch{Faceprint: append([]float64(nil), embedding...)})
}

// PurgeExpired clears expired OTP and reset tokens.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.PurgeExpiredTokens(ctx, s.now())
}

func (s *Service) setOTP(u *model.User) (string, error) {
	otp, err := newOTP()
	if err != nil {
		return "", err
	}
	exp := s.now().Add(s.opts.OTPTTL)
	u.OTPHash = hashToken(otp)
	u.OTPExpiresAt = &exp
	return otp, nil
}

func (s *Service) sendOTP(ctx context.Context, to, otp string) {
	if err := s.notify.SendOTP(ctx, to, otp); err != nil {
		s.log.Warn("queue otp mail failed", zap.String("email", to), zap.Error(err))
	}
}

// populate fills the proctor reference and, when withStudents is set and u is Faculty,
// the derived assigned students.
func (s *Service) populate(ctx context.Context, repo Repository, u *model.User, withStudents bool) error {
	u.Proctor = nil
	if u.ProctorID != "" {
		p, err := repo.FindByID(ctx, u.ProctorID)
		switch {
		case err == nil:
			ref := p.Ref()
			u.Proctor = &ref
		case !errors.Is(err, errs.ErrNotFound):
			return err
		}
	}
	u.AssignedStudents = nil
	if withStudents && u.Role == model.RoleFaculty {
		students, err := repo.ListStudentsOf(ctx, u.ID)
		if err != nil {
			return err
		}
		u.AssignedStudents = make([]model.UserRef, 0, len(students))
		for i := range students {
			u.AssignedStudents = append(u.AssignedStudents, students[i].Ref())
		}
	}
	return nil
}

func (s *Service) populateAll(ctx context.Context, list []model.User) error {
	refs := map[string]*model.UserRef{}
	for i := range list {
		pid := list[i].ProctorID
		if pid == "" {
			continue
		}
		ref, seen := refs[pid]
		if !seen {
			p, err := s.repo.FindByID(ctx, pid)
			switch {
			case err == nil:
				r := p.Ref()
				ref = &r
			case !errors.Is(err, errs.ErrNotFound):
				return err
			}
			refs[pid] = ref
		}
		list[i].Proctor = ref
	}
	return nil
}

func otpToken(u *model.User) *Token {
	return &Token{Hash: u.OTPHash, ExpiresAt: u.OTPExpiresAt}
}

func ptr[T any](v T) *T { return &v }

func newOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

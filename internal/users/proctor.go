package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"attendly/internal/auth"
	"attendly/internal/errs"
	"attendly/internal/metrics"
	"attendly/internal/model"
)

// Skip reasons reported per row by AddUsers.
const (
	ReasonMissingFields     = "Missing required fields (email, username, regno, role)"
	ReasonFacultyOnlyAdds   = "Faculty can add only students"
	ReasonInvalidRole       = "Invalid role"
	ReasonAlreadyExists     = "User already exists (email or regNo)"
	ReasonAssignedToCaller  = "Student already assigned to this faculty"
	ReasonAssignedElsewhere = "Student already assigned to another faculty"
	ReasonInternal          = "Internal server error"
)

type NewUser struct {
	Email                  string `json:"email"`
	Username               string `json:"username"`
	RegNo                  string `json:"regNo"`
	Role                   string `json:"role"`
	ExpectedGraduationYear *int   `json:"expectedGraduationYear"`
}

type AddUsersInput struct {
	Users     []NewUser `json:"users"`
	ProctorID string    `json:"proctorId"`
}

type CreatedUser struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	RegNo      string     `json:"regNo"`
	Role       model.Role `json:"role"`
	Proctor    *string    `json:"proctor"`
	Reassigned bool       `json:"reassigned,omitempty"`
}

type SkippedUser struct {
	Email  string `json:"email"`
	RegNo  string `json:"regNo"`
	Reason string `json:"reason"`
}

type AddUsersResult struct {
	CreatedCount int           `json:"createdCount"`
	SkippedCount int           `json:"skippedCount"`
	CreatedUsers []CreatedUser `json:"createdUsers"`
	SkippedUsers []SkippedUser `json:"skippedUsers"`
}

type skip string

func (s skip) Error() string { return string(s) }

// AddUsers bulk-creates inactive accounts. Every row is either created (or claimed) or skipped
// with a reason; each row commits on its own.
func (s *Service) AddUsers(ctx context.Context, actor *model.User, in AddUsersInput) (*AddUsersResult, error) {
	if len(in.Users) == 0 {
		return nil, errs.ErrUsersRequired
	}

	proctorID := strings.TrimSpace(in.ProctorID)
	switch actor.Role {
	case model.RoleFaculty:
		if proctorID != "" {
			return nil, errs.ErrFacultyProctorID
		}
		proctorID = actor.ID
	case model.RoleAdmin:
		if proctorID != "" {
			p, err := s.repo.FindByID(ctx, proctorID)
			if err != nil {
				if errors.Is(err, errs.ErrNotFound) {
					return nil, errs.ErrInvalidProctorID
				}
				return nil, err
			}
			if p.Role != model.RoleFaculty {
				return nil, errs.ErrInvalidProctorID
			}
			proctorID = p.ID
		}
	default:
		return nil, errs.ErrForbiddenRole
	}

	res := &AddUsersResult{CreatedUsers: []CreatedUser{}, SkippedUsers: []SkippedUser{}}
	for _, row := range in.Users {
		email := model.NormalizeEmail(row.Email)
		regNo := model.NormalizeRegNo(row.RegNo)

		created, err := s.addOne(ctx, actor, proctorID, row, email, regNo)
		if err != nil {
			reason := ReasonInternal
			var sk skip
			switch {
			case errors.As(err, &sk):
				reason = string(sk)
			case errors.Is(err, errs.ErrConflict):
				reason = ReasonAlreadyExists
			default:
				s.log.Error("add user row failed", zap.String("email", email), zap.String("reg_no", regNo), zap.Error(err))
			}
			res.SkippedUsers = append(res.SkippedUsers, SkippedUser{Email: email, RegNo: regNo, Reason: reason})
			metrics.UsersAdded.WithLabelValues("skipped").Inc()
			continue
		}
		res.CreatedUsers = append(res.CreatedUsers, *created)
		if created.Reassigned {
			metrics.UsersAdded.WithLabelValues("claimed").Inc()
		} else {
			metrics.UsersAdded.WithLabelValues("created").Inc()
		}
	}
	res.CreatedCount = len(res.CreatedUsers)
	res.SkippedCount = len(res.SkippedUsers)
	return res, nil
}

func (s *Service) addOne(ctx context.Context, actor *model.User, proctorID string, row NewUser, email, regNo string) (*CreatedUser, error) {
	username := strings.TrimSpace(row.Username)
	if email == "" || regNo == "" || username == "" || strings.TrimSpace(row.Role) == "" {
		return nil, skip(ReasonMissingFields)
	}
	role, err := model.ParseRole(row.Role)
	if actor.Role == model.RoleFaculty && (err != nil || role != model.RoleStudent) {
		return nil, skip(ReasonFacultyOnlyAdds)
	}
	if err != nil || role == model.RoleAdmin {
		return nil, skip(ReasonInvalidRole)
	}

	var out *CreatedUser
	err = s.repo.InTx(ctx, func(tx Repository) error {
		matches, err := tx.FindByEmailOrRegNo(ctx, email, regNo)
		if err != nil {
			return err
		}
		switch len(matches) {
		case 0:
		case 1:
			claimed, err := s.claim(ctx, tx, actor, &matches[0])
			if err != nil {
				return err
			}
			out = claimed
			return nil
		default:
			// email and regNo belong to different users
			return skip(ReasonAlreadyExists)
		}

		u := &model.User{
			Email:                  email,
			Username:               username,
			RegNo:                  regNo,
			Role:                   role,
			ExpectedGraduationYear: row.ExpectedGraduationYear,
		}
		if role == model.RoleStudent {
			u.ProctorID = proctorID
		}
		if err := tx.Insert(ctx, u); err != nil {
			return err
		}
		out = createdFrom(u, false)
		return nil
	})
	return out, err
}

// claim lets a Faculty adopt an existing unassigned Student. Any other match is a skip.
func (s *Service) claim(ctx context.Context, tx Repository, actor *model.User, existing *model.User) (*CreatedUser, error) {
	if actor.Role != model.RoleFaculty || existing.Role != model.RoleStudent {
		return nil, skip(ReasonAlreadyExists)
	}
	switch existing.ProctorID {
	case actor.ID:
		return nil, skip(ReasonAssignedToCaller)
	case "":
	default:
		return nil, skip(ReasonAssignedElsewhere)
	}
	ok, err := tx.ClaimStudent(ctx, existing.ID, actor.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, skip(ReasonAssignedElsewhere)
	}
	existing.ProctorID = actor.ID
	return createdFrom(existing, true), nil
}

func createdFrom(u *model.User, reassigned bool) *CreatedUser {
	c := &CreatedUser{ID: u.ID, Email: u.Email, RegNo: u.RegNo, Role: u.Role, Reassigned: reassigned}
	if u.ProctorID != "" {
		p := u.ProctorID
		c.Proctor = &p
	}
	return c
}

type AdminUpdateInput struct {
	UserID                 string   `json:"userId"`
	Username               *string  `json:"username"`
	Email                  *string  `json:"email"`
	RegNo                  *string  `json:"regno"`
	Role                   *string  `json:"role"`
	Password               *string  `json:"password"`
	ExpectedGraduationYear *int     `json:"expectedGraduationYear"`
	Proctor                Optional `json:"proctor"`
}

// AdminUpdate edits any user in one transaction. Role changes unlink proctor state before the
// new role applies, and a proctor change always clears the old link first.
func (s *Service) AdminUpdate(ctx context.Context, in AdminUpdateInput) (*model.User, error) {
	id := strings.TrimSpace(in.UserID)
	if id == "" {
		return nil, errs.ErrUserIDRequired
	}

	var updated *model.User
	err := s.repo.InTx(ctx, func(tx Repository) error {
		u, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}

		if in.Email != nil {
			if email := model.NormalizeEmail(*in.Email); email != "" && email != u.Email {
				if err := ensureFree(ctx, tx.FindByEmail, email, u.ID, errs.ErrEmailInUse); err != nil {
					return err
				}
				u.Email = email
			}
		}
		if in.RegNo != nil {
			if regNo := model.NormalizeRegNo(*in.RegNo); regNo != "" && regNo != u.RegNo {
				if err := ensureFree(ctx, tx.FindByRegNo, regNo, u.ID, errs.ErrRegNoInUse); err != nil {
					return err
				}
				u.RegNo = regNo
			}
		}
		if in.Username != nil {
			if name := strings.TrimSpace(*in.Username); name != "" {
				u.Username = name
			}
		}
		if in.ExpectedGraduationYear != nil {
			y := *in.ExpectedGraduationYear
			u.ExpectedGraduationYear = &y
		}
		if in.Password != nil && *in.Password != "" {
			if len(*in.Password) < auth.MinPasswordLength {
				return errs.ErrPasswordTooShort
			}
			hash, err := s.hasher.Hash(*in.Password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			u.PasswordHash = hash
			u.IsValid = true
		}

		if in.Role != nil && strings.TrimSpace(*in.Role) != "" {
			role, err := model.ParseRole(*in.Role)
			if err != nil {
				return errs.Invalid(ReasonInvalidRole)
			}
			if role != u.Role {
				switch u.Role {
				case model.RoleStudent:
					u.ProctorID = ""
				case model.RoleFaculty:
					if _, err := tx.ClearStudentsOf(ctx, u.ID); err != nil {
						return err
					}
				}
				u.Role = role
			}
		}

		if in.Proctor.Set && u.Role == model.RoleStudent {
			u.ProctorID = ""
			if pid := strings.TrimSpace(in.Proctor.Value); pid != "" {
				if pid == u.ID {
					return errs.ErrInvalidProctor
				}
				p, err := tx.FindByID(ctx, pid)
				if err != nil {
					if errors.Is(err, errs.ErrNotFound) {
						return errs.ErrInvalidProctor
					}
					return err
				}
				if p.Role != model.RoleFaculty {
					return errs.ErrInvalidProctor
				}
				u.ProctorID = p.ID
			}
		}

		if err := tx.Update(ctx, u); err != nil {
			return err
		}
		if err := s.populate(ctx, tx, u, true); err != nil {
			return err
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func ensureFree(ctx context.Context, find func(context.Context, string) (*model.User, error), value, selfID string, conflict error) error {
	other, err := find(ctx, value)
	if err == nil {
		if other.ID != selfID {
			return conflict
		}
		return nil
	}
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	return err
}

type SelfUpdateInput struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	RegNo    *string `json:"regNo"`
}

// UpdateSelf applies the caller's own profile edits. It reports false when nothing differed
// from the stored values, in which case nothing is written.
func (s *Service) UpdateSelf(ctx context.Context, userID string, in SelfUpdateInput) (*model.User, bool, error) {
	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	if in.RegNo != nil {
		if regNo := model.NormalizeRegNo(*in.RegNo); regNo != "" && regNo != u.RegNo {
			return nil, false, errs.ErrRegNoImmutable
		}
	}

	var (
		patch   Patch
		changed bool
		otp     string
	)
	if in.Username != nil {
		if name := strings.TrimSpace(*in.Username); name != "" && name != u.Username {
			u.Username = name
			patch.Username = &u.Username
			changed = true
		}
	}
	if in.Email != nil {
		if email := model.NormalizeEmail(*in.Email); email != "" && email != u.Email {
			if err := ensureFree(ctx, s.repo.FindByEmail, email, u.ID, errs.ErrEmailInUse); err != nil {
				return nil, false, err
			}
			u.Email = email
			u.EmailVerified = false
			if otp, err = s.setOTP(u); err != nil {
				return nil, false, err
			}
			patch.Email = &u.Email
			patch.EmailVerified = ptr(false)
			patch.OTP = otpToken(u)
			changed = true
		}
	}
	if in.Password != nil && *in.Password != "" {
		if len(*in.Password) < auth.MinPasswordLength {
			return nil, false, errs.ErrPasswordTooShort
		}
		if !s.hasher.Check(u.PasswordHash, *in.Password) {
			hash, err := s.hasher.Hash(*in.Password)
			if err != nil {
				return nil, false, fmt.Errorf("hash password: %w", err)
			}
			u.PasswordHash = hash
			u.IsValid = true
			patch.PasswordHash = &u.PasswordHash
			patch.IsValid = ptr(true)
			changed = true
		}
	}

	if changed {
		if err := s.repo.Patch(ctx, u.ID, patch); err != nil {
			if errors.Is(err, errs.ErrUserExists) {
				return nil, false, errs.ErrEmailInUse
			}
			return nil, false, err
		}
		if otp != "" {
			s.sendOTP(ctx, u.Email, otp)
		}
	}
	if err := s.populate(ctx, s.repo, u, true); err != nil {
		return nil, false, err
	}
	return u, changed, nil
}

// List returns every user for an Admin, or the caller's proctored students for a Faculty.
func (s *Service) List(ctx context.Context, actor *model.User) ([]model.User, error) {
	var (
		list []model.User
		err  error
	)
	switch actor.Role {
	case model.RoleAdmin:
		list, err = s.repo.List(ctx)
	case model.RoleFaculty:
		list, err = s.repo.ListStudentsOf(ctx, actor.ID)
	default:
		return nil, errs.ErrForbiddenRole
	}
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.User{}
	}
	return list, s.populateAll(ctx, list)
}

// Get returns one user. A Faculty may only read students it proctors.
func (s *Service) Get(ctx context.Context, actor *model.User, id string) (*model.User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RoleFaculty && u.ProctorID != actor.ID {
		return nil, errs.ErrForbiddenRole
	}
	if actor.Role == model.RoleStudent && u.ID != actor.ID {
		return nil, errs.ErrForbiddenRole
	}
	if err := s.populate(ctx, s.repo, u, true); err != nil {
		return nil, err
	}
	return u, nil
}

// Delete removes a user, first unlinking any students it proctored.
func (s *Service) Delete(ctx context.Context, actor *model.User, id string) error {
	if id == actor.ID {
		return errs.ErrCannotDeleteSelf
	}
	return s.repo.InTx(ctx, func(tx Repository) error {
		u, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if u.Role == model.RoleFaculty {
			if _, err := tx.ClearStudentsOf(ctx, u.ID); err != nil {
				return err
			}
		}
		return tx.Delete(ctx, u.ID)
	})
}

// ListValidStudents returns the active student roster.
func (s *Service) ListValidStudents(ctx context.Context) ([]model.User, error) {
	return s.repo.ListValidStudents(ctx)
}

// FindByRegNo resolves a registration number to a user.
func (s *Service) FindByRegNo(ctx context.Context, regNo string) (*model.User, error) {
	return s.repo.FindByRegNo(ctx, model.NormalizeRegNo(regNo))
}

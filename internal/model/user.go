package model

import (
	"strings"
	"time"
)

// User is an account of any role. A Student may point at one Faculty proctor;
// a Faculty's assigned students are derived from those pointers.
type User struct {
	ID                     string     `json:"id"`
	Email                  string     `json:"email"`
	Username               string     `json:"username"`
	RegNo                  string     `json:"regNo"`
	Role                   Role       `json:"role"`
	IsValid                bool       `json:"isValid"`
	EmailVerified          bool       `json:"emailVerified"`
	ExpectedGraduationYear *int       `json:"expectedGraduationYear,omitempty"`
	ProctorID              string     `json:"-"`
	Proctor                *UserRef   `json:"proctor"`
	AssignedStudents       []UserRef  `json:"assignedStudents,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
	PasswordHash           string     `json:"-"`
	Faceprint              []float64  `json:"-"`
	SessionID              string     `json:"-"`
	OTPHash                string     `json:"-"`
	OTPExpiresAt           *time.Time `json:"-"`
	ResetHash              string     `json:"-"`
	ResetExpiresAt         *time.Time `json:"-"`
}

// UserRef is the populated shape of a related user.
type UserRef struct {
	ID                     string `json:"id"`
	RegNo                  string `json:"regNo"`
	Email                  string `json:"email"`
	Username               string `json:"username"`
	ExpectedGraduationYear *int   `json:"expectedGraduationYear,omitempty"`
}

// Ref returns the populated reference form of u.
func (u *User) Ref() UserRef {
	return UserRef{
		ID:                     u.ID,
		RegNo:                  u.RegNo,
		Email:                  u.Email,
		Username:               u.Username,
		ExpectedGraduationYear: u.ExpectedGraduationYear,
	}
}

// HasFaceprint reports whether a face embedding has been enrolled.
func (u *User) HasFaceprint() bool {
	return len(u.Faceprint) > 0
}

// HasPassword reports whether registration has completed.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeRegNo upper-cases and trims a registration number.
func NormalizeRegNo(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

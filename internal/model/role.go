package model

import (
	"fmt"
	"strings"
)

// Role is the single role enumeration shared by storage, tokens and the API.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleFaculty Role = "Faculty"
	RoleStudent Role = "Student"
)

// Role groups used by route allow-lists.
var (
	AdminOnly = []Role{RoleAdmin}
	Staff     = []Role{RoleAdmin, RoleFaculty}
	Everyone  = []Role{RoleAdmin, RoleFaculty, RoleStudent}
)

// ParseRole accepts any casing of a known role and returns its canonical form.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "faculty":
		return RoleFaculty, nil
	case "student":
		return RoleStudent, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether r is one of the canonical roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleFaculty || r == RoleStudent
}

// In reports whether r is one of roles.
func (r Role) In(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

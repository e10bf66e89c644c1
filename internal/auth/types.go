package auth

import (
	"errors"
	"regexp"
)

// subjectPattern is the accepted format for token subjects:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var subjectPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidSubject reports whether s can be used as a token subject.
func IsValidSubject(s string) bool {
	return subjectPattern.MatchString(s)
}

// Role represents an authorisation tier.
type Role string

const (
	// RoleUser operates the server: lock control, advertising, peer disconnects.
	RoleUser Role = "user"

	// RoleAdmin can additionally reset the server, erasing the pairing secret.
	RoleAdmin Role = "admin"
)

// ValidRoles lists every role a token may carry.
var ValidRoles = []Role{RoleUser, RoleAdmin}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Allows reports whether a token with role r satisfies a route requiring
// role required.
func (r Role) Allows(required Role) bool {
	switch required {
	case RoleUser:
		return r == RoleUser || r == RoleAdmin
	case RoleAdmin:
		return r == RoleAdmin
	default:
		return false
	}
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrInvalidRole    = errors.New("invalid role")
	ErrInvalidSubject = errors.New("invalid subject")
	ErrSecretRequired = errors.New("jwt secret is required")
	ErrForbidden      = errors.New("insufficient permissions")
)

package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Common errors returned by the authentication subsystem.
var (
	ErrDisabled         = errors.New("authentication disabled")
	ErrInvalidToken     = errors.New("invalid token")
	ErrMissingToken     = errors.New("missing bearer token")
	ErrPermissionDenied = errors.New("permission denied")
)

// Permissions understood by the API.
const (
	PermissionToolsInvoke = "tools:invoke"
	PermissionTasksRead   = "tasks:read"
	PermissionTasksWrite  = "tasks:write"
)

// AllPermissions lists every permission, used for operator tokens.
var AllPermissions = []string{PermissionToolsInvoke, PermissionTasksRead, PermissionTasksWrite}

// Subject captures the information embedded in access tokens and passed to
// request handlers via context.
type Subject struct {
	ID          string   `json:"id"`
	Permissions []string `json:"permissions"`
}

// HasPermission reports whether the subject has the specified permission.
func (s *Subject) HasPermission(permission string) bool {
	if s == nil {
		return false
	}
	permission = normalisePermission(permission)
	return slices.ContainsFunc(s.Permissions, func(p string) bool {
		return normalisePermission(p) == permission
	})
}

// Authorize ensures the subject has all required permissions.
func (s *Subject) Authorize(perms ...string) error {
	if s == nil {
		return ErrInvalidToken
	}
	for _, perm := range perms {
		if perm == "" {
			continue
		}
		if !s.HasPermission(perm) {
			return fmt.Errorf("%w: missing %s", ErrPermissionDenied, perm)
		}
	}
	return nil
}

func normalisePermission(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

// Token is an issued bearer token.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Subject     string    `json:"subject"`
}

// Mode enumerates the supported authentication providers.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeJWT      Mode = "jwt"
)

// Config configures the authentication service.
type Config struct {
	Mode     Mode
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

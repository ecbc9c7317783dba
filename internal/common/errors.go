// Package common defines shared constants and sentinel errors used across
// the server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Credential errors. Login deliberately reports the same error for an
	// unknown username and a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrNotAdmin           = errors.New("admin access required")
	ErrWeakPassword       = errors.New("password does not meet strength requirements")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrBadSecretPhrase    = errors.New("invalid secret phrase")

	// Token lifecycle errors.
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrSessionExpired = errors.New("session expired")

	// Two-factor errors.
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication is not enabled")
	ErrTwoFactorNotSetup   = errors.New("two-factor authentication has not been set up")
	ErrInvalidTwoFactor    = errors.New("invalid two-factor code")
)

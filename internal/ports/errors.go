package ports

import (
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

var ErrConflict = errors.New("conflict")

// ErrConflictPending: une entrée CONFLICTED ne peut pas être supprimée ni
// poussée avant résolution explicite.
var ErrConflictPending = errors.New("list entry has an unresolved conflict")

// APIErrorKind classe les erreurs du catalogue distant.
type APIErrorKind string

const (
	APINetwork      APIErrorKind = "network"
	APIRateLimited  APIErrorKind = "rate_limited"
	APINotFound     APIErrorKind = "not_found"
	APIValidation   APIErrorKind = "validation"
	APIServerError  APIErrorKind = "server_error"
	APIUnauthorized APIErrorKind = "unauthorized"
)

type APIError struct {
	Kind       APIErrorKind
	Status     int
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	msg := "anilist " + string(e.Kind)
	if e.Status > 0 {
		msg += fmt.Sprintf(" (http %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }

// Is compare par Kind, ce qui permet errors.Is(err, ports.ErrNetwork).
func (e *APIError) Is(target error) bool {
	var t *APIError
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

var (
	ErrNetwork      = &APIError{Kind: APINetwork}
	ErrRateLimited  = &APIError{Kind: APIRateLimited}
	ErrAPINotFound  = &APIError{Kind: APINotFound}
	ErrValidation   = &APIError{Kind: APIValidation}
	ErrServerError  = &APIError{Kind: APIServerError}
	ErrUnauthorized = &APIError{Kind: APIUnauthorized}
)

// AsAPIError extrait l'APIError d'une chaîne d'erreurs.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

type AuthErrorKind string

const (
	AuthStateMismatch  AuthErrorKind = "state_mismatch"
	AuthReauthRequired AuthErrorKind = "reauth_required"
	AuthExchangeFailed AuthErrorKind = "exchange_failed"
)

type AuthError struct {
	Kind    AuthErrorKind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e == nil {
		return ""
	}
	msg := "auth " + string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

var (
	ErrStateMismatch  = &AuthError{Kind: AuthStateMismatch}
	ErrReauthRequired = &AuthError{Kind: AuthReauthRequired}
	ErrExchangeFailed = &AuthError{Kind: AuthExchangeFailed}
)

type CacheErrorKind string

const (
	CacheIOFailure CacheErrorKind = "io_failure"
	CacheCorrupt   CacheErrorKind = "corrupt"
)

type CacheError struct {
	Kind CacheErrorKind
	Op   string
	Err  error
}

func (e *CacheError) Error() string {
	if e == nil {
		return ""
	}
	msg := "cache " + string(e.Kind)
	if e.Op != "" {
		msg += " (" + e.Op + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CacheError) Unwrap() error { return e.Err }

func (e *CacheError) Is(target error) bool {
	var t *CacheError
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

var (
	ErrIOFailure = &CacheError{Kind: CacheIOFailure}
	ErrCorrupt   = &CacheError{Kind: CacheCorrupt}
)

// RequiresReauth regroupe les deux façons dont une reconnexion est exigée.
func RequiresReauth(err error) bool {
	return errors.Is(err, ErrReauthRequired) || errors.Is(err, ErrUnauthorized)
}

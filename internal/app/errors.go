package app

import (
	"errors"

	"github.com/Guilhem-Bonnet/anisync/internal/ports"
	"github.com/Guilhem-Bonnet/anisync/internal/validation"
)

var ErrNotFound = ports.ErrNotFound

// CodedError porte un code d'erreur stable, renvoyé tel quel par l'API
// locale et la CLI.
//
// Exemples de codes: invalid_request, not_found, offline, reauth_required.
type CodedError struct {
	Code    string
	Message string
	Err     error
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *CodedError) Unwrap() error { return e.Err }

// ErrorCode classe err dans un code stable.
func ErrorCode(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) && coded.Code != "" {
		return coded.Code
	}
	switch {
	case err == nil:
		return ""
	case errors.Is(err, validation.ErrInvalid), errors.Is(err, ports.ErrValidation):
		return "invalid_request"
	case errors.Is(err, ports.ErrNotFound), errors.Is(err, ports.ErrAPINotFound):
		return "not_found"
	case errors.Is(err, ports.ErrConflictPending), errors.Is(err, ErrNotConflicted), errors.Is(err, ports.ErrConflict):
		return "conflict"
	case errors.Is(err, ErrSyncInProgress):
		return "sync_in_progress"
	case errors.Is(err, ErrOffline):
		return "offline"
	case errors.Is(err, ports.ErrStateMismatch):
		return "state_mismatch"
	case errors.Is(err, ports.ErrExchangeFailed):
		return "exchange_failed"
	case ports.RequiresReauth(err):
		return "reauth_required"
	case errors.Is(err, ports.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ports.ErrNetwork), errors.Is(err, ports.ErrServerError):
		return "upstream_unavailable"
	case errors.Is(err, ports.ErrCorrupt):
		return "cache_corrupt"
	case errors.Is(err, ports.ErrIOFailure):
		return "cache_io"
	default:
		return "internal"
	}
}

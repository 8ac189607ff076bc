package app

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Guilhem-Bonnet/anisync/internal/ports"
	"github.com/Guilhem-Bonnet/anisync/internal/validation"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&validation.Error{Fields: map[string]string{"status": "is required"}}, "invalid_request"},
		{fmt.Errorf("get: %w", ports.ErrNotFound), "not_found"},
		{ports.ErrConflictPending, "conflict"},
		{ErrNotConflicted, "conflict"},
		{ErrOffline, "offline"},
		{ErrSyncInProgress, "sync_in_progress"},
		{&ports.AuthError{Kind: ports.AuthReauthRequired}, "reauth_required"},
		{&ports.APIError{Kind: ports.APIUnauthorized, Status: 401}, "reauth_required"},
		{&ports.APIError{Kind: ports.APIRateLimited}, "rate_limited"},
		{&ports.APIError{Kind: ports.APIServerError}, "upstream_unavailable"},
		{&ports.CacheError{Kind: ports.CacheCorrupt}, "cache_corrupt"},
		{&CodedError{Code: "custom", Message: "x"}, "custom"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCode(tt.err), "%v", tt.err)
	}
}

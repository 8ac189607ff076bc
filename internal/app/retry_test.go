package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Max: 5 * time.Minute, Jitter: 0.2}
	mid := func() float64 { return 0.5 }

	assert.Equal(t, 2*time.Second, b.Delay(1, mid))
	assert.Equal(t, 4*time.Second, b.Delay(2, mid))
	assert.Equal(t, 16*time.Second, b.Delay(4, mid))
	assert.Equal(t, 5*time.Minute, b.Delay(20, mid))
	assert.Equal(t, 2*time.Second, b.Delay(0, mid))

	low := b.Delay(1, func() float64 { return 0 })
	high := b.Delay(1, func() float64 { return 0.999999 })
	assert.InDelta(t, float64(1600*time.Millisecond), float64(low), float64(time.Millisecond))
	assert.InDelta(t, float64(2400*time.Millisecond), float64(high), float64(time.Millisecond))
}

func TestRetryPolicy_Decide(t *testing.T) {
	p := DefaultRetryPolicy()
	p.Rand = func() float64 { return 0.5 }

	tests := []struct {
		name      string
		err       error
		attempt   int
		action    RetryAction
		kind      ports.APIErrorKind
		exhausted bool
	}{
		{name: "network", err: &ports.APIError{Kind: ports.APINetwork}, attempt: 1, action: RetryLater, kind: ports.APINetwork},
		{name: "server error last attempt", err: &ports.APIError{Kind: ports.APIServerError, Status: 503}, attempt: 5, action: RetryLater, kind: ports.APIServerError, exhausted: true},
		{name: "validation", err: &ports.APIError{Kind: ports.APIValidation}, attempt: 1, action: RetryConflict, kind: ports.APIValidation},
		{name: "not found", err: &ports.APIError{Kind: ports.APINotFound}, attempt: 1, action: RetryConflict, kind: ports.APINotFound},
		{name: "unauthorized", err: &ports.APIError{Kind: ports.APIUnauthorized}, attempt: 1, action: RetryAbort, kind: ports.APIUnauthorized},
		{name: "reauth", err: &ports.AuthError{Kind: ports.AuthReauthRequired}, attempt: 1, action: RetryAbort, kind: ports.APIUnauthorized},
		{name: "canceled", err: context.Canceled, attempt: 1, action: RetryAbort},
		{name: "wrapped", err: fmt.Errorf("push: %w", &ports.APIError{Kind: ports.APINetwork}), attempt: 2, action: RetryLater, kind: ports.APINetwork},
		{name: "local error", err: errors.New("disk"), attempt: 1, action: RetryLater},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Decide(tt.err, tt.attempt)
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.kind, d.Kind)
			assert.Equal(t, tt.exhausted, d.Exhausted)
		})
	}
}

func TestRetryPolicy_RateLimitHonorsRetryAfter(t *testing.T) {
	p := DefaultRetryPolicy()
	p.Rand = func() float64 { return 0.5 }

	d := p.Decide(&ports.APIError{Kind: ports.APIRateLimited, Status: 429, RetryAfter: 45 * time.Second}, 1)
	assert.Equal(t, RetryLater, d.Action)
	assert.Equal(t, 45*time.Second, d.Delay)

	d = p.Decide(&ports.APIError{Kind: ports.APIRateLimited, Status: 429, RetryAfter: time.Second}, 3)
	assert.Equal(t, 8*time.Second, d.Delay)
}

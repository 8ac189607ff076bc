package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guilhem-Bonnet/anisync/internal/adapters/credfile"
	"github.com/Guilhem-Bonnet/anisync/internal/domain"
	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

// tokenServer simule le token endpoint et compte les requêtes.
type tokenServer struct {
	*httptest.Server
	requests atomic.Int32
	// reject: renvoie invalid_grant pour un refresh.
	reject atomic.Bool
	delay  time.Duration
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.requests.Add(1)
		if ts.delay > 0 {
			time.Sleep(ts.delay)
		}
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.Form.Get("grant_type") == "refresh_token" && ts.reject.Load() {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"revoked"}`))
			return
		}
		if r.Form.Get("grant_type") == "authorization_code" && r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_request"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  fmt.Sprintf("access-%d", n),
			"refresh_token": fmt.Sprintf("refresh-%d", n),
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestSession(t *testing.T, ts *tokenServer) (*AuthSession, *credfile.Store) {
	t.Helper()
	store := credfile.New(filepath.Join(t.TempDir(), credfile.DefaultFileName))
	s := NewAuthSession(zerolog.Nop(), store, AuthConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "http://127.0.0.1:8765/callback",
		AuthURL:      ts.URL + "/authorize",
		TokenURL:     ts.URL + "/token",
	})
	return s, store
}

func TestAuthSession_AuthorizationFlow(t *testing.T) {
	ctx := context.Background()
	ts := newTokenServer(t)
	s, store := newTestSession(t, ts)

	raw, err := s.BeginAuthorization()
	require.NoError(t, err)
	assert.Equal(t, AuthAuthorizing, s.State())

	u, err := url.Parse(raw)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "client", u.Query().Get("client_id"))

	cred, err := s.CompleteAuthorization(ctx, url.Values{"state": {state}, "code": {"good-code"}})
	require.NoError(t, err)
	assert.Equal(t, "access-1", cred.AccessToken)
	assert.Equal(t, AuthAuthenticated, s.State())

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "refresh-1", stored.RefreshToken)

	// Le flux est consommé: rejouer la redirection échoue.
	_, err = s.CompleteAuthorization(ctx, url.Values{"state": {state}, "code": {"good-code"}})
	assert.ErrorIs(t, err, ports.ErrStateMismatch)
}

func TestAuthSession_StateMismatchDoesNotExchange(t *testing.T) {
	ctx := context.Background()
	ts := newTokenServer(t)
	s, store := newTestSession(t, ts)

	_, err := s.BeginAuthorization()
	require.NoError(t, err)
	_, err = s.CompleteAuthorization(ctx, url.Values{"state": {"forged"}, "code": {"good-code"}})
	require.ErrorIs(t, err, ports.ErrStateMismatch)
	assert.Zero(t, ts.requests.Load())

	cred, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestAuthSession_ExchangeFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	ts := newTokenServer(t)
	s, _ := newTestSession(t, ts)

	raw, err := s.BeginAuthorization()
	require.NoError(t, err)
	u, _ := url.Parse(raw)

	_, err = s.CompleteAuthorization(ctx, url.Values{"state": {u.Query().Get("state")}, "code": {"bad-code"}})
	require.ErrorIs(t, err, ports.ErrExchangeFailed)
	assert.Equal(t, AuthUnauthenticated, s.State())

	raw, err = s.BeginAuthorization()
	require.NoError(t, err)
	u, _ = url.Parse(raw)
	_, err = s.CompleteAuthorization(ctx, url.Values{"state": {u.Query().Get("state")}, "error": {"access_denied"}})
	require.ErrorIs(t, err, ports.ErrExchangeFailed)
}

func TestAuthSession_RefreshesExpiringToken(t *testing.T) {
	ctx := context.Background()
	ts := newTokenServer(t)
	s, store := newTestSession(t, ts)
	require.NoError(t, store.Save(ctx, domain.Credential{
		AccessToken:  "old",
		RefreshToken: "refresh-0",
		ExpiresAt:    time.Now().UTC().Add(30 * time.Second),
	}))

	var used string
	err := s.AuthorizedRequest(ctx, func(ctx context.Context, cred domain.Credential) error {
		used = cred.AccessToken
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "access-1", used)
	assert.EqualValues(t, 1, ts.requests.Load())
	assert.Equal(t, AuthAuthenticated, s.State())

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.AccessToken)
	assert.True(t, stored.ExpiresAt.After(time.Now().Add(30*time.Minute)))
}

func TestAuthSession_ConcurrentRefreshIsShared(t *testing.T) {
	ctx := context.Background()
	ts := newTokenServer(t)
	ts.delay = 50 * time.Millisecond
	s, store := newTestSession(t, ts)
	require.NoError(t, store.Save(ctx, domain.Credential{
		AccessToken:  "old",
		RefreshToken: "refresh-0",
		ExpiresAt:    time.Now().UTC().Add(-time.Minute),
	}))

	const callers = 20
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.AuthorizedRequest(ctx, func(ctx context.Context, cred domain.Credential) error {
				tokens[i] = cred.AccessToken
				return nil
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "access-1", tokens[i])
	}
	assert.EqualValues(t, 1, ts.requests.Load())
}

func TestAuthSession_RejectedRefreshRequiresReauth(t *testing.T) {
	ctx := context.Background()
	ts := newTokenServer(t)
	ts.reject.Store(true)
	s, store := newTestSession(t, ts)
	require.NoError(t, store.Save(ctx, domain.Credential{
		AccessToken:  "old",
		RefreshToken: "revoked",
		ExpiresAt:    time.Now().UTC().Add(-time.Hour),
	}))

	called := false
	err := s.AuthorizedRequest(ctx, func(ctx context.Context, cred domain.Credential) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ports.ErrReauthRequired)
	assert.False(t, called)
	assert.Equal(t, AuthUnauthenticated, s.State())

	cred, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestAuthSession_ExpiredWithoutRefreshToken(t *testing.T) {
	ctx := context.Background()
	ts := newTokenServer(t)
	s, store := newTestSession(t, ts)
	require.NoError(t, store.Save(ctx, domain.Credential{AccessToken: "old", ExpiresAt: time.Now().UTC().Add(-time.Hour)}))

	err := s.AuthorizedRequest(ctx, func(ctx context.Context, cred domain.Credential) error { return nil })
	require.ErrorIs(t, err, ports.ErrReauthRequired)
	assert.Zero(t, ts.requests.Load())
}

func TestAuthSession_UnauthorizedClearsCredential(t *testing.T) {
	ctx := context.Background()
	ts := newTokenServer(t)
	s, store := newTestSession(t, ts)
	require.NoError(t, store.Save(ctx, domain.Credential{AccessToken: "valid", ExpiresAt: time.Now().UTC().Add(time.Hour)}))

	err := s.AuthorizedRequest(ctx, func(ctx context.Context, cred domain.Credential) error {
		return &ports.APIError{Kind: ports.APIUnauthorized, Status: 401}
	})
	require.Error(t, err)
	assert.True(t, ports.RequiresReauth(err))
	assert.Equal(t, AuthUnauthenticated, s.State())

	cred, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)

	err = s.AuthorizedRequest(ctx, func(ctx context.Context, cred domain.Credential) error { return nil })
	assert.ErrorIs(t, err, ports.ErrReauthRequired)
}

func TestAuthSession_OtherErrorsKeepCredential(t *testing.T) {
	ctx := context.Background()
	ts := newTokenServer(t)
	s, store := newTestSession(t, ts)
	require.NoError(t, store.Save(ctx, domain.Credential{AccessToken: "valid"}))

	boom := errors.New("boom")
	err := s.AuthorizedRequest(ctx, func(ctx context.Context, cred domain.Credential) error { return boom })
	require.ErrorIs(t, err, boom)

	cred, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "valid", cred.AccessToken)
}

func TestAuthSession_LogoutAndStatus(t *testing.T) {
	ctx := context.Background()
	ts := newTokenServer(t)
	s, store := newTestSession(t, ts)
	exp := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, store.Save(ctx, domain.Credential{AccessToken: "a", RefreshToken: "r", ExpiresAt: exp}))
	require.NoError(t, s.Restore(ctx))

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, AuthAuthenticated, st.State)
	assert.True(t, st.HasRefreshToken)
	require.NotNil(t, st.ExpiresAt)
	assert.True(t, st.ExpiresAt.Equal(exp))

	require.NoError(t, s.Logout(ctx))
	st, err = s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, AuthUnauthenticated, st.State)
	assert.Nil(t, st.ExpiresAt)
}

package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/Guilhem-Bonnet/anisync/internal/domain"
	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

type AuthState string

const (
	AuthUnauthenticated AuthState = "unauthenticated"
	AuthAuthorizing     AuthState = "authorizing"
	AuthAuthenticated   AuthState = "authenticated"
	AuthExpiring        AuthState = "expiring"
	AuthRefreshing      AuthState = "refreshing"
)

const (
	DefaultAuthURL  = "https://anilist.co/api/v2/oauth/authorize"
	DefaultTokenURL = "https://anilist.co/api/v2/oauth/token"

	refreshMargin  = 60 * time.Second
	flowTimeout    = 5 * time.Minute
	refreshTimeout = 30 * time.Second
	stateBytes     = 32
)

type AuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	Scopes       []string
}

type pendingFlow struct {
	state   string
	expires time.Time
}

// AuthSession possède le Credential: chargement, échange du code, rafraîchissement
// et invalidation. Le client GraphQL n'y accède qu'à travers AuthorizedRequest.
type AuthSession struct {
	logger zerolog.Logger
	store  ports.TokenStore
	oauth  *oauth2.Config

	// HTTPClient sert aux appels vers le token endpoint (nil = http.DefaultClient).
	HTTPClient *http.Client
	Now        func() time.Time
	Random     io.Reader

	mu      sync.Mutex
	state   AuthState
	pending *pendingFlow

	refresh singleflight.Group
}

func NewAuthSession(logger zerolog.Logger, store ports.TokenStore, cfg AuthConfig) *AuthSession {
	authURL := strings.TrimSpace(cfg.AuthURL)
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &AuthSession{
		logger: logger,
		store:  store,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
				// AniList attend client_id/secret dans le corps.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		Now:    func() time.Time { return time.Now().UTC() },
		Random: rand.Reader,
		state:  AuthUnauthenticated,
	}
}

func (s *AuthSession) State() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *AuthSession) setState(st AuthState) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.logger.Debug().Str("from", string(prev)).Str("to", string(st)).Msg("auth state")
	}
}

// Restore aligne l'état sur le credential persisté (démarrage du process).
func (s *AuthSession) Restore(ctx context.Context) error {
	cred, err := s.load(ctx)
	if err != nil {
		return err
	}
	if cred == nil {
		s.setState(AuthUnauthenticated)
		return nil
	}
	s.setState(AuthAuthenticated)
	return nil
}

// Credential renvoie le credential stocké (nil si aucun).
func (s *AuthSession) Credential(ctx context.Context) (*domain.Credential, error) {
	return s.load(ctx)
}

func (s *AuthSession) load(ctx context.Context) (*domain.Credential, error) {
	cred, err := retryIO(ctx, func() (*domain.Credential, error) { return s.store.Load(ctx) })
	if err != nil {
		return nil, err
	}
	if cred != nil && !cred.Valid() {
		return nil, nil
	}
	return cred, nil
}

// BeginAuthorization démarre un flux authorization-code et renvoie l'URL à
// ouvrir. Un nouvel appel remplace le flux en attente.
func (s *AuthSession) BeginAuthorization() (string, error) {
	if strings.TrimSpace(s.oauth.ClientID) == "" {
		return "", &ports.AuthError{Kind: ports.AuthExchangeFailed, Message: "client_id is not configured"}
	}
	buf := make([]byte, stateBytes)
	if _, err := io.ReadFull(s.Random, buf); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	s.mu.Lock()
	s.pending = &pendingFlow{state: state, expires: s.Now().Add(flowTimeout)}
	s.state = AuthAuthorizing
	s.mu.Unlock()

	s.logger.Info().Msg("authorization started")
	return s.oauth.AuthCodeURL(state), nil
}

// CompleteAuthorization traite les paramètres de la redirection OAuth.
func (s *AuthSession) CompleteAuthorization(ctx context.Context, params url.Values) (domain.Credential, error) {
	s.mu.Lock()
	p := s.pending
	s.pending = nil
	s.mu.Unlock()

	got := params.Get("state")
	if p == nil || s.Now().After(p.expires) || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(p.state)) != 1 {
		s.logger.Warn().Bool("pending", p != nil).Msg("authorization state mismatch")
		return domain.Credential{}, &ports.AuthError{Kind: ports.AuthStateMismatch, Message: "state does not match the pending authorization"}
	}

	if e := params.Get("error"); e != "" {
		s.fallBack(ctx)
		msg := e
		if d := params.Get("error_description"); d != "" {
			msg += ": " + d
		}
		return domain.Credential{}, &ports.AuthError{Kind: ports.AuthExchangeFailed, Message: msg}
	}
	code := params.Get("code")
	if strings.TrimSpace(code) == "" {
		s.fallBack(ctx)
		return domain.Credential{}, &ports.AuthError{Kind: ports.AuthExchangeFailed, Message: "missing authorization code"}
	}

	tok, err := s.oauth.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		s.fallBack(ctx)
		return domain.Credential{}, &ports.AuthError{Kind: ports.AuthExchangeFailed, Message: "code exchange", Err: err}
	}

	cred := credentialFromToken(tok, "")
	if err := retryIOErr(ctx, func() error { return s.store.Save(ctx, cred) }); err != nil {
		s.fallBack(ctx)
		return domain.Credential{}, err
	}
	s.setState(AuthAuthenticated)
	s.logger.Info().Time("expires_at", cred.ExpiresAt).Msg("authorization completed")
	return cred, nil
}

// fallBack rétablit l'état après un flux raté: AUTHENTICATED si un
// credential antérieur reste utilisable.
func (s *AuthSession) fallBack(ctx context.Context) {
	cred, err := s.load(ctx)
	if err == nil && cred != nil {
		s.setState(AuthAuthenticated)
		return
	}
	s.setState(AuthUnauthenticated)
}

// AuthorizedRequest fournit un credential valide à fn, en le rafraîchissant
// d'abord s'il expire dans moins d'une minute.
func (s *AuthSession) AuthorizedRequest(ctx context.Context, fn func(ctx context.Context, cred domain.Credential) error) error {
	cred, err := s.load(ctx)
	if err != nil {
		return err
	}
	if cred == nil {
		s.setState(AuthUnauthenticated)
		return &ports.AuthError{Kind: ports.AuthReauthRequired, Message: "not logged in"}
	}

	if cred.ExpiresWithin(s.Now(), refreshMargin) {
		fresh, err := s.refreshShared(ctx)
		if err != nil {
			return err
		}
		cred = &fresh
	} else if st := s.State(); st == AuthUnauthenticated {
		s.setState(AuthAuthenticated)
	}

	err = fn(ctx, *cred)
	if errors.Is(err, ports.ErrUnauthorized) {
		s.invalidate(ctx, cred.AccessToken)
	}
	return err
}

// refreshShared regroupe les rafraîchissements concurrents en une seule
// requête au token endpoint.
func (s *AuthSession) refreshShared(ctx context.Context) (domain.Credential, error) {
	ch := s.refresh.DoChan("refresh", func() (any, error) {
		// Le vol ne dépend pas de l'annulation d'un appelant particulier.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.refreshOnce(fctx)
	})
	select {
	case <-ctx.Done():
		return domain.Credential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Credential{}, res.Err
		}
		return res.Val.(domain.Credential), nil
	}
}

func (s *AuthSession) refreshOnce(ctx context.Context) (domain.Credential, error) {
	// Relu dans le vol: un appel précédent a peut-être déjà rafraîchi.
	cur, err := s.load(ctx)
	if err != nil {
		return domain.Credential{}, err
	}
	if cur == nil {
		s.setState(AuthUnauthenticated)
		return domain.Credential{}, &ports.AuthError{Kind: ports.AuthReauthRequired, Message: "not logged in"}
	}
	if !cur.ExpiresWithin(s.Now(), refreshMargin) {
		return *cur, nil
	}

	s.setState(AuthExpiring)
	if !cur.HasRefreshToken() {
		s.clearStored(ctx)
		return domain.Credential{}, &ports.AuthError{Kind: ports.AuthReauthRequired, Message: "token expired and no refresh token"}
	}

	s.setState(AuthRefreshing)
	tok, err := s.oauth.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: cur.RefreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && refreshRejected(re) {
			s.logger.Warn().Str("error_code", re.ErrorCode).Msg("refresh token rejected")
			s.clearStored(ctx)
			return domain.Credential{}, &ports.AuthError{Kind: ports.AuthReauthRequired, Message: "refresh token rejected", Err: err}
		}
		s.setState(AuthAuthenticated)
		s.logger.Warn().Err(err).Msg("token refresh failed")
		return domain.Credential{}, &ports.APIError{Kind: ports.APINetwork, Message: "token refresh", Err: err}
	}

	next := credentialFromToken(tok, cur.RefreshToken)
	if err := retryIOErr(ctx, func() error { return s.store.Save(ctx, next) }); err != nil {
		s.setState(AuthAuthenticated)
		return domain.Credential{}, err
	}
	s.setState(AuthAuthenticated)
	s.logger.Info().Time("expires_at", next.ExpiresAt).Msg("token refreshed")
	return next, nil
}

func refreshRejected(re *oauth2.RetrieveError) bool {
	switch re.ErrorCode {
	case "invalid_grant", "invalid_client", "unauthorized_client":
		return true
	}
	if re.Response != nil {
		switch re.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized:
			return true
		}
	}
	return false
}

// invalidate efface le credential refusé par le serveur, sauf s'il a déjà
// été remplacé entre-temps.
func (s *AuthSession) invalidate(ctx context.Context, rejected string) {
	ctx = context.WithoutCancel(ctx)
	cur, err := s.load(ctx)
	if err == nil && cur != nil && cur.AccessToken != rejected {
		return
	}
	s.logger.Warn().Msg("access token rejected, credential cleared")
	s.clearStored(ctx)
}

func (s *AuthSession) clearStored(ctx context.Context) {
	if err := retryIOErr(ctx, func() error { return s.store.Clear(ctx) }); err != nil {
		s.logger.Error().Err(err).Msg("credential clear failed")
	}
	s.setState(AuthUnauthenticated)
}

func (s *AuthSession) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	if err := retryIOErr(ctx, func() error { return s.store.Clear(ctx) }); err != nil {
		return err
	}
	s.setState(AuthUnauthenticated)
	s.logger.Info().Msg("logged out")
	return nil
}

type AuthStatus struct {
	State           AuthState  `json:"state"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	HasRefreshToken bool       `json:"hasRefreshToken"`
}

func (s *AuthSession) Status(ctx context.Context) (AuthStatus, error) {
	cred, err := s.load(ctx)
	if err != nil {
		return AuthStatus{}, err
	}
	st := AuthStatus{State: s.State()}
	if cred != nil {
		if !cred.ExpiresAt.IsZero() {
			exp := cred.ExpiresAt
			st.ExpiresAt = &exp
		}
		st.HasRefreshToken = cred.HasRefreshToken()
	}
	return st, nil
}

func (s *AuthSession) oauthContext(ctx context.Context) context.Context {
	if s.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.HTTPClient)
}

func credentialFromToken(tok *oauth2.Token, previousRefresh string) domain.Credential {
	c := domain.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresAt:    tok.Expiry.UTC(),
	}
	if tok.Expiry.IsZero() {
		c.ExpiresAt = time.Time{}
	}
	// Le serveur peut ne pas renvoyer de nouveau refresh token.
	if c.RefreshToken == "" {
		c.RefreshToken = previousRefresh
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		c.Scope = scope
	}
	return c
}

var _ ports.Authorizer = (*AuthSession)(nil)

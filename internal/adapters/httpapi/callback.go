package httpapi

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/anisync/internal/domain"
)

// authCompleter est la partie d'AuthSession utilisée par la redirection.
type authCompleter interface {
	CompleteAuthorization(ctx context.Context, params url.Values) (domain.Credential, error)
}

type CallbackResult struct {
	Credential domain.Credential
	Err        error
}

// CallbackServer écoute la redirection OAuth sur l'hôte de redirect_uri.
type CallbackServer struct {
	logger zerolog.Logger
	auth   authCompleter
	addr   string
	path   string

	// OnLogin est appelé après un échange réussi (ex: synchro initiale).
	OnLogin func(ctx context.Context, cred domain.Credential)

	results chan CallbackResult
	srv     *http.Server
	ln      net.Listener
}

func NewCallbackServer(logger zerolog.Logger, auth authCompleter, redirectURI string) (*CallbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("redirect uri: %w", err)
	}
	if u.Scheme != "http" || u.Host == "" {
		return nil, fmt.Errorf("redirect uri must be a local http url, got %q", redirectURI)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return &CallbackServer{
		logger:  logger,
		auth:    auth,
		addr:    u.Host,
		path:    path,
		results: make(chan CallbackResult, 1),
	}, nil
}

func (c *CallbackServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(c.path, c.handleCallback)
	return r
}

// Results reçoit l'issue de chaque redirection (la plus récente si personne
// ne lit).
func (c *CallbackServer) Results() <-chan CallbackResult { return c.results }

func (c *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	cred, err := c.auth.CompleteAuthorization(r.Context(), r.URL.Query())
	c.deliver(CallbackResult{Credential: cred, Err: err})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err != nil {
		c.logger.Warn().Err(err).Msg("oauth callback failed")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "<!doctype html><title>anisync</title><p>Login failed: %s</p>", html.EscapeString(err.Error()))
		return
	}
	if c.OnLogin != nil {
		go c.OnLogin(context.WithoutCancel(r.Context()), cred)
	}
	fmt.Fprint(w, "<!doctype html><title>anisync</title><p>Logged in. You can close this window.</p>")
}

func (c *CallbackServer) deliver(res CallbackResult) {
	for {
		select {
		case c.results <- res:
			return
		default:
		}
		select {
		case <-c.results:
		default:
		}
	}
}

// Start ouvre le listener et sert en arrière-plan.
func (c *CallbackServer) Start() error {
	ln, err := net.Listen("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("callback listen %s: %w", c.addr, err)
	}
	c.ln = ln
	c.srv = &http.Server{Handler: c.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := c.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error().Err(err).Msg("callback server stopped")
		}
	}()
	c.logger.Info().Str("addr", ln.Addr().String()).Str("path", c.path).Msg("oauth callback listening")
	return nil
}

func (c *CallbackServer) Addr() string {
	if c.ln == nil {
		return c.addr
	}
	return c.ln.Addr().String()
}

// Wait bloque jusqu'à la prochaine redirection.
func (c *CallbackServer) Wait(ctx context.Context) (domain.Credential, error) {
	select {
	case <-ctx.Done():
		return domain.Credential{}, ctx.Err()
	case res := <-c.results:
		return res.Credential, res.Err
	}
}

func (c *CallbackServer) Shutdown(ctx context.Context) error {
	if c.srv == nil {
		return nil
	}
	return c.srv.Shutdown(ctx)
}

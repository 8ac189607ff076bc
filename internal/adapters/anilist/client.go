// Package anilist implémente ports.CatalogClient sur l'API GraphQL d'AniList.
package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Guilhem-Bonnet/anisync/internal/domain"
	"github.com/Guilhem-Bonnet/anisync/internal/ports"
	"github.com/Guilhem-Bonnet/anisync/internal/validation"
)

const (
	DefaultEndpoint = "https://graphql.anilist.co"

	// AniList accepte 90 requêtes par minute.
	defaultRate  = time.Minute / 90
	defaultBurst = 5

	maxBodyBytes = 8 << 20
)

type Client struct {
	auth     ports.Authorizer
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	validate *validation.Validator
	log      zerolog.Logger
	agent    string
}

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if strings.TrimSpace(endpoint) != "" {
			c.endpoint = strings.TrimSpace(endpoint)
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.client = h
		}
	}
}

// WithRateLimit remplace le budget client (every <= 0 désactive la limite).
func WithRateLimit(every time.Duration, burst int) Option {
	return func(c *Client) {
		if every <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(every), burst)
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.agent = ua
		}
	}
}

func New(auth ports.Authorizer, opts ...Option) *Client {
	c := &Client{
		auth:     auth,
		endpoint: DefaultEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(defaultRate), defaultBurst),
		validate: validation.New(),
		log:      zerolog.Nop(),
		agent:    "anisync",
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

type graphQLResponse[T any] struct {
	Data   *T             `json:"data"`
	Errors []graphQLError `json:"errors,omitempty"`
}

// query exécute une requête authentifiée et décode data dans out. La réponse
// est validée (tags `validate`) avant d'être rendue à l'appelant.
func query[T any](ctx context.Context, c *Client, op string, req graphQLRequest, out *T) error {
	return c.auth.AuthorizedRequest(ctx, func(ctx context.Context, cred domain.Credential) error {
		var resp graphQLResponse[T]
		if err := c.do(ctx, op, cred.AccessToken, req, &resp); err != nil {
			return err
		}
		if len(resp.Errors) > 0 {
			return classifyGraphQLErrors(resp.Errors)
		}
		if resp.Data == nil {
			return &ports.APIError{Kind: ports.APIValidation, Message: op + ": empty data"}
		}
		if err := c.validate.Validate(resp.Data); err != nil {
			return &ports.APIError{Kind: ports.APIValidation, Message: op + ": unexpected response shape", Err: err}
		}
		*out = *resp.Data
		return nil
	})
}

func (c *Client) do(ctx context.Context, op, token string, req graphQLRequest, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &ports.APIError{Kind: ports.APINetwork, Message: "rate limiter", Err: err}
	}

	b, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.agent)
	if strings.TrimSpace(token) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &ports.APIError{Kind: ports.APINetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &ports.APIError{Kind: ports.APINetwork, Status: resp.StatusCode, Message: "read body", Err: err}
	}

	c.log.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("anilist request")

	if resp.StatusCode >= 400 {
		apiErr := classifyStatus(resp.StatusCode, resp.Header)
		// AniList renvoie le plus souvent un corps GraphQL avec le détail.
		var gqlErr graphQLResponse[json.RawMessage]
		if json.Unmarshal(body, &gqlErr) == nil && len(gqlErr.Errors) > 0 {
			apiErr.Message = gqlErr.Errors[0].Message
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &ports.APIError{Kind: ports.APIValidation, Status: resp.StatusCode, Message: op + ": decode response", Err: err}
	}
	return nil
}

func classifyStatus(status int, h http.Header) *ports.APIError {
	e := &ports.APIError{Status: status}
	switch {
	case status == http.StatusTooManyRequests:
		e.Kind = ports.APIRateLimited
		e.RetryAfter = retryAfter(h, time.Now())
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = ports.APIUnauthorized
	case status == http.StatusNotFound:
		e.Kind = ports.APINotFound
	case status >= 500:
		e.Kind = ports.APIServerError
	default:
		e.Kind = ports.APIValidation
	}
	return e
}

// classifyGraphQLErrors traduit errors[] quand le code HTTP est 200.
func classifyGraphQLErrors(errs []graphQLError) error {
	first := errs[0]
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	msg := strings.Join(msgs, "; ")

	if first.Status >= 400 {
		e := classifyStatus(first.Status, nil)
		e.Message = msg
		return e
	}
	lower := strings.ToLower(first.Message)
	switch {
	case strings.Contains(lower, "invalid token"), strings.Contains(lower, "unauthorized"):
		return &ports.APIError{Kind: ports.APIUnauthorized, Message: msg}
	case strings.Contains(lower, "not found"):
		return &ports.APIError{Kind: ports.APINotFound, Message: msg}
	case strings.Contains(lower, "too many requests"):
		return &ports.APIError{Kind: ports.APIRateLimited, Message: msg}
	default:
		return &ports.APIError{Kind: ports.APIValidation, Message: msg}
	}
}

// retryAfter lit Retry-After (secondes ou date HTTP), puis X-RateLimit-Reset.
func retryAfter(h http.Header, now time.Time) time.Duration {
	if h == nil {
		return 0
	}
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil {
			if d := t.Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}
	if v := strings.TrimSpace(h.Get("X-RateLimit-Reset")); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(unix, 0).Sub(now); d > 0 {
				return d
			}
		}
	}
	return 0
}

func wrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *ports.APIError
	if errors.As(err, &apiErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("anilist %s: %w", op, err)
}

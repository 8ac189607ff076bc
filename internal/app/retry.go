package app

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

type RetryAction int

const (
	// RetryLater: l'entrée reste DIRTY et sera retentée après Delay.
	RetryLater RetryAction = iota
	// RetryConflict: le serveur refuse la valeur, l'entrée passe CONFLICTED.
	RetryConflict
	// RetryAbort: la passe s'arrête (reconnexion requise ou annulation).
	RetryAbort
)

func (a RetryAction) String() string {
	switch a {
	case RetryLater:
		return "retry"
	case RetryConflict:
		return "conflict"
	case RetryAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Backoff exponentiel borné avec gigue relative (0.2 = ±20%).
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// Delay renvoie l'attente avant la tentative attempt (1 = premier échec).
// rnd doit renvoyer une valeur dans [0,1).
func (b Backoff) Delay(attempt int, rnd func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base) * math.Pow(2, float64(attempt-1))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 && rnd != nil {
		d *= 1 + b.Jitter*(2*rnd()-1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

type RetryRule struct {
	Action      RetryAction
	MaxAttempts int
	Backoff     Backoff
}

// RetryPolicy associe chaque type d'erreur distante à une règle. C'est le
// seul endroit qui décide du sort d'un push raté.
type RetryPolicy struct {
	Rules    map[ports.APIErrorKind]RetryRule
	Fallback RetryRule
	Rand     func() float64
}

var defaultBackoff = Backoff{Base: 2 * time.Second, Max: 5 * time.Minute, Jitter: 0.2}

func DefaultRetryPolicy() *RetryPolicy {
	retry := RetryRule{Action: RetryLater, MaxAttempts: 5, Backoff: defaultBackoff}
	return &RetryPolicy{
		Rules: map[ports.APIErrorKind]RetryRule{
			ports.APINetwork:      retry,
			ports.APIRateLimited:  retry,
			ports.APIServerError:  retry,
			ports.APIValidation:   {Action: RetryConflict},
			ports.APINotFound:     {Action: RetryConflict},
			ports.APIUnauthorized: {Action: RetryAbort},
		},
		// Erreurs locales (cache, encodage): on garde l'entrée DIRTY.
		Fallback: retry,
	}
}

type RetryDecision struct {
	Action RetryAction
	Kind   ports.APIErrorKind
	Delay  time.Duration
	// Exhausted: MaxAttempts atteint, un sync.error doit être émis.
	Exhausted bool
}

func (p *RetryPolicy) Decide(err error, attempt int) RetryDecision {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ports.RequiresReauth(err) {
		d := RetryDecision{Action: RetryAbort}
		if ports.RequiresReauth(err) {
			d.Kind = ports.APIUnauthorized
		}
		return d
	}

	rule := p.Fallback
	var kind ports.APIErrorKind
	var retryAfter time.Duration
	if apiErr, ok := ports.AsAPIError(err); ok {
		kind = apiErr.Kind
		retryAfter = apiErr.RetryAfter
		if r, ok := p.Rules[kind]; ok {
			rule = r
		}
	}

	d := RetryDecision{Action: rule.Action, Kind: kind}
	if rule.Action != RetryLater {
		return d
	}
	d.Delay = rule.Backoff.Delay(attempt, p.Rand)
	if retryAfter > d.Delay {
		d.Delay = retryAfter
	}
	if rule.MaxAttempts > 0 && attempt >= rule.MaxAttempts {
		d.Exhausted = true
	}
	return d
}

// Package govern wraps every outbound brokerage API call: it applies the
// per-category throttle, executes the HTTP transport, and classifies the
// outcome into a small typed error taxonomy with session-recovery side
// effects. It never retries; retry policy belongs to the transport (for
// 502/503/504) or to the caller.
package govern

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"kitetrader/internal/creds"
	"kitetrader/internal/throttle"
	"kitetrader/internal/transport"
)

// Compile-time interface checks.
var _ Transport = (*transport.HTTPTransport)(nil)
var _ Throttler = (*throttle.Throttle)(nil)

// Throttler is the request-governance side of the throttle: counting checks
// that may block, and penalty escalation for upstream 429s.
type Throttler interface {
	// Check counts one request against a category, blocking the caller when
	// a ceiling boundary is hit.
	Check(category string) error

	// Penalize records one upstream rejection, pauses for the cooldown, and
	// reports whether the penalty ceiling is now exceeded.
	Penalize() bool
}

// Transport executes one HTTP request. Implementations are expected to
// handle connection-level retries for 502/503/504 themselves and to surface
// read timeouts as transport.ErrTimeout.
type Transport interface {
	Perform(ctx context.Context, method, rawurl string, payload url.Values, timeout time.Duration) (*transport.Response, error)
}

// Governor executes governed requests against the brokerage API. One
// Governor is scoped to one session and shares one Throttle across all its
// callers.
type Governor struct {
	throttle  Throttler
	transport Transport
	creds     creds.Store
	log       *slog.Logger
}

// New builds a Governor from its collaborators.
func New(th Throttler, tr Transport, cs creds.Store, log *slog.Logger) *Governor {
	if log == nil {
		log = slog.Default()
	}
	return &Governor{
		throttle:  th,
		transport: tr,
		creds:     cs,
		log:       log,
	}
}

// Execute runs one call: throttle check for the category, transport call,
// then classification. On 2xx the raw response is returned untouched. Every
// failure is a *Error; hint identifies the calling endpoint in diagnostics.
//
// Side effects per call: at most one throttle-induced sleep, at most one
// penalty increment (on 429), at most one credential deletion (on 403).
func (g *Governor) Execute(ctx context.Context, category, method, rawurl string, payload url.Values, timeout time.Duration, hint string) (*transport.Response, error) {
	if err := g.throttle.Check(category); err != nil {
		return nil, &Error{Kind: KindUnknownCategory, Hint: hint, Err: err}
	}

	// The throttle sleep may have outlived the caller's deadline; in that
	// case the HTTP call is not issued at all.
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindTimeout, Hint: hint, Err: err}
	}

	resp, err := g.transport.Perform(ctx, method, rawurl, payload, timeout)
	if err != nil {
		if errors.Is(err, transport.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Kind: KindTimeout, Hint: hint, Err: err}
		}
		return nil, &Error{Kind: KindUpstreamError, Hint: hint, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	switch resp.StatusCode {
	case 429:
		if g.throttle.Penalize() {
			return nil, &Error{
				Kind:       KindRateLimitExceeded,
				Hint:       hint,
				StatusCode: resp.StatusCode,
				Reason:     resp.Reason,
			}
		}
		return nil, &Error{
			Kind:       KindUpstreamRejected,
			Hint:       hint,
			StatusCode: resp.StatusCode,
			Reason:     resp.Reason,
		}

	case 403:
		if err := g.creds.Delete(ctx); err != nil {
			g.log.Error("deleting expired credentials", "error", err)
		}
		return nil, &Error{
			Kind:       KindSessionExpired,
			Hint:       hint,
			StatusCode: resp.StatusCode,
			Reason:     "session expired or invalid, must relogin",
		}

	case 400:
		reason := resp.Reason
		if reason == "" {
			reason = "missing or bad request parameters or values"
		}
		return nil, &Error{
			Kind:       KindBadRequest,
			Hint:       hint,
			StatusCode: resp.StatusCode,
			Reason:     reason,
		}

	default:
		return nil, &Error{
			Kind:       KindUpstreamError,
			Hint:       hint,
			StatusCode: resp.StatusCode,
			Reason:     resp.Reason,
		}
	}
}

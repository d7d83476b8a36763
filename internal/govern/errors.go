package govern

import (
	"errors"
	"fmt"
)

// Kind classifies a failed governed request. Every non-2xx outcome maps to
// exactly one Kind; callers branch on it to decide whether to retry,
// re-authenticate, or give up.
type Kind int

const (
	// KindUnknownCategory means the caller used an unregistered throttle
	// category. Programming error; not retryable.
	KindUnknownCategory Kind = iota + 1

	// KindTimeout means the transport timed out reading the response.
	// Retryable with backoff.
	KindTimeout

	// KindUpstreamRejected means the API returned 429 and the penalty
	// ceiling has not yet been reached. Retryable after the cooldown.
	KindUpstreamRejected

	// KindRateLimitExceeded means repeated 429s pushed the penalty count
	// past its ceiling. Fatal for the session; stop retrying.
	KindRateLimitExceeded

	// KindSessionExpired means the API returned 403. Persisted credentials
	// have been deleted; the caller must re-authenticate.
	KindSessionExpired

	// KindBadRequest means the API returned 400: malformed request
	// parameters. Not retryable without fixing the input.
	KindBadRequest

	// KindUpstreamError covers every other non-2xx status.
	KindUpstreamError
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindUnknownCategory:
		return "unknown category"
	case KindTimeout:
		return "timeout"
	case KindUpstreamRejected:
		return "upstream rejected"
	case KindRateLimitExceeded:
		return "rate limit exceeded"
	case KindSessionExpired:
		return "session expired"
	case KindBadRequest:
		return "bad request"
	case KindUpstreamError:
		return "upstream error"
	default:
		return "unknown"
	}
}

// Error is the typed failure produced by the governor. Hint identifies the
// calling endpoint for diagnostics; StatusCode and Reason carry the upstream
// response where one was received.
type Error struct {
	Kind       Kind
	Hint       string
	StatusCode int
	Reason     string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode > 0 && e.Reason != "":
		return fmt.Sprintf("%s | %d: %s", e.Hint, e.StatusCode, e.Reason)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s | %d: %s", e.Hint, e.StatusCode, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s | %s: %v", e.Hint, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s | %s", e.Hint, e.Kind)
	}
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err when it is (or wraps) a governor Error,
// and zero otherwise.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return 0
}

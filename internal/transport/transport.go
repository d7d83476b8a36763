// Package transport implements the HTTP side of the kitetrader client: a
// thin wrapper over net/http that encodes payloads, carries the session
// Authorization header, and retries gateway errors (502/503/504) at the
// connection level with exponential backoff. Everything above it (throttling
// and outcome classification) lives in the govern package.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"kitetrader/internal/util"
)

// ErrTimeout signals a transport-level read timeout. The governor maps it
// to its timeout error kind.
var ErrTimeout = errors.New("request timed out")

// Response is the raw HTTP outcome handed back to the governor. Cookies are
// carried for the web login flow, which receives its session token as a
// Set-Cookie header.
type Response struct {
	StatusCode int
	Reason     string // HTTP reason phrase, or upstream error message
	Body       []byte
	Cookies    []*http.Cookie
}

// retryStatuses are retried at the connection level before the response is
// surfaced to the governor.
var retryStatuses = map[int]bool{
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// HTTPTransport performs requests with a shared http.Client and a mutable
// session Authorization header.
type HTTPTransport struct {
	client *http.Client

	mu   sync.RWMutex
	auth string

	maxAttempts int
	baseDelay   time.Duration
}

// NewHTTPTransport creates a transport with connection pooling and gateway
// retry defaults (3 attempts, 100ms initial backoff).
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
			},
		},
		maxAttempts: 3,
		baseDelay:   100 * time.Millisecond,
	}
}

// SetAuth sets the Authorization header value sent with every request, e.g.
// "enctoken <token>" or "token <api_key>:<access_token>". An empty value
// clears the header.
func (t *HTTPTransport) SetAuth(value string) {
	t.mu.Lock()
	t.auth = value
	t.mu.Unlock()
}

// Perform executes one request. GET and DELETE encode the payload as a query
// string; POST and PUT send it as a form body. 502/503/504 responses are
// retried with backoff before being returned. Read timeouts surface as
// ErrTimeout.
func (t *HTTPTransport) Perform(ctx context.Context, method, rawurl string, payload url.Values, timeout time.Duration) (*Response, error) {
	var resp *Response

	err := util.Retry(ctx, t.maxAttempts, t.baseDelay, func() error {
		r, err := t.do(ctx, method, rawurl, payload, timeout)
		if err != nil {
			return err
		}
		resp = r
		if retryStatuses[r.StatusCode] {
			return fmt.Errorf("gateway error %d", r.StatusCode)
		}
		return nil
	})

	// A gateway status on the final attempt is still a response, not a
	// transport failure; the governor classifies it.
	if err != nil && resp != nil && retryStatuses[resp.StatusCode] {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (t *HTTPTransport) do(ctx context.Context, method, rawurl string, payload url.Values, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader
	switch method {
	case http.MethodPost, http.MethodPut:
		if payload != nil {
			body = strings.NewReader(payload.Encode())
		}
	default:
		if payload != nil {
			u, err := url.Parse(rawurl)
			if err != nil {
				return nil, fmt.Errorf("parsing url %q: %w", rawurl, err)
			}
			q := u.Query()
			for k, vs := range payload {
				for _, v := range vs {
					q.Add(k, v)
				}
			}
			u.RawQuery = q.Encode()
			rawurl = u.String()
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawurl, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("X-Kite-Version", "3")

	t.mu.RLock()
	if t.auth != "" {
		req.Header.Set("Authorization", t.auth)
	}
	t.mu.RUnlock()

	res, err := t.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	reason := strings.TrimPrefix(res.Status, fmt.Sprintf("%d ", res.StatusCode))

	return &Response{
		StatusCode: res.StatusCode,
		Reason:     reason,
		Body:       b,
		Cookies:    res.Cookies(),
	}, nil
}

// isTimeout reports whether err represents a deadline or read timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

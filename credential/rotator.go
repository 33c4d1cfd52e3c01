package credential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// rotationWindow is the width of the time bucket that selects the starting token.
	rotationWindow = time.Minute

	defaultTimeout = 12 * time.Second

	// maxErrorBody caps how much of an upstream error body is kept on UpstreamError.
	maxErrorBody = 512
)

var (
	// ErrNoCredentials is returned when a rotator is built from an empty pool.
	ErrNoCredentials = errors.New("credential pool is empty")

	// ErrCredentialsExhausted is returned when every token in the pool failed with a recoverable error.
	ErrCredentialsExhausted = errors.New("all credentials exhausted")
)

// UpstreamError carries a non-recoverable upstream response. The upstream's own status and body are authoritative.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.StatusCode, e.Body)
}

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestFunc builds a fresh request for a single attempt with the given token.
// It is invoked once per attempted token, so bodies must not be shared between calls.
type RequestFunc func(ctx context.Context, token string) (*http.Request, error)

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Attempts is the number of tokens tried, including the successful one.
	Attempts int
}

// Stats is a snapshot of rotator counters.
type Stats struct {
	Calls       int64
	Attempts    int64
	Recoverable int64
	Exhausted   int64
}

// Rotator round-robins a pool of upstream tokens, skipping ones that fail with auth or rate-limit errors.
type Rotator struct {
	name       string
	pool       []string
	httpClient doer
	timeout    time.Duration
	now        func() time.Time

	calls       atomic.Int64
	attempts    atomic.Int64
	recoverable atomic.Int64
	exhausted   atomic.Int64
}

type RotatorOpts struct {
	// Name identifies the upstream in logs.
	Name       string
	Pool       []string
	HTTPClient doer
	// Timeout bounds each attempt. Defaults to 12s.
	Timeout time.Duration
	// Now is the clock used to pick the starting token. Defaults to time.Now.
	Now func() time.Time
}

func NewRotator(opts RotatorOpts) (*Rotator, error) {
	if len(opts.Pool) == 0 {
		return nil, fmt.Errorf("%s: %w", opts.Name, ErrNoCredentials)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	pool := make([]string, len(opts.Pool))
	copy(pool, opts.Pool)

	return &Rotator{
		name:       opts.Name,
		pool:       pool,
		httpClient: opts.HTTPClient,
		timeout:    opts.Timeout,
		now:        opts.Now,
	}, nil
}

// Size returns the number of tokens in the pool.
func (r *Rotator) Size() int { return len(r.pool) }

// Start returns the index of the token the current call would try first.
func (r *Rotator) Start() int {
	bucket := r.now().UnixNano() / int64(rotationWindow)
	return int(bucket % int64(len(r.pool)))
}

// Call tries each token exactly once, starting at the time-derived offset.
// Network failures, timeouts, 401, 403 and 429 move on to the next token; any other
// non-2xx status aborts with an *UpstreamError. Failure state is not remembered across calls.
func (r *Rotator) Call(ctx context.Context, build RequestFunc) (*Response, error) {
	r.calls.Add(1)

	// In-flight upstream calls run to completion or timeout regardless of the caller going away.
	base := context.WithoutCancel(ctx)

	start := r.Start()
	var lastErr error
	for i := 0; i < len(r.pool); i++ {
		idx := (start + i) % len(r.pool)
		r.attempts.Add(1)

		resp, err := r.attempt(base, build, r.pool[idx])
		if err == nil {
			resp.Attempts = i + 1
			return resp, nil
		}

		var upErr *UpstreamError
		if errors.As(err, &upErr) && !recoverableStatus(upErr.StatusCode) {
			slog.Warn("ROTATOR: Fatal upstream status", "upstream", r.name, "status", upErr.StatusCode, "token_index", idx)
			return nil, err
		}

		r.recoverable.Add(1)
		slog.Info("ROTATOR: Recoverable failure, rotating", "upstream", r.name, "token_index", idx, "error", err)
		lastErr = err
	}

	r.exhausted.Add(1)
	slog.Warn("ROTATOR: All credentials exhausted", "upstream", r.name, "pool_size", len(r.pool))
	return nil, fmt.Errorf("%s: %w: %w", r.name, ErrCredentialsExhausted, lastErr)
}

func (r *Rotator) attempt(ctx context.Context, build RequestFunc, token string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := build(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Stats returns a snapshot of the rotator counters.
func (r *Rotator) Stats() Stats {
	return Stats{
		Calls:       r.calls.Load(),
		Attempts:    r.attempts.Load(),
		Recoverable: r.recoverable.Load(),
		Exhausted:   r.exhausted.Load(),
	}
}

func recoverableStatus(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return false
}

// ParsePool splits a raw secret into tokens. Commas, semicolons and newlines all separate entries.
func ParsePool(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\r'
	})
	pool := make([]string, 0, len(fields))
	for _, f := range fields {
		if t := strings.TrimSpace(f); t != "" {
			pool = append(pool, t)
		}
	}
	return pool
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

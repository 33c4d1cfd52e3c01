package credential

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDoer struct {
	mu     sync.Mutex
	tokens []string
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.tokens = append(m.tokens, req.Header.Get("Authorization"))
	m.mu.Unlock()
	return m.doFunc(req)
}

func respond(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(body)), Header: http.Header{}}
}

func bearer(ctx context.Context, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://upstream.test/v2/barcode_scan/123", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// fixedClock returns a clock set to the given minute since epoch.
func fixedClock(minute int64) func() time.Time {
	return func() time.Time { return time.Unix(minute*60+17, 0) }
}

func TestNewRotator_EmptyPool(t *testing.T) {
	_, err := NewRotator(RotatorOpts{Name: "logmeal"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestRotator_Start(t *testing.T) {
	pool := []string{"a", "b", "c"}
	tests := []struct {
		minute int64
		want   int
	}{
		{minute: 0, want: 0},
		{minute: 1, want: 1},
		{minute: 2, want: 2},
		{minute: 3, want: 0},
		{minute: 10, want: 1},
	}

	for _, tt := range tests {
		r, err := NewRotator(RotatorOpts{Name: "t", Pool: pool, HTTPClient: &mockDoer{}, Now: fixedClock(tt.minute)})
		require.NoError(t, err)
		assert.Equal(t, tt.want, r.Start(), "minute %d", tt.minute)
	}

	t.Run("same minute prefers same token", func(t *testing.T) {
		base := time.Unix(600, 0)
		offset := 0 * time.Second
		r, err := NewRotator(RotatorOpts{Name: "t", Pool: pool, HTTPClient: &mockDoer{}, Now: func() time.Time { return base.Add(offset) }})
		require.NoError(t, err)

		first := r.Start()
		offset = 59 * time.Second
		assert.Equal(t, first, r.Start())
	})
}

func TestRotator_Call(t *testing.T) {
	tests := []struct {
		name         string
		pool         []string
		statuses     map[string]int
		netErr       map[string]bool
		wantErr      error
		wantUpstream int
		wantTokens   []string
		wantBody     string
	}{
		{
			name:       "first token succeeds",
			pool:       []string{"t0", "t1", "t2"},
			statuses:   map[string]int{"t0": 200},
			wantTokens: []string{"Bearer t0"},
			wantBody:   "ok:t0",
		},
		{
			name:       "N-1 rate limited then success",
			pool:       []string{"t0", "t1", "t2", "t3"},
			statuses:   map[string]int{"t0": 429, "t1": 429, "t2": 429, "t3": 200},
			wantTokens: []string{"Bearer t0", "Bearer t1", "Bearer t2", "Bearer t3"},
			wantBody:   "ok:t3",
		},
		{
			name:       "auth failures and network errors are recoverable",
			pool:       []string{"t0", "t1", "t2", "t3"},
			statuses:   map[string]int{"t0": 401, "t1": 403, "t3": 201},
			netErr:     map[string]bool{"t2": true},
			wantTokens: []string{"Bearer t0", "Bearer t1", "Bearer t2", "Bearer t3"},
			wantBody:   "ok:t3",
		},
		{
			name:       "all tokens exhausted",
			pool:       []string{"t0", "t1"},
			statuses:   map[string]int{"t0": 429, "t1": 401},
			wantErr:    ErrCredentialsExhausted,
			wantTokens: []string{"Bearer t0", "Bearer t1"},
		},
		{
			name:         "fatal status aborts immediately",
			pool:         []string{"t0", "t1", "t2"},
			statuses:     map[string]int{"t0": 404, "t1": 200},
			wantUpstream: 404,
			wantTokens:   []string{"Bearer t0"},
		},
		{
			name:         "fatal after recoverable",
			pool:         []string{"t0", "t1", "t2"},
			statuses:     map[string]int{"t0": 429, "t1": 500, "t2": 200},
			wantUpstream: 500,
			wantTokens:   []string{"Bearer t0", "Bearer t1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &mockDoer{doFunc: func(req *http.Request) (*http.Response, error) {
				token := req.Header.Get("Authorization")[len("Bearer "):]
				if tt.netErr[token] {
					return nil, errors.New("connection reset")
				}
				status := tt.statuses[token]
				if status == 0 {
					status = http.StatusTooManyRequests
				}
				if status >= 200 && status < 300 {
					return respond(status, "ok:"+token), nil
				}
				return respond(status, "nope:"+token), nil
			}}

			r, err := NewRotator(RotatorOpts{Name: "test", Pool: tt.pool, HTTPClient: doer, Now: fixedClock(0)})
			require.NoError(t, err)

			resp, err := r.Call(context.Background(), bearer)
			assert.Equal(t, tt.wantTokens, doer.tokens)
			assert.LessOrEqual(t, len(doer.tokens), len(tt.pool))

			switch {
			case tt.wantErr != nil:
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantUpstream != 0:
				require.Error(t, err)
				var upErr *UpstreamError
				require.ErrorAs(t, err, &upErr)
				assert.Equal(t, tt.wantUpstream, upErr.StatusCode)
				assert.NotErrorIs(t, err, ErrCredentialsExhausted)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantBody, string(resp.Body))
				assert.Equal(t, len(tt.wantTokens), resp.Attempts)
			}
		})
	}
}

func TestRotator_CallStartsAtTimeOffset(t *testing.T) {
	doer := &mockDoer{doFunc: func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") == "Bearer t0" {
			return respond(200, "ok"), nil
		}
		return respond(429, "slow down"), nil
	}}

	r, err := NewRotator(RotatorOpts{Name: "test", Pool: []string{"t0", "t1", "t2"}, HTTPClient: doer, Now: fixedClock(1)})
	require.NoError(t, err)

	resp, err := r.Call(context.Background(), bearer)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer t1", "Bearer t2", "Bearer t0"}, doer.tokens)
	assert.Equal(t, 3, resp.Attempts)
}

func TestRotator_FailureStateNotRemembered(t *testing.T) {
	limited := true
	doer := &mockDoer{doFunc: func(req *http.Request) (*http.Response, error) {
		if limited {
			return respond(429, "slow down"), nil
		}
		return respond(200, "ok"), nil
	}}

	r, err := NewRotator(RotatorOpts{Name: "test", Pool: []string{"t0", "t1"}, HTTPClient: doer, Now: fixedClock(0)})
	require.NoError(t, err)

	_, err = r.Call(context.Background(), bearer)
	require.ErrorIs(t, err, ErrCredentialsExhausted)

	limited = false
	doer.tokens = nil
	_, err = r.Call(context.Background(), bearer)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer t0"}, doer.tokens)

	stats := r.Stats()
	assert.Equal(t, int64(2), stats.Calls)
	assert.Equal(t, int64(3), stats.Attempts)
	assert.Equal(t, int64(2), stats.Recoverable)
	assert.Equal(t, int64(1), stats.Exhausted)
}

func TestRotator_CallIgnoresCallerCancellation(t *testing.T) {
	doer := &mockDoer{doFunc: func(req *http.Request) (*http.Response, error) {
		if err := req.Context().Err(); err != nil {
			return nil, err
		}
		return respond(200, "ok"), nil
	}}

	r, err := NewRotator(RotatorOpts{Name: "test", Pool: []string{"t0"}, HTTPClient: doer})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := r.Call(ctx, bearer)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
}

func TestParsePool(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "comma separated", raw: "a, b ,c", want: []string{"a", "b", "c"}},
		{name: "mixed separators", raw: "a;b\nc\r\n", want: []string{"a", "b", "c"}},
		{name: "empty", raw: " , ;", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePool(tt.raw))
		})
	}
}

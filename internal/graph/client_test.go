package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopSleep is a sleep function that returns immediately, for fast tests.
func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

// staticToken is a test TokenSource that returns a fixed token.
type staticToken string

func (t staticToken) Token() (string, error) {
	return string(t), nil
}

// failingToken is a test TokenSource that always returns an error.
type failingToken struct{}

func (failingToken) Token() (string, error) {
	return "", errors.New("token error")
}

// newTestClient creates a Client pointing at the given httptest server
// with instant retry sleeps for fast tests.
func newTestClient(t *testing.T, url string) *Client {
	t.Helper()

	c := NewClient(url, http.DefaultClient, staticToken("test-token"), slog.Default())
	c.sleepFunc = noopSleep

	return c
}

func TestDo_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	resp, err := client.Do(context.Background(), http.MethodGet, "/me", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"value":"ok"}`, string(body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDo_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"bad request", http.StatusBadRequest, ErrBadRequest},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrForbidden},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"conflict", http.StatusConflict, ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("request-id", "test-req-id")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"something"}`))
			}))
			defer srv.Close()

			client := newTestClient(t, srv.URL)
			_, err := client.Do(context.Background(), http.MethodGet, "/test", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var graphErr *GraphError
			require.ErrorAs(t, err, &graphErr)
			assert.Equal(t, tt.status, graphErr.StatusCode)
			assert.Equal(t, "test-req-id", graphErr.RequestID)
		})
	}
}

func TestDo_RetryOn5xx(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	resp, err := client.Do(context.Background(), http.MethodGet, "/flaky", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Do(context.Background(), http.MethodGet, "/down", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(maxRetries+1), calls.Load())
}

func TestDo_RetryAfterHeader(t *testing.T) {
	var calls atomic.Int32

	var slept []time.Duration

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	client.sleepFunc = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	resp, err := client.Do(context.Background(), http.MethodGet, "/throttled", nil)
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, slept, 1)
	assert.Equal(t, 7*time.Second, slept[0])
}

func TestDo_NoRetryWithBody(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Do(context.Background(), http.MethodPost, "/upload", strings.NewReader("payload"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(1), calls.Load(), "requests with a body must not be retried")
}

func TestDo_TokenFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request should reach the server when the token source fails")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, http.DefaultClient, failingToken{}, slog.Default())
	client.sleepFunc = noopSleep

	_, err := client.Do(context.Background(), http.MethodGet, "/me", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "obtaining token")
}

// authFailToken counts Token calls and always fails with ErrAuth.
type authFailToken struct {
	calls atomic.Int32
}

func (a *authFailToken) Token() (string, error) {
	a.calls.Add(1)
	return "", fmt.Errorf("%w: certificate rejected", ErrAuth)
}

func TestDo_AuthFailureNotRetried(t *testing.T) {
	token := &authFailToken{}

	client := NewClient("http://unused", http.DefaultClient, token, slog.Default())
	client.sleepFunc = noopSleep

	_, err := client.Do(context.Background(), http.MethodGet, "/me", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, int32(1), token.calls.Load(), "credential failures must not be retried")
}

func TestDo_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(t, srv.URL)
	_, err := client.Do(ctx, http.MethodGet, "/me", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalcBackoff_Bounds(t *testing.T) {
	client := newTestClient(t, "http://unused")

	for attempt := 0; attempt < 10; attempt++ {
		b := client.calcBackoff(attempt)
		assert.Positive(t, b)
		assert.LessOrEqual(t, b, time.Duration(float64(maxBackoff)*(1+jitterFraction)))
	}
}

package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/workroom/internal/cache"
	"github.com/prn-tf/workroom/internal/config"
	"github.com/prn-tf/workroom/internal/domain"
)

func newTestValidator(t *testing.T, upstream http.HandlerFunc, verdicts *cache.Memory) *HTTPValidator {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	return NewHTTPValidator(config.ProbeConfig{
		BaseURL:          srv.URL,
		Model:            "test-model",
		Timeout:          2 * time.Second,
		CacheTTL:         time.Minute,
		BreakerThreshold: 3,
		BreakerCooldown:  time.Minute,
	}, verdicts, zerolog.Nop())
}

func TestValidateAcceptsKey(t *testing.T) {
	var gotKey atomic.Value
	v := newTestValidator(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("X-Goog-Api-Key"))
		w.WriteHeader(http.StatusOK)
	}, nil)

	err := v.Validate(context.Background(), "sk-good")
	require.NoError(t, err)
	require.Equal(t, "sk-good", gotKey.Load())
}

func TestValidateRejectsKey(t *testing.T) {
	v := newTestValidator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}, nil)

	err := v.Validate(context.Background(), "sk-bad")
	require.ErrorIs(t, err, domain.ErrInvalidAPIKey)
}

func TestValidateEmptyKey(t *testing.T) {
	v := newTestValidator(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("empty key must not reach the upstream")
	}, nil)

	err := v.Validate(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrInvalidAPIKey)
}

func TestValidateUpstreamError(t *testing.T) {
	v := newTestValidator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, nil)

	err := v.Validate(context.Background(), "sk-any")
	require.ErrorIs(t, err, domain.ErrExternalService)
}

func TestValidateUnreachableUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	v := NewHTTPValidator(config.ProbeConfig{
		BaseURL:          srv.URL,
		Model:            "test-model",
		Timeout:          500 * time.Millisecond,
		BreakerThreshold: 3,
		BreakerCooldown:  time.Minute,
	}, nil, zerolog.Nop())

	err := v.Validate(context.Background(), "sk-any")
	require.ErrorIs(t, err, domain.ErrExternalService)
}

func TestValidateUsesCache(t *testing.T) {
	var calls atomic.Int32
	verdicts := cache.NewMemory()
	defer verdicts.Stop()

	v := newTestValidator(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}, verdicts)

	ctx := context.Background()
	require.NoError(t, v.Validate(ctx, "sk-good"))
	require.NoError(t, v.Validate(ctx, "sk-good"))
	require.NoError(t, v.Validate(ctx, "sk-good"))

	require.Equal(t, int32(1), calls.Load(), "repeat validations must hit the cache")

	// A different key misses the cache.
	require.NoError(t, v.Validate(ctx, "sk-other"))
	require.Equal(t, int32(2), calls.Load())
}

func TestInvalidVerdictIsNotCached(t *testing.T) {
	var calls atomic.Int32
	verdicts := cache.NewMemory()
	defer verdicts.Stop()

	v := newTestValidator(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}, verdicts)

	ctx := context.Background()
	require.ErrorIs(t, v.Validate(ctx, "sk-bad"), domain.ErrInvalidAPIKey)
	require.ErrorIs(t, v.Validate(ctx, "sk-bad"), domain.ErrInvalidAPIKey)
	require.Equal(t, int32(2), calls.Load())
}

func TestCircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	v := newTestValidator(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, v.Validate(ctx, "sk-any"), domain.ErrExternalService)
	}
	require.Equal(t, int32(3), calls.Load())

	// Breaker is now open: probes fail fast without touching the upstream.
	require.ErrorIs(t, v.Validate(ctx, "sk-any"), domain.ErrExternalService)
	require.Equal(t, int32(3), calls.Load())
}

func TestCircuitBreakerResetsOnSuccess(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	v := newTestValidator(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}, nil)

	ctx := context.Background()
	require.ErrorIs(t, v.Validate(ctx, "sk-any"), domain.ErrExternalService)
	require.ErrorIs(t, v.Validate(ctx, "sk-any"), domain.ErrExternalService)

	fail.Store(false)
	require.NoError(t, v.Validate(ctx, "sk-any"))

	// The failure count is back to zero; two more failures must not open it.
	fail.Store(true)
	require.ErrorIs(t, v.Validate(ctx, "sk-any"), domain.ErrExternalService)
	require.ErrorIs(t, v.Validate(ctx, "sk-any"), domain.ErrExternalService)
	fail.Store(false)
	require.NoError(t, v.Validate(ctx, "sk-any"))
}

func TestSend(t *testing.T) {
	v := newTestValidator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"use the temp folder"}]}}]}`))
	}, nil)

	reply, err := v.Send(context.Background(), "sk-good", "where do uploads go?")
	require.NoError(t, err)
	require.Equal(t, "use the temp folder", reply)
}

func TestSendRejectedKey(t *testing.T) {
	v := newTestValidator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, nil)

	_, err := v.Send(context.Background(), "sk-bad", "hello")
	require.ErrorIs(t, err, domain.ErrInvalidAPIKey)
}

func TestSendEmptyCandidates(t *testing.T) {
	v := newTestValidator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[]}`))
	}, nil)

	_, err := v.Send(context.Background(), "sk-good", "hello")
	require.ErrorIs(t, err, domain.ErrExternalService)
}

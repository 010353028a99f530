package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifyDeliversPayload(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL, time.Second)
	err := n.Notify(context.Background(), "Signup record recovered after retries", "record usr_1 landed")
	require.NoError(t, err)
	assert.Equal(t, "Signup record recovered after retries", got.Subject)
	assert.Equal(t, "record usr_1 landed", got.Body)
}

func TestWebhookNotifyReportsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL, time.Second)
	err := n.Notify(context.Background(), "subject", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookNotifyOpensBreakerAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	breaker := NewCircuitBreaker(3, time.Hour)
	n := NewWebhook(srv.URL, time.Second, WithBreaker(breaker))

	for range 3 {
		require.Error(t, n.Notify(context.Background(), "s", "b"))
	}
	require.True(t, breaker.IsOpen())

	// Open circuit: dropped without touching the endpoint.
	err := n.Notify(context.Background(), "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
	assert.EqualValues(t, 3, calls.Load())
}

func TestWebhookNotifyRecoversAfterCooldown(t *testing.T) {
	var status atomic.Int64
	status.Store(http.StatusInternalServerError)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	breaker := NewCircuitBreaker(2, 10*time.Millisecond)
	n := NewWebhook(srv.URL, time.Second, WithBreaker(breaker))

	require.Error(t, n.Notify(context.Background(), "s", "b"))
	require.Error(t, n.Notify(context.Background(), "s", "b"))
	require.True(t, breaker.IsOpen())

	status.Store(http.StatusOK)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, n.Notify(context.Background(), "s", "b"))
	assert.False(t, breaker.IsOpen())
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrolld/internal/enroll/metrics"
	"enrolld/internal/enroll/queue"
	"enrolld/internal/enroll/record"
	"enrolld/internal/enroll/scheduler"
	"enrolld/internal/enroll/service"
	"enrolld/internal/enroll/store"
)

type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }

func newTestRouter(t *testing.T, checks map[string]Health) (chi.Router, *store.InMemory) {
	t.Helper()

	records := store.NewInMemory()
	m := metrics.NewWith(prometheus.NewRegistry())
	log := slog.New(slog.DiscardHandler)
	sched := scheduler.New(queue.NewInMemory(), scheduler.DefaultPolicy(), log, m)
	svc := service.New(record.NewBuilder(), records, sched, m, log, time.Second)

	r := chi.NewRouter()
	New(svc, log, checks).Register(r)
	return r, records
}

func postEvent(r chi.Router, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/events/signup-confirmed", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleSignupConfirmedAccepted(t *testing.T) {
	r, records := newTestRouter(t, nil)

	rec := postEvent(r, `{"email":"jane.doe@example.com","subject":"sub-1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body service.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, service.StatusAccepted, body.Status)
	assert.False(t, body.Deferred)

	stored, err := records.FindBySubject(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", stored.Email)
}

func TestHandleSignupConfirmedRedelivery(t *testing.T) {
	r, records := newTestRouter(t, nil)

	for range 3 {
		rec := postEvent(r, `{"email":"a@x.com","subject":"sub-1"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	assert.Equal(t, 1, records.Len())
}

func TestHandleSignupConfirmedMalformedBody(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	rec := postEvent(r, `{"email":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "bad_request", body["error"])
}

func TestHandleSignupConfirmedMissingFields(t *testing.T) {
	r, records := newTestRouter(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing email", body: `{"subject":"sub-1"}`},
		{name: "missing subject", body: `{"email":"a@x.com"}`},
		{name: "empty object", body: `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postEvent(r, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Equal(t, 0, records.Len())
}

func TestHandleSignupConfirmedRequiresJSONContentType(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/events/signup-confirmed",
		strings.NewReader(`{"email":"a@x.com","subject":"sub-1"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	t.Run("ok when all checks pass", func(t *testing.T) {
		r, _ := newTestRouter(t, map[string]Health{
			"postgres": healthFunc(func(ctx context.Context) error { return nil }),
			"redis":    healthFunc(func(ctx context.Context) error { return nil }),
		})

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("degraded when a dependency is down", func(t *testing.T) {
		r, _ := newTestRouter(t, map[string]Health{
			"postgres": healthFunc(func(ctx context.Context) error { return nil }),
			"redis":    healthFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
		})

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "degraded", body["status"])
		assert.Contains(t, body["redis"], "connection refused")
	})
}

func TestMetricsEndpointIsRegistered(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

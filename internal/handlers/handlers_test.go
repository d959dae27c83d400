package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-reconciliation/internal/database"
	"identity-reconciliation/internal/handlers"
	"identity-reconciliation/internal/metrics"
	"identity-reconciliation/internal/models"
	"identity-reconciliation/internal/repository"
	"identity-reconciliation/internal/service"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type identifierFunc func(ctx context.Context, req models.IdentifyRequest) (*models.IdentifyResponse, error)

func (f identifierFunc) Identify(ctx context.Context, req models.IdentifyRequest) (*models.IdentifyResponse, error) {
	return f(ctx, req)
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newServer(t *testing.T, id handlers.Identifier, ping handlers.Pinger) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics.New(reg)
	srv := httptest.NewServer(handlers.NewRouter(handlers.Routes{
		Identify: handlers.NewIdentifyHandler(id, quiet),
		Health:   handlers.NewHealthHandler(ping, quiet),
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:   quiet,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func alive(context.Context) error { return nil }

func post(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/identify", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestIdentifyEndToEnd(t *testing.T) {
	svc := service.NewReconciliationService(repository.NewMemoryStore(), service.WithLogger(quiet))
	srv := newServer(t, svc, pingerFunc(alive))

	resp := post(t, srv, `{"email":"lorraine@hillvalley.edu","phoneNumber":"123456"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get(handlers.RequestIDHeader))

	resp = post(t, srv, `{"email":"mcfly@hillvalley.edu","phoneNumber":123456}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)

	assert.Equal(t, map[string]any{
		"contact": map[string]any{
			"primaryContatctId":   float64(1),
			"emails":              []any{"lorraine@hillvalley.edu", "mcfly@hillvalley.edu"},
			"phoneNumbers":        []any{"123456"},
			"secondaryContactIds": []any{float64(2)},
		},
	}, body)
}

func TestIdentifyEmptyListsEncodeAsArrays(t *testing.T) {
	svc := service.NewReconciliationService(repository.NewMemoryStore(), service.WithLogger(quiet))
	srv := newServer(t, svc, pingerFunc(alive))

	resp := post(t, srv, `{"email":"only@mail.io","phoneNumber":null}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	contact := decode(t, resp)["contact"].(map[string]any)
	assert.Equal(t, []any{}, contact["phoneNumbers"])
	assert.Equal(t, []any{}, contact["secondaryContactIds"])
}

func TestIdentifyErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "malformed json", body: `{"email":`, status: http.StatusBadRequest},
		{name: "phone of wrong type", body: `{"phoneNumber":true}`, status: http.StatusBadRequest},
		{name: "empty fragment", body: `{}`, err: service.ErrEmptyFragment, status: http.StatusBadRequest},
		{name: "timeout", body: `{"email":"a@x.io"}`, err: &database.DBError{Sentinel: database.ErrTimeout, Cause: context.DeadlineExceeded}, status: http.StatusServiceUnavailable},
		{name: "store failure", body: `{"email":"a@x.io"}`, err: errors.New("disk full"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, identifierFunc(func(context.Context, models.IdentifyRequest) (*models.IdentifyResponse, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return (models.ConsolidatedView{PrimaryContactID: 1}).Response(), nil
			}), pingerFunc(alive))

			resp := post(t, srv, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestIdentifyRejectsOtherMethods(t *testing.T) {
	srv := newServer(t, identifierFunc(nil), pingerFunc(alive))

	resp, err := http.Get(srv.URL + "/identify")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRequestIDIsPropagated(t *testing.T) {
	var seen string
	srv := newServer(t, identifierFunc(func(ctx context.Context, _ models.IdentifyRequest) (*models.IdentifyResponse, error) {
		seen = handlers.RequestIDFromContext(ctx)
		return (models.ConsolidatedView{PrimaryContactID: 1}).Response(), nil
	}), pingerFunc(alive))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/identify", strings.NewReader(`{"email":"a@x.io"}`))
	require.NoError(t, err)
	req.Header.Set(handlers.RequestIDHeader, "req-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "req-42", resp.Header.Get(handlers.RequestIDHeader))
	assert.Equal(t, "req-42", seen)
}

func TestRecoverTurnsPanicInto500(t *testing.T) {
	srv := newServer(t, identifierFunc(func(context.Context, models.IdentifyRequest) (*models.IdentifyResponse, error) {
		panic("boom")
	}), pingerFunc(alive))

	resp := post(t, srv, `{"email":"a@x.io"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		ping   error
		status int
		want   string
	}{
		{name: "store reachable", status: http.StatusOK, want: "ok"},
		{name: "store down", ping: fmt.Errorf("dial: %w", database.ErrConnectionFailed), status: http.StatusServiceUnavailable, want: "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, identifierFunc(nil), pingerFunc(func(context.Context) error { return tt.ping }))

			resp, err := http.Get(srv.URL + "/health")
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.want, decode(t, resp)["status"])
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newServer(t, identifierFunc(nil), pingerFunc(alive))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

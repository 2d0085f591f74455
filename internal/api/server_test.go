package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openbiblio/zotero-harvester/internal/metrics"
)

func get(t *testing.T, srv *Server, path string) *http.Response {
	t.Helper()
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	metrics.Init()
	srv := New(Config{}, nil, nil)
	resp := get(t, srv, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestReadyEndpointReflectsChecks(t *testing.T) {
	t.Parallel()
	metrics.Init()

	healthy := New(Config{}, nil, nil, func(context.Context) error { return nil })
	resp := get(t, healthy, "/readyz")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	broken := New(Config{}, nil, nil, func(context.Context) error {
		return errors.New("database unreachable")
	})
	resp = get(t, broken, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "database unreachable")
}

func TestRunsEndpointWithoutRegistry(t *testing.T) {
	t.Parallel()
	metrics.Init()
	srv := New(Config{}, nil, nil)
	resp := get(t, srv, "/runs")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.JSONEq(t, `{"runs":[]}`, string(body))
}

func TestMetricsEndpointServes(t *testing.T) {
	t.Parallel()
	metrics.Init()
	srv := New(Config{}, nil, nil)
	resp := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NotEmpty(t, body)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leobrain/crawler/internal/service"
)

type stubRunner struct {
	reports map[string]service.Report
	errs    map[string]error
	ran     []string
}

func (r *stubRunner) Run(_ context.Context, sourceName string) (service.Report, error) {
	r.ran = append(r.ran, sourceName)
	if err, ok := r.errs[sourceName]; ok {
		report := r.reports[sourceName]
		report.Source = sourceName
		return report, err
	}
	report, ok := r.reports[sourceName]
	if !ok {
		return service.Report{Source: sourceName, Status: "unknown_source"},
			fmt.Errorf("unknown source %q", sourceName)
	}
	return report, nil
}

func (r *stubRunner) Sources() []string {
	return []string{"example-news"}
}

func newTestServer(runner *stubRunner) *Server {
	return New(0, runner, zap.NewNop())
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubRunner{})
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubRunner{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListSources(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubRunner{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sources", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sources []string `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"example-news"}, body.Sources)
}

func TestTriggerCrawl(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{reports: map[string]service.Report{
		"example-news": {
			Source:         "example-news",
			Status:         "drained",
			ItemsExtracted: 5,
			ItemsPersisted: 4,
		},
	}}
	srv := newTestServer(runner)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl/example-news", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"example-news"}, runner.ran)

	var report service.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "drained", report.Status)
	assert.Equal(t, 4, report.ItemsPersisted)
}

func TestTriggerCrawlUnknownSource(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubRunner{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerCrawlRunError(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{
		reports: map[string]service.Report{
			"example-news": {Status: "error", RequestsAttempted: 1},
		},
		errs: map[string]error{"example-news": errors.New("boom")},
	}
	srv := newTestServer(runner)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl/example-news", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var report service.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.RequestsAttempted, "failed runs still report partial counters")
}

func TestCrawlRequiresPost(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubRunner{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/crawl/example-news", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

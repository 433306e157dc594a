package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/competitor-url-checker/internal/checker"
	"github.com/JakeFAU/competitor-url-checker/internal/config"
	"github.com/JakeFAU/competitor-url-checker/internal/dispatcher"
	queueMemory "github.com/JakeFAU/competitor-url-checker/internal/queue/memory"
	memstore "github.com/JakeFAU/competitor-url-checker/internal/storage/memory"
)

type fakeChecker struct {
	mu    sync.Mutex
	seen  []string
	dates map[string]string
}

func (f *fakeChecker) ExtractLastUpdated(_ context.Context, url string) checker.URLRecord {
	f.mu.Lock()
	f.seen = append(f.seen, url)
	f.mu.Unlock()
	if d, ok := f.dates[url]; ok {
		return checker.DateRecord(url, d)
	}
	return checker.ErrorRecord(url, checker.InvalidURLMessage)
}

func (f *fakeChecker) ProcessURLs(ctx context.Context, urls []string) []checker.URLRecord {
	out := make([]checker.URLRecord, len(urls))
	for i, u := range urls {
		out[i] = f.ExtractLastUpdated(ctx, u)
	}
	return out
}

type fakeComparer struct {
	result checker.SheetResult
	err    error
	rows   [][]string
}

func (f *fakeComparer) Compare(_ context.Context, rows [][]string) (checker.SheetResult, error) {
	f.rows = rows
	return f.result, f.err
}

type fakeIDGen struct {
	ids []string
	err error
}

func (f *fakeIDGen) NewID() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if len(f.ids) == 0 {
		return "", errors.New("no ids left")
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

type fakeReadiness struct {
	err error
}

func (f fakeReadiness) Ready(context.Context) error {
	return f.err
}

type failingSubmitter struct {
	err error
}

func (f failingSubmitter) Submit(context.Context, string) error {
	return f.err
}

func newTestDeps() Deps {
	store := memstore.NewJobStore()
	q := queueMemory.NewQueue(10)
	return Deps{
		Checker: &fakeChecker{dates: map[string]string{
			"https://example.com/a": "05 Mar 2024",
		}},
		Comparer:  &fakeComparer{},
		JobStore:  store,
		Submitter: dispatcher.New(q, nil, nil),
		IDGen:     &fakeIDGen{ids: []string{"job-1"}},
		Clock:     &fakeClock{now: time.Unix(100, 0).UTC()},
	}
}

func serve(t *testing.T, server *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	server := NewServer(newTestDeps(), config.Config{}, zap.NewNop())
	rec := serve(t, server, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	deps := newTestDeps()
	deps.Readiness = fakeReadiness{}
	rec := serve(t, NewServer(deps, config.Config{}, zap.NewNop()), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	deps.Readiness = fakeReadiness{err: errors.New("cache not ready: dial tcp: connection refused")}
	rec = serve(t, NewServer(deps, config.Config{}, zap.NewNop()), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "cache not ready")
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := NewServer(newTestDeps(), config.Config{}, zap.NewNop())
	serve(t, server, http.MethodGet, "/healthz", nil)
	rec := serve(t, server, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_ProcessURLs(t *testing.T) {
	t.Parallel()

	server := NewServer(newTestDeps(), config.Config{}, zap.NewNop())
	rec := serve(t, server, http.MethodPost, "/v1/urls", []byte(`{"urls":["https://example.com/a","nope"]}`))

	require.Equal(t, http.StatusOK, rec.Code)
	var records []checker.URLRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 2)
	require.Equal(t, "05 Mar 2024", *records[0].LastUpdated)
	require.Nil(t, records[0].Error)
	require.Equal(t, checker.InvalidURLMessage, *records[1].Error)
}

func TestServer_ProcessURLs_BadRequests(t *testing.T) {
	t.Parallel()

	server := NewServer(newTestDeps(), config.Config{}, zap.NewNop())

	rec := serve(t, server, http.MethodPost, "/v1/urls", []byte("{invalid"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, server, http.MethodPost, "/v1/urls", []byte(`{"urls":[]}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "urls required")
}

func TestServer_LastUpdated(t *testing.T) {
	t.Parallel()

	server := NewServer(newTestDeps(), config.Config{}, zap.NewNop())
	rec := serve(t, server, http.MethodGet, "/v1/urls/last-updated?url=https://example.com/a", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"url":"https://example.com/a","last_updated":"05 Mar 2024","error":null}`, rec.Body.String())

	rec = serve(t, server, http.MethodGet, "/v1/urls/last-updated", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CheckURLs(t *testing.T) {
	t.Parallel()

	deps := newTestDeps()
	comparer := &fakeComparer{result: checker.SheetResult{
		ProcessedData: [][]string{{"kw", "10", "https://example.com/a", "05 Mar 2024"}},
		EmailUpdates:  []checker.EmailUpdate{},
	}}
	deps.Comparer = comparer
	server := NewServer(deps, config.Config{}, zap.NewNop())

	rec := serve(t, server, http.MethodPost, "/v1/check-urls", []byte(`{"data":[["h"],["kw","10","https://example.com/a"]]}`))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"processed_data"`)
	require.Contains(t, rec.Body.String(), `"email_updates":[]`)
	require.Equal(t, [][]string{{"h"}, {"kw", "10", "https://example.com/a"}}, comparer.rows)
}

func TestServer_CheckURLs_Errors(t *testing.T) {
	t.Parallel()

	deps := newTestDeps()
	deps.Comparer = &fakeComparer{err: errors.New("compare row 1: context canceled")}
	server := NewServer(deps, config.Config{}, zap.NewNop())

	rec := serve(t, server, http.MethodPost, "/v1/check-urls", []byte(`{"data":[["h"],["r"]]}`))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "context canceled")

	rec = serve(t, server, http.MethodPost, "/v1/check-urls", []byte(`{"data":[]}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SubmitJob_Succeeds(t *testing.T) {
	t.Parallel()

	store := memstore.NewJobStore()
	q := queueMemory.NewQueue(10)
	deps := newTestDeps()
	deps.JobStore = store
	deps.Submitter = dispatcher.New(q, deps.Clock, nil)
	server := NewServer(deps, config.Config{}, zap.NewNop())

	rec := serve(t, server, http.MethodPost, "/v1/jobs", []byte(`{"data":[["h"],["r"]]}`))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"job_id":"job-1"}`, rec.Body.String())

	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "job-1", item.JobID)
	require.Equal(t, int64(100000), item.Submitted)

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, checker.JobStatusPending, job.Status)
	require.Equal(t, [][]string{{"h"}, {"r"}}, job.Input)
}

func TestServer_SubmitJob_EnqueueFailureMarksJobFailed(t *testing.T) {
	t.Parallel()

	store := memstore.NewJobStore()
	deps := newTestDeps()
	deps.JobStore = store
	deps.Submitter = failingSubmitter{err: checker.ErrQueueClosed}
	server := NewServer(deps, config.Config{}, zap.NewNop())

	rec := serve(t, server, http.MethodPost, "/v1/jobs", []byte(`{"data":[["h"]]}`))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, checker.JobStatusFailed, job.Status)
}

func TestServer_SubmitJob_IDFailure(t *testing.T) {
	t.Parallel()

	deps := newTestDeps()
	deps.IDGen = &fakeIDGen{err: errors.New("entropy exhausted")}
	server := NewServer(deps, config.Config{}, zap.NewNop())

	rec := serve(t, server, http.MethodPost, "/v1/jobs", []byte(`{"data":[["h"]]}`))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "generate job id")
}

func TestServer_GetJob(t *testing.T) {
	t.Parallel()

	deps := newTestDeps()
	require.NoError(t, deps.JobStore.CreateJob(context.Background(), checker.Job{
		ID:     "job-done",
		Status: checker.JobStatusCompleted,
		Result: &checker.SheetResult{ProcessedData: [][]string{{"r"}}},
	}))
	server := NewServer(deps, config.Config{}, zap.NewNop())

	rec := serve(t, server, http.MethodGet, "/v1/jobs/job-done", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"completed"`)
	require.Contains(t, rec.Body.String(), `"processed_data":[["r"]]`)

	rec = serve(t, server, http.MethodGet, "/v1/jobs/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_JobRoutesRequireStore(t *testing.T) {
	t.Parallel()

	deps := newTestDeps()
	deps.JobStore = nil
	server := NewServer(deps, config.Config{}, zap.NewNop())

	rec := serve(t, server, http.MethodPost, "/v1/jobs", []byte(`{"data":[["h"]]}`))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_APIKey(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	server := NewServer(newTestDeps(), cfg, zap.NewNop())

	rec := serve(t, server, http.MethodGet, "/v1/urls/last-updated?url=https://example.com/a", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, server, http.MethodGet, "/v1/urls/last-updated?url=https://example.com/a&api_key=secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/urls", bytes.NewBufferString(`{"urls":["https://example.com/a"]}`))
	req.Header.Set("X-API-Key", "secret")
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	rec = serve(t, server, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code, "probes stay open")
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	server := NewServer(Deps{}, config.Config{}, zap.New(core))
	handler := server.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestWriteJSONLogsEncodeFailureOnServerLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	server := NewServer(Deps{}, config.Config{}, zap.New(core))

	rec := httptest.NewRecorder()
	server.writeJSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})

	require.Equal(t, http.StatusOK, rec.Code)
	entries := logs.FilterMessage("write JSON failed").All()
	require.Len(t, entries, 1)
	require.EqualValues(t, http.StatusOK, entries[0].ContextMap()["status"])
}

func TestRequestIDMiddlewareKeepsInboundID(t *testing.T) {
	t.Parallel()

	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, "abc", seen)
	require.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

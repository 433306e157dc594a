package collyfetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/competitor-url-checker/internal/checker"
)

func TestFetcherReturnsResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Agent", r.Header.Get("User-Agent"))
		w.Header().Set("X-Seen-Trace", r.Header.Get("X-Trace"))
		w.Header().Set("Last-Modified", "Wed, 21 Oct 2015 07:28:00 GMT")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "test-agent", Timeout: 5 * time.Second}, nil, nil, zap.NewNop())
	defer f.Close()

	outcome := f.Fetch(context.Background(), checker.FetchRequest{
		URL:     srv.URL + "/page",
		Headers: http.Header{"X-Trace": {"yes"}},
	})

	require.True(t, outcome.OK(), "unexpected error: %v", outcome.Err)
	require.Equal(t, 1, outcome.Attempts)
	require.Equal(t, http.StatusOK, outcome.Response.StatusCode)
	require.Equal(t, "Wed, 21 Oct 2015 07:28:00 GMT", outcome.Response.Headers.Get("Last-Modified"))
	require.Contains(t, string(outcome.Response.Body), "hello")
	require.Equal(t, srv.URL+"/page", outcome.Response.URL)
	require.Equal(t, "test-agent", outcome.Response.Headers.Get("X-Seen-Agent"))
	require.Equal(t, "yes", outcome.Response.Headers.Get("X-Seen-Trace"))
}

func TestFetcherTreatsHTTPErrorsAsResponses(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))
	defer srv.Close()

	policy := checker.NewExponentialRetryPolicy(3, time.Millisecond, 0)
	f := New(Config{Timeout: 5 * time.Second}, policy, &recordingPauser{}, zap.NewNop())

	outcome := f.Fetch(context.Background(), checker.FetchRequest{URL: srv.URL})
	require.True(t, outcome.OK())
	require.Equal(t, http.StatusNotFound, outcome.Response.StatusCode)
	require.Equal(t, int32(1), hits.Load(), "4xx responses are not retried")
}

func TestFetcherRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>third time lucky</body></html>"))
	}))
	defer srv.Close()

	transport := &flakyTransport{failures: 2, err: timeoutErr{}, next: http.DefaultTransport}
	pauser := &recordingPauser{}
	policy := checker.NewExponentialRetryPolicy(3, 100*time.Millisecond, 0)
	f := New(Config{Timeout: 5 * time.Second, Transport: transport}, policy, pauser, zap.NewNop())

	outcome := f.Fetch(context.Background(), checker.FetchRequest{URL: srv.URL})

	require.True(t, outcome.OK(), "unexpected error: %v", outcome.Err)
	require.Equal(t, 3, outcome.Attempts)
	require.Equal(t, int32(3), transport.calls.Load())
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, pauser.delays())
}

func TestFetcherGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	transport := &flakyTransport{failures: 100, err: timeoutErr{}}
	pauser := &recordingPauser{}
	policy := checker.NewExponentialRetryPolicy(3, time.Second, 0)
	f := New(Config{Transport: transport}, policy, pauser, zap.NewNop())

	outcome := f.Fetch(context.Background(), checker.FetchRequest{URL: "https://unreachable.example"})

	require.False(t, outcome.OK())
	require.True(t, outcome.Retryable)
	require.Equal(t, 3, outcome.Attempts)
	require.Equal(t, int32(3), transport.calls.Load())
	require.Contains(t, outcome.Err.Error(), "fetch failed after 3 attempts")
	require.Len(t, pauser.delays(), 2)
}

func TestFetcherDoesNotRetryTerminalFailures(t *testing.T) {
	t.Parallel()

	transport := &flakyTransport{failures: 100, err: &net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true}}
	pauser := &recordingPauser{}
	policy := checker.NewExponentialRetryPolicy(3, time.Second, 0)
	f := New(Config{Transport: transport}, policy, pauser, zap.NewNop())

	outcome := f.Fetch(context.Background(), checker.FetchRequest{URL: "https://nowhere.invalid"})

	require.False(t, outcome.OK())
	require.False(t, outcome.Retryable)
	require.Equal(t, 1, outcome.Attempts)
	require.Empty(t, pauser.delays())
	var dnsErr *net.DNSError
	require.ErrorAs(t, outcome.Err, &dnsErr)
}

func TestFetcherStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	transport := &flakyTransport{failures: 100, err: timeoutErr{}}
	policy := checker.NewExponentialRetryPolicy(3, time.Second, 0)
	f := New(Config{Transport: transport}, policy, &recordingPauser{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := f.Fetch(ctx, checker.FetchRequest{URL: "https://example.com"})
	require.False(t, outcome.OK())
	require.Equal(t, 1, outcome.Attempts)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil, nil, nil)
	req := checker.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	start := time.Unix(0, 0)
	var result checker.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, start, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://example.com/final"),
		},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))
	require.Equal(t, "https://example.com/final", result.URL)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil, nil, nil)
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(checker.FetchRequest{}, collyReq)
	require.Empty(t, *collyReq.Headers)
}

func TestNewHTTPTransportSizesPool(t *testing.T) {
	t.Parallel()

	tr := newHTTPTransport(Config{MaxConns: 7, ReadTimeout: 3 * time.Second, IdleTimeout: time.Minute})
	require.Equal(t, 7, tr.MaxConnsPerHost)
	require.Equal(t, 7, tr.MaxIdleConnsPerHost)
	require.Equal(t, 3*time.Second, tr.ResponseHeaderTimeout)
	require.Equal(t, time.Minute, tr.IdleConnTimeout)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// flakyTransport fails the first n round trips, then delegates to next.
type flakyTransport struct {
	failures int32
	err      error
	next     http.RoundTripper
	calls    atomic.Int32
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := f.calls.Add(1)
	if n <= f.failures || f.next == nil {
		return nil, f.err
	}
	return f.next.RoundTrip(req)
}

type recordingPauser struct {
	mu     sync.Mutex
	paused []time.Duration
}

func (p *recordingPauser) Pause(ctx context.Context, delay time.Duration) error {
	p.mu.Lock()
	p.paused = append(p.paused, delay)
	p.mu.Unlock()
	return ctx.Err()
}

func (p *recordingPauser) delays() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.paused...)
}

// Package collyfetcher implements checker.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/competitor-url-checker/internal/checker"
	"github.com/JakeFAU/competitor-url-checker/internal/metrics"
)

// Config controls collector and transport behavior.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	IdleTimeout    time.Duration
	MaxConns       int
	// Transport replaces the pooled transport when set.
	Transport http.RoundTripper
}

// Fetcher implements checker.Fetcher using the Colly collector. Every fetch
// clones a base collector that shares one pooled transport.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	retry         checker.RetryPolicy
	pauser        checker.Pauser
	logger        *zap.Logger
}

var _ checker.Fetcher = (*Fetcher)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. A nil retry policy makes a single attempt.
func New(cfg Config, retry checker.RetryPolicy, pauser checker.Pauser, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if retry == nil {
		retry = checker.NewExponentialRetryPolicy(1, 0, 0)
	}
	if pauser == nil {
		pauser = checker.TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport(cfg)
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
	)
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		retry:         retry,
		pauser:        pauser,
		logger:        logger,
	}
}

// Fetch performs the GET with retries. Failures are reported in the outcome.
func (f *Fetcher) Fetch(ctx context.Context, request checker.FetchRequest) checker.FetchOutcome {
	maxAttempts := f.retry.MaxAttempts()
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := f.retry.Backoff(attempt - 1)
			f.logger.Debug("retrying fetch",
				zap.String("url", request.URL),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := f.pauser.Pause(ctx, delay); err != nil {
				return checker.FetchOutcome{Err: err, Attempts: attempt}
			}
		}

		resp, err := f.fetchOnce(ctx, request)
		if err == nil {
			metrics.ObserveFetchAttempt("response")
			metrics.ObserveFetchDuration(resp.Duration)
			return checker.FetchOutcome{Response: &resp, Attempts: attempt + 1}
		}
		lastErr = err
		if ctx.Err() != nil || !f.retry.ShouldRetry(err) {
			metrics.ObserveFetchAttempt("terminal")
			return checker.FetchOutcome{Err: err, Attempts: attempt + 1}
		}
		metrics.ObserveFetchAttempt("retryable")
	}
	return checker.FetchOutcome{
		Err:       fmt.Errorf("fetch failed after %d attempts: %w", maxAttempts, lastErr),
		Retryable: true,
		Attempts:  maxAttempts,
	}
}

// Close releases idle pooled connections.
func (f *Fetcher) Close() {
	if closer, ok := f.transport.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, request checker.FetchRequest) (checker.FetchResponse, error) {
	var (
		result   checker.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(ctx, request, start, &result, &fetchErr)
	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return checker.FetchResponse{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	request checker.FetchRequest,
	start time.Time,
	result *checker.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request checker.FetchRequest,
	start time.Time,
	result *checker.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		finalURL := request.URL
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		*result = checker.FetchResponse{
			URL:        finalURL,
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(request checker.FetchRequest, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

// newHTTPTransport sizes the pool to the admission limit. Connect and
// response-header timeouts bound each phase; the collector timeout bounds the
// whole attempt including the body read.
func newHTTPTransport(cfg Config) *http.Transport {
	connect := cfg.ConnectTimeout
	if connect <= 0 {
		connect = 10 * time.Second
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = 90 * time.Second
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   connect,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          maxConns * 2,
		MaxIdleConnsPerHost:   maxConns,
		MaxConnsPerHost:       maxConns,
		IdleConnTimeout:       idle,
	}
}

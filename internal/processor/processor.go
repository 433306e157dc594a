// Package processor resolves last-updated dates for URLs. It composes the
// cache, fetcher, extractor and scheduler and guarantees that no per-URL
// failure escapes as anything other than an error record.
package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/competitor-url-checker/internal/checker"
	"github.com/JakeFAU/competitor-url-checker/internal/metrics"
	"github.com/JakeFAU/competitor-url-checker/internal/scheduler"
)

// DefaultMaxConcurrent bounds in-flight cache/fetch round trips.
const DefaultMaxConcurrent = 10

// Config controls the admission gate and outgoing request headers.
type Config struct {
	MaxConcurrent int
	Headers       http.Header
}

// Processor implements checker.URLChecker.
type Processor struct {
	cache     checker.Cache
	fetcher   checker.Fetcher
	extractor checker.DateExtractor
	scheduler *scheduler.Scheduler
	gate      *semaphore.Weighted
	headers   http.Header
	logger    *zap.Logger
}

var _ checker.URLChecker = (*Processor)(nil)

// New wires a Processor. The cache, fetcher and extractor are required.
func New(
	cfg Config,
	cache checker.Cache,
	fetcher checker.Fetcher,
	extractor checker.DateExtractor,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *Processor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sched == nil {
		sched = scheduler.New(scheduler.Config{}, logger)
	}
	headers := cfg.Headers
	if headers == nil {
		headers = DefaultHeaders()
	}
	return &Processor{
		cache:     cache,
		fetcher:   fetcher,
		extractor: extractor,
		scheduler: sched,
		gate:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		headers:   headers,
		logger:    logger,
	}
}

// DefaultHeaders are sent with every fetch alongside the collector's User-Agent.
func DefaultHeaders() http.Header {
	return http.Header{
		"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": {"en-US,en;q=0.9"},
	}
}

// ExtractLastUpdated resolves one URL. It never panics and never returns an error.
func (p *Processor) ExtractLastUpdated(ctx context.Context, rawURL string) (record checker.URLRecord) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("url processing panicked", zap.String("url", rawURL), zap.Any("panic", rec))
			metrics.ObserveURL(metrics.OutcomeFailed)
			record = checker.ErrorRecord(rawURL, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	if _, err := checker.ValidateURL(rawURL); err != nil {
		metrics.ObserveURL(metrics.OutcomeInvalid)
		return checker.ErrorRecord(rawURL, checker.InvalidURLMessage)
	}

	if err := p.gate.Acquire(ctx, 1); err != nil {
		metrics.ObserveURL(metrics.OutcomeFailed)
		return checker.ErrorRecord(rawURL, fmt.Sprintf("acquire fetch slot: %v", err))
	}
	metrics.IncInflight()
	defer func() {
		metrics.DecInflight()
		p.gate.Release(1)
	}()

	if date, ok := p.cache.Get(ctx, rawURL); ok {
		metrics.ObserveURL(metrics.OutcomeCached)
		return checker.DateRecord(rawURL, date)
	}

	outcome := p.fetcher.Fetch(ctx, checker.FetchRequest{URL: rawURL, Headers: p.headers.Clone()})
	if !outcome.OK() {
		err := outcome.Err
		if err == nil {
			err = errors.New("fetch returned no response")
		}
		p.logger.Warn("fetch failed",
			zap.String("url", rawURL),
			zap.Int("attempts", outcome.Attempts),
			zap.Bool("retryable", outcome.Retryable),
			zap.Error(err),
		)
		metrics.ObserveURL(metrics.OutcomeFailed)
		return checker.ErrorRecord(rawURL, err.Error())
	}

	resp := outcome.Response
	result := p.extractor.Extract(resp.Body, resp.Headers.Get("Last-Modified"))
	date, ok := result.Formatted()
	if !ok {
		p.logger.Debug("no date found", zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
		metrics.ObserveURL(metrics.OutcomeUndated)
		return checker.EmptyRecord(rawURL)
	}

	p.cache.Set(ctx, rawURL, date)
	p.logger.Debug("date extracted",
		zap.String("url", rawURL),
		zap.String("date", date),
		zap.String("source", string(result.Source)),
	)
	metrics.ObserveURL(metrics.OutcomeDated)
	return checker.DateRecord(rawURL, date)
}

// ProcessURLs resolves a batch. The result is index-aligned with urls.
func (p *Processor) ProcessURLs(ctx context.Context, urls []string) []checker.URLRecord {
	records := make([]checker.URLRecord, len(urls))
	written := make([]bool, len(urls))
	p.scheduler.Run(ctx, urls, func(ctx context.Context, idx int, url string) {
		records[idx] = p.ExtractLastUpdated(ctx, url)
		written[idx] = true
	})
	for i := range records {
		if !written[i] {
			records[i] = checker.ErrorRecord(urls[i], "internal error: url was not processed")
		}
	}
	return records
}

// Ready reports whether the distributed cache is reachable.
func (p *Processor) Ready(ctx context.Context) error {
	if pinger, ok := p.cache.(interface{ Ping(context.Context) error }); ok {
		if err := pinger.Ping(ctx); err != nil {
			return fmt.Errorf("cache not ready: %w", err)
		}
	}
	return nil
}

// Close releases the HTTP connection pool and the distributed cache connection.
func (p *Processor) Close() error {
	if closer, ok := p.fetcher.(interface{ Close() }); ok {
		closer.Close()
	}
	if closer, ok := p.cache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("close cache: %w", err)
		}
	}
	return nil
}

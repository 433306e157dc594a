// Package scheduler fans a batch of URLs out to goroutines, staggering
// launches that target the same host.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/competitor-url-checker/internal/checker"
	"github.com/JakeFAU/competitor-url-checker/internal/metrics"
)

// Task handles one URL. index is the URL's position in the batch.
type Task func(ctx context.Context, index int, url string)

// Scheduler groups URLs by host and paces each group with its own token
// bucket. Groups never wait on each other.
type Scheduler struct {
	delay  time.Duration
	logger *zap.Logger
}

// Config holds scheduler configuration.
type Config struct {
	HostDelay time.Duration
}

// New creates a Scheduler. A non-positive HostDelay disables pacing.
func New(cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{delay: cfg.HostDelay, logger: logger}
}

type group struct {
	host    string
	indexes []int
}

// Run launches task for every URL and blocks until all tasks return.
// A launch does not wait for the previous task on the same host to finish.
func (s *Scheduler) Run(ctx context.Context, urls []string, task Task) {
	var wg sync.WaitGroup
	for _, g := range partition(urls) {
		wg.Add(1)
		go func(g group) {
			defer wg.Done()
			s.launchGroup(ctx, g, urls, task, &wg)
		}(g)
	}
	wg.Wait()
}

func (s *Scheduler) launchGroup(ctx context.Context, g group, urls []string, task Task, wg *sync.WaitGroup) {
	var limiter *rate.Limiter
	if s.delay > 0 && g.host != "" {
		limiter = rate.NewLimiter(rate.Every(s.delay), 1)
	}
	for _, idx := range g.indexes {
		if limiter != nil {
			if err := s.wait(ctx, limiter); err != nil {
				s.logger.Debug("host pacing interrupted", zap.String("host", g.host), zap.Error(err))
			}
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					s.logger.Error("task panicked",
						zap.String("url", urls[idx]),
						zap.Any("panic", rec),
					)
				}
			}()
			task(ctx, idx, urls[idx])
		}(idx)
	}
}

// wait blocks until the host's bucket has a token. A canceled context still
// lets the task launch so it can report its own error.
func (s *Scheduler) wait(ctx context.Context, limiter *rate.Limiter) error {
	start := time.Now()
	err := limiter.Wait(ctx)
	if err == nil {
		if waited := time.Since(start); waited > time.Millisecond {
			metrics.ObserveHostPacingDelay(waited)
		}
		return nil
	}
	return fmt.Errorf("host pacing wait: %w", err)
}

// partition groups URL indexes by lowercase host in order of first appearance.
// URLs without a parseable host share the unpaced "" group.
func partition(urls []string) []group {
	var groups []group
	byHost := make(map[string]int)
	for i, u := range urls {
		host := ""
		if _, err := checker.ValidateURL(u); err == nil {
			host = checker.HostKey(u)
		}
		pos, ok := byHost[host]
		if !ok {
			pos = len(groups)
			byHost[host] = pos
			groups = append(groups, group{host: host})
		}
		groups[pos].indexes = append(groups[pos].indexes, i)
	}
	return groups
}

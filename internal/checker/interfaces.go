package checker

import (
	"context"
	"time"
)

// Fetcher fetches a URL and reports a total outcome; it never panics or returns an error value.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) FetchOutcome
}

// DateExtractor derives a last-modified date from page content and the Last-Modified header.
type DateExtractor interface {
	Extract(body []byte, lastModified string) ExtractionResult
}

// Cache stores formatted dates keyed by URL. Faults degrade to misses.
type Cache interface {
	Get(ctx context.Context, url string) (string, bool)
	Set(ctx context.Context, url string, date string)
}

// URLChecker resolves last-updated dates for one or many URLs.
type URLChecker interface {
	ExtractLastUpdated(ctx context.Context, url string) URLRecord
	ProcessURLs(ctx context.Context, urls []string) []URLRecord
}

// SheetComparer compares our pages against competitor pages row by row.
type SheetComparer interface {
	Compare(ctx context.Context, rows [][]string) (SheetResult, error)
}

// Notifier delivers competitor update digests.
type Notifier interface {
	SendUpdates(ctx context.Context, updates []EmailUpdate) error
}

// JobStore persists comparison jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, result *SheetResult, errText string) error
	GetJob(ctx context.Context, jobID string) (Job, error)
}

// Queue provides enqueue/dequeue semantics for comparison jobs.
type Queue interface {
	Enqueue(ctx context.Context, job QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// RetryPolicy decides whether and how long to wait before another attempt.
type RetryPolicy interface {
	MaxAttempts() int
	ShouldRetry(err error) bool
	Backoff(attempt int) time.Duration
}

// Pauser sleeps for a delay unless the context ends first.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

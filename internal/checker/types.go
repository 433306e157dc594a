// Package checker defines core types shared across subsystems.
package checker

import (
	"errors"
	"net/http"
	"time"
)

// DateLayout is the display format for discovered dates, e.g. "05 Mar 2024".
const DateLayout = "02 Jan 2006"

// InvalidURLMessage is the record error reported for URLs that fail validation.
const InvalidURLMessage = "Invalid URL format"

// ErrInvalidURL is returned by ValidateURL for unusable input.
var ErrInvalidURL = errors.New("invalid url format")

// ErrQueueClosed is returned by queues that have been shut down.
var ErrQueueClosed = errors.New("queue closed")

// ErrJobNotFound is returned by job stores for unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// URLRecord is the per-URL result surfaced to callers.
// A record with neither LastUpdated nor Error means no date was discoverable.
type URLRecord struct {
	URL         string  `json:"url"`
	LastUpdated *string `json:"last_updated"`
	Error       *string `json:"error"`
}

// DateRecord builds a successful record.
func DateRecord(url, date string) URLRecord {
	return URLRecord{URL: url, LastUpdated: &date}
}

// ErrorRecord builds a failed record carrying msg.
func ErrorRecord(url, msg string) URLRecord {
	return URLRecord{URL: url, Error: &msg}
}

// EmptyRecord builds a record for a page where no date was found.
func EmptyRecord(url string) URLRecord {
	return URLRecord{URL: url}
}

// FetchRequest describes a single page fetch.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the page payload returned by a Fetcher.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// FetchOutcome is the terminal result of a fetch after retries.
// Exactly one of Response and Err is set.
type FetchOutcome struct {
	Response  *FetchResponse
	Err       error
	Retryable bool
	Attempts  int
}

// OK reports whether the fetch produced a response.
func (o FetchOutcome) OK() bool {
	return o.Response != nil && o.Err == nil
}

// DateSource names where an extracted date came from.
type DateSource string

// Date sources reported by the extractor.
const (
	SourceHeader DateSource = "header"
	SourceBody   DateSource = "body"
	SourceNone   DateSource = "none"
)

// ExtractionResult carries the best date found for a page.
type ExtractionResult struct {
	Date   *time.Time
	Source DateSource
}

// Formatted renders the date in DateLayout.
func (r ExtractionResult) Formatted() (string, bool) {
	if r.Date == nil {
		return "", false
	}
	return r.Date.UTC().Format(DateLayout), true
}

// JobStatus represents the lifecycle state of a comparison job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is a persisted sheet comparison request.
type Job struct {
	ID        string       `json:"id"`
	Status    JobStatus    `json:"status"`
	Input     [][]string   `json:"input_data"`
	Result    *SheetResult `json:"result,omitempty"`
	ErrorText string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Attempt   int
	Submitted int64
}

// EmailUpdate describes a competitor page that is newer than ours.
type EmailUpdate struct {
	CompetitorURL string `json:"competitor_url"`
	SearchVolume  string `json:"search_volume"`
	OurURL        string `json:"our_url"`
	OurPageDate   string `json:"our_page_date"`
	DaysOlder     int    `json:"days_older"`
}

// SheetResult is the output of a sheet comparison.
type SheetResult struct {
	ProcessedData [][]string    `json:"processed_data"`
	EmailUpdates  []EmailUpdate `json:"email_updates"`
}

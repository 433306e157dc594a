// Package memory keeps comparison jobs in process memory for development and tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/competitor-url-checker/internal/checker"
)

// JobStore provides an in-memory implementation of checker.JobStore.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]checker.Job
	now  func() time.Time
}

var _ checker.JobStore = (*JobStore)(nil)

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]checker.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job checker.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	job.Input = copyRows(job.Input)
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus moves a job to status. A nil result keeps the previous one.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status checker.JobStatus,
	result *checker.SheetResult,
	errText string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return checker.ErrJobNotFound
	}
	job.Status = status
	job.ErrorText = errText
	if result != nil {
		r := *result
		job.Result = &r
	}
	job.UpdatedAt = s.now()
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (checker.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return checker.Job{}, checker.ErrJobNotFound
	}
	job.Input = copyRows(job.Input)
	return job, nil
}

func copyRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}

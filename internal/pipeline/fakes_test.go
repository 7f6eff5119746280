package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/mojiQAQ/petsphoto/internal/config"
	"github.com/mojiQAQ/petsphoto/internal/domain"
)

// memStore is an in-memory job store with the same guarded transitions as
// the SQL repository. It records every status a job passes through.
type memStore struct {
	mu       sync.Mutex
	jobs     map[string]*domain.GenerationJob
	styles   map[string]domain.GenerationStyle
	images   map[string]domain.UploadedImage
	history  map[string][]domain.JobStatus
	failErr  error
	opened   int
	released int
}

func newMemStore() *memStore {
	return &memStore{
		jobs:    map[string]*domain.GenerationJob{},
		styles:  map[string]domain.GenerationStyle{},
		images:  map[string]domain.UploadedImage{},
		history: map[string][]domain.JobStatus{},
	}
}

func (s *memStore) addJob(job domain.GenerationJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	s.jobs[job.ID] = &job
	s.history[job.ID] = []domain.JobStatus{job.Status}
}

func (s *memStore) snapshot(id string) domain.GenerationJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *memStore) statuses(id string) []domain.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.JobStatus(nil), s.history[id]...)
}

func (s *memStore) setFailErr(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

func (s *memStore) OpenSession(context.Context) (domain.JobSession, error) {
	s.mu.Lock()
	s.opened++
	s.mu.Unlock()
	return memSession{s}, nil
}

func (s *memStore) GetJob(_ context.Context, id string) (*domain.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *memStore) GetStyle(_ context.Context, id string) (*domain.GenerationStyle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	style, ok := s.styles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &style, nil
}

func (s *memStore) GetImage(_ context.Context, id string) (*domain.UploadedImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &img, nil
}

func (s *memStore) transition(id string, from, to domain.JobStatus, apply func(*domain.GenerationJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != from {
		return domain.ErrInvalidTransition
	}
	job.Status = to
	apply(job)
	s.history[id] = append(s.history[id], to)
	return nil
}

func (s *memStore) MarkProcessing(_ context.Context, id, provider string, at time.Time) error {
	return s.transition(id, domain.JobStatusPending, domain.JobStatusProcessing, func(j *domain.GenerationJob) {
		j.Provider = &provider
		j.StartedAt = &at
	})
}

func (s *memStore) MarkCompleted(_ context.Context, id, resultURL string, at time.Time) error {
	return s.transition(id, domain.JobStatusProcessing, domain.JobStatusCompleted, func(j *domain.GenerationJob) {
		j.ResultImageURL = &resultURL
		j.CompletedAt = &at
	})
}

func (s *memStore) MarkFailed(_ context.Context, id, message string, at time.Time) error {
	s.mu.Lock()
	failErr := s.failErr
	s.mu.Unlock()
	if failErr != nil {
		return failErr
	}
	return s.transition(id, domain.JobStatusProcessing, domain.JobStatusFailed, func(j *domain.GenerationJob) {
		j.ErrorMessage = &message
		j.CompletedAt = &at
	})
}

func (s *memStore) ListStaleJobs(_ context.Context, startedBefore time.Time, limit int) ([]domain.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.GenerationJob
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusProcessing && job.StartedAt != nil && job.StartedAt.Before(startedBefore) {
			out = append(out, *job)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memSession struct {
	*memStore
}

func (s memSession) Release() {
	s.mu.Lock()
	s.released++
	s.mu.Unlock()
}

type stubSource struct {
	cfg config.ProviderConfig
	err error
}

func (s stubSource) Current(context.Context) (config.ProviderConfig, error) {
	return s.cfg, s.err
}

type stubGenerator struct {
	result   domain.ProviderResult
	err      error
	panicMsg string
}

func (g stubGenerator) Name() string { return "stub" }

func (g stubGenerator) Generate(context.Context, string, domain.SourceImage) (domain.ProviderResult, error) {
	if g.panicMsg != "" {
		panic(g.panicMsg)
	}
	return g.result, g.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.JobEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.JobEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) statuses() []domain.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.JobStatus, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Status)
	}
	return out
}

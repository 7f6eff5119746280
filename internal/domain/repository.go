package domain

import (
	"context"
	"time"
)

// JobRepository persists generation jobs. Status mutations are guarded so
// that a write which would break monotonicity returns ErrInvalidTransition.
type JobRepository interface {
	GetJob(ctx context.Context, id string) (*GenerationJob, error)
	MarkProcessing(ctx context.Context, id, provider string, at time.Time) error
	MarkCompleted(ctx context.Context, id, resultURL string, at time.Time) error
	MarkFailed(ctx context.Context, id, message string, at time.Time) error
}

// StyleRepository resolves style presets.
type StyleRepository interface {
	GetStyle(ctx context.Context, id string) (*GenerationStyle, error)
	ListActiveStyles(ctx context.Context) ([]GenerationStyle, error)
}

// ImageRepository resolves and records uploaded source images.
type ImageRepository interface {
	GetImage(ctx context.Context, id string) (*UploadedImage, error)
	CreateImage(ctx context.Context, img *UploadedImage) error
}

// JobSession is a unit of storage access owned by a single background job.
// It must not be shared with other jobs or requests.
type JobSession interface {
	JobRepository
	GetStyle(ctx context.Context, id string) (*GenerationStyle, error)
	GetImage(ctx context.Context, id string) (*UploadedImage, error)
	Release()
}

// SessionOpener hands out a fresh JobSession per background job.
type SessionOpener interface {
	OpenSession(ctx context.Context) (JobSession, error)
}

// JobStore is the request-side view used by the generation service.
type JobStore interface {
	StyleRepository
	ImageRepository
	// CreateJob debits the owner's credits, writes the ledger entry, inserts
	// the pending job and clears the image temp flag in one transaction.
	CreateJob(ctx context.Context, job NewJob) (*GenerationJob, error)
	GetJob(ctx context.Context, id string) (*GenerationJob, error)
	ListJobsByUser(ctx context.Context, userID string, limit, offset int) ([]GenerationJob, int, error)
	GetUser(ctx context.Context, id string) (*User, error)
}

// StaleJobStore backs the reconciliation sweep.
type StaleJobStore interface {
	ListStaleJobs(ctx context.Context, startedBefore time.Time, limit int) ([]GenerationJob, error)
	MarkFailed(ctx context.Context, id, message string, at time.Time) error
}

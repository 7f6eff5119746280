package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next keeps the lifecycle
// monotonic: pending -> processing -> completed|failed.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// GenerationJob is one user request to turn a source image into a styled artifact.
type GenerationJob struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	SourceImageID  string     `json:"source_image_id"`
	StyleID        string     `json:"style_id"`
	CustomPrompt   *string    `json:"custom_prompt,omitempty"`
	Status         JobStatus  `json:"status"`
	ResultImageURL *string    `json:"result_image_url"`
	ErrorMessage   *string    `json:"error_message"`
	CreditsCost    int        `json:"credits_cost"`
	Provider       *string    `json:"provider,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// Consistent checks the result/error exclusivity invariant for the job's
// current status.
func (j GenerationJob) Consistent() bool {
	hasResult := j.ResultImageURL != nil && *j.ResultImageURL != ""
	hasError := j.ErrorMessage != nil
	switch j.Status {
	case JobStatusCompleted:
		return hasResult && !hasError
	case JobStatusFailed:
		return hasError && !hasResult
	default:
		return !hasResult && !hasError
	}
}

// NewJob carries the validated inputs for job creation.
type NewJob struct {
	ID            string
	UserID        string
	SourceImageID string
	StyleID       string
	CustomPrompt  string
	CreditsCost   int
}

// JobEvent is emitted on every persisted transition.
type JobEvent struct {
	JobID          string    `json:"job_id"`
	UserID         string    `json:"user_id"`
	Status         JobStatus `json:"status"`
	Provider       string    `json:"provider,omitempty"`
	ResultImageURL string    `json:"result_image_url,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	At             time.Time `json:"at"`
}

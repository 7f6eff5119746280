package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/mojiQAQ/petsphoto/internal/db"
	"github.com/mojiQAQ/petsphoto/internal/domain"
	"github.com/mojiQAQ/petsphoto/internal/infra"
)

// reader holds the lookups and guarded status writes shared by Store and
// session.
type reader struct {
	q *db.Queries
}

func (r reader) GetJob(ctx context.Context, id string) (*domain.GenerationJob, error) {
	job, err := r.q.GetJob(ctx, id)
	if err != nil {
		return nil, notFound(err, "load job")
	}
	return &job, nil
}

func (r reader) GetStyle(ctx context.Context, id string) (*domain.GenerationStyle, error) {
	style, err := r.q.GetStyle(ctx, id)
	if err != nil {
		return nil, notFound(err, "load style")
	}
	return &style, nil
}

func (r reader) GetImage(ctx context.Context, id string) (*domain.UploadedImage, error) {
	img, err := r.q.GetImage(ctx, id)
	if err != nil {
		return nil, notFound(err, "load image")
	}
	return &img, nil
}

func (r reader) MarkProcessing(ctx context.Context, id, provider string, at time.Time) error {
	n, err := r.q.StartJob(ctx, id, provider, at)
	return guarded(n, err, "start job")
}

func (r reader) MarkCompleted(ctx context.Context, id, resultURL string, at time.Time) error {
	n, err := r.q.CompleteJob(ctx, id, resultURL, at)
	return guarded(n, err, "complete job")
}

func (r reader) MarkFailed(ctx context.Context, id, message string, at time.Time) error {
	n, err := r.q.FailJob(ctx, id, message, at)
	return guarded(n, err, "fail job")
}

func guarded(rows int64, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrInvalidTransition)
	}
	return nil
}

func notFound(err error, op string) error {
	if infra.IsNoRows(err) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

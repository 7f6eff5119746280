// Package generation is the request-side entry point: uploads, job creation
// and the read APIs over jobs, styles and images.
package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mojiQAQ/petsphoto/internal/domain"
	"github.com/mojiQAQ/petsphoto/internal/events"
	"github.com/mojiQAQ/petsphoto/internal/infra"
	"github.com/mojiQAQ/petsphoto/internal/metrics"
	"github.com/mojiQAQ/petsphoto/internal/storage"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
	DefaultCost         = 1
)

// Dispatcher hands a created job to background processing.
type Dispatcher interface {
	Dispatch(jobID string) error
}

type Options struct {
	Store          domain.JobStore
	Dispatcher     Dispatcher
	Objects        storage.ObjectStore
	PublicPrefix   string
	Cost           int
	MaxUploadBytes int64
	Events         events.Publisher
	Metrics        *metrics.Collector
	Logger         *infra.Logger
	Now            func() time.Time
}

type Service struct {
	store          domain.JobStore
	dispatcher     Dispatcher
	objects        storage.ObjectStore
	publicPrefix   string
	cost           int
	maxUploadBytes int64
	events         events.Publisher
	metrics        *metrics.Collector
	logger         zerolog.Logger
	now            func() time.Time
}

func NewService(opts Options) *Service {
	s := &Service{
		store:          opts.Store,
		dispatcher:     opts.Dispatcher,
		objects:        opts.Objects,
		publicPrefix:   opts.PublicPrefix,
		cost:           opts.Cost,
		maxUploadBytes: opts.MaxUploadBytes,
		events:         opts.Events,
		metrics:        opts.Metrics,
		logger:         infra.DiscardLogger(opts.Logger),
		now:            opts.Now,
	}
	if s.cost <= 0 {
		s.cost = DefaultCost
	}
	if s.publicPrefix == "" {
		s.publicPrefix = "/uploads"
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreateJob debits the user, records a PENDING job and dispatches it. The
// returned snapshot is taken before any processing happens.
func (s *Service) CreateJob(ctx context.Context, userID, imageID, styleID, customPrompt string) (*domain.GenerationJob, error) {
	imageID = strings.TrimSpace(imageID)
	styleID = strings.TrimSpace(styleID)
	if imageID == "" {
		return nil, fmt.Errorf("source image: %w", domain.ErrNotFound)
	}
	if styleID == "" {
		return nil, domain.ErrInvalidStyle
	}

	job, err := s.store.CreateJob(ctx, domain.NewJob{
		ID:            uuid.NewString(),
		UserID:        userID,
		SourceImageID: imageID,
		StyleID:       styleID,
		CustomPrompt:  strings.TrimSpace(customPrompt),
		CreditsCost:   s.cost,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.JobCreated()

	logger := s.logger.With().Str("job_id", job.ID).Str("user_id", userID).Logger()
	logger.Info().Str("style_id", styleID).Str("status", string(job.Status)).Msg("generation: job created")

	ev := domain.JobEvent{JobID: job.ID, UserID: userID, Status: job.Status, At: s.now()}
	if err := s.events.Publish(ctx, ev); err != nil {
		logger.Warn().Err(err).Msg("generation: publish event failed")
	}
	if err := s.dispatcher.Dispatch(job.ID); err != nil {
		// the job stays pending
		logger.Error().Err(err).Msg("generation: dispatch failed")
	}
	return job, nil
}

// GetJob returns the job when userID owns it.
func (s *Service) GetJob(ctx context.Context, userID, jobID string) (*domain.GenerationJob, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

// History is one page of a user's jobs, newest first.
type History struct {
	Items   []domain.GenerationJob `json:"items"`
	Total   int                    `json:"total"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
	HasMore bool                   `json:"has_more"`
}

func (s *Service) ListHistory(ctx context.Context, userID string, limit, offset int) (History, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	items, total, err := s.store.ListJobsByUser(ctx, userID, limit, offset)
	if err != nil {
		return History{}, fmt.Errorf("list history: %w", err)
	}
	if items == nil {
		items = []domain.GenerationJob{}
	}
	return History{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+len(items) < total,
	}, nil
}

// GetProfile returns the caller's account with the current credit balance.
func (s *Service) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	return s.store.GetUser(ctx, userID)
}

func (s *Service) ListStyles(ctx context.Context) ([]domain.GenerationStyle, error) {
	styles, err := s.store.ListActiveStyles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list styles: %w", err)
	}
	if styles == nil {
		styles = []domain.GenerationStyle{}
	}
	return styles, nil
}

// GetImage returns the upload when userID owns it.
func (s *Service) GetImage(ctx context.Context, userID, imageID string) (*domain.UploadedImage, error) {
	img, err := s.store.GetImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if img.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return img, nil
}

// UploadImage validates data, stores it in the images bucket and records it
// as a temporary upload. The object is removed again if the record fails.
func (s *Service) UploadImage(ctx context.Context, userID, filename string, data []byte) (*domain.UploadedImage, error) {
	info, err := InspectUpload(data, s.maxUploadBytes)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	name := id + info.Extension
	if err := s.objects.Create(ctx, storage.BucketImages, name, data, info.MIMEType); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	img := &domain.UploadedImage{
		ID:          id,
		UserID:      userID,
		Filename:    cleanFilename(filename, name),
		StoragePath: storage.PublicPath(s.publicPrefix, storage.BucketImages, name),
		FileSize:    int64(len(data)),
		Width:       info.Width,
		Height:      info.Height,
		MIMEType:    info.MIMEType,
		IsTemp:      true,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateImage(ctx, img); err != nil {
		if delErr := s.objects.Delete(context.WithoutCancel(ctx), storage.BucketImages, name); delErr != nil {
			s.logger.Warn().Err(delErr).Str("object", name).Msg("generation: cleanup upload failed")
		}
		return nil, fmt.Errorf("record upload: %w", err)
	}
	s.logger.Info().
		Str("image_id", id).
		Str("user_id", userID).
		Int("width", info.Width).
		Int("height", info.Height).
		Int64("size", img.FileSize).
		Msg("generation: image uploaded")
	return img, nil
}

func cleanFilename(filename, fallback string) string {
	filename = strings.TrimSpace(filename)
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		filename = filename[i+1:]
	}
	if filename == "" {
		return fallback
	}
	return filename
}

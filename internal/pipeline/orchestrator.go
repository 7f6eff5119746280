// Package pipeline drives generation jobs from PENDING to a terminal status
// in the background.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mojiQAQ/petsphoto/internal/config"
	"github.com/mojiQAQ/petsphoto/internal/domain"
	"github.com/mojiQAQ/petsphoto/internal/events"
	"github.com/mojiQAQ/petsphoto/internal/infra"
	"github.com/mojiQAQ/petsphoto/internal/metrics"
	"github.com/mojiQAQ/petsphoto/internal/providers/image"
	"github.com/mojiQAQ/petsphoto/internal/storage"
)

// failWriteTimeout bounds the best-effort FAILED write.
const failWriteTimeout = 5 * time.Second

// ProviderSource yields the provider configuration in effect right now.
type ProviderSource interface {
	Current(ctx context.Context) (config.ProviderConfig, error)
}

// GeneratorFactory builds a generator for a provider id and its settings.
type GeneratorFactory func(id string, settings map[string]string) (image.Generator, error)

// ArtifactWriter stores a provider result and returns its public reference.
type ArtifactWriter interface {
	Materialize(ctx context.Context, result domain.ProviderResult) (string, error)
}

type Options struct {
	Sessions     domain.SessionOpener
	Providers    ProviderSource
	Factory      GeneratorFactory
	Artifacts    ArtifactWriter
	Objects      storage.ObjectStore
	PublicPrefix string
	Events       events.Publisher
	Metrics      *metrics.Collector
	Logger       *infra.Logger
	Now          func() time.Time
}

// Orchestrator processes one job at a time per call; it holds no per-job
// state, so a single instance serves every dispatched job.
type Orchestrator struct {
	sessions     domain.SessionOpener
	providers    ProviderSource
	factory      GeneratorFactory
	artifacts    ArtifactWriter
	objects      storage.ObjectStore
	publicPrefix string
	events       events.Publisher
	metrics      *metrics.Collector
	logger       zerolog.Logger
	now          func() time.Time
}

func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		sessions:     opts.Sessions,
		providers:    opts.Providers,
		factory:      opts.Factory,
		artifacts:    opts.Artifacts,
		objects:      opts.Objects,
		publicPrefix: opts.PublicPrefix,
		events:       opts.Events,
		metrics:      opts.Metrics,
		logger:       infra.DiscardLogger(opts.Logger),
		now:          opts.Now,
	}
	if o.events == nil {
		o.events = events.Nop{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.publicPrefix == "" {
		o.publicPrefix = "/uploads"
	}
	return o
}

// Process runs jobID to completion. Errors never escape: they end up as the
// job's error_message or, when even that write fails, in the log.
func (o *Orchestrator) Process(ctx context.Context, jobID string) {
	logger := o.logger.With().Str("job_id", jobID).Logger()

	sess, err := o.sessions.OpenSession(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("pipeline: open session failed")
		return
	}
	defer sess.Release()

	job, err := sess.GetJob(ctx, jobID)
	if err != nil {
		logger.Error().Err(err).Msg("pipeline: load job failed")
		return
	}
	if job.Status != domain.JobStatusPending {
		logger.Warn().Str("status", string(job.Status)).Msg("pipeline: job is not pending, skipping")
		return
	}

	cfg, cfgErr := o.providers.Current(ctx)
	provider := cfg.Provider
	logger = logger.With().Str("provider", provider).Logger()

	startedAt := o.now()
	if err := sess.MarkProcessing(ctx, jobID, provider, startedAt); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			logger.Warn().Msg("pipeline: job left pending concurrently, skipping")
		} else {
			logger.Error().Err(err).Msg("pipeline: mark processing failed")
		}
		return
	}
	logger.Info().Str("status", string(domain.JobStatusProcessing)).Msg("pipeline: job started")
	o.publish(ctx, logger, domain.JobEvent{JobID: jobID, UserID: job.UserID, Status: domain.JobStatusProcessing, Provider: provider, At: startedAt})

	ref, err := o.safeRun(ctx, sess, job, cfg, cfgErr)
	if err != nil {
		o.fail(ctx, logger, job, provider, startedAt, err)
		return
	}

	finishedAt := o.now()
	if err := sess.MarkCompleted(ctx, jobID, ref, finishedAt); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			logger.Warn().Str("result_image_url", ref).Msg("pipeline: job no longer processing, result discarded")
			return
		}
		o.fail(ctx, logger, job, provider, startedAt, fmt.Errorf("persist result: %w", err))
		return
	}
	o.metrics.JobFinished(string(domain.JobStatusCompleted), provider, finishedAt.Sub(startedAt))
	logger.Info().
		Str("status", string(domain.JobStatusCompleted)).
		Str("result_image_url", ref).
		Dur("elapsed", finishedAt.Sub(startedAt)).
		Msg("pipeline: job completed")
	o.publish(ctx, logger, domain.JobEvent{JobID: jobID, UserID: job.UserID, Status: domain.JobStatusCompleted, Provider: provider, ResultImageURL: ref, At: finishedAt})
}

// safeRun converts a panic inside run into an error.
func (o *Orchestrator) safeRun(ctx context.Context, sess domain.JobSession, job *domain.GenerationJob, cfg config.ProviderConfig, cfgErr error) (ref string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: panic during generation: %v", r)
		}
	}()
	return o.run(ctx, sess, job, cfg, cfgErr)
}

func (o *Orchestrator) run(ctx context.Context, sess domain.JobSession, job *domain.GenerationJob, cfg config.ProviderConfig, cfgErr error) (string, error) {
	img, err := sess.GetImage(ctx, job.SourceImageID)
	if err != nil {
		return "", missingReference("source image", job.SourceImageID, err)
	}
	style, err := sess.GetStyle(ctx, job.StyleID)
	if err != nil {
		return "", missingReference("style", job.StyleID, err)
	}
	src, err := o.loadSource(ctx, img)
	if err != nil {
		return "", err
	}

	// custom_prompt is stored with the job but the style template is sent as-is.
	prompt := style.PromptTemplate

	if cfgErr != nil {
		return "", domain.NewGenerationError(domain.KindInvalidConfiguration, "read provider configuration").WithProvider(cfg.Provider).WithCause(cfgErr)
	}
	gen, err := o.factory(cfg.Provider, cfg.Settings)
	if err != nil {
		return "", err
	}
	result, err := gen.Generate(ctx, prompt, src)
	if err != nil {
		return "", err
	}
	if result.Provider == "" {
		result.Provider = gen.Name()
	}
	return o.artifacts.Materialize(ctx, result)
}

func missingReference(what, id string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewGenerationError(domain.KindMissingReference, "%s %s not found", what, id)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

func (o *Orchestrator) loadSource(ctx context.Context, img *domain.UploadedImage) (domain.SourceImage, error) {
	bucket, name, ok := storage.SplitPublicPath(o.publicPrefix, img.StoragePath)
	if !ok {
		return domain.SourceImage{}, domain.NewGenerationError(domain.KindMissingReference, "source image path %q is not a stored object", img.StoragePath)
	}
	obj, err := o.objects.Open(ctx, bucket, name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return domain.SourceImage{}, domain.NewGenerationError(domain.KindMissingReference, "source image file %s is missing", name)
		}
		return domain.SourceImage{}, fmt.Errorf("open source image: %w", err)
	}
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return domain.SourceImage{}, fmt.Errorf("read source image: %w", err)
	}
	return domain.SourceImage{Name: img.Filename, MIMEType: img.MIMEType, Data: data}, nil
}

// fail records the FAILED status once, on a fresh session and a short
// context detached from the job's deadline. A failed write is only logged.
func (o *Orchestrator) fail(ctx context.Context, logger zerolog.Logger, job *domain.GenerationJob, provider string, startedAt time.Time, cause error) {
	kind := domain.KindOf(cause)
	message := strings.ToValidUTF8(cause.Error(), "\uFFFD")
	o.metrics.ProviderFailure(provider, string(kind))

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()

	finishedAt := o.now()
	err := o.writeFailure(writeCtx, job.ID, message, finishedAt)
	if err != nil {
		logger.Error().
			Err(err).
			Str("status", string(domain.JobStatusProcessing)).
			Str("error_message", message).
			Msg("pipeline: could not persist failure, job stays processing")
		return
	}
	o.metrics.JobFinished(string(domain.JobStatusFailed), provider, finishedAt.Sub(startedAt))
	logger.Warn().
		Str("status", string(domain.JobStatusFailed)).
		Str("kind", string(kind)).
		Str("error_message", message).
		Msg("pipeline: job failed")
	o.publish(writeCtx, logger, domain.JobEvent{JobID: job.ID, UserID: job.UserID, Status: domain.JobStatusFailed, Provider: provider, ErrorMessage: message, At: finishedAt})
}

func (o *Orchestrator) writeFailure(ctx context.Context, jobID, message string, at time.Time) error {
	sess, err := o.sessions.OpenSession(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Release()
	return sess.MarkFailed(ctx, jobID, message, at)
}

func (o *Orchestrator) publish(ctx context.Context, logger zerolog.Logger, ev domain.JobEvent) {
	if err := o.events.Publish(ctx, ev); err != nil {
		logger.Warn().Err(err).Str("status", string(ev.Status)).Msg("pipeline: publish event failed")
	}
}

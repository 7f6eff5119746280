package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mojiQAQ/petsphoto/internal/domain"
	"github.com/mojiQAQ/petsphoto/internal/events"
	"github.com/mojiQAQ/petsphoto/internal/infra"
	"github.com/mojiQAQ/petsphoto/internal/metrics"
)

const sweepBatch = 100

// Reconciler fails jobs that stayed in processing longer than staleAfter.
// Pending jobs are never touched.
type Reconciler struct {
	store      domain.StaleJobStore
	staleAfter time.Duration
	events     events.Publisher
	metrics    *metrics.Collector
	logger     zerolog.Logger
	now        func() time.Time

	cron *cron.Cron
}

func NewReconciler(store domain.StaleJobStore, staleAfter time.Duration, publisher events.Publisher, collector *metrics.Collector, logger *infra.Logger) *Reconciler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Reconciler{
		store:      store,
		staleAfter: staleAfter,
		events:     publisher,
		metrics:    collector,
		logger:     infra.DiscardLogger(logger),
		now:        time.Now,
	}
}

// Sweep marks every stale job failed and returns how many it repaired. A job
// that reached a terminal state meanwhile is left as it is.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	now := r.now()
	stale, err := r.store.ListStaleJobs(ctx, now.Add(-r.staleAfter), sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}
	message := fmt.Sprintf("job abandoned: no terminal state after %s", r.staleAfter)

	repaired := 0
	for _, job := range stale {
		if err := r.store.MarkFailed(ctx, job.ID, message, now); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			return repaired, fmt.Errorf("fail stale job %s: %w", job.ID, err)
		}
		repaired++
		provider := ""
		if job.Provider != nil {
			provider = *job.Provider
		}
		r.logger.Warn().
			Str("job_id", job.ID).
			Str("provider", provider).
			Str("status", string(domain.JobStatusFailed)).
			Msg("reconciler: stale job failed")
		ev := domain.JobEvent{JobID: job.ID, UserID: job.UserID, Status: domain.JobStatusFailed, Provider: provider, ErrorMessage: message, At: now}
		if err := r.events.Publish(ctx, ev); err != nil {
			r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("reconciler: publish event failed")
		}
	}
	r.metrics.Reconciled(repaired)
	return repaired, nil
}

// Start schedules Sweep with a cron spec such as "@every 1m".
func (r *Reconciler) Start(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, r.runOnce); err != nil {
		return fmt.Errorf("schedule reconciler %q: %w", spec, err)
	}
	c.Start()
	r.cron = c
	r.logger.Info().Str("schedule", spec).Dur("stale_after", r.staleAfter).Msg("reconciler: started")
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (r *Reconciler) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

func (r *Reconciler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := r.Sweep(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("reconciler: sweep failed")
		return
	}
	if n > 0 {
		r.logger.Info().Int("repaired", n).Msg("reconciler: sweep done")
	}
}

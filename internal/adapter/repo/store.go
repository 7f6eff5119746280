// Package repo implements the domain storage interfaces on PostgreSQL.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/mojiQAQ/petsphoto/internal/db"
	"github.com/mojiQAQ/petsphoto/internal/domain"
	"github.com/mojiQAQ/petsphoto/internal/infra"
	"github.com/mojiQAQ/petsphoto/internal/ledger"
)

// Store is the request-side repository. Background jobs use OpenSession
// instead so that they never share a connection with a request.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
	reader
}

// NewStore wraps pool. Queries are logged through infra.SQLRunner.
func NewStore(pool *pgxpool.Pool, logger *infra.Logger) *Store {
	l := infra.DiscardLogger(logger)
	return &Store{
		pool:   pool,
		logger: l,
		reader: reader{q: db.New(infra.NewSQLRunner(pool, l))},
	}
}

// CreateJob debits the owner, records the ledger entry, inserts the pending
// job and clears the image temp flag in one transaction.
func (s *Store) CreateJob(ctx context.Context, job domain.NewJob) (*domain.GenerationJob, error) {
	var created domain.GenerationJob
	err := s.inTx(ctx, func(q *db.Queries) error {
		img, err := q.GetImageForUpdate(ctx, job.SourceImageID)
		if err != nil {
			return notFound(err, "load image")
		}
		if img.UserID != job.UserID {
			return domain.ErrNotFound
		}
		style, err := q.GetStyle(ctx, job.StyleID)
		if err != nil {
			if infra.IsNoRows(err) {
				return domain.ErrInvalidStyle
			}
			return fmt.Errorf("load style: %w", err)
		}
		if !style.IsActive {
			return domain.ErrInvalidStyle
		}
		if _, err := ledger.Debit(ctx, q, job.UserID, job.CreditsCost, job.ID, "Generation: "+style.Name); err != nil {
			return err
		}
		var customPrompt *string
		if job.CustomPrompt != "" {
			customPrompt = &job.CustomPrompt
		}
		created, err = q.InsertJob(ctx, db.InsertJobParams{
			ID:            job.ID,
			UserID:        job.UserID,
			SourceImageID: job.SourceImageID,
			StyleID:       job.StyleID,
			CustomPrompt:  customPrompt,
			CreditsCost:   job.CreditsCost,
		})
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		if err := q.ClearImageTemp(ctx, img.ID); err != nil {
			return fmt.Errorf("clear image temp flag: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// ListJobsByUser returns one page of the user's jobs, newest first, and the
// total count.
func (s *Store) ListJobsByUser(ctx context.Context, userID string, limit, offset int) ([]domain.GenerationJob, int, error) {
	jobs, err := s.q.ListJobsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	total, err := s.q.CountJobsByUser(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}
	return jobs, total, nil
}

func (s *Store) ListActiveStyles(ctx context.Context) ([]domain.GenerationStyle, error) {
	styles, err := s.q.ListActiveStyles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list styles: %w", err)
	}
	return styles, nil
}

func (s *Store) CreateImage(ctx context.Context, img *domain.UploadedImage) error {
	if err := s.q.InsertImage(ctx, img); err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.q.GetUser(ctx, id)
	if err != nil {
		return nil, notFound(err, "load user")
	}
	return &u, nil
}

func (s *Store) ListStaleJobs(ctx context.Context, startedBefore time.Time, limit int) ([]domain.GenerationJob, error) {
	jobs, err := s.q.ListStaleJobs(ctx, startedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	return jobs, nil
}

// Grant adds purchased or bonus credits in its own transaction.
func (s *Store) Grant(ctx context.Context, userID string, amount int, kind domain.CreditTransactionType, description string) (*domain.CreditTransaction, error) {
	var entry *domain.CreditTransaction
	err := s.inTx(ctx, func(q *db.Queries) error {
		var err error
		entry, err = ledger.Grant(ctx, q, userID, amount, kind, description)
		return err
	})
	return entry, err
}

// Refund returns a failed job's cost to its owner in its own transaction.
func (s *Store) Refund(ctx context.Context, jobID, description string) (*domain.CreditTransaction, error) {
	var entry *domain.CreditTransaction
	err := s.inTx(ctx, func(q *db.Queries) error {
		var err error
		entry, err = ledger.Refund(ctx, q, jobID, description)
		return err
	})
	return entry, err
}

// OpenSession acquires a dedicated pool connection for one background job.
func (s *Store) OpenSession(ctx context.Context) (domain.JobSession, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &session{
		conn:   conn,
		reader: reader{q: db.New(infra.NewSQLRunner(conn, s.logger))},
	}, nil
}

func (s *Store) inTx(ctx context.Context, fn func(q *db.Queries) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Error().Err(rbErr).Msg("rollback failed")
			}
		}
	}()
	if err = fn(db.New(infra.NewSQLRunner(tx, s.logger))); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// session is a JobSession over one acquired connection.
type session struct {
	conn *pgxpool.Conn
	reader
}

func (s *session) Release() {
	if s.conn != nil {
		s.conn.Release()
		s.conn = nil
	}
}

var (
	_ domain.JobStore      = (*Store)(nil)
	_ domain.SessionOpener = (*Store)(nil)
	_ domain.StaleJobStore = (*Store)(nil)
	_ domain.JobSession    = (*session)(nil)
)

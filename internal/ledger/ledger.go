// Package ledger applies balance changes together with their immutable
// credit_transactions entry. Every function expects q to be bound to an open
// transaction; the user row is locked before the balance is read.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mojiQAQ/petsphoto/internal/domain"
	"github.com/mojiQAQ/petsphoto/internal/infra"
)

// ErrNotRefundable is returned when refunding a job that did not fail.
var ErrNotRefundable = errors.New("only failed jobs can be refunded")

// Queries is the subset of db.Queries the ledger needs.
type Queries interface {
	GetUserForUpdate(ctx context.Context, id string) (domain.User, error)
	SetUserCredits(ctx context.Context, id string, credits int) error
	InsertCreditTransaction(ctx context.Context, tx *domain.CreditTransaction) error
	CountRefundsForJob(ctx context.Context, jobID string) (int, error)
	GetJob(ctx context.Context, id string) (domain.GenerationJob, error)
}

// Debit charges amount credits for jobID and records a consumption entry.
func Debit(ctx context.Context, q Queries, userID string, amount int, jobID, description string) (*domain.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	user, err := lockUser(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	if user.Credits < amount {
		return nil, domain.ErrInsufficientCredits
	}
	return apply(ctx, q, user, domain.CreditConsumption, -amount, description, &jobID)
}

// Grant adds credits as a purchase or bonus.
func Grant(ctx context.Context, q Queries, userID string, amount int, kind domain.CreditTransactionType, description string) (*domain.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	if kind != domain.CreditPurchase && kind != domain.CreditBonus {
		return nil, fmt.Errorf("grant type %q is not purchase or bonus", kind)
	}
	user, err := lockUser(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	return apply(ctx, q, user, kind, amount, description, nil)
}

// Refund returns a failed job's credits_cost to its owner, at most once.
func Refund(ctx context.Context, q Queries, jobID, description string) (*domain.CreditTransaction, error) {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job.Status != domain.JobStatusFailed {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.Status, ErrNotRefundable)
	}
	user, err := lockUser(ctx, q, job.UserID)
	if err != nil {
		return nil, err
	}
	// counted under the owner row lock
	n, err := q.CountRefundsForJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("count refunds: %w", err)
	}
	if n > 0 {
		return nil, domain.ErrAlreadyRefunded
	}
	if description == "" {
		description = "Refund for failed generation " + jobID
	}
	return apply(ctx, q, user, domain.CreditRefund, job.CreditsCost, description, &jobID)
}

func lockUser(ctx context.Context, q Queries, userID string) (domain.User, error) {
	user, err := q.GetUserForUpdate(ctx, userID)
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("lock user: %w", err)
	}
	return user, nil
}

func apply(ctx context.Context, q Queries, user domain.User, kind domain.CreditTransactionType, amount int, description string, jobID *string) (*domain.CreditTransaction, error) {
	entry := &domain.CreditTransaction{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		Type:          kind,
		Amount:        amount,
		BalanceBefore: user.Credits,
		BalanceAfter:  user.Credits + amount,
		Description:   description,
		RelatedJobID:  jobID,
	}
	if err := q.SetUserCredits(ctx, user.ID, entry.BalanceAfter); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}
	if err := q.InsertCreditTransaction(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert credit transaction: %w", err)
	}
	return entry, nil
}

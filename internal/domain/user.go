package domain

import "time"

// User is the minimal account view the pipeline needs: identity and balance.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
}

// CreditTransactionType enumerates ledger entry kinds.
type CreditTransactionType string

const (
	CreditPurchase    CreditTransactionType = "purchase"
	CreditConsumption CreditTransactionType = "consumption"
	CreditRefund      CreditTransactionType = "refund"
	CreditBonus       CreditTransactionType = "bonus"
)

// CreditTransaction is an immutable balance delta with a before/after snapshot.
type CreditTransaction struct {
	ID            string                `json:"id"`
	UserID        string                `json:"user_id"`
	Type          CreditTransactionType `json:"type"`
	Amount        int                   `json:"amount"`
	BalanceBefore int                   `json:"balance_before"`
	BalanceAfter  int                   `json:"balance_after"`
	Description   string                `json:"description,omitempty"`
	RelatedJobID  *string               `json:"related_job_id,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

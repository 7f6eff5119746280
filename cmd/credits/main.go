package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/mojiQAQ/petsphoto/internal/adapter/repo"
	"github.com/mojiQAQ/petsphoto/internal/domain"
	"github.com/mojiQAQ/petsphoto/internal/infra"
)

func main() {
	_ = godotenv.Load()

	var (
		userFlag   string
		grantFlag  int
		kindFlag   string
		refundFlag string
		descFlag   string
	)
	flag.StringVar(&userFlag, "user", "", "user ID to credit (with -grant)")
	flag.IntVar(&grantFlag, "grant", 0, "number of credits to add")
	flag.StringVar(&kindFlag, "kind", string(domain.CreditPurchase), "grant kind (purchase or bonus)")
	flag.StringVar(&refundFlag, "refund-job", "", "failed job ID to refund")
	flag.StringVar(&descFlag, "desc", "", "ledger description")
	flag.Parse()

	userID := strings.TrimSpace(userFlag)
	jobID := strings.TrimSpace(refundFlag)
	kind := domain.CreditTransactionType(strings.TrimSpace(strings.ToLower(kindFlag)))

	switch {
	case jobID != "" && (userID != "" || grantFlag != 0):
		exitWithError(errors.New("-refund-job cannot be combined with -user or -grant"))
	case jobID == "" && userID == "":
		exitWithError(errors.New("either -user with -grant or -refund-job must be provided"))
	case jobID == "" && grantFlag <= 0:
		exitWithError(errors.New("-grant must be positive"))
	}
	if jobID == "" && kind != domain.CreditPurchase && kind != domain.CreditBonus {
		exitWithError(fmt.Errorf("unsupported kind %q", kindFlag))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "credits")
	store := repo.NewStore(pool, &logger)

	var tx *domain.CreditTransaction
	if jobID != "" {
		desc := descFlag
		if desc == "" {
			desc = "manual refund for job " + jobID
		}
		tx, err = store.Refund(ctx, jobID, desc)
		switch {
		case errors.Is(err, domain.ErrAlreadyRefunded):
			exitWithError(fmt.Errorf("job %s was already refunded", jobID))
		case errors.Is(err, domain.ErrNotFound):
			exitWithError(fmt.Errorf("job %s not found", jobID))
		case err != nil:
			exitWithError(fmt.Errorf("failed to refund job: %w", err))
		}
	} else {
		desc := descFlag
		if desc == "" {
			desc = "manual " + string(kind)
		}
		tx, err = store.Grant(ctx, userID, grantFlag, kind, desc)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			exitWithError(fmt.Errorf("user %s not found", userID))
		case err != nil:
			exitWithError(fmt.Errorf("failed to grant credits: %w", err))
		}
	}

	fmt.Printf("User %s %s %+d credits (%d -> %d)\n", tx.UserID, tx.Type, tx.Amount, tx.BalanceBefore, tx.BalanceAfter)
	fmt.Printf("transaction=%s\n", tx.ID)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

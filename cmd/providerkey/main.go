package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/mojiQAQ/petsphoto/internal/infra"
	"github.com/mojiQAQ/petsphoto/internal/infra/credentials"
)

func main() {
	_ = godotenv.Load()

	var (
		keyFlag      string
		providerFlag string
	)
	flag.StringVar(&keyFlag, "key", "", "API key for the selected provider (falls back to <PROVIDER>_API_KEY)")
	flag.StringVar(&providerFlag, "provider", credentials.ProviderGoogleAI, "provider to configure (google_ai, stability_ai, replicate, openrouter)")
	flag.Parse()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	if !credentials.KnownProvider(provider) {
		exitWithError(fmt.Errorf("unsupported provider %q", providerFlag))
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(strings.ToUpper(provider) + "_API_KEY"))
	}
	if key == "" {
		exitWithError(fmt.Errorf("%s API key is required via -key or %s_API_KEY", provider, strings.ToUpper(provider)))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(fmt.Errorf("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to create pool: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "providerkey").With().Str("provider", provider).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	execCtx, cancelExec := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelExec()
	props := map[string]any{
		"updated_by": "providerkey",
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := store.SetToken(execCtx, provider, key, props); err != nil {
		exitWithError(fmt.Errorf("failed to persist %s api key: %w", provider, err))
	}

	fmt.Printf("%s API key stored successfully\n", provider)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

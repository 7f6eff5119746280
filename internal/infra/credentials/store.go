package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mojiQAQ/petsphoto/internal/db"
	"github.com/mojiQAQ/petsphoto/internal/infra"
)

// Provider ids whose API keys may live in integration_tokens.
const (
	ProviderGoogleAI    = "google_ai"
	ProviderStabilityAI = "stability_ai"
	ProviderReplicate   = "replicate"
	ProviderOpenRouter  = "openrouter"
)

var knownProviders = map[string]bool{
	ProviderGoogleAI:    true,
	ProviderStabilityAI: true,
	ProviderReplicate:   true,
	ProviderOpenRouter:  true,
}

// KnownProvider reports whether provider may hold a stored key.
func KnownProvider(provider string) bool {
	return knownProviders[provider]
}

// Store reads and writes provider API keys kept in the database.
type Store struct {
	q *db.Queries
}

func NewStore(conn db.DBTX) *Store {
	return &Store{q: db.New(conn)}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	token, err := s.q.GetIntegrationToken(ctx, provider)
	if err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("load %s token: %w", provider, err)
	}
	return strings.TrimSpace(token), nil
}

// SetToken upserts the key for provider along with optional properties.
func (s *Store) SetToken(ctx context.Context, provider, token string, props map[string]any) error {
	if !KnownProvider(provider) {
		return fmt.Errorf("unknown provider %q", provider)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.q.UpsertIntegrationToken(ctx, provider, token, raw)
}

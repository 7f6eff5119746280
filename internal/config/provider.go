// Package config owns the provider configuration that is read fresh for
// every generation job.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/mojiQAQ/petsphoto/internal/infra"
)

const providerKey = "image_provider"

// DefaultProvider is used when nothing selects a backend.
const DefaultProvider = "mock"

// ProviderConfig is a point-in-time view of the selected backend and its
// flat settings.
type ProviderConfig struct {
	Provider string
	Settings map[string]string
}

// TokenLookup resolves stored API keys for a provider.
type TokenLookup interface {
	Token(ctx context.Context, provider string) (string, error)
}

type envBinding struct {
	setting string
	env     string
}

// bindings maps each provider setting to the environment variable that
// carries it.
var bindings = map[string][]envBinding{
	"mock": {
		{"delay", "MOCK_DELAY"},
		{"image_url", "MOCK_IMAGE_URL"},
	},
	"google_ai": {
		{"api_key", "GOOGLE_AI_API_KEY"},
		{"project_id", "GOOGLE_PROJECT_ID"},
		{"location", "GOOGLE_LOCATION"},
		{"base_url_template", "GOOGLE_BASE_URL_TEMPLATE"},
		{"model", "GOOGLE_MODEL"},
		{"credentials_file", "GOOGLE_SERVICE_ACCOUNT_PATH"},
		{"credentials_json", "GOOGLE_SERVICE_ACCOUNT_JSON"},
		{"aspect_ratio", "GOOGLE_ASPECT_RATIO"},
		{"timeout", "GOOGLE_TIMEOUT"},
	},
	"stability_ai": {
		{"api_key", "STABILITY_AI_API_KEY"},
		{"base_url", "STABILITY_AI_BASE_URL"},
		{"model", "STABILITY_AI_MODEL"},
		{"cfg_scale", "STABILITY_AI_CFG_SCALE"},
		{"steps", "STABILITY_AI_STEPS"},
		{"image_strength", "STABILITY_AI_IMAGE_STRENGTH"},
		{"timeout", "STABILITY_AI_TIMEOUT"},
	},
	"replicate": {
		{"api_key", "REPLICATE_API_KEY"},
		{"base_url", "REPLICATE_BASE_URL"},
		{"model", "REPLICATE_MODEL"},
		{"guidance_scale", "REPLICATE_GUIDANCE_SCALE"},
		{"steps", "REPLICATE_STEPS"},
		{"strength", "REPLICATE_STRENGTH"},
		{"poll_interval", "REPLICATE_POLL_INTERVAL"},
		{"max_attempts", "REPLICATE_MAX_ATTEMPTS"},
		{"timeout", "REPLICATE_TIMEOUT"},
	},
	"openrouter": {
		{"api_key", "OPENROUTER_API_KEY"},
		{"base_url", "OPENROUTER_BASE_URL"},
		{"model", "OPENROUTER_MODEL"},
		{"referer", "OPENROUTER_REFERER"},
		{"title", "OPENROUTER_TITLE"},
		{"timeout", "OPENROUTER_TIMEOUT"},
	},
}

// ProviderSource reads IMAGE_PROVIDER and the provider settings on every
// call. Environment variables win over the optional YAML file, which is
// re-read whenever its modification time changes.
type ProviderSource struct {
	mu      sync.Mutex
	v       *viper.Viper
	file    string
	fileMod time.Time
	tokens  TokenLookup
	logger  zerolog.Logger
}

// NewProviderSource binds the environment and loads file when it is set.
// tokens may be nil.
func NewProviderSource(file string, tokens TokenLookup, logger *infra.Logger) (*ProviderSource, error) {
	v := viper.New()
	v.SetDefault(providerKey, DefaultProvider)
	if err := v.BindEnv(providerKey, "IMAGE_PROVIDER"); err != nil {
		return nil, fmt.Errorf("bind IMAGE_PROVIDER: %w", err)
	}
	for provider, list := range bindings {
		for _, b := range list {
			if err := v.BindEnv(provider+"."+b.setting, b.env); err != nil {
				return nil, fmt.Errorf("bind %s: %w", b.env, err)
			}
		}
	}

	s := &ProviderSource{
		v:      v,
		file:   strings.TrimSpace(file),
		tokens: tokens,
		logger: infra.DiscardLogger(logger),
	}
	if s.file != "" {
		v.SetConfigFile(s.file)
		v.SetConfigType("yaml")
		if err := s.reloadIfChanged(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// reloadIfChanged must be called with s.mu held or before s is shared.
func (s *ProviderSource) reloadIfChanged() error {
	info, err := os.Stat(s.file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("provider config file %s: %w", s.file, err)
		}
		return fmt.Errorf("stat provider config: %w", err)
	}
	if info.ModTime().Equal(s.fileMod) {
		return nil
	}
	if err := s.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read provider config: %w", err)
	}
	if !s.fileMod.IsZero() {
		s.logger.Info().Str("file", s.file).Msg("provider config reloaded")
	}
	s.fileMod = info.ModTime()
	return nil
}

// Current returns the provider configuration as it is right now. A missing
// api_key falls back to the key stored for the provider. On error the
// returned config still names the provider.
func (s *ProviderSource) Current(ctx context.Context) (ProviderConfig, error) {
	s.mu.Lock()
	if s.file != "" {
		if err := s.reloadIfChanged(); err != nil {
			// keep serving the last good file
			s.logger.Warn().Err(err).Str("file", s.file).Msg("provider config reload failed")
		}
	}
	provider := strings.ToLower(strings.TrimSpace(s.v.GetString(providerKey)))
	if provider == "" {
		provider = DefaultProvider
	}
	settings := s.settingsLocked(provider)
	s.mu.Unlock()

	if settings["api_key"] == "" && provider != DefaultProvider && s.tokens != nil {
		token, err := s.tokens.Token(ctx, provider)
		if err != nil {
			return ProviderConfig{Provider: provider}, fmt.Errorf("lookup stored key for %s: %w", provider, err)
		}
		if token != "" {
			settings["api_key"] = token
		}
	}
	return ProviderConfig{Provider: provider, Settings: settings}, nil
}

func (s *ProviderSource) settingsLocked(provider string) map[string]string {
	keys := map[string]struct{}{}
	for _, b := range bindings[provider] {
		keys[b.setting] = struct{}{}
	}
	for k := range s.v.GetStringMap(provider) {
		keys[strings.ToLower(k)] = struct{}{}
	}
	settings := make(map[string]string, len(keys))
	for k := range keys {
		if val := strings.TrimSpace(s.v.GetString(provider + "." + k)); val != "" {
			settings[k] = val
		}
	}
	return settings
}

// SettingNames lists the recognised settings of provider in sorted order.
func SettingNames(provider string) []string {
	var out []string
	for _, b := range bindings[provider] {
		out = append(out, b.setting)
	}
	sort.Strings(out)
	return out
}

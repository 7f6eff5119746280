package image

import (
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/mojiQAQ/petsphoto/internal/domain"
	"github.com/mojiQAQ/petsphoto/internal/providers/genai"
	"github.com/mojiQAQ/petsphoto/internal/providers/openrouter"
	"github.com/mojiQAQ/petsphoto/internal/providers/replicate"
	"github.com/mojiQAQ/petsphoto/internal/providers/stability"
)

// IDs lists every provider id New accepts.
var IDs = []string{MockID, genai.ProviderID, stability.ProviderID, replicate.ProviderID, openrouter.ProviderID}

// New builds the generator registered under id from flat string settings.
// It never performs network I/O; missing credentials and unknown ids are
// reported as invalid_configuration.
func New(id string, settings map[string]string, deps Deps) (Generator, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	switch id {
	case MockID:
		var opts MockOptions
		if err := decodeSettings(id, settings, &opts); err != nil {
			return nil, err
		}
		return NewMock(opts), nil

	case genai.ProviderID:
		var opts genai.Options
		if err := decodeSettings(id, settings, &opts); err != nil {
			return nil, err
		}
		tokens, err := deps.Tokens.TokenSource(opts.CredentialsFile, opts.CredentialsJSON)
		if err != nil {
			return nil, domain.NewGenerationError(domain.KindInvalidConfiguration, "load service account").WithProvider(id).WithCause(err)
		}
		if tokens != nil {
			opts.TokenSource = tokens
		}
		opts.HTTPClient = deps.HTTPClient
		opts.Logger = deps.Logger
		client, err := genai.NewClient(opts)
		if err != nil {
			return nil, err
		}
		return client, nil

	case stability.ProviderID:
		var opts stability.Options
		if err := decodeSettings(id, settings, &opts); err != nil {
			return nil, err
		}
		opts.HTTPClient = deps.HTTPClient
		opts.Logger = deps.Logger
		client, err := stability.NewClient(opts)
		if err != nil {
			return nil, err
		}
		return client, nil

	case replicate.ProviderID:
		var opts replicate.Options
		if err := decodeSettings(id, settings, &opts); err != nil {
			return nil, err
		}
		opts.HTTPClient = deps.HTTPClient
		opts.Logger = deps.Logger
		client, err := replicate.NewClient(opts)
		if err != nil {
			return nil, err
		}
		return client, nil

	case openrouter.ProviderID:
		var opts openrouter.Options
		if err := decodeSettings(id, settings, &opts); err != nil {
			return nil, err
		}
		opts.HTTPClient = deps.HTTPClient
		opts.Logger = deps.Logger
		client, err := openrouter.NewClient(opts)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, domain.NewGenerationError(domain.KindInvalidConfiguration, "unknown image provider %q", id)
}

func decodeSettings(id string, settings map[string]string, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return domain.NewGenerationError(domain.KindInvalidConfiguration, "settings decoder").WithProvider(id).WithCause(err)
	}
	if err := dec.Decode(settings); err != nil {
		return domain.NewGenerationError(domain.KindInvalidConfiguration, "decode settings").WithProvider(id).WithCause(err)
	}
	return nil
}

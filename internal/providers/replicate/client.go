// Package replicate creates predictions on Replicate and polls them until
// they settle.
package replicate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mojiQAQ/petsphoto/internal/domain"
	"github.com/mojiQAQ/petsphoto/internal/infra"
	"github.com/mojiQAQ/petsphoto/internal/providers/upstream"
)

const ProviderID = "replicate"

const defaultModel = "stability-ai/sdxl:39ed52f2a78e934b3ba6e2a89f5b1c712de7dfea535525255b1aa35c5565e08b"

type Options struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Model         string        `mapstructure:"model"`
	GuidanceScale float64       `mapstructure:"guidance_scale"`
	Steps         int           `mapstructure:"steps"`
	Strength      float64       `mapstructure:"strength"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Timeout       time.Duration `mapstructure:"timeout"`

	HTTPClient *http.Client  `mapstructure:"-"`
	Logger     *infra.Logger `mapstructure:"-"`
}

type Client struct {
	apiKey        string
	baseURL       string
	model         string
	guidanceScale float64
	steps         int
	strength      float64
	pollInterval  time.Duration
	maxAttempts   int
	timeout       time.Duration
	httpClient    *http.Client
	logger        zerolog.Logger
}

func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, domain.NewGenerationError(domain.KindInvalidConfiguration, "api_key is required").WithProvider(ProviderID)
	}
	c := &Client{
		apiKey:        apiKey,
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		model:         strings.TrimSpace(opts.Model),
		guidanceScale: opts.GuidanceScale,
		steps:         opts.Steps,
		strength:      opts.Strength,
		pollInterval:  opts.PollInterval,
		maxAttempts:   opts.MaxAttempts,
		timeout:       opts.Timeout,
		httpClient:    opts.HTTPClient,
		logger:        infra.DiscardLogger(opts.Logger),
	}
	if c.baseURL == "" {
		c.baseURL = "https://api.replicate.com/v1"
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.guidanceScale <= 0 {
		c.guidanceScale = 7.5
	}
	if c.steps <= 0 {
		c.steps = 30
	}
	if c.strength <= 0 || c.strength > 1 {
		c.strength = 0.4
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 2 * time.Second
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 60
	}
	if c.timeout <= 0 {
		c.timeout = 120 * time.Second
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c, nil
}

func (c *Client) Name() string { return ProviderID }

// Version returns the version hash sent to the predictions API: the part of
// the model reference after the last colon.
func (c *Client) Version() string {
	if i := strings.LastIndex(c.model, ":"); i >= 0 {
		return c.model[i+1:]
	}
	return c.model
}

type predictionInput struct {
	Image             string  `json:"image"`
	Prompt            string  `json:"prompt"`
	NumOutputs        int     `json:"num_outputs"`
	GuidanceScale     float64 `json:"guidance_scale"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	Strength          float64 `json:"strength"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

// Generate creates a prediction, then polls every poll interval for at most
// max attempts.
func (c *Client) Generate(ctx context.Context, prompt string, src domain.SourceImage) (domain.ProviderResult, error) {
	mimeType := src.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}
	payload := map[string]any{
		"version": c.Version(),
		"input": predictionInput{
			Image:             "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(src.Data),
			Prompt:            prompt,
			NumOutputs:        1,
			GuidanceScale:     c.guidanceScale,
			NumInferenceSteps: c.steps,
			Strength:          c.strength,
		},
	}

	var created prediction
	if err := c.call(ctx, http.MethodPost, c.baseURL+"/predictions", payload, &created); err != nil {
		return domain.ProviderResult{}, err
	}
	if created.ID == "" {
		return domain.ProviderResult{}, domain.NewGenerationError(domain.KindUpstreamUnavailable, "prediction created without id").WithProvider(ProviderID)
	}
	c.logger.Info().Str("provider", ProviderID).Str("prediction_id", created.ID).Msg("replicate: prediction created")

	statusURL := c.baseURL + "/predictions/" + url.PathEscape(created.ID)
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return domain.ProviderResult{}, upstream.MapTransportError(ProviderID, ctx.Err())
		case <-timer.C:
		}

		var current prediction
		if err := c.call(ctx, http.MethodGet, statusURL, nil, &current); err != nil {
			return domain.ProviderResult{}, err
		}
		switch current.Status {
		case "succeeded":
			return c.result(created.ID, current)
		case "failed", "canceled":
			return domain.ProviderResult{}, domain.NewGenerationError(domain.KindUpstreamUnavailable, "prediction %s: %s", current.Status, errorText(current.Error)).WithProvider(ProviderID)
		}
		timer.Reset(c.pollInterval)
	}
	return domain.ProviderResult{}, domain.NewGenerationError(domain.KindTimeout, "prediction %s not finished after %d polls", created.ID, c.maxAttempts).WithProvider(ProviderID)
}

func (c *Client) result(id string, p prediction) (domain.ProviderResult, error) {
	ref := firstOutput(p.Output)
	if ref == "" {
		return domain.ProviderResult{}, domain.NewGenerationError(domain.KindNoImageReturned, "prediction %s returned no output", id).WithProvider(ProviderID)
	}
	return domain.ResultFromReference(ref, ProviderID, map[string]any{
		"prediction_id": id,
		"model":         c.model,
	})
}

// firstOutput accepts both a list of references and a single string.
func firstOutput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) > 0 {
			return list[0]
		}
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	return ""
}

func errorText(v any) string {
	switch e := v.(type) {
	case nil:
		return "unknown error"
	case string:
		if e == "" {
			return "unknown error"
		}
		return e
	default:
		raw, _ := json.Marshal(e)
		return string(raw)
	}
}

func (c *Client) call(ctx context.Context, method, endpoint string, payload any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return domain.NewGenerationError(domain.KindInvalidConfiguration, "build request").WithProvider(ProviderID).WithCause(err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return upstream.Do(c.httpClient, ProviderID, req, out)
}

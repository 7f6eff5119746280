// Package genai calls Google Vertex AI image models: Gemini image models
// through generateContent and Imagen models through predict.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mojiQAQ/petsphoto/internal/domain"
	"github.com/mojiQAQ/petsphoto/internal/infra"
	"github.com/mojiQAQ/petsphoto/internal/providers/upstream"
)

// ProviderID is the configuration id of this backend.
const ProviderID = "google_ai"

const (
	defaultLocation        = "us-central1"
	defaultBaseURLTemplate = "https://{location}-aiplatform.googleapis.com/v1"
	defaultModel           = "publishers/google/models/gemini-2.5-flash-image"
	defaultTimeout         = 90 * time.Second
	defaultAspectRatio     = "1:1"
)

// TokenSource yields OAuth2 bearer tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Options configures the Vertex client. Fields tagged for mapstructure are
// decoded from the flat provider settings.
type Options struct {
	ProjectID       string        `mapstructure:"project_id"`
	Location        string        `mapstructure:"location"`
	BaseURLTemplate string        `mapstructure:"base_url_template"`
	Model           string        `mapstructure:"model"`
	APIKey          string        `mapstructure:"api_key"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	CredentialsJSON string        `mapstructure:"credentials_json"`
	AspectRatio     string        `mapstructure:"aspect_ratio"`
	Timeout         time.Duration `mapstructure:"timeout"`

	TokenSource TokenSource   `mapstructure:"-"`
	HTTPClient  *http.Client  `mapstructure:"-"`
	Logger      *infra.Logger `mapstructure:"-"`
}

// Client talks to a single Vertex model.
type Client struct {
	projectID   string
	location    string
	baseURL     string
	model       string
	apiKey      string
	aspectRatio string
	timeout     time.Duration
	tokens      TokenSource
	httpClient  *http.Client
	logger      zerolog.Logger
}

// NewClient validates opts and applies defaults. It performs no network I/O.
func NewClient(opts Options) (*Client, error) {
	projectID := strings.TrimSpace(opts.ProjectID)
	if projectID == "" {
		return nil, domain.NewGenerationError(domain.KindInvalidConfiguration, "project_id is required").WithProvider(ProviderID)
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	if opts.TokenSource == nil && apiKey == "" {
		return nil, domain.NewGenerationError(domain.KindInvalidConfiguration, "service account credentials or api_key are required").WithProvider(ProviderID)
	}

	location := firstNonEmpty(opts.Location, defaultLocation)
	template := firstNonEmpty(opts.BaseURLTemplate, defaultBaseURLTemplate)
	baseURL := strings.TrimRight(strings.ReplaceAll(template, "{location}", location), "/")

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		projectID:   projectID,
		location:    location,
		baseURL:     baseURL,
		model:       strings.Trim(firstNonEmpty(opts.Model, defaultModel), "/"),
		apiKey:      apiKey,
		aspectRatio: firstNonEmpty(opts.AspectRatio, defaultAspectRatio),
		timeout:     timeout,
		tokens:      opts.TokenSource,
		httpClient:  client,
		logger:      infra.DiscardLogger(opts.Logger),
	}, nil
}

func (c *Client) Name() string { return ProviderID }

// Model returns the configured model resource path.
func (c *Client) Model() string { return c.model }

// IsGemini reports whether the model speaks generateContent.
func (c *Client) IsGemini() bool {
	return strings.Contains(strings.ToLower(c.model), "gemini")
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/projects/%s/locations/%s/%s:%s", c.baseURL, c.projectID, c.location, c.model, method)
}

// Generate sends the source photo and prompt to the model and returns the
// first image it produces as inline data.
func (c *Client) Generate(ctx context.Context, prompt string, src domain.SourceImage) (domain.ProviderResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	encoded := base64.StdEncoding.EncodeToString(src.Data)
	mimeType := firstNonEmpty(src.MIMEType, "image/jpeg")

	if c.IsGemini() {
		return c.generateContent(ctx, prompt, encoded, mimeType)
	}
	return c.predict(ctx, prompt, encoded)
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiRequestPart struct {
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
	Text       string            `json:"text,omitempty"`
}

type geminiRequest struct {
	Contents struct {
		Role  string              `json:"role"`
		Parts []geminiRequestPart `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"response_modalities"`
		ImageConfig        struct {
			AspectRatio string `json:"aspect_ratio"`
		} `json:"image_config"`
	} `json:"generation_config"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text       string `json:"text,omitempty"`
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData,omitempty"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
}

func (c *Client) generateContent(ctx context.Context, prompt, encoded, mimeType string) (domain.ProviderResult, error) {
	var payload geminiRequest
	payload.Contents.Role = "USER"
	payload.Contents.Parts = []geminiRequestPart{
		{InlineData: &geminiInlineData{MimeType: mimeType, Data: encoded}},
		{Text: prompt},
	}
	payload.GenerationConfig.ResponseModalities = []string{"IMAGE"}
	payload.GenerationConfig.ImageConfig.AspectRatio = c.aspectRatio

	var resp geminiResponse
	if err := c.invoke(ctx, c.endpoint("generateContent"), payload, &resp); err != nil {
		return domain.ProviderResult{}, err
	}

	var finish string
	for _, candidate := range resp.Candidates {
		finish = firstNonEmpty(finish, candidate.FinishReason)
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			return domain.ProviderResult{
				InlineData: part.InlineData.Data,
				MIMEType:   firstNonEmpty(part.InlineData.MimeType, "image/png"),
				Provider:   ProviderID,
				Metadata:   map[string]any{"model": c.model, "prompt": prompt},
			}, nil
		}
	}
	msg := "no image data in generateContent response"
	if finish != "" {
		msg += " (finish reason " + finish + ")"
	}
	return domain.ProviderResult{}, domain.NewGenerationError(domain.KindNoImageReturned, "%s", msg).WithProvider(ProviderID)
}

type imagenReference struct {
	ReferenceType  string `json:"referenceType"`
	ReferenceID    int    `json:"referenceId"`
	ReferenceImage struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
	} `json:"referenceImage"`
	SubjectImageConfig struct {
		SubjectDescription string `json:"subjectDescription"`
		SubjectType        string `json:"subjectType"`
	} `json:"subjectImageConfig"`
}

type imagenInstance struct {
	Prompt          string            `json:"prompt"`
	ReferenceImages []imagenReference `json:"referenceImages"`
}

type imagenRequest struct {
	Instances  []imagenInstance `json:"instances"`
	Parameters struct {
		SampleCount int `json:"sampleCount"`
	} `json:"parameters"`
}

type imagenResponse struct {
	Predictions []json.RawMessage `json:"predictions"`
}

func (c *Client) predict(ctx context.Context, prompt, encoded string) (domain.ProviderResult, error) {
	ref := imagenReference{ReferenceType: "REFERENCE_TYPE_SUBJECT", ReferenceID: 1}
	ref.ReferenceImage.BytesBase64Encoded = encoded
	ref.SubjectImageConfig.SubjectDescription = "a pet animal"
	ref.SubjectImageConfig.SubjectType = "SUBJECT_TYPE_ANIMAL"

	var payload imagenRequest
	payload.Instances = []imagenInstance{{Prompt: prompt, ReferenceImages: []imagenReference{ref}}}
	payload.Parameters.SampleCount = 1

	var resp imagenResponse
	if err := c.invoke(ctx, c.endpoint("predict"), payload, &resp); err != nil {
		return domain.ProviderResult{}, err
	}
	if len(resp.Predictions) == 0 {
		return domain.ProviderResult{}, domain.NewGenerationError(domain.KindNoImageReturned, "no predictions returned").WithProvider(ProviderID)
	}
	data, mimeType := predictionImage(resp.Predictions[0])
	if data == "" {
		return domain.ProviderResult{}, domain.NewGenerationError(domain.KindNoImageReturned, "prediction carries no image data").WithProvider(ProviderID)
	}
	return domain.ProviderResult{
		InlineData: data,
		MIMEType:   firstNonEmpty(mimeType, "image/png"),
		Provider:   ProviderID,
		Metadata:   map[string]any{"model": c.model, "prompt": prompt},
	}, nil
}

// predictionImage accepts the three prediction layouts Imagen has used:
// a top-level bytesBase64Encoded, a nested image object, or image as a string.
func predictionImage(raw json.RawMessage) (data, mimeType string) {
	var p struct {
		BytesBase64Encoded string          `json:"bytesBase64Encoded"`
		MimeType           string          `json:"mimeType"`
		Image              json.RawMessage `json:"image"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", ""
	}
	if p.BytesBase64Encoded != "" {
		return p.BytesBase64Encoded, p.MimeType
	}
	if len(p.Image) == 0 {
		return "", ""
	}
	var nested struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	}
	if err := json.Unmarshal(p.Image, &nested); err == nil && nested.BytesBase64Encoded != "" {
		return nested.BytesBase64Encoded, firstNonEmpty(nested.MimeType, p.MimeType)
	}
	var asString string
	if err := json.Unmarshal(p.Image, &asString); err == nil {
		return asString, p.MimeType
	}
	return "", ""
}

func (c *Client) invoke(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.NewGenerationError(domain.KindInvalidConfiguration, "build request").WithProvider(ProviderID).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	c.logger.Debug().
		Str("provider", ProviderID).
		Str("model", c.model).
		Str("endpoint", endpoint).
		Msg("genai: calling vertex")

	return upstream.Do(c.httpClient, ProviderID, req, out)
}

// authorize prefers a service-account bearer token and falls back to the
// x-goog-api-key header, which Vertex usually rejects.
func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
			return nil
		}
		if c.apiKey == "" {
			return domain.NewGenerationError(domain.KindUnauthorized, "mint service account token").WithProvider(ProviderID).WithCause(err)
		}
		c.logger.Warn().Err(err).Str("provider", ProviderID).Msg("genai: service account token unavailable, using api key")
	} else {
		c.logger.Warn().Str("provider", ProviderID).Msg("genai: authenticating with api key, Vertex AI may reject it")
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

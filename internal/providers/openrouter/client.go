// Package openrouter asks an image-capable chat model on OpenRouter to
// restyle the source photo.
package openrouter

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

const ProviderID = "openrouter"

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "google/gemini-2.5-flash-image-preview"
	defaultReferer = "https://petsphoto.app"
	defaultTitle   = "PetsPhoto"
)

type Options struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Referer string        `mapstructure:"referer"`
	Title   string        `mapstructure:"title"`
	Timeout time.Duration `mapstructure:"timeout"`

	HTTPClient *http.Client  `mapstructure:"-"`
	Logger     *infra.Logger `mapstructure:"-"`
}

type Client struct {
	apiKey     string
	baseURL    string
	model      string
	referer    string
	title      string
	timeout    time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, domain.NewGenerationError(domain.KindInvalidConfiguration, "api_key is required").WithProvider(ProviderID)
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      coalesce(opts.Model, defaultModel),
		referer:    coalesce(opts.Referer, defaultReferer),
		title:      coalesce(opts.Title, defaultTitle),
		timeout:    timeout,
		httpClient: client,
		logger:     infra.DiscardLogger(opts.Logger),
	}, nil
}

func (c *Client) Name() string { return ProviderID }

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Modalities []string      `json:"modalities"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
			Images  []struct {
				ImageURL imageURL `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
	} `json:"choices"`
}

// responsePart covers the part shapes seen in list-form content.
type responsePart struct {
	Type       string    `json:"type"`
	ImageURL   *imageURL `json:"image_url"`
	InlineData *struct {
		MIMEType string `json:"mime_type"`
		Data     string `json:"data"`
	} `json:"inline_data"`
}

func userPrompt(prompt string) string {
	return fmt.Sprintf("Based on this pet photo, generate a new artistic image in the following style: %s. Generate the image directly.", prompt)
}

// Generate sends the photo as a data URI plus the styled instruction and
// extracts the first image from the reply.
func (c *Client) Generate(ctx context.Context, prompt string, src domain.SourceImage) (domain.ProviderResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	mimeType := coalesce(src.MIMEType, "image/jpeg")
	payload := chatRequest{
		Model:      c.model,
		Modalities: []string{"image", "text"},
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "image_url", ImageURL: &imageURL{URL: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(src.Data)}},
				{Type: "text", Text: userPrompt(prompt)},
			},
		}},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return domain.ProviderResult{}, domain.NewGenerationError(domain.KindInvalidArtifact, "encode request").WithProvider(ProviderID).WithCause(err)
	}
	endpoint := fmt.Sprintf("%s/chat/completions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return domain.ProviderResult{}, domain.NewGenerationError(domain.KindInvalidConfiguration, "build request").WithProvider(ProviderID).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)

	var out chatResponse
	if err := upstream.Do(c.httpClient, ProviderID, req, &out); err != nil {
		return domain.ProviderResult{}, err
	}
	if len(out.Choices) == 0 {
		return domain.ProviderResult{}, domain.NewGenerationError(domain.KindNoImageReturned, "no choices returned").WithProvider(ProviderID)
	}
	ref, source := extractImage(out)
	if ref == "" {
		c.logger.Warn().Str("provider", ProviderID).Str("model", c.model).Msg("openrouter: reply carried no image")
		return domain.ProviderResult{}, domain.NewGenerationError(domain.KindNoImageReturned, "model reply contained no image").WithProvider(ProviderID)
	}
	return domain.ResultFromReference(ref, ProviderID, map[string]any{
		"model":  c.model,
		"source": source,
	})
}

// extractImage checks message.images first, then list-form content, then a
// bare data URI string. It returns the reference and where it was found.
func extractImage(out chatResponse) (string, string) {
	msg := out.Choices[0].Message
	for _, img := range msg.Images {
		if u := strings.TrimSpace(img.ImageURL.URL); u != "" {
			return u, "images"
		}
	}
	raw := bytes.TrimSpace(msg.Content)
	if len(raw) == 0 {
		return "", ""
	}
	var parts []responsePart
	if err := json.Unmarshal(raw, &parts); err == nil {
		for _, p := range parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				return "data:" + coalesce(p.InlineData.MIMEType, "image/png") + ";base64," + p.InlineData.Data, "content"
			}
			if p.ImageURL != nil && strings.TrimSpace(p.ImageURL.URL) != "" {
				return strings.TrimSpace(p.ImageURL.URL), "content"
			}
		}
		return "", ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.TrimSpace(text)
		if strings.HasPrefix(text, "data:image") {
			return text, "text"
		}
	}
	return "", ""
}

func coalesce(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

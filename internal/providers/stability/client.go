// Package stability calls the Stability AI image-to-image endpoint.
package stability

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mojiQAQ/petsphoto/internal/domain"
	"github.com/mojiQAQ/petsphoto/internal/infra"
	"github.com/mojiQAQ/petsphoto/internal/providers/upstream"
)

const ProviderID = "stability_ai"

// Options configures the client. Zero values take the documented defaults.
type Options struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Model         string        `mapstructure:"model"`
	CFGScale      float64       `mapstructure:"cfg_scale"`
	Steps         int           `mapstructure:"steps"`
	ImageStrength float64       `mapstructure:"image_strength"`
	Timeout       time.Duration `mapstructure:"timeout"`

	HTTPClient *http.Client  `mapstructure:"-"`
	Logger     *infra.Logger `mapstructure:"-"`
}

type Client struct {
	apiKey        string
	baseURL       string
	model         string
	cfgScale      float64
	steps         int
	imageStrength float64
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
		cfgScale:      opts.CFGScale,
		steps:         opts.Steps,
		imageStrength: opts.ImageStrength,
		timeout:       opts.Timeout,
		httpClient:    opts.HTTPClient,
		logger:        infra.DiscardLogger(opts.Logger),
	}
	if c.baseURL == "" {
		c.baseURL = "https://api.stability.ai"
	}
	if c.model == "" {
		c.model = "stable-diffusion-xl-1024-v1-0"
	}
	if c.cfgScale <= 0 {
		c.cfgScale = 7
	}
	if c.steps <= 0 {
		c.steps = 30
	}
	if c.imageStrength <= 0 || c.imageStrength >= 1 {
		c.imageStrength = 0.35
	}
	if c.timeout <= 0 {
		c.timeout = 90 * time.Second
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c, nil
}

func (c *Client) Name() string { return ProviderID }

type generationResponse struct {
	Artifacts []struct {
		Base64       string `json:"base64"`
		Seed         int64  `json:"seed"`
		FinishReason string `json:"finishReason"`
	} `json:"artifacts"`
}

// Generate uploads the source as init_image and returns the first artifact.
func (c *Client) Generate(ctx context.Context, prompt string, src domain.SourceImage) (domain.ProviderResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, contentType, err := c.buildForm(prompt, src)
	if err != nil {
		return domain.ProviderResult{}, domain.NewGenerationError(domain.KindInvalidArtifact, "encode request").WithProvider(ProviderID).WithCause(err)
	}

	endpoint := fmt.Sprintf("%s/v1/generation/%s/image-to-image", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return domain.ProviderResult{}, domain.NewGenerationError(domain.KindInvalidConfiguration, "build request").WithProvider(ProviderID).WithCause(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType)

	c.logger.Debug().Str("provider", ProviderID).Str("model", c.model).Msg("stability: calling image-to-image")

	var resp generationResponse
	if err := upstream.Do(c.httpClient, ProviderID, req, &resp); err != nil {
		return domain.ProviderResult{}, err
	}
	if len(resp.Artifacts) == 0 || resp.Artifacts[0].Base64 == "" {
		return domain.ProviderResult{}, domain.NewGenerationError(domain.KindNoImageReturned, "no artifacts returned").WithProvider(ProviderID)
	}
	artifact := resp.Artifacts[0]
	return domain.ProviderResult{
		InlineData: artifact.Base64,
		MIMEType:   "image/png",
		Provider:   ProviderID,
		Metadata: map[string]any{
			"model":         c.model,
			"seed":          artifact.Seed,
			"finish_reason": artifact.FinishReason,
		},
	}, nil
}

func (c *Client) buildForm(prompt string, src domain.SourceImage) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := src.Name
	if name == "" {
		name = "image.png"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="init_image"; filename="%s"`, name))
	header.Set("Content-Type", firstNonEmpty(src.MIMEType, "image/png"))
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(src.Data); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"text_prompts[0][text]", prompt},
		{"text_prompts[0][weight]", "1"},
		{"cfg_scale", strconv.FormatFloat(c.cfgScale, 'f', -1, 64)},
		{"samples", "1"},
		{"steps", strconv.Itoa(c.steps)},
		{"init_image_mode", "IMAGE_STRENGTH"},
		{"image_strength", strconv.FormatFloat(c.imageStrength, 'f', -1, 64)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// Package artifact turns provider results into stored files in the
// generated bucket.
package artifact

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mojiQAQ/petsphoto/internal/domain"
	"github.com/mojiQAQ/petsphoto/internal/infra"
	"github.com/mojiQAQ/petsphoto/internal/storage"
)

// MaxDownloadBytes caps a fetched artifact.
const MaxDownloadBytes = 50 << 20

type Options struct {
	Store           storage.ObjectStore
	HTTPClient      *http.Client
	DownloadTimeout time.Duration
	PublicPrefix    string
	Logger          *infra.Logger
}

// Materializer writes exactly one object per successful call.
type Materializer struct {
	store           storage.ObjectStore
	httpClient      *http.Client
	downloadTimeout time.Duration
	publicPrefix    string
	logger          zerolog.Logger
	newName         func(ext string) string
}

func NewMaterializer(opts Options) *Materializer {
	m := &Materializer{
		store:           opts.Store,
		httpClient:      opts.HTTPClient,
		downloadTimeout: opts.DownloadTimeout,
		publicPrefix:    opts.PublicPrefix,
		logger:          infra.DiscardLogger(opts.Logger),
		newName: func(ext string) string {
			return "result_" + uuid.NewString() + ext
		},
	}
	if m.httpClient == nil {
		m.httpClient = &http.Client{}
	}
	if m.downloadTimeout <= 0 {
		m.downloadTimeout = 30 * time.Second
	}
	if m.publicPrefix == "" {
		m.publicPrefix = "/uploads"
	}
	return m
}

// Materialize stores the artifact carried by result and returns its public
// reference, e.g. /uploads/generated/result_<uuid>.png.
func (m *Materializer) Materialize(ctx context.Context, result domain.ProviderResult) (string, error) {
	if err := result.Validate(); err != nil {
		return "", err
	}
	if m.store == nil {
		return "", errors.New("artifact: no object store configured")
	}

	var data []byte
	var err error
	if result.IsInline() {
		data, err = decodeInline(result.InlineData)
		if err != nil {
			return "", domain.NewGenerationError(domain.KindInvalidArtifact, "malformed base64 payload").WithProvider(result.Provider).WithCause(err)
		}
	} else {
		data, err = m.download(ctx, result.URL)
		if err != nil {
			return "", err
		}
	}
	if len(data) == 0 {
		return "", domain.NewGenerationError(domain.KindInvalidArtifact, "artifact is empty").WithProvider(result.Provider)
	}

	ext, contentType := Extension(result.MIMEType, data)
	name := m.newName(ext)
	if err := m.store.Create(ctx, storage.BucketGenerated, name, data, contentType); err != nil {
		return "", fmt.Errorf("store artifact %s: %w", name, err)
	}
	m.logger.Debug().
		Str("provider", result.Provider).
		Str("object", name).
		Int("bytes", len(data)).
		Msg("artifact stored")
	return storage.PublicPath(m.publicPrefix, storage.BucketGenerated, name), nil
}

func decodeInline(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(payload); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

func (m *Materializer) download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, m.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewGenerationError(domain.KindDownloadFailed, "build download request").WithCause(err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewGenerationError(domain.KindDownloadFailed, "fetch %s", url).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, domain.NewGenerationError(domain.KindDownloadFailed, "fetch %s", url).WithHTTPStatus(resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return nil, domain.NewGenerationError(domain.KindDownloadFailed, "read %s", url).WithCause(err)
	}
	if len(data) > MaxDownloadBytes {
		return nil, domain.NewGenerationError(domain.KindDownloadFailed, "artifact exceeds %d bytes", MaxDownloadBytes)
	}
	return data, nil
}

// Extension picks the file extension and content type for an artifact,
// trusting the declared MIME type first and sniffing the bytes otherwise.
func Extension(declared string, data []byte) (ext, contentType string) {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared == "image/jpg" {
		declared = "image/jpeg"
	}
	if ext, ok := knownExtension(declared); ok {
		return ext, declared
	}
	detected := mimetype.Detect(data)
	for _, candidate := range []string{"image/jpeg", "image/png", "image/webp"} {
		if detected.Is(candidate) {
			ext, _ := knownExtension(candidate)
			return ext, candidate
		}
	}
	return ".bin", "application/octet-stream"
}

func knownExtension(mime string) (string, bool) {
	switch mime {
	case "image/jpeg":
		return ".jpg", true
	case "image/png":
		return ".png", true
	case "image/webp":
		return ".webp", true
	}
	return "", false
}

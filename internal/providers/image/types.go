// Package image selects and builds the image generation backend configured
// for a job.
package image

import (
	"context"
	"net/http"

	"github.com/mojiQAQ/petsphoto/internal/domain"
	"github.com/mojiQAQ/petsphoto/internal/infra"
	"github.com/mojiQAQ/petsphoto/internal/infra/google"
)

// Generator is the contract implemented by all image providers.
type Generator interface {
	// Generate restyles src according to prompt. Failures are
	// *domain.GenerationError values.
	Generate(ctx context.Context, prompt string, src domain.SourceImage) (domain.ProviderResult, error)
	Name() string
}

// Deps are the long-lived collaborators shared by every generator built by New.
type Deps struct {
	HTTPClient *http.Client
	Logger     *infra.Logger
	Tokens     *google.Registry
}

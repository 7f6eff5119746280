// Package handlers implements the HTTP API on top of the generation service.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mojiQAQ/petsphoto/internal/domain"
	"github.com/mojiQAQ/petsphoto/internal/generation"
	"github.com/mojiQAQ/petsphoto/internal/infra"
	"github.com/mojiQAQ/petsphoto/internal/middleware"
	"github.com/mojiQAQ/petsphoto/internal/storage"
)

// GenerationService is the slice of generation.Service used by the API.
type GenerationService interface {
	CreateJob(ctx context.Context, userID, imageID, styleID, customPrompt string) (*domain.GenerationJob, error)
	GetJob(ctx context.Context, userID, jobID string) (*domain.GenerationJob, error)
	ListHistory(ctx context.Context, userID string, limit, offset int) (generation.History, error)
	ListStyles(ctx context.Context) ([]domain.GenerationStyle, error)
	GetProfile(ctx context.Context, userID string) (*domain.User, error)
	GetImage(ctx context.Context, userID, imageID string) (*domain.UploadedImage, error)
	UploadImage(ctx context.Context, userID, filename string, data []byte) (*domain.UploadedImage, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Service        GenerationService
	Objects        storage.ObjectStore
	DB             Pinger
	MaxUploadBytes int64
	Logger         zerolog.Logger
}

func NewApp(svc GenerationService, objects storage.ObjectStore, db Pinger, maxUploadBytes int64, logger *infra.Logger) *App {
	if maxUploadBytes <= 0 {
		maxUploadBytes = generation.DefaultUploadLimit
	}
	return &App{
		Service:        svc,
		Objects:        objects,
		DB:             db,
		MaxUploadBytes: maxUploadBytes,
		Logger:         infra.DiscardLogger(logger),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

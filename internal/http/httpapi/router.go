package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/mojiQAQ/petsphoto/internal/http/handlers"
	"github.com/mojiQAQ/petsphoto/internal/middleware"
)

// Options carries the cross-cutting pieces of the router.
type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	DefaultLocale  string
	CountryLookup  middleware.CountryLookup
	RateLimiter    *middleware.RateLimiter
	Metrics        http.Handler
	UploadPrefix   string
	Logger         zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
		middleware.Logger(opts.Logger),
	)

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	prefix := opts.UploadPrefix
	if prefix == "" {
		prefix = "/uploads"
	}
	r.Get(prefix+"/{bucket}/{name}", app.ServeUpload)

	r.Route("/v1", func(r chi.Router) {
		// Public
		r.Get("/healthz", app.Health)
		r.Get("/openapi.json", app.OpenAPIJSON)
		r.Get("/docs", app.OpenAPIDocs)
		r.Get("/styles", app.Styles)

		r.Group(func(r chi.Router) {
			if opts.RateLimiter != nil {
				r.Use(opts.RateLimiter.Middleware(app.TooManyRequests))
			}
			r.Use(middleware.AuthJWT(opts.JWTSecret, app.Unauthorized))

			r.Post("/images", app.UploadImage)
			r.Get("/images/{id}", app.GetImage)
			r.Post("/generations", app.CreateGeneration)
			r.Get("/generations/{id}", app.GetGeneration)
			r.Get("/me", app.Me)
			r.Get("/me/history", app.History)
		})
	})

	return r
}

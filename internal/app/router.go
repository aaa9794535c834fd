package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alshekh/portfolio/internal/newsletter"
	"github.com/alshekh/portfolio/internal/observability"
	"github.com/alshekh/portfolio/internal/shared"
	"github.com/alshekh/portfolio/internal/site"
	"github.com/alshekh/portfolio/jobs"
	"github.com/alshekh/portfolio/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	SessionManager    *shared.SessionManager
	CSRFManager       *shared.CSRFManager
	SiteHandler       *site.Handler
	NewsletterHandler *newsletter.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with the portfolio defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	mwCfg := MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(mwCfg) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Group(func(r chi.Router) {
		for _, mw := range BrowserStack(mwCfg) {
			r.Use(mw)
		}
		if params.SiteHandler != nil {
			params.SiteHandler.MountRoutes(r)
		}
		if params.NewsletterHandler != nil {
			r.Route("/newsletter", func(r chi.Router) {
				r.Use(SubscribeLimiter(mwCfg))
				params.NewsletterHandler.MountRoutes(r)
			})
		}
	})

	if params.NewsletterHandler != nil {
		r.Route("/api/newsletter", func(r chi.Router) {
			for _, mw := range APIStack(mwCfg) {
				r.Use(mw)
			}
			r.Use(SubscribeLimiter(mwCfg))
			params.NewsletterHandler.MountAPIRoutes(r)
		})
	}

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler lets browsers keep assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}

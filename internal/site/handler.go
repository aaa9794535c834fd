package site

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alshekh/portfolio/internal/shared"
	"github.com/alshekh/portfolio/internal/view"
)

// Handler serves the landing page.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	profile   *Profile
}

// NewHandler builds a landing page handler.
func NewHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, profile *Profile) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, templates: templates, csrf: csrf, profile: profile}
}

// MountRoutes registers the page routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showHome)
}

type homePage struct {
	Profile   *Profile
	CSRFToken string
}

func (h *Handler) showHome(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrf.EnsureToken(sess)
	if err != nil {
		h.logger.Warn("home: csrf token unavailable", slog.Any("error", err))
	}
	data := view.TemplateData{
		Title:       h.profile.Title,
		CSRFToken:   token,
		Flash:       shared.PopFlashFromContext(r.Context()),
		CurrentPath: r.URL.Path,
		Data:        homePage{Profile: h.profile, CSRFToken: token},
	}
	if err := h.templates.Render(w, http.StatusOK, "pages/home.html", data); err != nil {
		h.logger.Error("render home", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

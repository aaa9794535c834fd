package newsletter

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alshekh/portfolio/internal/platform/httpx"
	"github.com/alshekh/portfolio/internal/shared"
)

// User-facing messages per outcome.
const (
	MessageCreated       = "Thank you for subscribing to our newsletter!"
	MessageReactivated   = "Your subscription has been reactivated!"
	MessageAlreadyActive = "You are already subscribed to our newsletter!"
	MessageFailure       = "An error occurred while processing your subscription."
)

// FormRedirect is where the form handler sends the browser back to.
const FormRedirect = "/#newsletter"

// OutcomeRecorder counts subscription outcomes.
type OutcomeRecorder interface {
	RecordSubscription(outcome string)
}

// Handler exposes the subscribe workflow over HTTP.
type Handler struct {
	logger  *slog.Logger
	manager *Manager
	metrics OutcomeRecorder
}

// NewHandler constructs a Handler. metrics may be nil.
func NewHandler(logger *slog.Logger, manager *Manager, metrics OutcomeRecorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, manager: manager, metrics: metrics}
}

// MountRoutes registers the browser form endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/subscribe", h.subscribeForm)
}

// MountAPIRoutes registers the JSON endpoint.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	r.Post("/subscribe", h.subscribeJSON)
}

type subscribeRequest struct {
	Email string `json:"email"`
}

type subscribeResponse struct {
	Success bool                `json:"success"`
	Status  string              `json:"status,omitempty"`
	Message string              `json:"message,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func (h *Handler) subscribeJSON(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.record("bad_request")
		httpx.RespondError(w, err)
		return
	}

	result, err := h.manager.Subscribe(r.Context(), req.Email)
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		h.record("invalid")
		httpx.JSON(w, http.StatusUnprocessableEntity, subscribeResponse{Success: false, Errors: verr.Fields})
	case err != nil:
		h.record("error")
		httpx.JSON(w, http.StatusInternalServerError, subscribeResponse{Success: false, Message: MessageFailure})
	default:
		h.record(result.String())
		httpx.JSON(w, http.StatusOK, subscribeResponse{Success: true, Status: result.String(), Message: Message(result)})
	}
}

func (h *Handler) subscribeForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	result, err := h.manager.Subscribe(r.Context(), r.PostFormValue("email"))
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		h.record("invalid")
		h.redirectWithFlash(w, r, shared.FlashError, verr.First("email"))
	case err != nil:
		h.record("error")
		h.redirectWithFlash(w, r, shared.FlashError, MessageFailure)
	default:
		h.record(result.String())
		h.redirectWithFlash(w, r, shared.FlashSuccess, Message(result))
	}
}

// Message returns the presentation text for result.
func Message(result Result) string {
	switch result {
	case ResultCreated:
		return MessageCreated
	case ResultReactivated:
		return MessageReactivated
	case ResultAlreadyActive:
		return MessageAlreadyActive
	default:
		return ""
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	} else {
		h.logger.Warn("newsletter: session missing, flash dropped")
	}
	http.Redirect(w, r, FormRedirect, http.StatusSeeOther)
}

func (h *Handler) record(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordSubscription(outcome)
	}
}

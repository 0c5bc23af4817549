package alerts

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/subwatch/subwatch/internal/pkg/httputil"
	"github.com/subwatch/subwatch/internal/subscriptions"
)

// Handler handles HTTP requests for the alerts module.
type Handler struct {
	dispatcher *Dispatcher
	subs       *subscriptions.Service
	users      UserSource
	ledger     Ledger
}

// NewHandler creates a new alerts handler.
func NewHandler(dispatcher *Dispatcher, subs *subscriptions.Service, users UserSource, ledger Ledger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		subs:       subs,
		users:      users,
		ledger:     ledger,
	}
}

// RegisterRoutes registers alert routes. All require authentication.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/subscriptions/{id}/alert", h.SendNow)
	r.Get("/alerts/log", h.ListLog)
}

// AlertResponse represents the manual send result.
type AlertResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SendNow handles POST /subscriptions/{id}/alert: sends an immediate email
// alert for one subscription, bypassing offsets and the dedup ledger.
func (h *Handler) SendNow(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	sub, err := h.subs.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if err := h.dispatcher.SendManual(r.Context(), sub, user); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, AlertResponse{
		Status:  "success",
		Message: "alert email sent to " + user.Email,
	})
}

// ListLog handles GET /alerts/log: the caller's alert audit trail.
func (h *Handler) ListLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.ListByUser(r.Context(), httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, subscriptions.ErrSubscriptionNotFound):
		httputil.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, subscriptions.ErrNotOwner):
		httputil.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrChannelUnavailable):
		httputil.Error(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrNoContactAddress):
		httputil.Error(w, http.StatusBadRequest, err.Error())
	default:
		httputil.HandleError(r.Context(), w, err, nil)
	}
}

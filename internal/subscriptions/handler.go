package subscriptions

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/subwatch/subwatch/internal/pkg/httputil"
)

// renewalDateFormat is the wire format for renewal dates.
const renewalDateFormat = "2006-01-02"

// Handler handles HTTP requests for the subscriptions module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new subscriptions handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers subscription routes. All require authentication.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/subscriptions", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

// SubscriptionRequest represents create/update request body.
type SubscriptionRequest struct {
	Name        string  `json:"name" validate:"required"`
	RenewalDate string  `json:"renewal_date" validate:"required"`
	Note        *string `json:"note,omitempty"`
}

func (req *SubscriptionRequest) parseRenewalDate() (time.Time, error) {
	return time.ParseInLocation(renewalDateFormat, req.RenewalDate, time.UTC)
}

// Create handles POST /subscriptions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	renewalDate, err := req.parseRenewalDate()
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "renewal_date must be YYYY-MM-DD")
		return
	}

	sub, err := h.service.Create(r.Context(), httputil.GetUserID(r.Context()), CreateInput{
		Name:        req.Name,
		RenewalDate: renewalDate,
		Note:        req.Note,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, sub)
}

// List handles GET /subscriptions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.service.ListForUser(r.Context(), httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, subs)
}

// Get handles GET /subscriptions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.Get(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, sub)
}

// Update handles PUT /subscriptions/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	renewalDate, err := req.parseRenewalDate()
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "renewal_date must be YYYY-MM-DD")
		return
	}

	sub, err := h.service.Update(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id"), UpdateInput{
		Name:        req.Name,
		RenewalDate: renewalDate,
		Note:        req.Note,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, sub)
}

// Delete handles DELETE /subscriptions/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.service.Delete(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSubscriptionNotFound):
		httputil.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotOwner):
		httputil.Error(w, http.StatusForbidden, err.Error())
	default:
		httputil.HandleError(r.Context(), w, err, nil)
	}
}

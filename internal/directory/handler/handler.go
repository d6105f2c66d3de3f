// Package handler is the directory's thin HTTP layer. It decodes and
// validates requests, delegates to the service, and translates results; no
// business logic lives here.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"trustboard/internal/directory/models"
	"trustboard/internal/directory/service"
	dErrors "trustboard/pkg/domainerrors"
	"trustboard/pkg/httputil"
	"trustboard/pkg/requestcontext"
)

type Handler struct {
	svc      *service.Service
	validate *validator.Validate
}

func New(svc *service.Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if !h.decode(w, r, &req) {
		return
	}

	source := models.ListingSource(req.Source)
	if req.Source == "" {
		source = models.SourceUser
	}
	ownerID := ""
	if source == models.SourceUser {
		ownerID = requestcontext.UserID(r.Context())
	}

	listing, err := h.svc.CreateListing(r.Context(), service.CreateListingInput{
		Name:    req.Name,
		Source:  source,
		OwnerID: ownerID,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, listing)
}

func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	listing, err := h.svc.GetListing(r.Context(), chi.URLParam(r, "listingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listing)
}

func (h *Handler) GetReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.svc.GetReview(r.Context(), chi.URLParam(r, "reviewID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, review)
}

func (h *Handler) SubmitRating(w http.ResponseWriter, r *http.Request) {
	var req submitRatingRequest
	if !h.decode(w, r, &req) {
		return
	}

	review, created, err := h.svc.SubmitRating(r.Context(), service.SubmitRatingInput{
		ListingID:  chi.URLParam(r, "listingID"),
		AuthorID:   requestcontext.UserID(r.Context()),
		Trust:      req.Trust,
		Usefulness: req.Usefulness,
		Comment:    req.Comment,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, review)
}

func (h *Handler) CastVote(w http.ResponseWriter, r *http.Request) {
	var req castVoteRequest
	if !h.decode(w, r, &req) {
		return
	}

	helpful, notHelpful, err := h.svc.CastVote(r.Context(),
		chi.URLParam(r, "reviewID"),
		requestcontext.UserID(r.Context()),
		*req.Helpful,
	)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{
		"helpfulCount":    helpful,
		"notHelpfulCount": notHelpful,
	})
}

func (h *Handler) FileFlag(w http.ResponseWriter, r *http.Request) {
	flagCount, statusChanged, err := h.svc.FileFlag(r.Context(),
		chi.URLParam(r, "reviewID"),
		requestcontext.UserID(r.Context()),
	)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"flagCount":     flagCount,
		"statusChanged": statusChanged,
	})
}

// decode parses and validates a JSON body, writing the error response itself
// on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed JSON body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httputil.WriteError(w, firstValidationError(err))
		return false
	}
	return true
}

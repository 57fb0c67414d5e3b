/**
 * @description
 * This file contains the HTTP handlers for the payout-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: Service logic, models, and
 *   custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shoplink/payout-service/internal/app"
	"github.com/shoplink/payout-service/internal/domain"
	"github.com/shoplink/payout-service/internal/store"
)

// PayoutHandlers holds the application service and poller that handlers will use.
type PayoutHandlers struct {
	service *app.Service
	poller  *app.Poller
}

// NewPayoutHandlers creates a new instance of PayoutHandlers.
func NewPayoutHandlers(service *app.Service, poller *app.Poller) *PayoutHandlers {
	return &PayoutHandlers{service: service, poller: poller}
}

// invalidStateResponse carries the authoritative record alongside the error so
// the caller can reconcile its view instead of guessing.
type invalidStateResponse struct {
	Error  string                `json:"error"`
	Payout *domain.PayoutRequest `json:"payout,omitempty"`
}

// CreatePayoutHandler registers a new withdrawal request.
func (h *PayoutHandlers) CreatePayoutHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payout, err := h.service.CreatePayout(r.Context(), req)
	if err != nil {
		if errors.Is(err, app.ErrValidation) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=create_payout err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create payout")
		return
	}

	h.writeJSON(w, http.StatusCreated, payout)
}

// ListPayoutsHandler serves the paginated authoritative payout list, the
// re-fetch target for notifier-triggered refreshes.
func (h *PayoutHandlers) ListPayoutsHandler(w http.ResponseWriter, r *http.Request) {
	opts := domain.PayoutListOptions{Limit: 20}

	if rawStatus := strings.TrimSpace(r.URL.Query().Get("status")); rawStatus != "" {
		status, ok := domain.ParsePayoutStatus(rawStatus)
		if !ok {
			h.writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		opts.Status = &status
	}

	if rawLimit := strings.TrimSpace(r.URL.Query().Get("limit")); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = limit
	}

	page := 1
	if rawPage := strings.TrimSpace(r.URL.Query().Get("page")); rawPage != "" {
		parsed, err := strconv.Atoi(rawPage)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = parsed
	}
	opts.Offset = (page - 1) * opts.Limit

	result, err := h.service.ListPayouts(r.Context(), opts)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_payouts err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list payouts")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// GetPayoutHandler returns a single payout record.
func (h *PayoutHandlers) GetPayoutHandler(w http.ResponseWriter, r *http.Request) {
	payoutID, ok := h.payoutIDFromURL(w, r)
	if !ok {
		return
	}

	payout, err := h.service.GetPayout(r.Context(), payoutID)
	if err != nil {
		h.writeLookupError(w, "get_payout", payoutID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, payout)
}

// GetInstructionHandler renders the deterministic transfer instruction for a payout.
func (h *PayoutHandlers) GetInstructionHandler(w http.ResponseWriter, r *http.Request) {
	payoutID, ok := h.payoutIDFromURL(w, r)
	if !ok {
		return
	}

	instruction, err := h.service.Instruction(r.Context(), payoutID)
	if err != nil {
		h.writeLookupError(w, "get_instruction", payoutID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, instruction)
}

// VerifyPayoutHandler runs one direct match-detector check.
func (h *PayoutHandlers) VerifyPayoutHandler(w http.ResponseWriter, r *http.Request) {
	payoutID, ok := h.payoutIDFromURL(w, r)
	if !ok {
		return
	}

	result, err := h.service.Verify(r.Context(), payoutID)
	if err != nil {
		var rateLimited *app.ErrRateLimited
		switch {
		case errors.Is(err, store.ErrPayoutNotFound):
			h.writeError(w, http.StatusNotFound, "payout not found")
		case errors.As(err, &rateLimited):
			w.Header().Set("Retry-After", strconv.Itoa(rateLimited.RetryAfterSeconds))
			h.writeError(w, http.StatusTooManyRequests, "verify rate limit exceeded")
		case errors.Is(err, app.ErrInvalidState):
			payout, _ := h.service.GetPayout(r.Context(), payoutID)
			h.writeJSON(w, http.StatusConflict, invalidStateResponse{Error: err.Error(), Payout: payout})
		default:
			// Transient detector failures on the direct path surface as-is.
			log.Printf("level=warn component=api endpoint=verify_payout payout_id=%s err=%v", payoutID, err)
			h.writeError(w, http.StatusBadGateway, "verification temporarily unavailable")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// RejectPayoutHandler ends a pending payout's lifecycle with a reason.
func (h *PayoutHandlers) RejectPayoutHandler(w http.ResponseWriter, r *http.Request) {
	payoutID, ok := h.payoutIDFromURL(w, r)
	if !ok {
		return
	}

	var req domain.RejectPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payout, err := h.service.Reject(r.Context(), payoutID, req.Reason)
	if err != nil {
		h.writeActionError(w, "reject_payout", payoutID, payout, err)
		return
	}

	h.writeJSON(w, http.StatusOK, payout)
}

// MarkTransferredHandler confirms the manual transfer of a payout.
func (h *PayoutHandlers) MarkTransferredHandler(w http.ResponseWriter, r *http.Request) {
	payoutID, ok := h.payoutIDFromURL(w, r)
	if !ok {
		return
	}

	var req domain.MarkTransferredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payout, err := h.service.MarkTransferred(r.Context(), payoutID, req.TransferNote)
	if err != nil {
		h.writeActionError(w, "mark_transferred", payoutID, payout, err)
		return
	}

	h.writeJSON(w, http.StatusOK, payout)
}

func (h *PayoutHandlers) payoutIDFromURL(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	payoutID, err := uuid.Parse(chi.URLParam(r, "payoutID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid payout id")
		return uuid.Nil, false
	}
	return payoutID, true
}

func (h *PayoutHandlers) writeLookupError(w http.ResponseWriter, endpoint string, payoutID uuid.UUID, err error) {
	if errors.Is(err, store.ErrPayoutNotFound) {
		h.writeError(w, http.StatusNotFound, "payout not found")
		return
	}
	log.Printf("level=error component=api endpoint=%s payout_id=%s err=%v", endpoint, payoutID, err)
	h.writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *PayoutHandlers) writeActionError(w http.ResponseWriter, endpoint string, payoutID uuid.UUID, payout *domain.PayoutRequest, err error) {
	switch {
	case errors.Is(err, app.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrPayoutNotFound):
		h.writeError(w, http.StatusNotFound, "payout not found")
	case errors.Is(err, app.ErrInvalidState):
		h.writeJSON(w, http.StatusConflict, invalidStateResponse{Error: err.Error(), Payout: payout})
	default:
		log.Printf("level=error component=api endpoint=%s payout_id=%s err=%v", endpoint, payoutID, err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *PayoutHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *PayoutHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

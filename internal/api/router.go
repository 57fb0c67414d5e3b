/**
 * @description
 * This file sets up the HTTP router for the payout-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * middleware for logging, panic recovery, timeouts, and internal API key
 * authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// PayoutRoutes creates and returns a new router for the payout service.
func PayoutRoutes(h *PayoutHandlers, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging and panic recovery.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Operator and service-to-service endpoints behind the internal API key.
	r.Group(func(r chi.Router) {
		r.Use(InternalKeyAuth(internalAPIKey))
		r.Use(middleware.Timeout(60 * time.Second))

		r.Post("/", h.CreatePayoutHandler)
		r.Get("/", h.ListPayoutsHandler)
		r.Get("/{payoutID}", h.GetPayoutHandler)
		r.Get("/{payoutID}/instruction", h.GetInstructionHandler)
		r.Post("/{payoutID}/verify", h.VerifyPayoutHandler)
		r.Post("/{payoutID}/reject", h.RejectPayoutHandler)
		r.Post("/{payoutID}/transferred", h.MarkTransferredHandler)
	})

	// The verification stream outlives the standard request timeout: a full
	// session runs for maxAttempts x interval plus the grace delay. It ends on
	// a terminal event or client disconnect instead.
	r.Group(func(r chi.Router) {
		r.Use(InternalKeyAuth(internalAPIKey))

		r.Get("/{payoutID}/verification", h.StreamVerificationHandler)
	})

	return r
}

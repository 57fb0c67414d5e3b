/**
 * @description
 * This file contains the handler that exposes a verification session as a
 * server-sent event stream. Opening the stream starts the poller for the
 * payout; closing the connection cancels the session cooperatively. The
 * operator's transfer-confirmation view holds this stream open for the
 * lifetime of the view.
 *
 * @dependencies
 * - encoding/json, errors, fmt, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: Poller, events, and session errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/shoplink/payout-service/internal/app"
	"github.com/shoplink/payout-service/internal/domain"
)

// StreamVerificationHandler starts a verification session for a pending payout
// and streams its events until a terminal event or client disconnect.
func (h *PayoutHandlers) StreamVerificationHandler(w http.ResponseWriter, r *http.Request) {
	payoutID, ok := h.payoutIDFromURL(w, r)
	if !ok {
		return
	}

	payout, err := h.service.GetPayout(r.Context(), payoutID)
	if err != nil {
		h.writeLookupError(w, "stream_verification", payoutID, err)
		return
	}
	if payout.Status != domain.StatusPending {
		h.writeJSON(w, http.StatusConflict, invalidStateResponse{
			Error:  "verification is only meaningful for pending payouts",
			Payout: payout,
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, err := h.poller.Start(r.Context(), payoutID)
	if err != nil {
		if errors.Is(err, app.ErrSessionActive) {
			h.writeError(w, http.StatusConflict, "a verification session is already active for this payout")
			return
		}
		log.Printf("level=error component=api endpoint=stream_verification payout_id=%s err=%v", payoutID, err)
		h.writeError(w, http.StatusInternalServerError, "failed to start verification session")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		payload, marshalErr := json.Marshal(event)
		if marshalErr != nil {
			log.Printf("level=error component=api endpoint=stream_verification payout_id=%s msg=\"event marshal failed\" err=%v", payoutID, marshalErr)
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, payload)
		flusher.Flush()
	}
}

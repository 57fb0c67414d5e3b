/**
 * @description
 * This file implements the verification poller: a cancellable background task
 * that drives repeated match-detector checks for one payout on a fixed cadence
 * and reports progress as an event stream. The poller never mutates payout
 * status itself; the side-effecting transition happens inside the verify
 * operation it drives.
 *
 * @dependencies
 * - context, log, sync, time: Standard Go libraries.
 * - github.com/google/uuid: Payout identifiers.
 * - internal/domain: Verification event types.
 * - pkg/detectorclient: Transient-error classification.
 */

package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shoplink/payout-service/internal/domain"
	"github.com/shoplink/payout-service/pkg/detectorclient"
)

const (
	// DefaultMaxAttempts and DefaultPollInterval bound a verification session
	// at roughly 100 seconds of wall clock. Fixed-interval polling is chosen
	// over adaptive backoff: expected detection latency is small and bounded,
	// and a predictable budget matters more than saving a few idle calls.
	DefaultMaxAttempts  = 20
	DefaultPollInterval = 5 * time.Second
	// DefaultGraceDelay gives the operator time to read the rendered transfer
	// instruction before the first detector call fires.
	DefaultGraceDelay = 3 * time.Second
)

// ErrSessionActive is returned when a verification session is already running
// for the payout. The detector tolerates concurrent verify calls, but a second
// session for the same payout is never meaningful.
var ErrSessionActive = errors.New("verification session already active for payout")

// Verifier runs one side-effecting settlement check. A matched result means
// the approved status has already been committed to the record store.
type Verifier interface {
	Verify(ctx context.Context, payoutID uuid.UUID) (*domain.VerifyResult, error)
}

// Poller owns the per-payout verification sessions.
type Poller struct {
	verifier    Verifier
	maxAttempts int
	interval    time.Duration
	grace       time.Duration

	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

// NewPoller creates a poller. Non-positive tuning values fall back to the
// defaults.
func NewPoller(verifier Verifier, maxAttempts int, interval, grace time.Duration) *Poller {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if grace < 0 {
		grace = DefaultGraceDelay
	}
	return &Poller{
		verifier:    verifier,
		maxAttempts: maxAttempts,
		interval:    interval,
		grace:       grace,
		active:      make(map[uuid.UUID]struct{}),
	}
}

// Start launches a verification session for the payout and returns its event
// stream. The channel is buffered for the whole session and closed after the
// terminal event, so a slow consumer can never block termination. Cancel the
// context to stop the session; cancellation is cooperative and never mutates
// the payout record. A session also ends itself when the payout reaches a
// terminal status through another actor, since a settled record can never
// match.
func (p *Poller) Start(ctx context.Context, payoutID uuid.UUID) (<-chan domain.VerificationEvent, error) {
	p.mu.Lock()
	if _, exists := p.active[payoutID]; exists {
		p.mu.Unlock()
		return nil, ErrSessionActive
	}
	p.active[payoutID] = struct{}{}
	p.mu.Unlock()

	events := make(chan domain.VerificationEvent, p.maxAttempts+2)
	go p.run(ctx, payoutID, events)
	return events, nil
}

func (p *Poller) run(ctx context.Context, payoutID uuid.UUID, events chan<- domain.VerificationEvent) {
	defer func() {
		// Release the session guard before closing the stream so a caller
		// that observes the close can immediately start a fresh session.
		p.mu.Lock()
		delete(p.active, payoutID)
		p.mu.Unlock()
		close(events)
	}()

	if p.grace > 0 && !p.sleep(ctx, p.grace) {
		events <- domain.VerificationEvent{Kind: domain.VerificationCancelled, PayoutID: payoutID}
		return
	}

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			events <- domain.VerificationEvent{Kind: domain.VerificationCancelled, PayoutID: payoutID}
			return
		}

		events <- domain.VerificationEvent{
			Kind:        domain.VerificationChecking,
			PayoutID:    payoutID,
			Attempt:     attempt + 1,
			MaxAttempts: p.maxAttempts,
		}

		result, err := p.verifier.Verify(ctx, payoutID)
		if ctx.Err() != nil {
			events <- domain.VerificationEvent{Kind: domain.VerificationCancelled, PayoutID: payoutID}
			return
		}
		if err != nil {
			// Any failed check counts as a non-match for this attempt; one bad
			// call must not abort the session under flaky connectivity.
			if detectorclient.IsTransient(err) {
				log.Printf("level=warn component=poller payout_id=%s attempt=%d msg=\"transient verify failure, treating as non-match\" err=%v", payoutID, attempt+1, err)
			} else {
				log.Printf("level=error component=poller payout_id=%s attempt=%d msg=\"verify failed, treating as non-match\" err=%v", payoutID, attempt+1, err)
			}
		}
		if result != nil {
			if result.Matched {
				events <- domain.VerificationEvent{Kind: domain.VerificationMatched, PayoutID: payoutID}
				log.Printf("level=info component=poller payout_id=%s attempt=%d msg=\"settlement matched\"", payoutID, attempt+1)
				return
			}
			if result.Status.IsTerminal() {
				// The payout was rejected (or otherwise settled) while the
				// session ran; there is nothing left to watch for.
				events <- domain.VerificationEvent{Kind: domain.VerificationCancelled, PayoutID: payoutID}
				log.Printf("level=info component=poller payout_id=%s attempt=%d status=%s msg=\"payout left pending, session ended\"", payoutID, attempt+1, result.Status)
				return
			}
		}

		if attempt+1 < p.maxAttempts {
			if !p.sleep(ctx, p.interval) {
				events <- domain.VerificationEvent{Kind: domain.VerificationCancelled, PayoutID: payoutID}
				return
			}
		}
	}

	// Exhaustion is an unresolved outcome, not a failure: the payout stays
	// pending and the operator falls back to reject or manual confirm.
	events <- domain.VerificationEvent{Kind: domain.VerificationExhausted, PayoutID: payoutID}
	log.Printf("level=info component=poller payout_id=%s max_attempts=%d msg=\"verification exhausted without match\"", payoutID, p.maxAttempts)
}

// sleep waits for the duration unless the context is cancelled first. It
// reports false on cancellation.
func (p *Poller) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

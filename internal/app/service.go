/**
 * @description
 * This file contains the core application service for the payout-service: the
 * operator action gateway (reject / manual mark-transferred), payout creation
 * and lookup, instruction rendering, and the direct (non-polling) verify path
 * against the match detector. All status mutations funnel through the store's
 * compare-and-transition primitive so concurrent actors race safely.
 *
 * @dependencies
 * - context, errors, fmt, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid: Payout identifiers.
 * - internal/domain, internal/store: Domain models and persistence contract.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shoplink/payout-service/internal/domain"
	"github.com/shoplink/payout-service/internal/store"
)

var (
	// ErrValidation signals malformed caller input (e.g. empty reject reason).
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState signals an operation that is not legal for the payout's
	// current status. The authoritative record accompanies the error so the
	// caller can reconcile.
	ErrInvalidState = errors.New("operation not permitted in current payout status")
)

// Detector is the external match-detector contract. A true result means a bank
// transaction matching the payout's instruction has been observed.
type Detector interface {
	Verify(ctx context.Context, payoutID string) (bool, error)
}

// StatusPublisher pushes change-notifier signals after committed transitions.
type StatusPublisher interface {
	PublishStatusEvent(ctx context.Context, event domain.PayoutStatusEvent) error
}

// VerifyRateLimiter bounds how often the side-effecting verify endpoint may be
// hit for a single payout.
type VerifyRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// ErrRateLimited is returned by the verify path when the per-payout budget is
// exhausted; RetryAfterSeconds tells the caller when to come back.
type ErrRateLimited struct {
	RetryAfterSeconds int
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("verify rate limit exceeded, retry after %ds", e.RetryAfterSeconds)
}

// Service implements the payout reconciliation engine's operations.
type Service struct {
	repo      store.Repository
	detector  Detector
	publisher StatusPublisher

	verifyLimiter        VerifyRateLimiter
	verifyLimitPerMinute int
}

// NewService creates the application service with its dependencies. The
// publisher may be nil; status events are then skipped with a warning.
func NewService(repo store.Repository, detector Detector, publisher StatusPublisher) *Service {
	return &Service{
		repo:      repo,
		detector:  detector,
		publisher: publisher,
	}
}

// SetVerifyRateLimiter enables per-payout rate limiting of the verify endpoint.
func (s *Service) SetVerifyRateLimiter(limiter VerifyRateLimiter, limitPerMinute int) {
	s.verifyLimiter = limiter
	s.verifyLimitPerMinute = limitPerMinute
}

// CreatePayout validates and registers a new withdrawal request.
func (s *Service) CreatePayout(ctx context.Context, req domain.CreatePayoutRequest) (*domain.PayoutRequest, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if req.BeneficiaryID == uuid.Nil {
		return nil, fmt.Errorf("%w: beneficiary id is required", ErrValidation)
	}
	if strings.TrimSpace(req.BankCode) == "" || strings.TrimSpace(req.AccountNumber) == "" {
		return nil, fmt.Errorf("%w: destination bank code and account number are required", ErrValidation)
	}
	if strings.TrimSpace(req.AccountHolderName) == "" {
		return nil, fmt.Errorf("%w: account holder name is required", ErrValidation)
	}

	payout := &domain.PayoutRequest{
		ID:                uuid.New(),
		BeneficiaryID:     req.BeneficiaryID,
		BeneficiaryName:   strings.TrimSpace(req.BeneficiaryName),
		BeneficiaryEmail:  strings.TrimSpace(req.BeneficiaryEmail),
		Amount:            req.Amount,
		BankCode:          strings.TrimSpace(req.BankCode),
		AccountNumber:     strings.TrimSpace(req.AccountNumber),
		AccountHolderName: strings.TrimSpace(req.AccountHolderName),
		Status:            domain.StatusPending,
		RequestedAt:       time.Now().UTC(),
	}
	if err := s.repo.CreatePayout(ctx, payout); err != nil {
		return nil, fmt.Errorf("failed to create payout: %w", err)
	}
	log.Printf("level=info component=service op=create_payout payout_id=%s beneficiary_id=%s amount=%d", payout.ID, payout.BeneficiaryID, payout.Amount)
	return payout, nil
}

// GetPayout returns the authoritative record for a payout id.
func (s *Service) GetPayout(ctx context.Context, payoutID uuid.UUID) (*domain.PayoutRequest, error) {
	return s.repo.FindPayoutByID(ctx, payoutID)
}

// ListPayouts returns one page of the authoritative payout list.
func (s *Service) ListPayouts(ctx context.Context, opts domain.PayoutListOptions) (*domain.PayoutPage, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	items, total, err := s.repo.ListPayouts(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	return &domain.PayoutPage{
		Items: items,
		Total: total,
		Page:  opts.Offset/opts.Limit + 1,
		Limit: opts.Limit,
	}, nil
}

// Instruction renders the deterministic transfer instruction for a payout.
func (s *Service) Instruction(ctx context.Context, payoutID uuid.UUID) (*domain.TransferInstruction, error) {
	payout, err := s.repo.FindPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	instruction := GenerateInstruction(payout)
	return &instruction, nil
}

// Verify runs one direct match-detector check for a payout. Terminal and
// already-approved records are answered from local state without touching the
// detector: approved/transferred means the instruction was (or will be
// considered) settled, rejected means it never will be. Transient detector
// errors on this direct path surface to the caller as-is.
func (s *Service) Verify(ctx context.Context, payoutID uuid.UUID) (*domain.VerifyResult, error) {
	payout, err := s.repo.FindPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	if payout.Status != domain.StatusPending {
		return &domain.VerifyResult{
			Matched: payout.Status == domain.StatusApproved || payout.Status == domain.StatusTransferred,
			Status:  payout.Status,
		}, nil
	}

	if err := s.consumeVerifyBudget(ctx, payoutID); err != nil {
		return nil, err
	}

	matched, err := s.detector.Verify(ctx, payoutID.String())
	if err != nil {
		return nil, err
	}
	if !matched {
		return &domain.VerifyResult{Matched: false, Status: payout.Status}, nil
	}

	// Commit the detection before reporting it: a Matched answer must always
	// correspond to a stored approved status.
	now := time.Now().UTC()
	updated, err := s.repo.TransitionStatus(ctx, payoutID, domain.StatusPending, domain.StatusApproved, store.TransitionParams{
		ProcessedAt: &now,
	})
	if err == nil {
		log.Printf("level=info component=service op=verify payout_id=%s msg=\"match detected, payout approved\"", payoutID)
		s.publishStatus(ctx, updated)
		return &domain.VerifyResult{Matched: true, Status: updated.Status}, nil
	}
	if !errors.Is(err, store.ErrStatusConflict) {
		return nil, fmt.Errorf("failed to approve matched payout %s: %w", payoutID, err)
	}

	// Lost the race to a concurrent transition. Re-read and reconcile: a
	// forward transition (approved/transferred) still counts as matched, a
	// terminal reject wins over the detection.
	current, findErr := s.repo.FindPayoutByID(ctx, payoutID)
	if findErr != nil {
		return nil, findErr
	}
	if current.Status == domain.StatusApproved || current.Status == domain.StatusTransferred {
		return &domain.VerifyResult{Matched: true, Status: current.Status}, nil
	}
	log.Printf("level=warn component=service op=verify payout_id=%s status=%s msg=\"match detected but payout no longer approvable\"", payoutID, current.Status)
	return &domain.VerifyResult{Matched: false, Status: current.Status}, fmt.Errorf("%w: payout is %s", ErrInvalidState, current.Status)
}

// Reject ends a pending payout's lifecycle with an operator-supplied reason.
// Replaying a successful reject with the same reason is a no-op returning the
// existing record, so a client retry after a dropped response never errors.
func (s *Service) Reject(ctx context.Context, payoutID uuid.UUID, reason string) (*domain.PayoutRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reject reason must not be empty", ErrValidation)
	}

	payout, err := s.repo.FindPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if replay, ok := rejectReplay(payout, reason); ok {
		return replay, nil
	}
	if !domain.CanTransition(payout.Status, domain.StatusRejected) {
		return payout, fmt.Errorf("%w: only pending payouts can be rejected, payout is %s", ErrInvalidState, payout.Status)
	}

	now := time.Now().UTC()
	updated, err := s.repo.TransitionStatus(ctx, payoutID, domain.StatusPending, domain.StatusRejected, store.TransitionParams{
		ProcessedAt:  &now,
		RejectReason: &reason,
	})
	if err == nil {
		log.Printf("level=info component=service op=reject payout_id=%s msg=\"payout rejected\"", payoutID)
		s.publishStatus(ctx, updated)
		return updated, nil
	}
	if !errors.Is(err, store.ErrStatusConflict) {
		return nil, fmt.Errorf("failed to reject payout %s: %w", payoutID, err)
	}

	current, findErr := s.repo.FindPayoutByID(ctx, payoutID)
	if findErr != nil {
		return nil, findErr
	}
	if replay, ok := rejectReplay(current, reason); ok {
		return replay, nil
	}
	return current, fmt.Errorf("%w: only pending payouts can be rejected, payout is %s", ErrInvalidState, current.Status)
}

// MarkTransferred confirms that the funds left the platform account, either as
// the manual override after an exhausted or cancelled verification, or as the
// final confirmation of an approved payout. Idempotent under retry like Reject.
func (s *Service) MarkTransferred(ctx context.Context, payoutID uuid.UUID, note string) (*domain.PayoutRequest, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, fmt.Errorf("%w: transfer note must not be empty", ErrValidation)
	}

	payout, err := s.repo.FindPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	// One retry after a lost race: pending -> approved mid-flight keeps the
	// operation legal, so re-reading and re-attempting once is enough.
	for attempt := 0; attempt < 2; attempt++ {
		if replay, ok := transferReplay(payout, note); ok {
			return replay, nil
		}
		if !domain.CanTransition(payout.Status, domain.StatusTransferred) {
			return payout, fmt.Errorf("%w: payout is %s", ErrInvalidState, payout.Status)
		}

		now := time.Now().UTC()
		updated, transErr := s.repo.TransitionStatus(ctx, payoutID, payout.Status, domain.StatusTransferred, store.TransitionParams{
			ProcessedAt:  &now,
			TransferNote: &note,
		})
		if transErr == nil {
			log.Printf("level=info component=service op=mark_transferred payout_id=%s msg=\"payout marked transferred\"", payoutID)
			s.publishStatus(ctx, updated)
			return updated, nil
		}
		if !errors.Is(transErr, store.ErrStatusConflict) {
			return nil, fmt.Errorf("failed to mark payout %s transferred: %w", payoutID, transErr)
		}

		payout, err = s.repo.FindPayoutByID(ctx, payoutID)
		if err != nil {
			return nil, err
		}
	}

	return payout, fmt.Errorf("%w: payout is %s", ErrInvalidState, payout.Status)
}

func rejectReplay(payout *domain.PayoutRequest, reason string) (*domain.PayoutRequest, bool) {
	if payout.Status != domain.StatusRejected || payout.RejectReason == nil {
		return nil, false
	}
	if strings.TrimSpace(*payout.RejectReason) != reason {
		return nil, false
	}
	return payout, true
}

func transferReplay(payout *domain.PayoutRequest, note string) (*domain.PayoutRequest, bool) {
	if payout.Status != domain.StatusTransferred || payout.TransferNote == nil {
		return nil, false
	}
	if strings.TrimSpace(*payout.TransferNote) != note {
		return nil, false
	}
	return payout, true
}

func (s *Service) consumeVerifyBudget(ctx context.Context, payoutID uuid.UUID) error {
	if s.verifyLimiter == nil || s.verifyLimitPerMinute <= 0 {
		return nil
	}
	count, retryAfter, err := s.verifyLimiter.ConsumeRateLimit(ctx, "verify", payoutID.String(), s.verifyLimitPerMinute, time.Minute)
	if err != nil {
		// Rate limiting degrades open: a broken limiter never blocks verification.
		log.Printf("level=warn component=service op=verify payout_id=%s msg=\"rate limiter unavailable, allowing request\" err=%v", payoutID, err)
		return nil
	}
	if count > s.verifyLimitPerMinute {
		return &ErrRateLimited{RetryAfterSeconds: retryAfter}
	}
	return nil
}

func (s *Service) publishStatus(ctx context.Context, payout *domain.PayoutRequest) {
	if s.publisher == nil {
		log.Printf("level=warn component=service msg=\"status publisher not configured, change signal skipped\" payout_id=%s status=%s", payout.ID, payout.Status)
		return
	}
	event := domain.PayoutStatusEvent{
		EventID:    uuid.NewString(),
		PayoutID:   payout.ID,
		Status:     payout.Status,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishStatusEvent(ctx, event); err != nil {
		log.Printf("level=warn component=service msg=\"status event publish failed\" payout_id=%s status=%s err=%v", payout.ID, payout.Status, err)
	}
}

/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the payout-service. By defining an interface,
 * we decouple the application's business logic from the specific database
 * implementation (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shoplink/payout-service/internal/domain"
)

var (
	// ErrPayoutNotFound signals an unknown payout id.
	ErrPayoutNotFound = errors.New("payout not found")
	// ErrStatusConflict signals a compare-and-transition whose expected status no
	// longer matched the stored record. The caller re-reads the record to reconcile.
	ErrStatusConflict = errors.New("payout status conflict")
)

// TransitionParams carries the optional fields written alongside a status
// transition. A nil field leaves the stored column untouched.
type TransitionParams struct {
	ProcessedAt  *time.Time
	RejectReason *string
	TransferNote *string
}

// Repository defines the set of methods for interacting with the database.
// All status mutations are funneled through TransitionStatus so that concurrent
// actors (detector match vs. operator action) race on a single atomic primitive.
type Repository interface {
	CreatePayout(ctx context.Context, payout *domain.PayoutRequest) error
	FindPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.PayoutRequest, error)
	ListPayouts(ctx context.Context, opts domain.PayoutListOptions) ([]domain.PayoutRequest, int64, error)

	// TransitionStatus atomically moves a payout from the expected status to the
	// target status. It returns ErrStatusConflict when the stored status differs
	// from expected, and ErrPayoutNotFound when the id is unknown. On success the
	// updated record is returned.
	TransitionStatus(ctx context.Context, payoutID uuid.UUID, expected, target domain.PayoutStatus, params TransitionParams) (*domain.PayoutRequest, error)
}

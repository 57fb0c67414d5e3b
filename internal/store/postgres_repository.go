/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL queries for the `payout_requests` table, including the
 * compare-and-transition primitive that serializes concurrent status changes.
 *
 * @dependencies
 * - context, fmt, strings: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shoplink/payout-service/internal/domain"
)

const payoutColumns = `
	id, beneficiary_id, beneficiary_name, beneficiary_email, amount,
	bank_code, account_number, account_holder_name, status,
	reject_reason, transfer_note, requested_at, processed_at
`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanPayout(row pgx.Row) (*domain.PayoutRequest, error) {
	var p domain.PayoutRequest
	err := row.Scan(
		&p.ID,
		&p.BeneficiaryID,
		&p.BeneficiaryName,
		&p.BeneficiaryEmail,
		&p.Amount,
		&p.BankCode,
		&p.AccountNumber,
		&p.AccountHolderName,
		&p.Status,
		&p.RejectReason,
		&p.TransferNote,
		&p.RequestedAt,
		&p.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePayout inserts a new payout request record.
func (r *PostgresRepository) CreatePayout(ctx context.Context, payout *domain.PayoutRequest) error {
	query := `
		INSERT INTO payout_requests (
			id, beneficiary_id, beneficiary_name, beneficiary_email, amount,
			bank_code, account_number, account_holder_name, status, requested_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		payout.ID,
		payout.BeneficiaryID,
		payout.BeneficiaryName,
		payout.BeneficiaryEmail,
		payout.Amount,
		payout.BankCode,
		payout.AccountNumber,
		payout.AccountHolderName,
		payout.Status,
		payout.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payout request: %w", err)
	}
	return nil
}

// FindPayoutByID retrieves a payout request by its id.
func (r *PostgresRepository) FindPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.PayoutRequest, error) {
	query := `SELECT ` + payoutColumns + ` FROM payout_requests WHERE id = $1`
	payout, err := scanPayout(r.db.QueryRow(ctx, query, payoutID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return payout, nil
}

// ListPayouts returns one page of payout requests, newest first, optionally
// filtered by status, together with the total row count for the filter.
func (r *PostgresRepository) ListPayouts(ctx context.Context, opts domain.PayoutListOptions) ([]domain.PayoutRequest, int64, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if opts.Status != nil {
		args = append(args, *opts.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM payout_requests` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payout requests: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	listQuery := fmt.Sprintf(
		`SELECT %s FROM payout_requests%s ORDER BY requested_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		payoutColumns, where, len(args)-1, len(args),
	)

	rows, err := r.db.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payout requests: %w", err)
	}
	defer rows.Close()

	payouts := make([]domain.PayoutRequest, 0, limit)
	for rows.Next() {
		payout, scanErr := scanPayout(rows)
		if scanErr != nil {
			return nil, 0, scanErr
		}
		payouts = append(payouts, *payout)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return payouts, total, nil
}

// TransitionStatus performs the atomic compare-and-transition. The UPDATE is
// keyed on (id, expected status), so whichever concurrent transition reaches the
// row first wins and the loser observes zero affected rows.
func (r *PostgresRepository) TransitionStatus(
	ctx context.Context,
	payoutID uuid.UUID,
	expected, target domain.PayoutStatus,
	params TransitionParams,
) (*domain.PayoutRequest, error) {
	query := `
		UPDATE payout_requests
		SET status = $3,
			processed_at = COALESCE($4, processed_at),
			reject_reason = COALESCE($5, reject_reason),
			transfer_note = COALESCE($6, transfer_note)
		WHERE id = $1 AND status = $2
		RETURNING ` + payoutColumns

	payout, err := scanPayout(r.db.QueryRow(ctx, query,
		payoutID,
		expected,
		target,
		params.ProcessedAt,
		params.RejectReason,
		params.TransferNote,
	))
	if err == nil {
		return payout, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to transition payout %s: %w", payoutID, err)
	}

	// Zero rows: distinguish a missing record from a lost race.
	if _, findErr := r.FindPayoutByID(ctx, payoutID); findErr != nil {
		return nil, findErr
	}
	return nil, ErrStatusConflict
}

// EnsureSchema creates the payout_requests table when it does not exist yet.
// Deployments with managed migrations leave this as a no-op.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS payout_requests (
			id UUID PRIMARY KEY,
			beneficiary_id UUID NOT NULL,
			beneficiary_name TEXT NOT NULL,
			beneficiary_email TEXT NOT NULL,
			amount BIGINT NOT NULL CHECK (amount > 0),
			bank_code TEXT NOT NULL,
			account_number TEXT NOT NULL,
			account_holder_name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			reject_reason TEXT,
			transfer_note TEXT,
			requested_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_payout_requests_status_requested_at
			ON payout_requests (status, requested_at DESC);
	`
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure payout schema: %w", err)
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)

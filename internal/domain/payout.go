/**
 * @description
 * This file defines the core domain models for the payout-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit, which avoids
 *   floating-point inaccuracies with financial data.
 * - Payout status transitions are restricted to the edges encoded in
 *   `CanTransition`; everything else is rejected as an invalid state.
 */

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PayoutStatus enumerates the lifecycle states of a payout request.
type PayoutStatus string

const (
	StatusPending     PayoutStatus = "pending"
	StatusApproved    PayoutStatus = "approved"
	StatusRejected    PayoutStatus = "rejected"
	StatusTransferred PayoutStatus = "transferred"
)

// IsTerminal reports whether no further transition is permitted from the status.
func (s PayoutStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusTransferred
}

// ParsePayoutStatus normalizes and validates a status string from an API filter.
func ParsePayoutStatus(raw string) (PayoutStatus, bool) {
	switch PayoutStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, true
	case StatusApproved:
		return StatusApproved, true
	case StatusRejected:
		return StatusRejected, true
	case StatusTransferred:
		return StatusTransferred, true
	default:
		return "", false
	}
}

// CanTransition reports whether moving from one status to another is a legal edge.
// pending -> approved | rejected | transferred; approved -> transferred.
func CanTransition(from, to PayoutStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected || to == StatusTransferred
	case StatusApproved:
		return to == StatusTransferred
	default:
		return false
	}
}

// PayoutRequest is the central record for a withdrawal request from a platform
// user (shop owner or courier). It maps directly to the `payout_requests` table.
type PayoutRequest struct {
	ID                uuid.UUID    `json:"id"`
	BeneficiaryID     uuid.UUID    `json:"beneficiary_id"`
	BeneficiaryName   string       `json:"beneficiary_name"`
	BeneficiaryEmail  string       `json:"beneficiary_email"`
	Amount            int64        `json:"amount"` // minor currency unit
	BankCode          string       `json:"bank_code"`
	AccountNumber     string       `json:"account_number"`
	AccountHolderName string       `json:"account_holder_name"`
	Status            PayoutStatus `json:"status"`
	RejectReason      *string      `json:"reject_reason,omitempty"`
	TransferNote      *string      `json:"transfer_note,omitempty"`
	RequestedAt       time.Time    `json:"requested_at"`
	ProcessedAt       *time.Time   `json:"processed_at,omitempty"`
}

// TransferInstruction is the deterministic bank-transfer instruction rendered
// for a payout. It is derived, never persisted: the reference code must be
// recomputable from the payout id alone so that the bank-transaction detector
// can independently derive and match the same code.
type TransferInstruction struct {
	PayoutID           uuid.UUID `json:"payout_id"`
	ReferenceCode      string    `json:"reference_code"`
	DestinationBank    string    `json:"destination_bank"`
	DestinationAccount string    `json:"destination_account"`
	AccountHolderName  string    `json:"account_holder_name"`
	Amount             int64     `json:"amount"`
}

// CreatePayoutRequest is the DTO for registering a new withdrawal request.
type CreatePayoutRequest struct {
	BeneficiaryID     uuid.UUID `json:"beneficiary_id"`
	BeneficiaryName   string    `json:"beneficiary_name"`
	BeneficiaryEmail  string    `json:"beneficiary_email"`
	Amount            int64     `json:"amount"`
	BankCode          string    `json:"bank_code"`
	AccountNumber     string    `json:"account_number"`
	AccountHolderName string    `json:"account_holder_name"`
}

// RejectPayoutRequest is the DTO for the operator reject action.
type RejectPayoutRequest struct {
	Reason string `json:"reason"`
}

// MarkTransferredRequest is the DTO for the operator manual-confirm action.
type MarkTransferredRequest struct {
	TransferNote string `json:"transfer_note"`
}

// VerifyResult is the outcome of a match-detector check for one payout.
type VerifyResult struct {
	Matched bool         `json:"matched"`
	Status  PayoutStatus `json:"status"`
}

// PayoutListOptions controls pagination and filtering of the payout list.
type PayoutListOptions struct {
	Status *PayoutStatus
	Limit  int
	Offset int
}

// PayoutPage is one page of the authoritative payout list.
type PayoutPage struct {
	Items []PayoutRequest `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

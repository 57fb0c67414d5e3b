/**
 * @description
 * This file renders the deterministic bank-transfer instruction for a payout.
 * The reference code is a pure function of the payout id so that the
 * bank-transaction match detector can independently re-derive the same code
 * from a raw statement narration and match it against the payout.
 *
 * @dependencies
 * - strings: Standard Go library.
 * - internal/domain: The instruction model.
 */

package app

import (
	"strings"

	"github.com/shoplink/payout-service/internal/domain"
)

const referenceCodeLength = 8

// ReferenceCode derives the transfer reference for a payout id: the first
// eight characters, uppercased. Shorter ids are right-padded with zeros so the
// code length stays fixed for statement matching.
func ReferenceCode(payoutID string) string {
	code := payoutID
	if len(code) > referenceCodeLength {
		code = code[:referenceCodeLength]
	}
	code = strings.ToUpper(code)
	if len(code) < referenceCodeLength {
		code += strings.Repeat("0", referenceCodeLength-len(code))
	}
	return code
}

// GenerateInstruction builds the transfer instruction for a payout. Pure:
// rendering twice for the same record yields identical output, and nothing is
// persisted.
func GenerateInstruction(payout *domain.PayoutRequest) domain.TransferInstruction {
	return domain.TransferInstruction{
		PayoutID:           payout.ID,
		ReferenceCode:      ReferenceCode(payout.ID.String()),
		DestinationBank:    payout.BankCode,
		DestinationAccount: payout.AccountNumber,
		AccountHolderName:  payout.AccountHolderName,
		Amount:             payout.Amount,
	}
}

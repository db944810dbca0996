package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind classifies a ledger movement. Transfer legs are recorded as
// plain credit/debit; the *_reversal_transfer kinds only ever appear on
// movements created by a transfer reversal.
type MovementKind string

const (
	KindCredit                 MovementKind = "credit"
	KindDebit                  MovementKind = "debit"
	KindCreditReversal         MovementKind = "credit_reversal"
	KindDebitReversal          MovementKind = "debit_reversal"
	KindCreditReversalTransfer MovementKind = "credit_reversal_transfer"
	KindDebitReversalTransfer  MovementKind = "debit_reversal_transfer"
)

// Valid reports whether k is one of the known movement kinds.
func (k MovementKind) Valid() bool {
	switch k {
	case KindCredit, KindDebit, KindCreditReversal, KindDebitReversal,
		KindCreditReversalTransfer, KindDebitReversalTransfer:
		return true
	}
	return false
}

// Movement is an immutable ledger record. Amount is signed: positive credits
// the account, negative debits it. Once written, only IsReverted and UpdatedAt
// may change, and only when the movement is reversed.
type Movement struct {
	ID                 string          `json:"id" db:"id"`
	AccountID          string          `json:"account_id" db:"account_id"`
	Amount             decimal.Decimal `json:"value" db:"amount"`
	Description        string          `json:"description" db:"description"`
	Kind               MovementKind    `json:"type" db:"kind"`
	IsReverted         bool            `json:"is_reverted" db:"is_reverted"`
	OriginalMovementID *string         `json:"original_movement_id,omitempty" db:"original_movement_id"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// IsReversal reports whether the movement itself reverses another movement.
// Reversals are terminal: they can never be the target of a revert.
func (m *Movement) IsReversal() bool {
	return m.OriginalMovementID != nil
}

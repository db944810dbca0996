package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a person's bank account. Balance is mutated only by the ledger
// service and always equals the sum of the account's movement amounts.
type Account struct {
	ID        string          `json:"id" db:"id"`
	PersonID  string          `json:"person_id" db:"person_id"`
	Branch    string          `json:"branch" db:"branch"`
	Number    string          `json:"account" db:"number"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Version   int             `json:"-" db:"version"` // optimistic locking
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

package models

import "time"

type CardType string

const (
	CardTypePhysical CardType = "physical"
	CardTypeVirtual  CardType = "virtual"
)

// Card belongs to an account. Number is stored in full; responses must render
// it masked to the last four digits.
type Card struct {
	ID        string    `json:"id" db:"id"`
	AccountID string    `json:"account_id" db:"account_id"`
	Type      CardType  `json:"type" db:"type"`
	Number    string    `json:"number" db:"number"`
	CVV       string    `json:"cvv" db:"cvv"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MaskedNumber returns the card number reduced to its last four digits.
func (c *Card) MaskedNumber() string {
	if len(c.Number) <= 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}

package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	Timestamp  time.Time       `json:"timestamp"`
	EventType  string          `json:"event_type"`
	MovementID string          `json:"movement_id,omitempty"`
	AccountID  string          `json:"account_id"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	Details    any             `json:"details,omitempty"`
}

// Logger emits ledger audit events as JSON lines on the process log.
type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogMovement(movementID, accountID string, amount decimal.Decimal, kind string) {
	a.log(Event{
		Timestamp:  time.Now(),
		EventType:  "MOVEMENT",
		MovementID: movementID,
		AccountID:  accountID,
		Amount:     amount,
		Status:     "SUCCESS",
		Details:    map[string]string{"kind": kind},
	})
}

func (a *Logger) LogTransfer(movementID, fromAccount, toAccount string, amount decimal.Decimal) {
	a.log(Event{
		Timestamp:  time.Now(),
		EventType:  "TRANSFER",
		MovementID: movementID,
		AccountID:  fromAccount,
		Amount:     amount,
		Status:     "SUCCESS",
		Details: map[string]string{
			"from_account": fromAccount,
			"to_account":   toAccount,
		},
	})
}

func (a *Logger) LogReversal(movementID, originalMovementID, accountID string, amount decimal.Decimal) {
	a.log(Event{
		Timestamp:  time.Now(),
		EventType:  "REVERSAL",
		MovementID: movementID,
		AccountID:  accountID,
		Amount:     amount,
		Status:     "SUCCESS",
		Details:    map[string]string{"original_movement_id": originalMovementID},
	})
}

func (a *Logger) LogError(movementID, accountID string, err error) {
	a.log(Event{
		Timestamp:  time.Now(),
		EventType:  "ERROR",
		MovementID: movementID,
		AccountID:  accountID,
		Status:     "FAILED",
		Details:    map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}

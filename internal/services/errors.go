package services

import (
	"context"
	"database/sql"
	"errors"
	"net"

	"github.com/lib/pq"
)

// Error kinds returned by the ledger and account services. Callers match with
// errors.Is; the cause message travels in the wrapping error.
var (
	// ErrUnauthorized covers both "account does not exist" and "account is
	// not yours" so account existence never leaks to other callers.
	ErrUnauthorized = errors.New("account not found or access denied")

	// ErrInvalidOperation is a business-rule violation: same-account transfer,
	// non-positive transfer amount, movement not found for the account,
	// double reversal, reversal of a reversal, unknown movement kind, or an
	// unmatchable transfer partner.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrInsufficientFunds means a debit would drive the balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound means a referenced counterpart entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTransient is a storage or transaction failure. The whole operation
	// is safe to retry from scratch; it is never safe to resume midway.
	ErrTransient = errors.New("transient storage error")
)

// classifyStorageErr folds driver-level failures into ErrTransient so callers
// get a stable retryability signal. Serialization failures and deadlocks
// (pq class 40), connection loss (class 08), timeouts, and closed connections
// are all whole-operation retryable.
func classifyStorageErr(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "40", "08", "53", "57":
			return errors.Join(ErrTransient, err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, sql.ErrTxDone) {
		return errors.Join(ErrTransient, err)
	}
	return err
}

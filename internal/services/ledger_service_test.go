package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/PotenzaFelip/ApiFinanceira/internal/config"
	"github.com/PotenzaFelip/ApiFinanceira/internal/models"
)

const (
	testPersonID  = "6f9619ff-8b86-4d01-b42d-00cf4fc964ff"
	testAccountID = "11111111-1111-1111-1111-111111111111"
	testPartnerID = "22222222-2222-2222-2222-222222222222"
)

// decimalArg matches a decimal argument by numeric value rather than its
// string rendering, so "150" and "150.00" compare equal.
type decimalArg struct{ want decimal.Decimal }

func (d decimalArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	got, err := decimal.NewFromString(s)
	return err == nil && got.Equal(d.want)
}

func decVal(i int64) decimalArg {
	return decimalArg{want: decimal.NewFromInt(i)}
}

func newTestLedger(t *testing.T) (*LedgerService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	service := NewLedgerService(db, config.LoadLedgerConfig())
	return service, mock, func() { db.Close() }
}

func accountRows(id, personID string, balance string, version int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "person_id", "branch", "number", "balance", "version", "created_at", "updated_at"}).
		AddRow(id, personID, "0001", "1234567890", balance, version, time.Now(), time.Now())
}

func movementRows(id, accountID, amount, description, kind string, isReverted bool, originalID any) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "account_id", "amount", "description", "kind", "is_reverted", "original_movement_id", "created_at", "updated_at"}).
		AddRow(id, accountID, amount, description, kind, isReverted, originalID, time.Now(), time.Now())
}

func expectLockAccount(mock sqlmock.Sqlmock, accountID string, rows *sqlmock.Rows) {
	mock.ExpectQuery("SELECT id, person_id, branch, number, balance, version, created_at, updated_at FROM accounts WHERE id = \\$1 FOR UPDATE").
		WithArgs(accountID).
		WillReturnRows(rows)
}

func expectInsertMovement(mock sqlmock.Sqlmock, accountID string, amount decimal.Decimal, kind models.MovementKind) {
	mock.ExpectExec("INSERT INTO movements").
		WithArgs(sqlmock.AnyArg(), accountID, decimalArg{want: amount}, sqlmock.AnyArg(), string(kind),
			false, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func expectBalanceUpdate(mock sqlmock.Sqlmock, accountID string, newBalance decimal.Decimal, version int) {
	mock.ExpectExec("UPDATE accounts SET balance = \\$1, version = version \\+ 1, updated_at = \\$2 WHERE id = \\$3 AND version = \\$4").
		WithArgs(decimalArg{want: newBalance}, sqlmock.AnyArg(), accountID, version).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func expectMarkReverted(mock sqlmock.Sqlmock, movementID string) {
	mock.ExpectExec("UPDATE movements SET is_reverted = TRUE, updated_at = \\$1 WHERE id = \\$2 AND is_reverted = FALSE").
		WithArgs(sqlmock.AnyArg(), movementID).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func TestLedgerService_RecordMovement(t *testing.T) {
	service, mock, closeDB := newTestLedger(t)
	defer closeDB()

	t.Run("credit increases balance", func(t *testing.T) {
		amount := decimal.NewFromInt(50)

		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, testPersonID, "100.00", 1))
		expectInsertMovement(mock, testAccountID, amount, models.KindCredit)
		expectBalanceUpdate(mock, testAccountID, decimal.NewFromInt(150), 1)
		mock.ExpectCommit()

		movement, err := service.RecordMovement(context.Background(), testPersonID, testAccountID, amount, "salary")
		assert.NoError(t, err)
		assert.Equal(t, models.KindCredit, movement.Kind)
		assert.True(t, amount.Equal(movement.Amount))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("debit to exactly zero succeeds", func(t *testing.T) {
		amount := decimal.NewFromInt(-100)

		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, testPersonID, "100.00", 3))
		expectInsertMovement(mock, testAccountID, amount, models.KindDebit)
		expectBalanceUpdate(mock, testAccountID, decimal.NewFromInt(0), 3)
		mock.ExpectCommit()

		movement, err := service.RecordMovement(context.Background(), testPersonID, testAccountID, amount, "rent")
		assert.NoError(t, err)
		assert.Equal(t, models.KindDebit, movement.Kind)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds rejects debit and leaves balance untouched", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, testPersonID, "100.00", 1))
		mock.ExpectRollback()

		_, err := service.RecordMovement(context.Background(), testPersonID, testAccountID, decimal.NewFromInt(-150), "too much")
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("account owned by someone else", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, "someone-else", "100.00", 1))
		mock.ExpectRollback()

		_, err := service.RecordMovement(context.Background(), testPersonID, testAccountID, decimal.NewFromInt(10), "x")
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account reads as unauthorized", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, person_id, branch, number, balance, version, created_at, updated_at FROM accounts WHERE id = \\$1 FOR UPDATE").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := service.RecordMovement(context.Background(), testPersonID, "missing", decimal.NewFromInt(10), "x")
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("optimistic lock conflict maps to transient", func(t *testing.T) {
		amount := decimal.NewFromInt(25)

		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, testPersonID, "100.00", 7))
		expectInsertMovement(mock, testAccountID, amount, models.KindCredit)
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, version = version \\+ 1, updated_at = \\$2 WHERE id = \\$3 AND version = \\$4").
			WithArgs(decVal(125), sqlmock.AnyArg(), testAccountID, 7).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := service.RecordMovement(context.Background(), testPersonID, testAccountID, amount, "x")
		assert.ErrorIs(t, err, ErrTransient)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_RecordTransfer(t *testing.T) {
	service, mock, closeDB := newTestLedger(t)
	defer closeDB()

	t.Run("successful transfer produces both legs", func(t *testing.T) {
		amount := decimal.NewFromInt(100)

		mock.ExpectBegin()
		// Accounts are locked in ascending id order.
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, testPersonID, "500.00", 1))
		expectLockAccount(mock, testPartnerID, accountRows(testPartnerID, "receiver-person", "50.00", 2))
		expectInsertMovement(mock, testAccountID, amount.Neg(), models.KindDebit)
		expectInsertMovement(mock, testPartnerID, amount, models.KindCredit)
		expectBalanceUpdate(mock, testAccountID, decimal.NewFromInt(400), 1)
		expectBalanceUpdate(mock, testPartnerID, decimal.NewFromInt(150), 2)
		mock.ExpectCommit()

		movement, err := service.RecordTransfer(context.Background(), testPersonID, testAccountID, testPartnerID, amount, "rent")
		assert.NoError(t, err)
		assert.Equal(t, models.KindDebit, movement.Kind)
		assert.Equal(t, testAccountID, movement.AccountID)
		assert.Equal(t, fmt.Sprintf("Transfer to %s: rent", testPartnerID), movement.Description)
		assert.True(t, amount.Neg().Equal(movement.Amount))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing receiver", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, testPersonID, "500.00", 1))
		mock.ExpectQuery("SELECT id, person_id, branch, number, balance, version, created_at, updated_at FROM accounts WHERE id = \\$1 FOR UPDATE").
			WithArgs(testPartnerID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "person_id", "branch", "number", "balance", "version", "created_at", "updated_at"}))
		mock.ExpectRollback()

		_, err := service.RecordTransfer(context.Background(), testPersonID, testAccountID, testPartnerID, decimal.NewFromInt(10), "x")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("transfer to same account", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, testPersonID, "500.00", 1))
		mock.ExpectRollback()

		_, err := service.RecordTransfer(context.Background(), testPersonID, testAccountID, testAccountID, decimal.NewFromInt(10), "x")
		assert.ErrorIs(t, err, ErrInvalidOperation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-positive amount", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, testPersonID, "500.00", 1))
		expectLockAccount(mock, testPartnerID, accountRows(testPartnerID, "receiver-person", "50.00", 1))
		mock.ExpectRollback()

		_, err := service.RecordTransfer(context.Background(), testPersonID, testAccountID, testPartnerID, decimal.Zero, "x")
		assert.ErrorIs(t, err, ErrInvalidOperation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, testPersonID, "500.00", 1))
		expectLockAccount(mock, testPartnerID, accountRows(testPartnerID, "receiver-person", "50.00", 1))
		mock.ExpectRollback()

		_, err := service.RecordTransfer(context.Background(), testPersonID, testAccountID, testPartnerID, decimal.NewFromInt(600), "x")
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sender not owned by caller", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, "someone-else", "500.00", 1))
		expectLockAccount(mock, testPartnerID, accountRows(testPartnerID, "receiver-person", "50.00", 1))
		mock.ExpectRollback()

		_, err := service.RecordTransfer(context.Background(), testPersonID, testAccountID, testPartnerID, decimal.NewFromInt(10), "x")
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_RevertMovement(t *testing.T) {
	service, mock, closeDB := newTestLedger(t)
	defer closeDB()

	movementID := "33333333-3333-3333-3333-333333333333"

	expectGetMovement := func(rows *sqlmock.Rows) {
		mock.ExpectQuery("SELECT id, account_id, amount, description, kind, is_reverted, original_movement_id, created_at, updated_at FROM movements WHERE id = \\$1 AND account_id = \\$2 FOR UPDATE").
			WithArgs(movementID, testAccountID).
			WillReturnRows(rows)
	}

	t.Run("revert a credit debits the account", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, testPersonID, "150.00", 1))
		expectGetMovement(movementRows(movementID, testAccountID, "50.00", "salary", "credit", false, nil))
		expectInsertMovement(mock, testAccountID, decimal.NewFromInt(-50), models.KindDebitReversal)
		expectMarkReverted(mock, movementID)
		expectBalanceUpdate(mock, testAccountID, decimal.NewFromInt(100), 1)
		mock.ExpectCommit()

		reversal, err := service.RevertMovement(context.Background(), testPersonID, testAccountID, movementID, "mistake")
		assert.NoError(t, err)
		assert.Equal(t, models.KindDebitReversal, reversal.Kind)
		assert.Equal(t, movementID, *reversal.OriginalMovementID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("revert a debit credits the account", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, testPersonID, "100.00", 2))
		expectGetMovement(movementRows(movementID, testAccountID, "-30.00", "groceries", "debit", false, nil))
		expectInsertMovement(mock, testAccountID, decimal.NewFromInt(30), models.KindCreditReversal)
		expectMarkReverted(mock, movementID)
		expectBalanceUpdate(mock, testAccountID, decimal.NewFromInt(130), 2)
		mock.ExpectCommit()

		reversal, err := service.RevertMovement(context.Background(), testPersonID, testAccountID, movementID, "refund")
		assert.NoError(t, err)
		assert.Equal(t, models.KindCreditReversal, reversal.Kind)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already reverted", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, testPersonID, "100.00", 1))
		expectGetMovement(movementRows(movementID, testAccountID, "50.00", "salary", "credit", true, nil))
		mock.ExpectRollback()

		_, err := service.RevertMovement(context.Background(), testPersonID, testAccountID, movementID, "x")
		assert.ErrorIs(t, err, ErrInvalidOperation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("a reversal cannot be reverted", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, testPersonID, "100.00", 1))
		expectGetMovement(movementRows(movementID, testAccountID, "-50.00", "Reversal of credit", "debit_reversal", false, "44444444-4444-4444-4444-444444444444"))
		mock.ExpectRollback()

		_, err := service.RevertMovement(context.Background(), testPersonID, testAccountID, movementID, "x")
		assert.ErrorIs(t, err, ErrInvalidOperation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reverting a debit that would overdraw fails", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, testPersonID, "10.00", 1))
		expectGetMovement(movementRows(movementID, testAccountID, "50.00", "salary", "credit", false, nil))
		mock.ExpectRollback()

		_, err := service.RevertMovement(context.Background(), testPersonID, testAccountID, movementID, "x")
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("transfer leg reverses both accounts", func(t *testing.T) {
		partnerMovementID := "55555555-5555-5555-5555-555555555555"
		description := fmt.Sprintf("Transfer to %s: rent", testPartnerID)

		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, testPersonID, "400.00", 1))
		expectGetMovement(movementRows(movementID, testAccountID, "-100.00", description, "debit", false, nil))
		mock.ExpectQuery("SELECT id, account_id, amount, description, kind, is_reverted, original_movement_id, created_at, updated_at FROM movements WHERE account_id = \\$1 AND amount = \\$2 AND original_movement_id IS NULL AND is_reverted = FALSE AND created_at BETWEEN \\$3 AND \\$4 ORDER BY created_at DESC LIMIT 1 FOR UPDATE").
			WithArgs(testPartnerID, decVal(100), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(movementRows(partnerMovementID, testPartnerID,
				"100.00", fmt.Sprintf("Transfer from %s: rent", testAccountID), "credit", false, nil))
		expectLockAccount(mock, testPartnerID, accountRows(testPartnerID, "receiver-person", "150.00", 1))
		// Requester leg: debit becomes a credit reversal.
		expectInsertMovement(mock, testAccountID, decimal.NewFromInt(100), models.KindCreditReversalTransfer)
		expectMarkReverted(mock, movementID)
		expectBalanceUpdate(mock, testAccountID, decimal.NewFromInt(500), 1)
		// Partner leg: credit becomes a debit reversal.
		expectInsertMovement(mock, testPartnerID, decimal.NewFromInt(-100), models.KindDebitReversalTransfer)
		expectMarkReverted(mock, partnerMovementID)
		expectBalanceUpdate(mock, testPartnerID, decimal.NewFromInt(50), 1)
		mock.ExpectCommit()

		reversal, err := service.RevertMovement(context.Background(), testPersonID, testAccountID, movementID, "wrong amount")
		assert.NoError(t, err)
		assert.Equal(t, models.KindCreditReversalTransfer, reversal.Kind)
		assert.Equal(t, testAccountID, reversal.AccountID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("transfer leg with no correlated partner movement", func(t *testing.T) {
		description := fmt.Sprintf("Transfer to %s: rent", testPartnerID)

		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, testPersonID, "400.00", 1))
		expectGetMovement(movementRows(movementID, testAccountID, "-100.00", description, "debit", false, nil))
		mock.ExpectQuery("SELECT id, account_id, amount, description, kind, is_reverted, original_movement_id, created_at, updated_at FROM movements WHERE account_id = \\$1 AND amount = \\$2 AND original_movement_id IS NULL AND is_reverted = FALSE AND created_at BETWEEN \\$3 AND \\$4 ORDER BY created_at DESC LIMIT 1 FOR UPDATE").
			WithArgs(testPartnerID, decVal(100), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "amount", "description", "kind", "is_reverted", "original_movement_id", "created_at", "updated_at"}))
		mock.ExpectRollback()

		_, err := service.RevertMovement(context.Background(), testPersonID, testAccountID, movementID, "x")
		assert.ErrorIs(t, err, ErrInvalidOperation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("transfer description with unparseable partner reference", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockAccount(mock, testAccountID, accountRows(testAccountID, testPersonID, "400.00", 1))
		expectGetMovement(movementRows(movementID, testAccountID, "-100.00", "Transfer to not-a-uuid: rent", "debit", false, nil))
		mock.ExpectRollback()

		_, err := service.RevertMovement(context.Background(), testPersonID, testAccountID, movementID, "x")
		assert.ErrorIs(t, err, ErrInvalidOperation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_parsePartnerAccountID(t *testing.T) {
	service := &LedgerService{cfg: config.LoadLedgerConfig()}

	t.Run("sender side description", func(t *testing.T) {
		id, ok := service.parsePartnerAccountID(fmt.Sprintf("Transfer to %s: rent", testPartnerID))
		assert.True(t, ok)
		assert.Equal(t, testPartnerID, id)
	})

	t.Run("receiver side description", func(t *testing.T) {
		id, ok := service.parsePartnerAccountID(fmt.Sprintf("Transfer from %s: rent", testAccountID))
		assert.True(t, ok)
		assert.Equal(t, testAccountID, id)
	})

	t.Run("plain description is not a transfer", func(t *testing.T) {
		_, ok := service.parsePartnerAccountID("salary")
		assert.False(t, ok)
	})

	t.Run("missing colon", func(t *testing.T) {
		_, ok := service.parsePartnerAccountID("Transfer to " + testPartnerID)
		assert.False(t, ok)
	})

	t.Run("invalid uuid", func(t *testing.T) {
		_, ok := service.parsePartnerAccountID("Transfer to somewhere: rent")
		assert.False(t, ok)
	})
}

func TestReversalKinds(t *testing.T) {
	t.Run("simple mapping", func(t *testing.T) {
		kind, err := simpleReversalKind(models.KindCredit)
		assert.NoError(t, err)
		assert.Equal(t, models.KindDebitReversal, kind)

		kind, err = simpleReversalKind(models.KindDebit)
		assert.NoError(t, err)
		assert.Equal(t, models.KindCreditReversal, kind)

		_, err = simpleReversalKind(models.KindDebitReversal)
		assert.ErrorIs(t, err, ErrInvalidOperation)
	})

	t.Run("transfer mapping", func(t *testing.T) {
		kind, err := transferReversalKind(models.KindDebit)
		assert.NoError(t, err)
		assert.Equal(t, models.KindCreditReversalTransfer, kind)

		kind, err = transferReversalKind(models.KindCredit)
		assert.NoError(t, err)
		assert.Equal(t, models.KindDebitReversalTransfer, kind)

		_, err = transferReversalKind(models.MovementKind("bogus"))
		assert.ErrorIs(t, err, ErrInvalidOperation)
	})
}

package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/PotenzaFelip/ApiFinanceira/internal/audit"
	"github.com/PotenzaFelip/ApiFinanceira/internal/config"
	"github.com/PotenzaFelip/ApiFinanceira/internal/models"
)

// LedgerService is the only mutation path to account balances. Every public
// operation runs inside a single database transaction: balances are read under
// SELECT ... FOR UPDATE, validated, and written together with the movement
// rows, so concurrent debits can never both pass the sufficiency check.
type LedgerService struct {
	db    *sql.DB
	cfg   *config.LedgerConfig
	audit *audit.Logger
}

func NewLedgerService(db *sql.DB, cfg *config.LedgerConfig) *LedgerService {
	if cfg == nil {
		cfg = config.LoadLedgerConfig()
	}
	return &LedgerService{
		db:    db,
		cfg:   cfg,
		audit: audit.NewLogger(),
	}
}

// RecordMovement credits or debits a single account. A negative amount is a
// debit and must not drive the balance below zero.
func (s *LedgerService) RecordMovement(ctx context.Context, personID, accountID string, amount decimal.Decimal, description string) (*models.Movement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	defer tx.Rollback()

	account, err := s.lockAccount(tx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, classifyStorageErr(err)
	}
	if account.PersonID != personID {
		return nil, ErrUnauthorized
	}

	projected := account.Balance.Add(amount)
	if amount.IsNegative() && projected.IsNegative() {
		return nil, fmt.Errorf("%w: debit of %s exceeds balance %s", ErrInsufficientFunds, amount.Abs(), account.Balance)
	}

	kind := models.KindCredit
	if amount.IsNegative() {
		kind = models.KindDebit
	}

	movement := newMovement(accountID, amount, description, kind, nil)
	if err := s.insertMovement(tx, movement); err != nil {
		return nil, classifyStorageErr(err)
	}
	if err := s.updateAccountBalance(tx, account, projected); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		s.audit.LogError(movement.ID, accountID, err)
		return nil, classifyStorageErr(err)
	}

	s.audit.LogMovement(movement.ID, accountID, amount, string(kind))
	return movement, nil
}

// RecordTransfer moves amount from the sender's account to the receiver's,
// producing one debit and one credit movement in a single atomic unit. The two
// legs carry no cross-reference id; the partner account id is embedded in each
// description, which is what reversal parses back out. Returns the debit leg.
func (s *LedgerService) RecordTransfer(ctx context.Context, personID, senderAccountID, receiverAccountID string, amount decimal.Decimal, description string) (*models.Movement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	defer tx.Rollback()

	sender, receiver, err := s.lockAccountPair(tx, senderAccountID, receiverAccountID)
	if err != nil {
		return nil, err
	}

	// Failure precedence: ownership, receiver existence, same-account,
	// amount, sufficiency.
	if sender == nil || sender.PersonID != personID {
		return nil, ErrUnauthorized
	}
	if receiver == nil {
		return nil, fmt.Errorf("%w: receiver account %s", ErrNotFound, receiverAccountID)
	}
	if senderAccountID == receiverAccountID {
		return nil, fmt.Errorf("%w: cannot transfer to same account", ErrInvalidOperation)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: transfer amount must be positive", ErrInvalidOperation)
	}
	if sender.Balance.Sub(amount).IsNegative() {
		return nil, fmt.Errorf("%w: transfer of %s exceeds balance %s", ErrInsufficientFunds, amount, sender.Balance)
	}

	debit := newMovement(sender.ID, amount.Neg(),
		fmt.Sprintf("%s%s: %s", s.cfg.TransferToToken, receiver.ID, description),
		models.KindDebit, nil)
	credit := newMovement(receiver.ID, amount,
		fmt.Sprintf("%s%s: %s", s.cfg.TransferFromToken, sender.ID, description),
		models.KindCredit, nil)

	if err := s.insertMovement(tx, debit); err != nil {
		return nil, classifyStorageErr(err)
	}
	if err := s.insertMovement(tx, credit); err != nil {
		return nil, classifyStorageErr(err)
	}
	if err := s.updateAccountBalance(tx, sender, sender.Balance.Sub(amount)); err != nil {
		return nil, err
	}
	if err := s.updateAccountBalance(tx, receiver, receiver.Balance.Add(amount)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		s.audit.LogError(debit.ID, sender.ID, err)
		return nil, classifyStorageErr(err)
	}

	s.audit.LogTransfer(debit.ID, sender.ID, receiver.ID, amount)
	return debit, nil
}

// RevertMovement undoes a previously recorded movement. A transfer leg is
// recognized by its description prefix; its counterpart on the partner account
// is located by opposite amount within the configured time window, and both
// legs are reversed symmetrically. A movement can be reverted at most once and
// a reversal can never be reverted. Returns the reversal movement created for
// the invoking account.
func (s *LedgerService) RevertMovement(ctx context.Context, personID, accountID, movementID, description string) (*models.Movement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	defer tx.Rollback()

	account, err := s.lockAccount(tx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, classifyStorageErr(err)
	}
	if account.PersonID != personID {
		return nil, ErrUnauthorized
	}

	original, err := s.getMovementForUpdate(tx, movementID, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: movement not found for account", ErrInvalidOperation)
		}
		return nil, classifyStorageErr(err)
	}
	if original.IsReverted {
		return nil, fmt.Errorf("%w: movement already reverted", ErrInvalidOperation)
	}
	if original.IsReversal() {
		return nil, fmt.Errorf("%w: cannot revert a reversal", ErrInvalidOperation)
	}

	var reversal *models.Movement
	if s.isTransferLeg(original.Description) {
		reversal, err = s.revertTransferLeg(tx, account, original, description)
	} else {
		reversal, err = s.revertSimple(tx, account, original, description)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		s.audit.LogError(reversal.ID, accountID, err)
		return nil, classifyStorageErr(err)
	}

	s.audit.LogReversal(reversal.ID, original.ID, accountID, reversal.Amount)
	return reversal, nil
}

// revertSimple reverses a plain credit or debit on a single account.
func (s *LedgerService) revertSimple(tx *sql.Tx, account *models.Account, original *models.Movement, description string) (*models.Movement, error) {
	kind, err := simpleReversalKind(original.Kind)
	if err != nil {
		return nil, err
	}

	reversalAmount := original.Amount.Neg()
	projected := account.Balance.Add(reversalAmount)
	if reversalAmount.IsNegative() && projected.IsNegative() {
		return nil, fmt.Errorf("%w: reversal of %s exceeds balance %s", ErrInsufficientFunds, original.Amount, account.Balance)
	}

	reversal := newMovement(account.ID, reversalAmount,
		fmt.Sprintf("Reversal of %s (%s): %s", original.Kind, original.ID, description),
		kind, &original.ID)

	if err := s.insertMovement(tx, reversal); err != nil {
		return nil, classifyStorageErr(err)
	}
	if err := s.markReverted(tx, original.ID); err != nil {
		return nil, err
	}
	if err := s.updateAccountBalance(tx, account, projected); err != nil {
		return nil, err
	}
	return reversal, nil
}

// revertTransferLeg reverses both legs of an internal transfer. The partner
// leg is discovered, not referenced: the legacy data model stores no transfer
// group id, so the only correlation is the account id parsed from the
// description plus an opposite amount recorded within the match window.
func (s *LedgerService) revertTransferLeg(tx *sql.Tx, account *models.Account, original *models.Movement, description string) (*models.Movement, error) {
	partnerAccountID, ok := s.parsePartnerAccountID(original.Description)
	if !ok {
		return nil, fmt.Errorf("%w: cannot extract partner account reference from description", ErrInvalidOperation)
	}

	partnerLeg, err := s.findCorrelatedLeg(tx, partnerAccountID, original.Amount.Neg(), original.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: cannot find correlated partner movement; manual reversal may be required", ErrInvalidOperation)
		}
		return nil, classifyStorageErr(err)
	}

	partnerAccount, err := s.lockAccount(tx, partnerAccountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: transfer partner account not found", ErrInvalidOperation)
		}
		return nil, classifyStorageErr(err)
	}

	reversal, err := s.reverseLeg(tx, account, original, description)
	if err != nil {
		return nil, err
	}
	if _, err := s.reverseLeg(tx, partnerAccount, partnerLeg, description); err != nil {
		return nil, err
	}
	return reversal, nil
}

// reverseLeg applies one side of a transfer reversal: insert the reversal
// movement, mark the original reverted, adjust the balance.
func (s *LedgerService) reverseLeg(tx *sql.Tx, account *models.Account, original *models.Movement, description string) (*models.Movement, error) {
	kind, err := transferReversalKind(original.Kind)
	if err != nil {
		return nil, err
	}

	reversalAmount := original.Amount.Neg()
	projected := account.Balance.Add(reversalAmount)
	if reversalAmount.IsNegative() && projected.IsNegative() {
		return nil, fmt.Errorf("%w: account %s cannot cover transfer reversal", ErrInsufficientFunds, account.Number)
	}

	reversal := newMovement(account.ID, reversalAmount,
		fmt.Sprintf("Reversal of %s (%s): %s", original.Kind, original.ID, description),
		kind, &original.ID)

	if err := s.insertMovement(tx, reversal); err != nil {
		return nil, classifyStorageErr(err)
	}
	if err := s.markReverted(tx, original.ID); err != nil {
		return nil, err
	}
	if err := s.updateAccountBalance(tx, account, projected); err != nil {
		return nil, err
	}
	return reversal, nil
}

func simpleReversalKind(kind models.MovementKind) (models.MovementKind, error) {
	switch kind {
	case models.KindCredit:
		return models.KindDebitReversal, nil
	case models.KindDebit:
		return models.KindCreditReversal, nil
	}
	return "", fmt.Errorf("%w: unknown movement kind %q for reversal", ErrInvalidOperation, kind)
}

func transferReversalKind(kind models.MovementKind) (models.MovementKind, error) {
	switch kind {
	case models.KindDebit:
		return models.KindCreditReversalTransfer, nil
	case models.KindCredit:
		return models.KindDebitReversalTransfer, nil
	}
	return "", fmt.Errorf("%w: unknown movement kind %q for reversal", ErrInvalidOperation, kind)
}

// isTransferLeg classifies a movement by its description. Transfer legs are
// written with kind credit/debit, so the description prefix is the only
// reliable marker in the stored data.
func (s *LedgerService) isTransferLeg(description string) bool {
	return strings.HasPrefix(description, s.cfg.TransferToToken) ||
		strings.HasPrefix(description, s.cfg.TransferFromToken)
}

// parsePartnerAccountID extracts the partner account id embedded between the
// transfer token and the first colon of a transfer description.
func (s *LedgerService) parsePartnerAccountID(description string) (string, bool) {
	var rest string
	switch {
	case strings.HasPrefix(description, s.cfg.TransferToToken):
		rest = strings.TrimPrefix(description, s.cfg.TransferToToken)
	case strings.HasPrefix(description, s.cfg.TransferFromToken):
		rest = strings.TrimPrefix(description, s.cfg.TransferFromToken)
	default:
		return "", false
	}

	idPart, _, found := strings.Cut(rest, ":")
	if !found {
		return "", false
	}
	idPart = strings.TrimSpace(idPart)
	if _, err := uuid.Parse(idPart); err != nil {
		return "", false
	}
	return idPart, true
}

// findCorrelatedLeg locates the partner movement of a transfer: opposite
// amount, not itself a reversal, not yet reverted, created within the match
// window around the original. The most recent match wins. Swapping this for an
// explicit transfer group id only requires replacing this lookup.
func (s *LedgerService) findCorrelatedLeg(tx *sql.Tx, partnerAccountID string, amount decimal.Decimal, createdAt time.Time) (*models.Movement, error) {
	row := tx.QueryRow(`
		SELECT id, account_id, amount, description, kind, is_reverted, original_movement_id, created_at, updated_at
		FROM movements
		WHERE account_id = $1
		  AND amount = $2
		  AND original_movement_id IS NULL
		  AND is_reverted = FALSE
		  AND created_at BETWEEN $3 AND $4
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE`,
		partnerAccountID, amount,
		createdAt.Add(-s.cfg.ReversalMatchWindow), createdAt.Add(s.cfg.ReversalMatchWindow))
	return scanMovement(row)
}

// Store helpers. All writes to accounts and movements go through these and
// always run inside the caller's transaction.

func (s *LedgerService) lockAccount(tx *sql.Tx, accountID string) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRow(`
		SELECT id, person_id, branch, number, balance, version, created_at, updated_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE`, accountID).Scan(
		&account.ID, &account.PersonID, &account.Branch, &account.Number,
		&account.Balance, &account.Version, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// lockAccountPair locks two accounts in ascending id order to prevent
// deadlocks between concurrent transfers in opposite directions. A missing
// account comes back as nil rather than an error so the caller can apply its
// own failure precedence.
func (s *LedgerService) lockAccountPair(tx *sql.Tx, senderID, receiverID string) (sender, receiver *models.Account, err error) {
	if senderID == receiverID {
		account, err := s.lockAccount(tx, senderID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, classifyStorageErr(err)
		}
		return account, account, nil
	}

	firstID, secondID := senderID, receiverID
	if firstID > secondID {
		firstID, secondID = secondID, firstID
	}

	lock := func(id string) (*models.Account, error) {
		account, err := s.lockAccount(tx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return account, err
	}

	first, err := lock(firstID)
	if err != nil {
		return nil, nil, classifyStorageErr(err)
	}
	second, err := lock(secondID)
	if err != nil {
		return nil, nil, classifyStorageErr(err)
	}

	if firstID == senderID {
		return first, second, nil
	}
	return second, first, nil
}

func (s *LedgerService) getMovementForUpdate(tx *sql.Tx, movementID, accountID string) (*models.Movement, error) {
	row := tx.QueryRow(`
		SELECT id, account_id, amount, description, kind, is_reverted, original_movement_id, created_at, updated_at
		FROM movements
		WHERE id = $1 AND account_id = $2
		FOR UPDATE`, movementID, accountID)
	return scanMovement(row)
}

func (s *LedgerService) insertMovement(tx *sql.Tx, m *models.Movement) error {
	_, err := tx.Exec(`
		INSERT INTO movements (id, account_id, amount, description, kind, is_reverted, original_movement_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.AccountID, m.Amount, m.Description, string(m.Kind),
		m.IsReverted, m.OriginalMovementID, m.CreatedAt, m.UpdatedAt)
	return err
}

func (s *LedgerService) markReverted(tx *sql.Tx, movementID string) error {
	result, err := tx.Exec(`
		UPDATE movements
		SET is_reverted = TRUE, updated_at = $1
		WHERE id = $2 AND is_reverted = FALSE`,
		time.Now().UTC(), movementID)
	if err != nil {
		return classifyStorageErr(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return classifyStorageErr(err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: movement already reverted", ErrInvalidOperation)
	}
	return nil
}

func (s *LedgerService) updateAccountBalance(tx *sql.Tx, account *models.Account, newBalance decimal.Decimal) error {
	result, err := tx.Exec(`
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now().UTC(), account.ID, account.Version)
	if err != nil {
		return classifyStorageErr(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return classifyStorageErr(err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: optimistic lock failed for account %s", ErrTransient, account.ID)
	}
	account.Balance = newBalance
	account.Version++
	return nil
}

func newMovement(accountID string, amount decimal.Decimal, description string, kind models.MovementKind, originalID *string) *models.Movement {
	now := time.Now().UTC()
	return &models.Movement{
		ID:                 uuid.NewString(),
		AccountID:          accountID,
		Amount:             amount,
		Description:        description,
		Kind:               kind,
		OriginalMovementID: originalID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovement(row rowScanner) (*models.Movement, error) {
	var m models.Movement
	var kind string
	var originalID sql.NullString
	err := row.Scan(&m.ID, &m.AccountID, &m.Amount, &m.Description, &kind,
		&m.IsReverted, &originalID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Kind = models.MovementKind(kind)
	if originalID.Valid {
		m.OriginalMovementID = &originalID.String
	}
	return &m, nil
}

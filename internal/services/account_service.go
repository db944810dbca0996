package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/PotenzaFelip/ApiFinanceira/internal/config"
	"github.com/PotenzaFelip/ApiFinanceira/internal/models"
)

// AccountService opens accounts and answers read-only account queries. It
// never touches balances beyond the zero set at creation; every later balance
// change goes through the LedgerService.
type AccountService struct {
	db  *sql.DB
	cfg *config.LedgerConfig
}

func NewAccountService(db *sql.DB, cfg *config.LedgerConfig) *AccountService {
	if cfg == nil {
		cfg = config.LoadLedgerConfig()
	}
	return &AccountService{db: db, cfg: cfg}
}

// CreateAccount opens a new account for a person with balance zero.
func (s *AccountService) CreateAccount(ctx context.Context, personID string) (*models.Account, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM persons WHERE id = $1)`, personID).Scan(&exists)
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: person %s", ErrNotFound, personID)
	}

	now := time.Now().UTC()
	account := &models.Account{
		ID:        uuid.NewString(),
		PersonID:  personID,
		Branch:    s.cfg.DefaultBranch,
		Number:    s.generateAccountNumber(),
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, person_id, branch, number, balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7)`,
		account.ID, account.PersonID, account.Branch, account.Number,
		account.Balance, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	account.Version = 1
	return account, nil
}

// GetAccountsByPerson lists all accounts a person owns, oldest first.
func (s *AccountService) GetAccountsByPerson(ctx context.Context, personID string) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, person_id, branch, number, balance, version, created_at, updated_at
		FROM accounts
		WHERE person_id = $1
		ORDER BY created_at ASC`, personID)
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		err := rows.Scan(&a.ID, &a.PersonID, &a.Branch, &a.Number,
			&a.Balance, &a.Version, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, classifyStorageErr(err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyStorageErr(err)
	}
	return accounts, nil
}

// GetBalance returns the current balance of an account owned by the person.
func (s *AccountService) GetBalance(ctx context.Context, personID, accountID string) (decimal.Decimal, error) {
	var ownerID string
	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		`SELECT person_id, balance FROM accounts WHERE id = $1`, accountID).
		Scan(&ownerID, &balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrUnauthorized
		}
		return decimal.Zero, classifyStorageErr(err)
	}
	if ownerID != personID {
		return decimal.Zero, ErrUnauthorized
	}
	return balance, nil
}

func (s *AccountService) generateAccountNumber() string {
	digits := make([]byte, s.cfg.AccountNumberLength)
	for i := range digits {
		digits[i] = byte('0' + rand.Intn(10))
	}
	return string(digits)
}

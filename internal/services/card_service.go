package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PotenzaFelip/ApiFinanceira/internal/models"
)

// CardService issues and lists cards. An account may hold at most one
// physical card and card numbers are unique across all accounts.
type CardService struct {
	db *sql.DB
}

func NewCardService(db *sql.DB) *CardService {
	return &CardService{db: db}
}

// CreateCard issues a card for an account the person owns.
func (s *CardService) CreateCard(ctx context.Context, personID, accountID string, cardType models.CardType, number, cvv string) (*models.Card, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx,
		`SELECT person_id FROM accounts WHERE id = $1`, accountID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, classifyStorageErr(err)
	}
	if ownerID != personID {
		return nil, ErrUnauthorized
	}

	cleanNumber := strings.ReplaceAll(number, " ", "")
	if len(cleanNumber) != 16 {
		return nil, fmt.Errorf("%w: card number must contain 16 digits", ErrInvalidOperation)
	}
	if _, err := strconv.ParseUint(cleanNumber, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: card number must contain 16 digits", ErrInvalidOperation)
	}
	if len(cvv) != 3 {
		return nil, fmt.Errorf("%w: CVV must contain exactly 3 digits", ErrInvalidOperation)
	}
	if _, err := strconv.Atoi(cvv); err != nil {
		return nil, fmt.Errorf("%w: CVV must contain exactly 3 digits", ErrInvalidOperation)
	}
	if cardType != models.CardTypePhysical && cardType != models.CardTypeVirtual {
		return nil, fmt.Errorf("%w: card type must be physical or virtual", ErrInvalidOperation)
	}

	if cardType == models.CardTypePhysical {
		var hasPhysical bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM cards WHERE account_id = $1 AND type = 'physical')`,
			accountID).Scan(&hasPhysical)
		if err != nil {
			return nil, classifyStorageErr(err)
		}
		if hasPhysical {
			return nil, fmt.Errorf("%w: account already has a physical card", ErrInvalidOperation)
		}
	}

	var numberInUse bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM cards WHERE number = $1)`, cleanNumber).Scan(&numberInUse)
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	if numberInUse {
		return nil, fmt.Errorf("%w: card number already in use", ErrInvalidOperation)
	}

	now := time.Now().UTC()
	card := &models.Card{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Type:      cardType,
		Number:    cleanNumber,
		CVV:       cvv,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cards (id, account_id, type, number, cvv, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		card.ID, card.AccountID, string(card.Type), card.Number, card.CVV,
		card.CreatedAt, card.UpdatedAt)
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	return card, nil
}

// GetCardsByAccount lists an account's cards. Returns ErrUnauthorized when the
// account is missing or not owned by the person.
func (s *CardService) GetCardsByAccount(ctx context.Context, personID, accountID string) ([]models.Card, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx,
		`SELECT person_id FROM accounts WHERE id = $1`, accountID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, classifyStorageErr(err)
	}
	if ownerID != personID {
		return nil, ErrUnauthorized
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, type, number, cvv, created_at, updated_at
		FROM cards
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC`, accountID)
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	defer rows.Close()

	return collectCards(rows)
}

// GetCardsByPerson pages through all cards across the person's accounts,
// newest first.
func (s *CardService) GetCardsByPerson(ctx context.Context, personID string, page models.Pagination) ([]models.Card, models.Pagination, error) {
	page = models.NewPagination(page.ItemsPerPage, page.CurrentPage)

	var totalItems int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM cards c
		JOIN accounts a ON c.account_id = a.id
		WHERE a.person_id = $1`, personID).Scan(&totalItems)
	if err != nil {
		return nil, page, classifyStorageErr(err)
	}
	page = page.WithTotal(totalItems)

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.account_id, c.type, c.number, c.cvv, c.created_at, c.updated_at
		FROM cards c
		JOIN accounts a ON c.account_id = a.id
		WHERE a.person_id = $1
		ORDER BY c.created_at DESC, c.id DESC
		LIMIT $2 OFFSET $3`, personID, page.ItemsPerPage, page.Offset())
	if err != nil {
		return nil, page, classifyStorageErr(err)
	}
	defer rows.Close()

	cards, err := collectCards(rows)
	if err != nil {
		return nil, page, err
	}
	return cards, page, nil
}

func collectCards(rows *sql.Rows) ([]models.Card, error) {
	cards := []models.Card{}
	for rows.Next() {
		var c models.Card
		var cardType string
		err := rows.Scan(&c.ID, &c.AccountID, &cardType, &c.Number, &c.CVV,
			&c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, classifyStorageErr(err)
		}
		c.Type = models.CardType(cardType)
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyStorageErr(err)
	}
	return cards, nil
}

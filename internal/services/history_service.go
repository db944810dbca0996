package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/PotenzaFelip/ApiFinanceira/internal/models"
)

// HistoryService is the read side of the ledger: paginated, filterable access
// to an account's movements. It never mutates state.
type HistoryService struct {
	db *sql.DB
}

func NewHistoryService(db *sql.DB) *HistoryService {
	return &HistoryService{db: db}
}

// ListMovements returns one page of an account's movements, newest first.
// The kind filter is applied before counting, so TotalItems reflects the
// filtered set. Ties on created_at are broken by id to keep pages stable.
func (s *HistoryService) ListMovements(ctx context.Context, personID, accountID string, page models.Pagination, kindFilter *models.MovementKind) ([]models.Movement, models.Pagination, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx,
		`SELECT person_id FROM accounts WHERE id = $1`, accountID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, page, ErrUnauthorized
		}
		return nil, page, classifyStorageErr(err)
	}
	if ownerID != personID {
		return nil, page, ErrUnauthorized
	}

	page = models.NewPagination(page.ItemsPerPage, page.CurrentPage)

	countQuery := `SELECT COUNT(*) FROM movements WHERE account_id = $1`
	listQuery := `
		SELECT id, account_id, amount, description, kind, is_reverted, original_movement_id, created_at, updated_at
		FROM movements
		WHERE account_id = $1`
	args := []any{accountID}
	if kindFilter != nil {
		countQuery += ` AND kind = $2`
		listQuery += ` AND kind = $2`
		args = append(args, string(*kindFilter))
	}

	var totalItems int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalItems); err != nil {
		return nil, page, classifyStorageErr(err)
	}
	page = page.WithTotal(totalItems)

	listQuery += ` ORDER BY created_at DESC, id DESC`
	if kindFilter != nil {
		listQuery += ` LIMIT $3 OFFSET $4`
	} else {
		listQuery += ` LIMIT $2 OFFSET $3`
	}
	args = append(args, page.ItemsPerPage, page.Offset())

	rows, err := s.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, page, classifyStorageErr(err)
	}
	defer rows.Close()

	movements := []models.Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, page, classifyStorageErr(err)
		}
		movements = append(movements, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, page, classifyStorageErr(err)
	}

	return movements, page, nil
}

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/PotenzaFelip/ApiFinanceira/internal/models"
	"github.com/PotenzaFelip/ApiFinanceira/internal/services"
)

// TransactionHandler exposes the ledger engine over HTTP and maps its error
// kinds to status codes. The engine itself never sees a request.
type TransactionHandler struct {
	ledger    *services.LedgerService
	history   *services.HistoryService
	validator *services.ValidationHelper
}

func NewTransactionHandler(ledger *services.LedgerService, history *services.HistoryService) *TransactionHandler {
	return &TransactionHandler{
		ledger:    ledger,
		history:   history,
		validator: services.NewValidationHelper(),
	}
}

// writeLedgerError maps the engine's error taxonomy onto transport statuses.
// Unauthorized deliberately reads the same whether the account is missing or
// merely not the caller's.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		services.SendErrorResponse(w, "Account not found or access denied", http.StatusForbidden, nil)
	case errors.Is(err, services.ErrInsufficientFunds):
		services.SendErrorResponse(w, err.Error(), http.StatusUnprocessableEntity, nil)
	case errors.Is(err, services.ErrNotFound):
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, services.ErrInvalidOperation):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrTransient):
		services.SendErrorResponse(w, "Temporary storage failure, retry the operation", http.StatusServiceUnavailable, nil)
	default:
		log.Printf("[LEDGER] Unexpected error: %v", err)
		services.SendErrorResponse(w, "Failed to process operation", http.StatusInternalServerError, nil)
	}
}

// CreateMovement records a deposit or withdrawal
// @Summary Record a movement
// @Description Record a credit (positive value) or debit (negative value) on an account
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Param request body object{value=number,description=string} true "Movement request"
// @Success 201 {object} models.Movement
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /accounts/{accountId}/transactions [post]
func (h *TransactionHandler) CreateMovement(w http.ResponseWriter, r *http.Request) {
	personID, ok := r.Context().Value("personID").(string)
	if !ok || personID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	accountID := chi.URLParam(r, "accountId")

	var req struct {
		Value       decimal.Decimal `json:"value"`
		Description string          `json:"description" validate:"required,max=200"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	movement, err := h.ledger.RecordMovement(r.Context(), personID, accountID, req.Value, req.Description)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(movement)
}

// CreateTransfer moves funds between two internal accounts
// @Summary Record an internal transfer
// @Description Transfer a positive amount from the caller's account to another account
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Sender account ID"
// @Param request body object{receiverAccountId=string,value=number,description=string} true "Transfer request"
// @Success 201 {object} models.Movement "The debit movement on the sender account"
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /accounts/{accountId}/transactions/internal [post]
func (h *TransactionHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	personID, ok := r.Context().Value("personID").(string)
	if !ok || personID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	senderAccountID := chi.URLParam(r, "accountId")

	var req struct {
		ReceiverAccountID string          `json:"receiverAccountId" validate:"required,uuid"`
		Value             decimal.Decimal `json:"value"`
		Description       string          `json:"description" validate:"required,max=200"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	movement, err := h.ledger.RecordTransfer(r.Context(), personID, senderAccountID, req.ReceiverAccountID, req.Value, req.Description)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(movement)
}

// RevertTransaction reverses a movement
// @Summary Revert a movement
// @Description Reverse a movement; transfer legs are reversed on both accounts
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Param transactionId path string true "Movement ID"
// @Param request body object{description=string} true "Reversal description"
// @Success 201 {object} models.Movement "The reversal movement on the caller's account"
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /accounts/{accountId}/transactions/{transactionId}/revert [post]
func (h *TransactionHandler) RevertTransaction(w http.ResponseWriter, r *http.Request) {
	personID, ok := r.Context().Value("personID").(string)
	if !ok || personID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	accountID := chi.URLParam(r, "accountId")
	movementID := chi.URLParam(r, "transactionId")

	var req struct {
		Description string `json:"description" validate:"max=200"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil && err != io.EOF {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	movement, err := h.ledger.RevertMovement(r.Context(), personID, accountID, movementID, req.Description)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(movement)
}

// ListTransactions pages through an account's movement history
// @Summary List movements
// @Description Paginated movement history for an account, newest first
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Param itemsPerPage query int false "Items per page (default 10)"
// @Param currentPage query int false "Page number (default 1)"
// @Param type query string false "Filter by movement kind"
// @Success 200 {object} object{transactions=[]models.Movement,pagination=models.Pagination}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /accounts/{accountId}/transactions [get]
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	personID, ok := r.Context().Value("personID").(string)
	if !ok || personID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	accountID := chi.URLParam(r, "accountId")

	page := models.Pagination{
		ItemsPerPage: queryInt(r, "itemsPerPage", models.DefaultItemsPerPage),
		CurrentPage:  queryInt(r, "currentPage", models.DefaultCurrentPage),
	}

	var kindFilter *models.MovementKind
	if raw := r.URL.Query().Get("type"); raw != "" {
		kind := models.MovementKind(raw)
		if !kind.Valid() {
			services.SendErrorResponse(w, "Unknown movement type filter", http.StatusBadRequest, nil)
			return
		}
		kindFilter = &kind
	}

	movements, page, err := h.history.ListMovements(r.Context(), personID, accountID, page, kindFilter)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": movements,
		"pagination":   page,
	})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return defaultVal
	}
	return val
}

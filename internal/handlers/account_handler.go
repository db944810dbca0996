package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PotenzaFelip/ApiFinanceira/internal/services"
)

type AccountHandler struct {
	accounts *services.AccountService
}

func NewAccountHandler(accounts *services.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// CreateAccount opens a new account for the authenticated person
// @Summary Create an account
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 201 {object} models.Account
// @Failure 401 {object} services.ErrorResponse
// @Router /accounts [post]
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	personID, ok := r.Context().Value("personID").(string)
	if !ok || personID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	account, err := h.accounts.CreateAccount(r.Context(), personID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(account)
}

// ListAccounts lists the authenticated person's accounts
// @Summary List accounts
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Account
// @Router /accounts [get]
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	personID, ok := r.Context().Value("personID").(string)
	if !ok || personID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	accounts, err := h.accounts.GetAccountsByPerson(r.Context(), personID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accounts)
}

// GetBalance returns the current balance of an account
// @Summary Get account balance
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Success 200 {object} object{balance=number}
// @Failure 403 {object} services.ErrorResponse
// @Router /accounts/{accountId}/balance [get]
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	personID, ok := r.Context().Value("personID").(string)
	if !ok || personID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	accountID := chi.URLParam(r, "accountId")

	balance, err := h.accounts.GetBalance(r.Context(), personID, accountID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"balance": balance})
}

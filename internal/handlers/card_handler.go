package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/PotenzaFelip/ApiFinanceira/internal/models"
	"github.com/PotenzaFelip/ApiFinanceira/internal/services"
)

type CardHandler struct {
	cards     *services.CardService
	validator *services.ValidationHelper
}

func NewCardHandler(cards *services.CardService) *CardHandler {
	return &CardHandler{
		cards:     cards,
		validator: services.NewValidationHelper(),
	}
}

// cardResponse is the wire shape of a card. Full numbers and CVVs never
// leave the service.
type cardResponse struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Type      models.CardType `json:"type"`
	Number    string          `json:"number"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toCardResponse(c models.Card) cardResponse {
	return cardResponse{
		ID:        c.ID,
		AccountID: c.AccountID,
		Type:      c.Type,
		Number:    c.MaskedNumber(),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toCardResponses(cards []models.Card) []cardResponse {
	out := make([]cardResponse, 0, len(cards))
	for _, c := range cards {
		out = append(out, toCardResponse(c))
	}
	return out
}

// CreateCard issues a card for an account
// @Summary Create a card
// @Description Issue a physical or virtual card; an account holds at most one physical card
// @Tags cards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Param request body object{type=string,number=string,cvv=string} true "Card request"
// @Success 201 {object} handlers.cardResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /accounts/{accountId}/cards [post]
func (h *CardHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	personID, ok := r.Context().Value("personID").(string)
	if !ok || personID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	accountID := chi.URLParam(r, "accountId")

	var req struct {
		Type   models.CardType `json:"type" validate:"required,oneof=physical virtual"`
		Number string          `json:"number" validate:"required,len=16,numeric"`
		CVV    string          `json:"cvv" validate:"required,len=3,numeric"`
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

	card, err := h.cards.CreateCard(r.Context(), personID, accountID, req.Type, req.Number, req.CVV)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toCardResponse(*card))
}

// ListAccountCards lists the cards of one account
// @Summary List cards of an account
// @Tags cards
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Success 200 {array} handlers.cardResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /accounts/{accountId}/cards [get]
func (h *CardHandler) ListAccountCards(w http.ResponseWriter, r *http.Request) {
	personID, ok := r.Context().Value("personID").(string)
	if !ok || personID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	accountID := chi.URLParam(r, "accountId")

	cards, err := h.cards.GetCardsByAccount(r.Context(), personID, accountID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toCardResponses(cards))
}

// ListPersonCards lists every card across the person's accounts, paginated
// @Summary List all cards of the authenticated person
// @Tags cards
// @Produce json
// @Security BearerAuth
// @Param itemsPerPage query int false "Items per page (default 10)"
// @Param currentPage query int false "Page number (default 1)"
// @Success 200 {object} object{cards=[]handlers.cardResponse,pagination=models.Pagination}
// @Router /cards [get]
func (h *CardHandler) ListPersonCards(w http.ResponseWriter, r *http.Request) {
	personID, ok := r.Context().Value("personID").(string)
	if !ok || personID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	page := models.Pagination{
		ItemsPerPage: queryInt(r, "itemsPerPage", models.DefaultItemsPerPage),
		CurrentPage:  queryInt(r, "currentPage", models.DefaultCurrentPage),
	}

	cards, page, err := h.cards.GetCardsByPerson(r.Context(), personID, page)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"cards":      toCardResponses(cards),
		"pagination": page,
	})
}

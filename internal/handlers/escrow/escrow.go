package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/GlebRadaev/walletled/internal/domain"
	"github.com/GlebRadaev/walletled/internal/dto"
	"github.com/GlebRadaev/walletled/internal/service/escrowservice"
	"github.com/GlebRadaev/walletled/internal/service/executor"
	"github.com/GlebRadaev/walletled/pkg/auth"
	"github.com/GlebRadaev/walletled/pkg/utils"
)

type Service interface {
	Create(ctx context.Context, buyerID, sellerID int, amount decimal.Decimal, condition string, expiresAt time.Time) (*domain.Escrow, error)
	Fund(ctx context.Context, escrowID uuid.UUID, actor escrowservice.Actor) (*domain.Escrow, error)
	Release(ctx context.Context, escrowID uuid.UUID, reason domain.ReleaseReason, actor escrowservice.Actor) (*domain.Escrow, error)
	Refund(ctx context.Context, escrowID uuid.UUID, reason domain.ReleaseReason, actor escrowservice.Actor) (*domain.Escrow, error)
	Dispute(ctx context.Context, escrowID uuid.UUID, actor escrowservice.Actor) (*domain.Escrow, error)
	Get(ctx context.Context, escrowID uuid.UUID) (*domain.Escrow, error)
	ListByUser(ctx context.Context, userID int) ([]domain.Escrow, error)
}

type EscrowHandler struct {
	escrowService Service
}

func New(escrowService Service) *EscrowHandler {
	return &EscrowHandler{
		escrowService: escrowService,
	}
}

// Create godoc
//
//	@Summary		Create an escrow
//	@Description	Open an escrow between the authenticated buyer and a seller. No funds move until funding.
//	@Tags			Escrow
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.CreateEscrowRequestDTO	true	"Escrow request payload"
//	@Success		200		{object}	dto.EscrowResponseDTO
//	@Failure		400		{object}	utils.Response	"Invalid request body"
//	@Failure		401		{object}	utils.Response	"User not authorized"
//	@Failure		422		{object}	utils.Response	"Invalid amount, party or expiry"
//	@Failure		500		{object}	utils.Response	"Internal server error"
//	@Router			/api/escrow [post]
func (h *EscrowHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int)

	var req dto.CreateEscrowRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "Invalid amount")
		return
	}

	escrow, err := h.escrowService.Create(r.Context(), userID, req.SellerID, amount, req.Condition, req.ExpiresAt)
	if err != nil {
		respondEscrowError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, toEscrowDTO(escrow))
}

// Fund godoc
//
//	@Summary		Fund an escrow
//	@Description	Freeze the escrow amount in the buyer's wallet. The buyer's available balance shrinks; main balance is untouched.
//	@Tags			Escrow
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"Escrow id"
//	@Success		200	{object}	dto.EscrowResponseDTO
//	@Failure		401	{object}	utils.Response	"User not authorized"
//	@Failure		402	{object}	utils.Response	"Insufficient available balance"
//	@Failure		403	{object}	utils.Response	"Caller is not the buyer"
//	@Failure		404	{object}	utils.Response	"Escrow not found"
//	@Failure		409	{object}	utils.Response	"Escrow is not fundable"
//	@Failure		500	{object}	utils.Response	"Internal server error"
//	@Router			/api/escrow/{id}/fund [post]
func (h *EscrowHandler) Fund(w http.ResponseWriter, r *http.Request) {
	escrowID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "Invalid escrow id")
		return
	}

	escrow, err := h.escrowService.Fund(r.Context(), escrowID, actorFrom(r))
	if err != nil {
		respondEscrowError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, toEscrowDTO(escrow))
}

// Release godoc
//
//	@Summary		Release an escrow
//	@Description	Move the escrowed amount from the buyer's hold into the seller's sales balance. Terminal.
//	@Tags			Escrow
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string						true	"Escrow id"
//	@Param			request	body		dto.ResolveEscrowRequestDTO	true	"Release reason"
//	@Success		200		{object}	dto.EscrowResponseDTO
//	@Failure		401		{object}	utils.Response	"User not authorized"
//	@Failure		403		{object}	utils.Response	"Caller is not the buyer or reason is admin-only"
//	@Failure		404		{object}	utils.Response	"Escrow not found"
//	@Failure		409		{object}	utils.Response	"Invalid state transition"
//	@Failure		500		{object}	utils.Response	"Internal server error"
//	@Router			/api/escrow/{id}/release [post]
func (h *EscrowHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.escrowService.Release, domain.ReasonBuyerConfirmed)
}

// Refund godoc
//
//	@Summary		Refund an escrow
//	@Description	Drop the buyer's hold and leave the funds on the buyer's main balance. Terminal.
//	@Tags			Escrow
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string						true	"Escrow id"
//	@Param			request	body		dto.ResolveEscrowRequestDTO	true	"Refund reason"
//	@Success		200		{object}	dto.EscrowResponseDTO
//	@Failure		401		{object}	utils.Response	"User not authorized"
//	@Failure		403		{object}	utils.Response	"Caller is not the seller or reason is admin-only"
//	@Failure		404		{object}	utils.Response	"Escrow not found"
//	@Failure		409		{object}	utils.Response	"Invalid state transition"
//	@Failure		500		{object}	utils.Response	"Internal server error"
//	@Router			/api/escrow/{id}/refund [post]
func (h *EscrowHandler) Refund(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.escrowService.Refund, domain.ReasonSellerConfirmed)
}

// Dispute godoc
//
//	@Summary		Dispute an escrow
//	@Description	Freeze a funded escrow until an admin resolves it.
//	@Tags			Escrow
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"Escrow id"
//	@Success		200	{object}	dto.EscrowResponseDTO
//	@Failure		401	{object}	utils.Response	"User not authorized"
//	@Failure		403	{object}	utils.Response	"Caller is not a party to the escrow"
//	@Failure		404	{object}	utils.Response	"Escrow not found"
//	@Failure		409	{object}	utils.Response	"Invalid state transition"
//	@Failure		500	{object}	utils.Response	"Internal server error"
//	@Router			/api/escrow/{id}/dispute [post]
func (h *EscrowHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	escrowID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "Invalid escrow id")
		return
	}

	escrow, err := h.escrowService.Dispute(r.Context(), escrowID, actorFrom(r))
	if err != nil {
		respondEscrowError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, toEscrowDTO(escrow))
}

// Get godoc
//
//	@Summary		Get an escrow
//	@Tags			Escrow
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"Escrow id"
//	@Success		200	{object}	dto.EscrowResponseDTO
//	@Failure		401	{object}	utils.Response	"User not authorized"
//	@Failure		404	{object}	utils.Response	"Escrow not found"
//	@Failure		500	{object}	utils.Response	"Internal server error"
//	@Router			/api/escrow/{id} [get]
func (h *EscrowHandler) Get(w http.ResponseWriter, r *http.Request) {
	escrowID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "Invalid escrow id")
		return
	}

	escrow, err := h.escrowService.Get(r.Context(), escrowID)
	if err != nil {
		respondEscrowError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, toEscrowDTO(escrow))
}

// List godoc
//
//	@Summary		List own escrows
//	@Description	List escrows where the authenticated user is buyer or seller.
//	@Tags			Escrow
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{array}		dto.EscrowResponseDTO
//	@Failure		401	{object}	utils.Response	"User not authorized"
//	@Failure		500	{object}	utils.Response	"Internal server error"
//	@Router			/api/escrow [get]
func (h *EscrowHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int)

	escrows, err := h.escrowService.ListByUser(r.Context(), userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	response := make([]dto.EscrowResponseDTO, 0, len(escrows))
	for i := range escrows {
		response = append(response, toEscrowDTO(&escrows[i]))
	}
	utils.RespondWithJSON(w, http.StatusOK, response)
}

type resolveFn func(ctx context.Context, escrowID uuid.UUID, reason domain.ReleaseReason, actor escrowservice.Actor) (*domain.Escrow, error)

func (h *EscrowHandler) resolve(w http.ResponseWriter, r *http.Request, fn resolveFn, defaultReason domain.ReleaseReason) {
	escrowID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "Invalid escrow id")
		return
	}

	reason := defaultReason
	var req dto.ResolveEscrowRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Reason != "" {
		reason = domain.ReleaseReason(req.Reason)
	}

	escrow, err := fn(r.Context(), escrowID, reason, actorFrom(r))
	if err != nil {
		respondEscrowError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, toEscrowDTO(escrow))
}

func actorFrom(r *http.Request) escrowservice.Actor {
	isAdmin, _ := r.Context().Value(auth.IsAdminKey).(bool)
	return escrowservice.Actor{
		UserID:  r.Context().Value(auth.UserIDKey).(int),
		IsAdmin: isAdmin,
	}
}

func respondEscrowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, escrowservice.ErrEscrowNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Escrow not found")
	case errors.Is(err, escrowservice.ErrInvalidStateTransition):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, escrowservice.ErrNotParticipant),
		errors.Is(err, escrowservice.ErrAdminRequired):
		utils.RespondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, escrowservice.ErrSameParty),
		errors.Is(err, escrowservice.ErrInvalidAmount),
		errors.Is(err, escrowservice.ErrExpiryInPast),
		errors.Is(err, escrowservice.ErrInvalidReason):
		utils.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, executor.ErrInsufficientFunds):
		utils.RespondWithError(w, http.StatusPaymentRequired, "Insufficient available balance")
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func toEscrowDTO(escrow *domain.Escrow) dto.EscrowResponseDTO {
	return dto.EscrowResponseDTO{
		ID:            escrow.ID.String(),
		BuyerID:       escrow.BuyerID,
		SellerID:      escrow.SellerID,
		Amount:        escrow.Amount.String(),
		Condition:     escrow.Condition,
		Status:        string(escrow.Status),
		ReleaseReason: string(escrow.ReleaseReason),
		CreatedAt:     escrow.CreatedAt,
		ExpiresAt:     escrow.ExpiresAt,
		CompletedAt:   escrow.CompletedAt,
	}
}

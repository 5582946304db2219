package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/GlebRadaev/walletled/internal/domain"
	"github.com/GlebRadaev/walletled/internal/dto"
	"github.com/GlebRadaev/walletled/internal/service/adminservice"
	"github.com/GlebRadaev/walletled/internal/service/auditservice"
	"github.com/GlebRadaev/walletled/internal/service/executor"
	"github.com/GlebRadaev/walletled/pkg/auth"
	"github.com/GlebRadaev/walletled/pkg/utils"
)

type Service interface {
	Adjust(ctx context.Context, req adminservice.AdjustRequest) (*domain.Transaction, error)
	Review(ctx context.Context, txID int64, approve bool, result string) (*domain.Transaction, error)
	Reconcile(ctx context.Context, userID int) (*domain.ReconciliationResult, error)
	ReconcileFrozen(ctx context.Context, userID int) (*domain.ReconciliationResult, error)
}

type AdminHandler struct {
	adminService Service
}

func New(adminService Service) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

// Adjust godoc
//
//	@Summary		Apply a manual balance adjustment
//	@Description	Credit or debit a user's wallet with an audited ledger entry. May drive the balance negative deliberately.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.AdjustmentRequestDTO	true	"Adjustment payload"
//	@Success		200		{object}	dto.TransactionResponseDTO
//	@Failure		400		{object}	utils.Response	"Invalid request body"
//	@Failure		401		{object}	utils.Response	"User not authorized"
//	@Failure		403		{object}	utils.Response	"Admin rights required"
//	@Failure		404		{object}	utils.Response	"Wallet not found"
//	@Failure		409		{object}	utils.Response	"Version conflict"
//	@Failure		422		{object}	utils.Response	"Invalid amount or reason"
//	@Failure		500		{object}	utils.Response	"Internal server error"
//	@Router			/api/admin/adjustment [post]
func (h *AdminHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	adminID := r.Context().Value(auth.UserIDKey).(int)

	var req dto.AdjustmentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "Invalid amount")
		return
	}

	tx, err := h.adminService.Adjust(r.Context(), adminservice.AdjustRequest{
		UserID:     req.UserID,
		Amount:     amount,
		Reason:     req.Reason,
		AdminID:    adminID,
		NotifyUser: req.NotifyUser,
	})
	if err != nil {
		switch {
		case errors.Is(err, adminservice.ErrZeroAmount), errors.Is(err, adminservice.ErrEmptyReason):
			utils.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, executor.ErrWalletNotFound):
			utils.RespondWithError(w, http.StatusNotFound, "Wallet not found")
		case errors.Is(err, executor.ErrConflict):
			utils.RespondWithError(w, http.StatusConflict, "Version conflict, retry")
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// Review godoc
//
//	@Summary		Resolve a transaction held for review
//	@Description	Approve (apply at the current balance) or reject a risk-flagged pending transaction.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int						true	"Transaction id"
//	@Param			request	body		dto.ReviewRequestDTO	true	"Review verdict"
//	@Success		200		{object}	dto.TransactionResponseDTO
//	@Failure		400		{object}	utils.Response	"Invalid request body"
//	@Failure		401		{object}	utils.Response	"User not authorized"
//	@Failure		403		{object}	utils.Response	"Admin rights required"
//	@Failure		404		{object}	utils.Response	"Transaction not found"
//	@Failure		409		{object}	utils.Response	"Transaction is not reviewable"
//	@Failure		500		{object}	utils.Response	"Internal server error"
//	@Router			/api/admin/transactions/{id}/review [post]
func (h *AdminHandler) Review(w http.ResponseWriter, r *http.Request) {
	txID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "Invalid transaction id")
		return
	}

	var req dto.ReviewRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := h.adminService.Review(r.Context(), txID, req.Approve, req.Result)
	if err != nil {
		switch {
		case errors.Is(err, executor.ErrTransactionNotFound):
			utils.RespondWithError(w, http.StatusNotFound, "Transaction not found")
		case errors.Is(err, executor.ErrNotReviewable):
			utils.RespondWithError(w, http.StatusConflict, "Transaction is not reviewable")
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// Reconcile godoc
//
//	@Summary		Reconcile a wallet against its ledger
//	@Description	Recompute the expected balance from completed ledger entries and report any discrepancy. Never auto-corrects.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			userID	path		int		true	"User id"
//	@Param			frozen	query		bool	false	"Check frozen balance against open escrows instead"
//	@Success		200		{object}	dto.ReconcileResponseDTO
//	@Failure		401		{object}	utils.Response	"User not authorized"
//	@Failure		403		{object}	utils.Response	"Admin rights required"
//	@Failure		404		{object}	utils.Response	"Wallet not found"
//	@Failure		500		{object}	utils.Response	"Internal server error"
//	@Router			/api/admin/reconcile/{userID} [get]
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil {
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "Invalid user id")
		return
	}

	reconcile := h.adminService.Reconcile
	if r.URL.Query().Get("frozen") == "true" {
		reconcile = h.adminService.ReconcileFrozen
	}

	result, err := reconcile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auditservice.ErrWalletNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Wallet not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, dto.ReconcileResponseDTO{
		UserID:       result.UserID,
		Expected:     result.ExpectedBalance.String(),
		Stored:       result.StoredBalance.String(),
		Available:    result.AvailableBalance.String(),
		Frozen:       result.FrozenBalance.String(),
		Discrepancy:  result.Discrepancy.String(),
		IsConsistent: result.IsConsistent,
		CheckedAt:    result.CheckedAt,
	})
}

func toTransactionDTO(tx *domain.Transaction) dto.TransactionResponseDTO {
	resp := dto.TransactionResponseDTO{
		ID:            tx.ID,
		Type:          string(tx.Type),
		Status:        string(tx.Status),
		Amount:        tx.Amount.String(),
		Fee:           tx.Fee.String(),
		Tax:           tx.Tax.String(),
		BalanceBefore: tx.BalanceBefore.String(),
		BalanceAfter:  tx.BalanceAfter.String(),
		IsSuspicious:  tx.IsSuspicious,
		CreatedAt:     tx.CreatedAt,
		CompletedAt:   tx.CompletedAt,
	}
	if !tx.RiskScore.IsZero() {
		resp.RiskScore = tx.RiskScore.String()
	}
	return resp
}

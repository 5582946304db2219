package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/GlebRadaev/walletled/internal/domain"
	"github.com/GlebRadaev/walletled/internal/dto"
	"github.com/GlebRadaev/walletled/internal/service/atomic"
	"github.com/GlebRadaev/walletled/internal/service/executor"
	"github.com/GlebRadaev/walletled/internal/service/walletservice"
	"github.com/GlebRadaev/walletled/pkg/auth"
	"github.com/GlebRadaev/walletled/pkg/utils"
)

type Service interface {
	GetWallet(ctx context.Context, userID int) (*domain.Wallet, error)
	ListTransactions(ctx context.Context, userID int, from, to time.Time) ([]domain.Transaction, error)
	Transfer(ctx context.Context, fromUserID, toUserID int, amount decimal.Decimal, correlationID uuid.UUID) (*atomic.Result, error)
}

type WalletHandler struct {
	walletService Service
}

func New(walletService Service) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
	}
}

// GetWallet godoc
//
//	@Summary		Get current user wallet
//	@Description	Retrieve the main, sales, frozen, available and total balances for the authenticated user.
//	@Tags			Wallet
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	dto.WalletResponseDTO	"Wallet balances"
//	@Failure		401	{object}	utils.Response			"User not authorized"
//	@Failure		404	{object}	utils.Response			"Wallet not found"
//	@Failure		500	{object}	utils.Response			"Internal server error"
//	@Router			/api/user/wallet [get]
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int)

	wallet, err := h.walletService.GetWallet(r.Context(), userID)
	if err != nil {
		if errors.Is(err, walletservice.ErrWalletNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Wallet not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.WalletResponseDTO{
		Main:      wallet.MainBalance.String(),
		Sales:     wallet.SalesBalance.String(),
		Frozen:    wallet.FrozenBalance.String(),
		Available: wallet.Available().String(),
		Total:     wallet.Total().String(),
	})
}

// GetTransactions godoc
//
//	@Summary		Get ledger entries
//	@Description	List the authenticated user's ledger entries, newest first. Optional from/to query bounds in RFC3339.
//	@Tags			Wallet
//	@Security		BearerAuth
//	@Produce		json
//	@Param			from	query		string	false	"Range start (RFC3339)"
//	@Param			to		query		string	false	"Range end (RFC3339)"
//	@Success		200		{array}		dto.TransactionResponseDTO
//	@Failure		400		{object}	utils.Response	"Invalid time bound"
//	@Failure		401		{object}	utils.Response	"User not authorized"
//	@Failure		500		{object}	utils.Response	"Internal server error"
//	@Router			/api/user/transactions [get]
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int)

	from, to, err := parseRange(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid time bound")
		return
	}

	txs, err := h.walletService.ListTransactions(r.Context(), userID, from, to)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	response := make([]dto.TransactionResponseDTO, 0, len(txs))
	for _, tx := range txs {
		response = append(response, toTransactionDTO(tx))
	}
	utils.RespondWithJSON(w, http.StatusOK, response)
}

// Transfer godoc
//
//	@Summary		Transfer funds to another user
//	@Description	Move an amount from the authenticated user's main balance to another user's, all-or-nothing. Resubmitting the same correlation_id replays the original result.
//	@Tags			Wallet
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.TransferRequestDTO	true	"Transfer request payload"
//	@Success		200		{object}	dto.TransferResponseDTO
//	@Failure		400		{object}	utils.Response			"Invalid request body"
//	@Failure		401		{object}	utils.Response			"User not authorized"
//	@Failure		402		{object}	dto.TransferResponseDTO	"Insufficient funds"
//	@Failure		409		{object}	dto.TransferResponseDTO	"Version conflict, retry with same correlation id"
//	@Failure		422		{object}	utils.Response			"Invalid amount or recipient"
//	@Failure		423		{object}	utils.Response			"Held for manual review"
//	@Failure		500		{object}	utils.Response			"Internal server error"
//	@Router			/api/user/transfer [post]
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int)

	var req dto.TransferRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "Invalid amount")
		return
	}

	correlationID := uuid.Nil
	if req.CorrelationID != "" {
		correlationID, err = uuid.Parse(req.CorrelationID)
		if err != nil {
			utils.RespondWithError(w, http.StatusUnprocessableEntity, "Invalid correlation id")
			return
		}
	}

	result, err := h.walletService.Transfer(r.Context(), userID, req.ToUserID, amount, correlationID)
	if err != nil {
		switch {
		case errors.Is(err, walletservice.ErrInvalidAmount), errors.Is(err, walletservice.ErrSelfTransfer):
			utils.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, executor.ErrHeldForReview):
			utils.RespondWithError(w, http.StatusLocked, "Transaction held for manual review")
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	response := dto.TransferResponseDTO{
		Success:       result.Success,
		CorrelationID: result.CorrelationID.String(),
		ConflictType:  result.ConflictType,
		RetryAfterMS:  result.RetryAfter.Milliseconds(),
		Message:       result.Error,
	}
	switch {
	case result.Success:
		utils.RespondWithJSON(w, http.StatusOK, response)
	case result.ConflictType == atomic.ConflictOptimisticLock:
		utils.RespondWithJSON(w, http.StatusConflict, response)
	case stepFailedWith(result, executor.ErrInsufficientFunds):
		utils.RespondWithJSON(w, http.StatusPaymentRequired, response)
	case stepFailedWith(result, executor.ErrHeldForReview):
		utils.RespondWithJSON(w, http.StatusLocked, response)
	default:
		utils.RespondWithJSON(w, http.StatusInternalServerError, response)
	}
}

func stepFailedWith(result *atomic.Result, sentinel error) bool {
	return result.Error == sentinel.Error()
}

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Now()

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
	}
	return from, to, nil
}

func toTransactionDTO(tx domain.Transaction) dto.TransactionResponseDTO {
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

package walletservice

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GlebRadaev/walletled/internal/domain"
	"github.com/GlebRadaev/walletled/internal/service/atomic"
)

type WalletRepo interface {
	GetWallet(ctx context.Context, userID int) (*domain.Wallet, error)
}

type TransactionRepo interface {
	ListByUser(ctx context.Context, userID int, from, to time.Time) ([]domain.Transaction, error)
}

type Coordinator interface {
	Execute(ctx context.Context, req atomic.Request) (*atomic.Result, error)
}

var (
	ErrWalletNotFound = errors.New("wallet not found")
	ErrInvalidAmount  = errors.New("transfer amount must be positive")
	ErrSelfTransfer   = errors.New("cannot transfer to own wallet")
)

type Service struct {
	walletRepo  WalletRepo
	txRepo      TransactionRepo
	coordinator Coordinator
}

func New(walletRepo WalletRepo, txRepo TransactionRepo, coordinator Coordinator) *Service {
	return &Service{
		walletRepo:  walletRepo,
		txRepo:      txRepo,
		coordinator: coordinator,
	}
}

func (s *Service) GetWallet(ctx context.Context, userID int) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, ErrWalletNotFound
	}
	return wallet, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID int, from, to time.Time) ([]domain.Transaction, error) {
	return s.txRepo.ListByUser(ctx, userID, from, to)
}

// Transfer moves amount between two main balances as one all-or-nothing
// unit. The correlation id makes re-delivery idempotent; callers retrying a
// conflict must resubmit the same id.
func (s *Service) Transfer(ctx context.Context, fromUserID, toUserID int, amount decimal.Decimal, correlationID uuid.UUID) (*atomic.Result, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if fromUserID == toUserID {
		return nil, ErrSelfTransfer
	}
	if correlationID == uuid.Nil {
		correlationID = uuid.New()
	}

	result, err := s.coordinator.Execute(ctx, atomic.Request{
		CorrelationID: correlationID,
		Attempt:       1,
		Steps: []atomic.Step{
			{UserID: fromUserID, Amount: amount.Neg(), Type: domain.TypeTransfer},
			{UserID: toUserID, Amount: amount, Type: domain.TypeTransfer},
		},
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("transfer executed",
		zap.Int("fromUserID", fromUserID),
		zap.Int("toUserID", toUserID),
		zap.String("amount", amount.String()),
		zap.Bool("success", result.Success),
	)
	return result, nil
}

package auditservice

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GlebRadaev/walletled/internal/domain"
)

type WalletRepo interface {
	GetWallet(ctx context.Context, userID int) (*domain.Wallet, error)
	ListUserIDs(ctx context.Context) ([]int, error)
}

type TransactionRepo interface {
	SumCompleted(ctx context.Context, userID int) (decimal.Decimal, error)
}

type EscrowRepo interface {
	SumFundedByBuyer(ctx context.Context, buyerID int) (decimal.Decimal, error)
}

var ErrWalletNotFound = errors.New("wallet not found")

type Service struct {
	walletRepo WalletRepo
	txRepo     TransactionRepo
	escrowRepo EscrowRepo

	sweepInterval time.Duration
}

func New(walletRepo WalletRepo, txRepo TransactionRepo, escrowRepo EscrowRepo, sweepInterval time.Duration) *Service {
	return &Service{
		walletRepo:    walletRepo,
		txRepo:        txRepo,
		escrowRepo:    escrowRepo,
		sweepInterval: sweepInterval,
	}
}

// Reconcile folds the user's completed ledger entries and compares the
// result with the stored total balance. A discrepancy is reported only;
// correction is a separate admin adjustment that goes through the ledger
// itself.
func (s *Service) Reconcile(ctx context.Context, userID int) (*domain.ReconciliationResult, error) {
	wallet, err := s.walletRepo.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, ErrWalletNotFound
	}

	expected, err := s.txRepo.SumCompleted(ctx, userID)
	if err != nil {
		return nil, err
	}

	stored := wallet.Total()
	discrepancy := stored.Sub(expected)

	result := &domain.ReconciliationResult{
		UserID:           userID,
		ExpectedBalance:  expected,
		StoredBalance:    stored,
		AvailableBalance: wallet.Available(),
		FrozenBalance:    wallet.FrozenBalance,
		Discrepancy:      discrepancy,
		IsConsistent:     discrepancy.IsZero(),
		CheckedAt:        time.Now(),
	}

	if !result.IsConsistent {
		zap.L().Warn("wallet balance diverges from ledger",
			zap.Int("userID", userID),
			zap.String("stored", stored.String()),
			zap.String("expected", expected.String()),
			zap.String("discrepancy", discrepancy.String()),
		)
	}
	return result, nil
}

// ReconcileFrozen checks that the wallet's frozen balance covers exactly the
// open escrow holds against it.
func (s *Service) ReconcileFrozen(ctx context.Context, userID int) (*domain.ReconciliationResult, error) {
	wallet, err := s.walletRepo.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, ErrWalletNotFound
	}

	held, err := s.escrowRepo.SumFundedByBuyer(ctx, userID)
	if err != nil {
		return nil, err
	}

	discrepancy := wallet.FrozenBalance.Sub(held)
	result := &domain.ReconciliationResult{
		UserID:           userID,
		ExpectedBalance:  held,
		StoredBalance:    wallet.FrozenBalance,
		AvailableBalance: wallet.Available(),
		FrozenBalance:    wallet.FrozenBalance,
		Discrepancy:      discrepancy,
		IsConsistent:     discrepancy.IsZero(),
		CheckedAt:        time.Now(),
	}

	if !result.IsConsistent {
		zap.L().Warn("frozen balance diverges from open escrow holds",
			zap.Int("userID", userID),
			zap.String("frozen", wallet.FrozenBalance.String()),
			zap.String("held", held.String()),
		)
	}
	return result, nil
}

// StartSweeper reconciles every wallet on a fixed interval until ctx is
// done. Disabled when the interval is zero.
func (s *Service) StartSweeper(ctx context.Context) {
	if s.sweepInterval <= 0 {
		return
	}
	zap.L().Info("reconciliation sweeper started")
	go s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("context canceled, stopping reconciliation sweeper")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	userIDs, err := s.walletRepo.ListUserIDs(ctx)
	if err != nil {
		zap.L().Error("failed to list wallets for reconciliation", zap.Error(err))
		return
	}
	for _, userID := range userIDs {
		if _, err := s.Reconcile(ctx, userID); err != nil {
			zap.L().Error("reconciliation failed", zap.Int("userID", userID), zap.Error(err))
		}
		if _, err := s.ReconcileFrozen(ctx, userID); err != nil {
			zap.L().Error("frozen reconciliation failed", zap.Int("userID", userID), zap.Error(err))
		}
	}
}

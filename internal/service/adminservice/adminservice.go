package adminservice

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GlebRadaev/walletled/internal/domain"
	"github.com/GlebRadaev/walletled/internal/service/executor"
)

type Executor interface {
	Apply(ctx context.Context, req executor.ApplyRequest) (*domain.Transaction, error)
	Review(ctx context.Context, txID int64, approve bool, result string) (*domain.Transaction, error)
}

type Auditor interface {
	Reconcile(ctx context.Context, userID int) (*domain.ReconciliationResult, error)
	ReconcileFrozen(ctx context.Context, userID int) (*domain.ReconciliationResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID int, eventKind string, payload interface{})
}

var (
	ErrZeroAmount  = errors.New("adjustment amount cannot be zero")
	ErrEmptyReason = errors.New("adjustment reason is required")
)

type AdjustRequest struct {
	UserID     int
	Amount     decimal.Decimal
	Reason     string
	AdminID    int
	NotifyUser bool
}

type Service struct {
	exec     Executor
	auditor  Auditor
	notifier Notifier
}

func New(exec Executor, auditor Auditor, notifier Notifier) *Service {
	return &Service{exec: exec, auditor: auditor, notifier: notifier}
}

// Adjust applies a manual balance correction. It bypasses the risk gate and
// the non-negative available balance rule, so an adjustment can deliberately
// drive a balance negative; the ledger row records who did it and why.
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (*domain.Transaction, error) {
	if req.Amount.IsZero() {
		return nil, ErrZeroAmount
	}
	if req.Reason == "" {
		return nil, ErrEmptyReason
	}

	tx, err := s.exec.Apply(ctx, executor.ApplyRequest{
		UserID: req.UserID,
		Amount: req.Amount,
		Type:   domain.TypeAdminAdjustment,
		Metadata: domain.TransactionMetadata{
			AdminID: req.AdminID,
			Reason:  req.Reason,
		},
		AllowNegative: true,
		SkipRisk:      true,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("admin adjustment applied",
		zap.Int("userID", req.UserID),
		zap.Int("adminID", req.AdminID),
		zap.String("amount", req.Amount.String()),
		zap.String("reason", req.Reason),
	)

	if req.NotifyUser && s.notifier != nil {
		s.notifier.Notify(ctx, req.UserID, "balance_adjusted", map[string]string{
			"amount": req.Amount.String(),
			"reason": req.Reason,
		})
	}
	return tx, nil
}

// Review resolves a transaction held for manual review.
func (s *Service) Review(ctx context.Context, txID int64, approve bool, result string) (*domain.Transaction, error) {
	tx, err := s.exec.Review(ctx, txID, approve, result)
	if err != nil {
		return nil, err
	}
	zap.L().Info("flagged transaction reviewed",
		zap.Int64("txID", txID),
		zap.Bool("approved", approve),
	)
	return tx, nil
}

// Reconcile runs an on-demand audit of one wallet.
func (s *Service) Reconcile(ctx context.Context, userID int) (*domain.ReconciliationResult, error) {
	return s.auditor.Reconcile(ctx, userID)
}

// ReconcileFrozen checks the wallet's frozen balance against open escrows.
func (s *Service) ReconcileFrozen(ctx context.Context, userID int) (*domain.ReconciliationResult, error) {
	return s.auditor.ReconcileFrozen(ctx, userID)
}

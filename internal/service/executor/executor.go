package executor

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GlebRadaev/walletled/internal/domain"
	"github.com/GlebRadaev/walletled/internal/pg"
	walletrepo "github.com/GlebRadaev/walletled/internal/repo/wallet-repo"
	"github.com/google/uuid"
)

type WalletRepo interface {
	GetWallet(ctx context.Context, userID int) (*domain.Wallet, error)
	UpdateWithVersion(ctx context.Context, wallet *domain.Wallet, expectedVersion int64) error
}

type TransactionRepo interface {
	Append(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)
	GetByID(ctx context.Context, id int64) (*domain.Transaction, error)
	SetReviewResult(ctx context.Context, id int64, status domain.TransactionStatus, result string, balanceBefore, balanceAfter decimal.Decimal) error
}

type RiskAssessor interface {
	Assess(ctx context.Context, userID int, amount decimal.Decimal, counterpartyID int, txType domain.TransactionType) (*domain.RiskAssessment, error)
}

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrConflict            = errors.New("optimistic lock conflict")
	ErrHeldForReview       = errors.New("transaction held for manual review")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrNotReviewable       = errors.New("transaction is not awaiting review")
)

// ApplyRequest describes one signed balance mutation against one wallet.
// Amount moves the chosen bucket, FreezeDelta moves funds in or out of the
// frozen hold without changing the wallet total.
type ApplyRequest struct {
	UserID        int
	Amount        decimal.Decimal
	Bucket        domain.BalanceBucket
	FreezeDelta   decimal.Decimal
	Type          domain.TransactionType
	Fee           decimal.Decimal
	Tax           decimal.Decimal
	CorrelationID uuid.NullUUID
	EscrowID      uuid.NullUUID
	Metadata      domain.TransactionMetadata

	// AllowNegative lets admin adjustments drive the available balance
	// below zero deliberately.
	AllowNegative bool
	// SkipRisk bypasses the fraud gate for engine-internal moves such as
	// compensation and escrow transfers.
	SkipRisk bool
}

type Service struct {
	walletRepo      WalletRepo
	txRepo          TransactionRepo
	risk            RiskAssessor
	txManager       pg.TXManager
	reviewThreshold decimal.Decimal
}

func New(walletRepo WalletRepo, txRepo TransactionRepo, risk RiskAssessor, txManager pg.TXManager, reviewThreshold decimal.Decimal) *Service {
	return &Service{
		walletRepo:      walletRepo,
		txRepo:          txRepo,
		risk:            risk,
		txManager:       txManager,
		reviewThreshold: reviewThreshold,
	}
}

// Apply executes a single version-guarded write. A version race returns
// ErrConflict without retrying; the caller owns the retry policy. A
// transaction flagged by the risk gate is appended as a pending suspicious
// entry with no wallet write and ErrHeldForReview is returned alongside it.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (*domain.Transaction, error) {
	if req.Amount.IsZero() && req.FreezeDelta.IsZero() {
		return nil, ErrInvalidAmount
	}
	if req.Fee.IsNegative() || req.Tax.IsNegative() {
		return nil, ErrInvalidAmount
	}

	wallet, err := s.walletRepo.GetWallet(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, ErrWalletNotFound
	}

	riskScore := decimal.Zero
	if !req.SkipRisk && s.risk != nil && req.Amount.Abs().GreaterThanOrEqual(s.reviewThreshold) {
		assessment, err := s.risk.Assess(ctx, req.UserID, req.Amount, req.Metadata.CounterpartyID, req.Type)
		if err != nil {
			zap.L().Error("risk assessment failed", zap.Error(err))
			return nil, err
		}
		riskScore = assessment.Score

		if assessment.RequiresManualReview {
			held := &domain.Transaction{
				UserID:        req.UserID,
				Type:          req.Type,
				Status:        domain.StatusPending,
				Amount:        req.Amount,
				Fee:           req.Fee,
				Tax:           req.Tax,
				BalanceBefore: wallet.Total(),
				BalanceAfter:  wallet.Total(),
				RiskScore:     assessment.Score,
				IsSuspicious:  true,
				CorrelationID: req.CorrelationID,
				EscrowID:      req.EscrowID,
				Metadata:      req.Metadata,
			}
			appended, err := s.txRepo.Append(ctx, held)
			if err != nil {
				return nil, err
			}
			zap.L().Warn("transaction held for manual review",
				zap.Int64("txID", appended.ID),
				zap.Int("userID", req.UserID),
				zap.String("score", assessment.Score.String()),
			)
			return appended, ErrHeldForReview
		}
	}

	return s.commit(ctx, wallet, req, riskScore)
}

func (s *Service) commit(ctx context.Context, wallet *domain.Wallet, req ApplyRequest, riskScore decimal.Decimal) (*domain.Transaction, error) {
	next := *wallet
	switch req.Bucket {
	case domain.BucketSales:
		next.SalesBalance = next.SalesBalance.Add(req.Amount)
	default:
		next.MainBalance = next.MainBalance.Add(req.Amount)
	}
	next.MainBalance = next.MainBalance.Sub(req.Fee).Sub(req.Tax)
	next.FrozenBalance = next.FrozenBalance.Add(req.FreezeDelta)

	if next.FrozenBalance.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if !req.AllowNegative && next.Available().IsNegative() {
		zap.L().Info("transaction declined: insufficient funds",
			zap.Int("userID", req.UserID),
			zap.String("available", wallet.Available().String()),
			zap.String("amount", req.Amount.String()),
		)
		return nil, ErrInsufficientFunds
	}

	now := time.Now()
	tx := &domain.Transaction{
		UserID:        req.UserID,
		Type:          req.Type,
		Status:        domain.StatusCompleted,
		Amount:        req.Amount,
		Fee:           req.Fee,
		Tax:           req.Tax,
		BalanceBefore: wallet.Total(),
		BalanceAfter:  next.Total(),
		RiskScore:     riskScore,
		CorrelationID: req.CorrelationID,
		EscrowID:      req.EscrowID,
		Metadata:      req.Metadata,
		CompletedAt:   &now,
	}

	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		if err := s.walletRepo.UpdateWithVersion(ctx, &next, wallet.Version); err != nil {
			if errors.Is(err, walletrepo.ErrVersionConflict) {
				return ErrConflict
			}
			return err
		}
		_, err := s.txRepo.Append(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Review resolves a held transaction. Approval re-validates against the
// wallet's current balance and applies the write; rejection marks the entry
// failed. Either way the review outcome is attached exactly once.
func (s *Service) Review(ctx context.Context, txID int64, approve bool, result string) (*domain.Transaction, error) {
	tx, err := s.txRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	if tx.Status != domain.StatusPending || !tx.IsSuspicious || tx.IsReviewed {
		return nil, ErrNotReviewable
	}

	if !approve {
		if err := s.txRepo.SetReviewResult(ctx, tx.ID, domain.StatusFailed, result, tx.BalanceBefore, tx.BalanceBefore); err != nil {
			return nil, err
		}
		tx.Status = domain.StatusFailed
		tx.IsReviewed = true
		tx.ReviewResult = result
		return tx, nil
	}

	wallet, err := s.walletRepo.GetWallet(ctx, tx.UserID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, ErrWalletNotFound
	}

	next := *wallet
	next.MainBalance = next.MainBalance.Add(tx.Amount).Sub(tx.Fee).Sub(tx.Tax)
	if next.Available().IsNegative() {
		return nil, ErrInsufficientFunds
	}

	before := wallet.Total()
	after := next.Total()
	err = s.txManager.Begin(ctx, func(ctx context.Context) error {
		if err := s.walletRepo.UpdateWithVersion(ctx, &next, wallet.Version); err != nil {
			if errors.Is(err, walletrepo.ErrVersionConflict) {
				return ErrConflict
			}
			return err
		}
		return s.txRepo.SetReviewResult(ctx, tx.ID, domain.StatusCompleted, result, before, after)
	})
	if err != nil {
		return nil, err
	}

	tx.Status = domain.StatusCompleted
	tx.IsReviewed = true
	tx.ReviewResult = result
	tx.BalanceBefore = before
	tx.BalanceAfter = after
	return tx, nil
}

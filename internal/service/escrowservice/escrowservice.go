package escrowservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GlebRadaev/walletled/internal/domain"
	"github.com/GlebRadaev/walletled/internal/service/atomic"
	"github.com/GlebRadaev/walletled/internal/service/executor"
)

type EscrowRepo interface {
	Create(ctx context.Context, e *domain.Escrow) (*domain.Escrow, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Escrow, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from []domain.EscrowStatus, to domain.EscrowStatus, reason domain.ReleaseReason, completed bool) (bool, error)
	ListExpired(ctx context.Context, before time.Time, limit int) ([]domain.Escrow, error)
	ListByUser(ctx context.Context, userID int) ([]domain.Escrow, error)
}

type Executor interface {
	Apply(ctx context.Context, req executor.ApplyRequest) (*domain.Transaction, error)
}

type Coordinator interface {
	Execute(ctx context.Context, req atomic.Request) (*atomic.Result, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID int, eventKind string, payload interface{})
}

var (
	ErrEscrowNotFound         = errors.New("escrow not found")
	ErrInvalidStateTransition = errors.New("invalid escrow state transition")
	ErrSameParty              = errors.New("buyer and seller cannot be the same user")
	ErrInvalidAmount          = errors.New("escrow amount must be positive")
	ErrExpiryInPast           = errors.New("escrow expiry must be in the future")
	ErrNotParticipant         = errors.New("caller is not a party to this escrow")
	ErrAdminRequired          = errors.New("release reason is reserved for administrators")
	ErrInvalidReason          = errors.New("unknown release reason")
)

// Actor identifies who drives a transition. Party checks are skipped for
// administrators.
type Actor struct {
	UserID  int
	IsAdmin bool
}

type Service struct {
	escrowRepo  EscrowRepo
	exec        Executor
	coordinator Coordinator
	notifier    Notifier

	sweepInterval time.Duration
	sweepLimit    int
	workerPool    WorkerPoolI
}

func New(escrowRepo EscrowRepo, exec Executor, coordinator Coordinator, notifier Notifier, sweepInterval time.Duration) *Service {
	return &Service{
		escrowRepo:    escrowRepo,
		exec:          exec,
		coordinator:   coordinator,
		notifier:      notifier,
		sweepInterval: sweepInterval,
		sweepLimit:    1000,
		workerPool:    NewWorkerPool(10),
	}
}

// Create records a new escrow. No funds move until Fund.
func (s *Service) Create(ctx context.Context, buyerID, sellerID int, amount decimal.Decimal, condition string, expiresAt time.Time) (*domain.Escrow, error) {
	if buyerID == sellerID {
		return nil, ErrSameParty
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !expiresAt.After(time.Now()) {
		return nil, ErrExpiryInPast
	}

	escrow := &domain.Escrow{
		ID:        uuid.New(),
		BuyerID:   buyerID,
		SellerID:  sellerID,
		Amount:    amount,
		Condition: condition,
		Status:    domain.EscrowCreated,
		ExpiresAt: expiresAt,
	}
	if _, err := s.escrowRepo.Create(ctx, escrow); err != nil {
		return nil, err
	}
	zap.L().Info("escrow created",
		zap.String("escrowID", escrow.ID.String()),
		zap.Int("buyerID", buyerID),
		zap.Int("sellerID", sellerID),
	)
	return escrow, nil
}

// Fund freezes the escrow amount in the buyer's wallet and moves the escrow
// to Funded. The buyer's main balance is untouched; only the frozen hold
// grows, so the available balance shrinks.
func (s *Service) Fund(ctx context.Context, escrowID uuid.UUID, actor Actor) (*domain.Escrow, error) {
	escrow, err := s.get(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && actor.UserID != escrow.BuyerID {
		return nil, ErrNotParticipant
	}
	if escrow.Status != domain.EscrowCreated {
		return nil, s.transitionErr(escrow, domain.EscrowFunded)
	}

	_, err = s.exec.Apply(ctx, executor.ApplyRequest{
		UserID:      escrow.BuyerID,
		FreezeDelta: escrow.Amount,
		Type:        domain.TypeTransfer,
		EscrowID:    uuid.NullUUID{UUID: escrow.ID, Valid: true},
		Metadata:    domain.TransactionMetadata{CounterpartyID: escrow.SellerID},
		SkipRisk:    true,
	})
	if err != nil {
		return nil, err
	}

	ok, err := s.escrowRepo.UpdateStatus(ctx, escrow.ID, []domain.EscrowStatus{domain.EscrowCreated}, domain.EscrowFunded, "", false)
	if err != nil || !ok {
		// another writer resolved the escrow first: give the hold back
		s.unfreeze(ctx, escrow)
		if err != nil {
			return nil, err
		}
		return nil, s.staleTransitionErr(ctx, escrow)
	}

	escrow.Status = domain.EscrowFunded
	return escrow, nil
}

// Release moves the escrowed amount from the buyer's frozen hold into the
// seller's sales balance. Terminal. Only the buyer or an admin may release.
func (s *Service) Release(ctx context.Context, escrowID uuid.UUID, reason domain.ReleaseReason, actor Actor) (*domain.Escrow, error) {
	return s.resolve(ctx, escrowID, domain.EscrowReleased, reason, actor)
}

// Refund returns the escrowed amount to the buyer. Terminal. Only the seller
// or an admin may refund.
func (s *Service) Refund(ctx context.Context, escrowID uuid.UUID, reason domain.ReleaseReason, actor Actor) (*domain.Escrow, error) {
	return s.resolve(ctx, escrowID, domain.EscrowRefunded, reason, actor)
}

// Dispute freezes automatic transitions until an admin resolves the escrow
// with a DisputeResolved release or refund. Either party may dispute.
func (s *Service) Dispute(ctx context.Context, escrowID uuid.UUID, actor Actor) (*domain.Escrow, error) {
	escrow, err := s.get(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && actor.UserID != escrow.BuyerID && actor.UserID != escrow.SellerID {
		return nil, ErrNotParticipant
	}
	if escrow.Status != domain.EscrowFunded {
		return nil, s.transitionErr(escrow, domain.EscrowDisputed)
	}
	ok, err := s.escrowRepo.UpdateStatus(ctx, escrow.ID, []domain.EscrowStatus{domain.EscrowFunded}, domain.EscrowDisputed, "", false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.staleTransitionErr(ctx, escrow)
	}
	escrow.Status = domain.EscrowDisputed
	return escrow, nil
}

func (s *Service) Get(ctx context.Context, escrowID uuid.UUID) (*domain.Escrow, error) {
	return s.get(ctx, escrowID)
}

func (s *Service) ListByUser(ctx context.Context, userID int) ([]domain.Escrow, error) {
	return s.escrowRepo.ListByUser(ctx, userID)
}

func (s *Service) resolve(ctx context.Context, escrowID uuid.UUID, to domain.EscrowStatus, reason domain.ReleaseReason, actor Actor) (*domain.Escrow, error) {
	if !reason.Valid() {
		return nil, ErrInvalidReason
	}
	// confirmations are the only reasons a party may issue itself; the rest
	// are admin or engine verdicts
	if !actor.IsAdmin && reason != domain.ReasonBuyerConfirmed && reason != domain.ReasonSellerConfirmed {
		return nil, ErrAdminRequired
	}

	escrow, err := s.get(ctx, escrowID)
	if err != nil {
		return nil, err
	}

	if !actor.IsAdmin {
		party := escrow.BuyerID
		if to == domain.EscrowRefunded {
			party = escrow.SellerID
		}
		if actor.UserID != party {
			return nil, ErrNotParticipant
		}
	}

	from := []domain.EscrowStatus{domain.EscrowFunded}
	switch escrow.Status {
	case domain.EscrowFunded:
	case domain.EscrowDisputed:
		// a disputed escrow only leaves through an explicit admin resolution
		if !actor.IsAdmin || reason != domain.ReasonDisputeResolved {
			return nil, s.transitionErr(escrow, to)
		}
		from = []domain.EscrowStatus{domain.EscrowDisputed}
	default:
		return nil, s.transitionErr(escrow, to)
	}

	// Claim the terminal state first; the guarded update is the mutual
	// exclusion between racing resolvers.
	ok, err := s.escrowRepo.UpdateStatus(ctx, escrow.ID, from, to, reason, true)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.staleTransitionErr(ctx, escrow)
	}

	if err := s.moveFunds(ctx, escrow, to); err != nil {
		// money did not move; reopen the escrow so it can be resolved again
		if reverted, revertErr := s.escrowRepo.UpdateStatus(ctx, escrow.ID, []domain.EscrowStatus{to}, escrow.Status, "", false); revertErr != nil || !reverted {
			zap.L().Error("escrow left in terminal state without fund movement, manual resolution required",
				zap.String("escrowID", escrow.ID.String()),
				zap.Error(revertErr),
			)
		}
		return nil, err
	}

	escrow.Status = to
	escrow.ReleaseReason = reason
	s.notifyResolved(ctx, escrow)

	zap.L().Info("escrow resolved",
		zap.String("escrowID", escrow.ID.String()),
		zap.String("status", string(to)),
		zap.String("reason", string(reason)),
	)
	return escrow, nil
}

func (s *Service) moveFunds(ctx context.Context, escrow *domain.Escrow, to domain.EscrowStatus) error {
	if to == domain.EscrowRefunded || to == domain.EscrowExpired {
		// drop the hold; the funds never left the buyer's main balance
		_, err := s.exec.Apply(ctx, executor.ApplyRequest{
			UserID:      escrow.BuyerID,
			FreezeDelta: escrow.Amount.Neg(),
			Type:        domain.TypeRefund,
			EscrowID:    uuid.NullUUID{UUID: escrow.ID, Valid: true},
			SkipRisk:    true,
		})
		return err
	}

	// release: unfreeze and debit the buyer, credit the seller's sales
	// balance, as one all-or-nothing unit
	result, err := s.coordinator.Execute(ctx, atomic.Request{
		CorrelationID: uuid.New(),
		Attempt:       1,
		SkipRisk:      true,
		EscrowID:      uuid.NullUUID{UUID: escrow.ID, Valid: true},
		Steps: []atomic.Step{
			{UserID: escrow.BuyerID, Amount: escrow.Amount.Neg(), FreezeDelta: escrow.Amount.Neg(), Type: domain.TypeTransfer},
			{UserID: escrow.SellerID, Amount: escrow.Amount, Bucket: domain.BucketSales, Type: domain.TypeTransfer},
		},
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("escrow fund movement failed: %s", result.Error)
	}
	return nil
}

func (s *Service) unfreeze(ctx context.Context, escrow *domain.Escrow) {
	_, err := s.exec.Apply(ctx, executor.ApplyRequest{
		UserID:      escrow.BuyerID,
		FreezeDelta: escrow.Amount.Neg(),
		Type:        domain.TypeRefund,
		EscrowID:    uuid.NullUUID{UUID: escrow.ID, Valid: true},
		SkipRisk:    true,
	})
	if err != nil {
		zap.L().Error("failed to release stale escrow hold, manual resolution required",
			zap.String("escrowID", escrow.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) get(ctx context.Context, escrowID uuid.UUID) (*domain.Escrow, error) {
	escrow, err := s.escrowRepo.GetByID(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if escrow == nil {
		return nil, ErrEscrowNotFound
	}
	return escrow, nil
}

func (s *Service) transitionErr(escrow *domain.Escrow, to domain.EscrowStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, escrow.Status, to)
}

// staleTransitionErr re-reads the escrow after a guard miss so the error
// names the state that actually holds.
func (s *Service) staleTransitionErr(ctx context.Context, escrow *domain.Escrow) error {
	current, err := s.escrowRepo.GetByID(ctx, escrow.ID)
	if err != nil || current == nil {
		return fmt.Errorf("%w: escrow %s changed concurrently", ErrInvalidStateTransition, escrow.ID)
	}
	return fmt.Errorf("%w: escrow %s is %s", ErrInvalidStateTransition, escrow.ID, current.Status)
}

func (s *Service) notifyResolved(ctx context.Context, escrow *domain.Escrow) {
	if s.notifier == nil {
		return
	}
	payload := map[string]string{
		"escrow_id": escrow.ID.String(),
		"status":    string(escrow.Status),
		"reason":    string(escrow.ReleaseReason),
		"amount":    escrow.Amount.String(),
	}
	s.notifier.Notify(ctx, escrow.BuyerID, "escrow_resolved", payload)
	s.notifier.Notify(ctx, escrow.SellerID, "escrow_resolved", payload)
}

package escrowservice

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GlebRadaev/walletled/internal/domain"
)

var sweepingEscrows sync.Map

// StartSweeper runs the expiry sweep in the background until ctx is done.
// An escrow past its expiry with no resolution defaults to refunding the
// buyer.
func (s *Service) StartSweeper(ctx context.Context) {
	zap.L().Info("escrow expiry sweeper started")
	go s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("context canceled, stopping escrow sweeper")
			return
		case <-ticker.C:
			s.sweepExpired(ctx)
		}
	}
}

func (s *Service) sweepExpired(ctx context.Context) {
	expired, err := s.escrowRepo.ListExpired(ctx, time.Now(), s.sweepLimit)
	if err != nil {
		zap.L().Error("failed to list expired escrows", zap.Error(err))
		return
	}

	var g errgroup.Group
	for _, escrow := range expired {
		escrow := escrow

		if _, loaded := sweepingEscrows.LoadOrStore(escrow.ID, struct{}{}); loaded {
			continue
		}

		g.Go(func() error {
			err := s.workerPool.AddTask(ctx, func() error {
				defer sweepingEscrows.Delete(escrow.ID)
				return s.expire(ctx, &escrow)
			})
			if err != nil {
				sweepingEscrows.Delete(escrow.ID)
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		zap.L().Error("error sweeping expired escrows", zap.Error(err))
	}
}

// expire moves an overdue escrow to Expired. A funded escrow gives the hold
// back to the buyer; an unfunded one has nothing to move.
func (s *Service) expire(ctx context.Context, escrow *domain.Escrow) error {
	switch escrow.Status {
	case domain.EscrowCreated:
		ok, err := s.escrowRepo.UpdateStatus(ctx, escrow.ID,
			[]domain.EscrowStatus{domain.EscrowCreated}, domain.EscrowExpired, domain.ReasonExpired, true)
		if err != nil {
			return err
		}
		if ok {
			zap.L().Info("unfunded escrow expired", zap.String("escrowID", escrow.ID.String()))
		}
		return nil

	case domain.EscrowFunded:
		ok, err := s.escrowRepo.UpdateStatus(ctx, escrow.ID,
			[]domain.EscrowStatus{domain.EscrowFunded}, domain.EscrowExpired, domain.ReasonExpired, true)
		if err != nil {
			return err
		}
		if !ok {
			// resolved concurrently, nothing to do
			return nil
		}
		if err := s.moveFunds(ctx, escrow, domain.EscrowExpired); err != nil {
			if reverted, revertErr := s.escrowRepo.UpdateStatus(ctx, escrow.ID,
				[]domain.EscrowStatus{domain.EscrowExpired}, domain.EscrowFunded, "", false); revertErr != nil || !reverted {
				zap.L().Error("expired escrow left without refund, manual resolution required",
					zap.String("escrowID", escrow.ID.String()),
					zap.Error(revertErr),
				)
			}
			return err
		}
		escrow.Status = domain.EscrowExpired
		escrow.ReleaseReason = domain.ReasonExpired
		s.notifyResolved(ctx, escrow)
		zap.L().Info("funded escrow expired, buyer refunded", zap.String("escrowID", escrow.ID.String()))
		return nil
	}

	// disputed escrows never expire automatically
	return nil
}

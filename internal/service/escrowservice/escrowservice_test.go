package escrowservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	gomock "go.uber.org/mock/gomock"

	"github.com/GlebRadaev/walletled/internal/domain"
	"github.com/GlebRadaev/walletled/internal/service/atomic"
	"github.com/GlebRadaev/walletled/internal/service/executor"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func NewMock(t *testing.T) (*Service, *MockEscrowRepo, *MockExecutor, *MockCoordinator, *MockNotifier) {
	ctrl := gomock.NewController(t)
	escrowRepo := NewMockEscrowRepo(ctrl)
	exec := NewMockExecutor(ctrl)
	coordinator := NewMockCoordinator(ctrl)
	notifier := NewMockNotifier(ctrl)
	service := New(escrowRepo, exec, coordinator, notifier, time.Minute)
	defer ctrl.Finish()
	return service, escrowRepo, exec, coordinator, notifier
}

func fundedEscrow(amount string) *domain.Escrow {
	return &domain.Escrow{
		ID:        uuid.New(),
		BuyerID:   1,
		SellerID:  2,
		Amount:    d(amount),
		Status:    domain.EscrowFunded,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name        string
		buyerID     int
		sellerID    int
		amount      string
		expiresAt   time.Time
		prepareMock func(escrowRepo *MockEscrowRepo)
		expectedErr error
	}{
		{
			name:      "Successful creation",
			buyerID:   1,
			sellerID:  2,
			amount:    "200",
			expiresAt: time.Now().Add(time.Hour),
			prepareMock: func(escrowRepo *MockEscrowRepo) {
				escrowRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ context.Context, e *domain.Escrow) (*domain.Escrow, error) {
						assert.Equal(t, domain.EscrowCreated, e.Status)
						assert.NotEqual(t, uuid.Nil, e.ID)
						return e, nil
					})
			},
		},
		{
			name:        "Buyer and seller must differ",
			buyerID:     1,
			sellerID:    1,
			amount:      "200",
			expiresAt:   time.Now().Add(time.Hour),
			expectedErr: ErrSameParty,
		},
		{
			name:        "Amount must be positive",
			buyerID:     1,
			sellerID:    2,
			amount:      "0",
			expiresAt:   time.Now().Add(time.Hour),
			expectedErr: ErrInvalidAmount,
		},
		{
			name:        "Expiry must be in the future",
			buyerID:     1,
			sellerID:    2,
			amount:      "200",
			expiresAt:   time.Now().Add(-time.Hour),
			expectedErr: ErrExpiryInPast,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, escrowRepo, _, _, _ := NewMock(t)
			if tt.prepareMock != nil {
				tt.prepareMock(escrowRepo)
			}

			escrow, err := service.Create(context.Background(), tt.buyerID, tt.sellerID, d(tt.amount), "goods delivered", tt.expiresAt)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.Nil(t, escrow)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, domain.EscrowCreated, escrow.Status)
			}
		})
	}
}

func TestFund(t *testing.T) {
	t.Run("Funding freezes the amount in the buyer wallet", func(t *testing.T) {
		service, escrowRepo, exec, _, _ := NewMock(t)

		escrow := fundedEscrow("200")
		escrow.Status = domain.EscrowCreated

		escrowRepo.EXPECT().GetByID(gomock.Any(), escrow.ID).Return(escrow, nil)
		exec.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req executor.ApplyRequest) (*domain.Transaction, error) {
				assert.Equal(t, 1, req.UserID)
				assert.True(t, req.Amount.IsZero())
				assert.True(t, req.FreezeDelta.Equal(d("200")))
				assert.True(t, req.SkipRisk)
				assert.Equal(t, escrow.ID, req.EscrowID.UUID)
				return &domain.Transaction{ID: 1}, nil
			})
		escrowRepo.EXPECT().UpdateStatus(gomock.Any(), escrow.ID,
			[]domain.EscrowStatus{domain.EscrowCreated}, domain.EscrowFunded, domain.ReleaseReason(""), false).Return(true, nil)

		result, err := service.Fund(context.Background(), escrow.ID, Actor{UserID: 1})

		assert.NoError(t, err)
		assert.Equal(t, domain.EscrowFunded, result.Status)
	})

	t.Run("Only the buyer can fund", func(t *testing.T) {
		service, escrowRepo, _, _, _ := NewMock(t)

		escrow := fundedEscrow("200")
		escrow.Status = domain.EscrowCreated
		escrowRepo.EXPECT().GetByID(gomock.Any(), escrow.ID).Return(escrow, nil)

		_, err := service.Fund(context.Background(), escrow.ID, Actor{UserID: 3})

		assert.ErrorIs(t, err, ErrNotParticipant)
	})

	t.Run("Funding a funded escrow is rejected", func(t *testing.T) {
		service, escrowRepo, _, _, _ := NewMock(t)

		escrow := fundedEscrow("200")
		escrowRepo.EXPECT().GetByID(gomock.Any(), escrow.ID).Return(escrow, nil)

		_, err := service.Fund(context.Background(), escrow.ID, Actor{UserID: 1})

		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("Insufficient available balance surfaces unchanged", func(t *testing.T) {
		service, escrowRepo, exec, _, _ := NewMock(t)

		escrow := fundedEscrow("200")
		escrow.Status = domain.EscrowCreated
		escrowRepo.EXPECT().GetByID(gomock.Any(), escrow.ID).Return(escrow, nil)
		exec.EXPECT().Apply(gomock.Any(), gomock.Any()).Return(nil, executor.ErrInsufficientFunds)

		_, err := service.Fund(context.Background(), escrow.ID, Actor{UserID: 1})

		assert.ErrorIs(t, err, executor.ErrInsufficientFunds)
	})
}

func TestRelease(t *testing.T) {
	t.Run("Release moves frozen funds to the seller sales balance", func(t *testing.T) {
		service, escrowRepo, _, coordinator, notifier := NewMock(t)

		escrow := fundedEscrow("200")
		escrowRepo.EXPECT().GetByID(gomock.Any(), escrow.ID).Return(escrow, nil)
		escrowRepo.EXPECT().UpdateStatus(gomock.Any(), escrow.ID,
			[]domain.EscrowStatus{domain.EscrowFunded}, domain.EscrowReleased, domain.ReasonBuyerConfirmed, true).Return(true, nil)
		coordinator.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req atomic.Request) (*atomic.Result, error) {
				assert.Len(t, req.Steps, 2)
				assert.Equal(t, 1, req.Steps[0].UserID)
				assert.True(t, req.Steps[0].Amount.Equal(d("-200")))
				assert.True(t, req.Steps[0].FreezeDelta.Equal(d("-200")))
				assert.Equal(t, 2, req.Steps[1].UserID)
				assert.True(t, req.Steps[1].Amount.Equal(d("200")))
				assert.Equal(t, domain.BucketSales, req.Steps[1].Bucket)
				assert.True(t, req.SkipRisk)
				return &atomic.Result{Success: true}, nil
			})
		notifier.EXPECT().Notify(gomock.Any(), 1, "escrow_resolved", gomock.Any())
		notifier.EXPECT().Notify(gomock.Any(), 2, "escrow_resolved", gomock.Any())

		result, err := service.Release(context.Background(), escrow.ID, domain.ReasonBuyerConfirmed, Actor{UserID: 1})

		assert.NoError(t, err)
		assert.Equal(t, domain.EscrowReleased, result.Status)
		assert.Equal(t, domain.ReasonBuyerConfirmed, result.ReleaseReason)
	})

	t.Run("Releasing a released escrow reports the held state", func(t *testing.T) {
		service, escrowRepo, _, _, _ := NewMock(t)

		escrow := fundedEscrow("200")
		escrow.Status = domain.EscrowReleased
		escrowRepo.EXPECT().GetByID(gomock.Any(), escrow.ID).Return(escrow, nil)

		_, err := service.Release(context.Background(), escrow.ID, domain.ReasonBuyerConfirmed, Actor{UserID: 1})

		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("Disputed escrow only leaves through dispute resolution", func(t *testing.T) {
		service, escrowRepo, _, _, _ := NewMock(t)

		escrow := fundedEscrow("200")
		escrow.Status = domain.EscrowDisputed
		escrowRepo.EXPECT().GetByID(gomock.Any(), escrow.ID).Return(escrow, nil)

		_, err := service.Release(context.Background(), escrow.ID, domain.ReasonBuyerConfirmed, Actor{UserID: 1})

		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("Seller cannot resolve a dispute in their own favor", func(t *testing.T) {
		service, _, _, _, _ := NewMock(t)

		escrow := fundedEscrow("200")
		escrow.Status = domain.EscrowDisputed

		// the reserved reason is rejected before the store is even consulted
		_, err := service.Release(context.Background(), escrow.ID, domain.ReasonDisputeResolved, Actor{UserID: 2})

		assert.ErrorIs(t, err, ErrAdminRequired)
	})

	t.Run("Only the buyer can release", func(t *testing.T) {
		service, escrowRepo, _, _, _ := NewMock(t)

		escrow := fundedEscrow("200")
		escrowRepo.EXPECT().GetByID(gomock.Any(), escrow.ID).Return(escrow, nil)

		_, err := service.Release(context.Background(), escrow.ID, domain.ReasonBuyerConfirmed, Actor{UserID: 2})

		assert.ErrorIs(t, err, ErrNotParticipant)
	})

	t.Run("Unknown release reason is rejected", func(t *testing.T) {
		service, _, _, _, _ := NewMock(t)

		_, err := service.Release(context.Background(), uuid.New(), domain.ReleaseReason("BECAUSE"), Actor{UserID: 1})

		assert.ErrorIs(t, err, ErrInvalidReason)
	})

	t.Run("Admin resolves a dispute with a release", func(t *testing.T) {
		service, escrowRepo, _, coordinator, notifier := NewMock(t)

		escrow := fundedEscrow("200")
		escrow.Status = domain.EscrowDisputed
		escrowRepo.EXPECT().GetByID(gomock.Any(), escrow.ID).Return(escrow, nil)
		escrowRepo.EXPECT().UpdateStatus(gomock.Any(), escrow.ID,
			[]domain.EscrowStatus{domain.EscrowDisputed}, domain.EscrowReleased, domain.ReasonDisputeResolved, true).Return(true, nil)
		coordinator.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(&atomic.Result{Success: true}, nil)
		notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(2)

		result, err := service.Release(context.Background(), escrow.ID, domain.ReasonDisputeResolved, Actor{UserID: 99, IsAdmin: true})

		assert.NoError(t, err)
		assert.Equal(t, domain.EscrowReleased, result.Status)
	})

	t.Run("Failed fund movement reopens the escrow", func(t *testing.T) {
		service, escrowRepo, _, coordinator, _ := NewMock(t)

		escrow := fundedEscrow("200")
		escrowRepo.EXPECT().GetByID(gomock.Any(), escrow.ID).Return(escrow, nil)
		escrowRepo.EXPECT().UpdateStatus(gomock.Any(), escrow.ID,
			[]domain.EscrowStatus{domain.EscrowFunded}, domain.EscrowReleased, domain.ReasonBuyerConfirmed, true).Return(true, nil)
		coordinator.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(&atomic.Result{
			Success:      false,
			ConflictType: atomic.ConflictOptimisticLock,
			Error:        "optimistic lock conflict",
		}, nil)
		escrowRepo.EXPECT().UpdateStatus(gomock.Any(), escrow.ID,
			[]domain.EscrowStatus{domain.EscrowReleased}, domain.EscrowFunded, domain.ReleaseReason(""), false).Return(true, nil)

		_, err := service.Release(context.Background(), escrow.ID, domain.ReasonBuyerConfirmed, Actor{UserID: 1})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "optimistic lock conflict")
	})
}

func TestRefund(t *testing.T) {
	t.Run("Refund drops the hold and keeps the buyer main balance", func(t *testing.T) {
		service, escrowRepo, exec, _, notifier := NewMock(t)

		escrow := fundedEscrow("200")
		escrowRepo.EXPECT().GetByID(gomock.Any(), escrow.ID).Return(escrow, nil)
		escrowRepo.EXPECT().UpdateStatus(gomock.Any(), escrow.ID,
			[]domain.EscrowStatus{domain.EscrowFunded}, domain.EscrowRefunded, domain.ReasonSellerConfirmed, true).Return(true, nil)
		exec.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req executor.ApplyRequest) (*domain.Transaction, error) {
				assert.Equal(t, 1, req.UserID)
				assert.True(t, req.Amount.IsZero())
				assert.True(t, req.FreezeDelta.Equal(d("-200")))
				assert.Equal(t, domain.TypeRefund, req.Type)
				return &domain.Transaction{ID: 2}, nil
			})
		notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(2)

		result, err := service.Refund(context.Background(), escrow.ID, domain.ReasonSellerConfirmed, Actor{UserID: 2})

		assert.NoError(t, err)
		assert.Equal(t, domain.EscrowRefunded, result.Status)
	})

	t.Run("Refunding an unknown escrow", func(t *testing.T) {
		service, escrowRepo, _, _, _ := NewMock(t)

		id := uuid.New()
		escrowRepo.EXPECT().GetByID(gomock.Any(), id).Return(nil, nil)

		_, err := service.Refund(context.Background(), id, domain.ReasonSellerConfirmed, Actor{UserID: 2})

		assert.ErrorIs(t, err, ErrEscrowNotFound)
	})
}

func TestDispute(t *testing.T) {
	t.Run("Either party can open a dispute", func(t *testing.T) {
		service, escrowRepo, _, _, _ := NewMock(t)

		escrow := fundedEscrow("200")
		escrowRepo.EXPECT().GetByID(gomock.Any(), escrow.ID).Return(escrow, nil)
		escrowRepo.EXPECT().UpdateStatus(gomock.Any(), escrow.ID,
			[]domain.EscrowStatus{domain.EscrowFunded}, domain.EscrowDisputed, domain.ReleaseReason(""), false).Return(true, nil)

		result, err := service.Dispute(context.Background(), escrow.ID, Actor{UserID: 2})

		assert.NoError(t, err)
		assert.Equal(t, domain.EscrowDisputed, result.Status)
	})

	t.Run("A stranger cannot open a dispute", func(t *testing.T) {
		service, escrowRepo, _, _, _ := NewMock(t)

		escrow := fundedEscrow("200")
		escrowRepo.EXPECT().GetByID(gomock.Any(), escrow.ID).Return(escrow, nil)

		_, err := service.Dispute(context.Background(), escrow.ID, Actor{UserID: 7})

		assert.ErrorIs(t, err, ErrNotParticipant)
	})
}

func TestExpire(t *testing.T) {
	t.Run("Unfunded escrow expires without fund movement", func(t *testing.T) {
		service, escrowRepo, _, _, _ := NewMock(t)

		escrow := fundedEscrow("200")
		escrow.Status = domain.EscrowCreated
		escrowRepo.EXPECT().UpdateStatus(gomock.Any(), escrow.ID,
			[]domain.EscrowStatus{domain.EscrowCreated}, domain.EscrowExpired, domain.ReasonExpired, true).Return(true, nil)

		err := service.expire(context.Background(), escrow)

		assert.NoError(t, err)
	})

	t.Run("Funded escrow expiry refunds the buyer", func(t *testing.T) {
		service, escrowRepo, exec, _, notifier := NewMock(t)

		escrow := fundedEscrow("200")
		escrowRepo.EXPECT().UpdateStatus(gomock.Any(), escrow.ID,
			[]domain.EscrowStatus{domain.EscrowFunded}, domain.EscrowExpired, domain.ReasonExpired, true).Return(true, nil)
		exec.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req executor.ApplyRequest) (*domain.Transaction, error) {
				assert.True(t, req.FreezeDelta.Equal(d("-200")))
				return &domain.Transaction{ID: 3}, nil
			})
		notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(2)

		err := service.expire(context.Background(), escrow)

		assert.NoError(t, err)
	})

	t.Run("Escrow resolved concurrently is left alone", func(t *testing.T) {
		service, escrowRepo, _, _, _ := NewMock(t)

		escrow := fundedEscrow("200")
		escrowRepo.EXPECT().UpdateStatus(gomock.Any(), escrow.ID,
			[]domain.EscrowStatus{domain.EscrowFunded}, domain.EscrowExpired, domain.ReasonExpired, true).Return(false, nil)

		err := service.expire(context.Background(), escrow)

		assert.NoError(t, err)
	})

	t.Run("Disputed escrow never expires automatically", func(t *testing.T) {
		service, _, _, _, _ := NewMock(t)

		escrow := fundedEscrow("200")
		escrow.Status = domain.EscrowDisputed

		err := service.expire(context.Background(), escrow)

		assert.NoError(t, err)
	})

	t.Run("Store error propagates", func(t *testing.T) {
		service, escrowRepo, _, _, _ := NewMock(t)

		escrow := fundedEscrow("200")
		escrowRepo.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(false, errors.New("database error"))

		err := service.expire(context.Background(), escrow)

		assert.Error(t, err)
	})
}

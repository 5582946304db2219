package atomic

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	gomock "go.uber.org/mock/gomock"

	"github.com/GlebRadaev/walletled/internal/domain"
	"github.com/GlebRadaev/walletled/internal/service/executor"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func NewMock(t *testing.T) (*Coordinator, *MockExecutor, *MockRequestRepo) {
	ctrl := gomock.NewController(t)
	exec := NewMockExecutor(ctrl)
	requestRepo := NewMockRequestRepo(ctrl)
	coordinator := New(exec, requestRepo)
	defer ctrl.Finish()
	return coordinator, exec, requestRepo
}

func transferRequest(from, to int, amount string) Request {
	return Request{
		CorrelationID: uuid.New(),
		Attempt:       1,
		Steps: []Step{
			{UserID: from, Amount: d(amount).Neg(), Type: domain.TypeTransfer},
			{UserID: to, Amount: d(amount), Type: domain.TypeTransfer},
		},
	}
}

func TestExecuteSuccess(t *testing.T) {
	coordinator, exec, requestRepo := NewMock(t)

	req := transferRequest(1, 2, "300")
	requestRepo.EXPECT().GetResult(gomock.Any(), req.CorrelationID).Return(nil, nil)

	var txID int64
	exec.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, r executor.ApplyRequest) (*domain.Transaction, error) {
			txID++
			assert.Equal(t, req.CorrelationID, r.CorrelationID.UUID)
			return &domain.Transaction{ID: txID, UserID: r.UserID, Status: domain.StatusCompleted}, nil
		}).Times(2)
	requestRepo.EXPECT().SaveResult(gomock.Any(), req.CorrelationID, gomock.Any()).Return(nil)

	result, err := coordinator.Execute(context.Background(), req)

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Steps, 2)
	assert.True(t, result.Steps[0].Applied)
	assert.True(t, result.Steps[1].Applied)
}

func TestExecuteConflictCompensates(t *testing.T) {
	coordinator, exec, requestRepo := NewMock(t)

	req := transferRequest(1, 2, "300")
	req.Attempt = 2
	requestRepo.EXPECT().GetResult(gomock.Any(), req.CorrelationID).Return(nil, nil)

	// step 1 applies, step 2 loses the version race, step 1 is reversed
	gomock.InOrder(
		exec.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, r executor.ApplyRequest) (*domain.Transaction, error) {
				assert.Equal(t, 1, r.UserID)
				assert.True(t, r.Amount.Equal(d("-300")))
				return &domain.Transaction{ID: 11, UserID: 1}, nil
			}),
		exec.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, r executor.ApplyRequest) (*domain.Transaction, error) {
				assert.Equal(t, 2, r.UserID)
				return nil, executor.ErrConflict
			}),
		exec.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, r executor.ApplyRequest) (*domain.Transaction, error) {
				assert.Equal(t, 1, r.UserID)
				assert.True(t, r.Amount.Equal(d("300")))
				assert.Equal(t, domain.TypeRefund, r.Type)
				assert.True(t, r.SkipRisk)
				assert.True(t, r.AllowNegative)
				assert.Equal(t, int64(11), r.Metadata.CompensatesID)
				return &domain.Transaction{ID: 12, UserID: 1}, nil
			}),
	)

	result, err := coordinator.Execute(context.Background(), req)

	assert.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, ConflictOptimisticLock, result.ConflictType)
	assert.Equal(t, 400*time.Millisecond, result.RetryAfter)
}

func TestExecuteRetryAfterCap(t *testing.T) {
	coordinator, exec, requestRepo := NewMock(t)

	req := transferRequest(1, 2, "10")
	req.Attempt = 99
	requestRepo.EXPECT().GetResult(gomock.Any(), req.CorrelationID).Return(nil, nil)
	exec.EXPECT().Apply(gomock.Any(), gomock.Any()).Return(nil, executor.ErrConflict)

	result, err := coordinator.Execute(context.Background(), req)

	assert.NoError(t, err)
	assert.Equal(t, 5*200*time.Millisecond, result.RetryAfter)
}

func TestExecuteAtomicityProperty(t *testing.T) {
	// Inject a failure at every step position and assert the net effect on
	// every wallet is zero.
	for failAt := 0; failAt < 3; failAt++ {
		t.Run(fmt.Sprintf("fail at step %d", failAt), func(t *testing.T) {
			coordinator, exec, requestRepo := NewMock(t)

			req := Request{
				CorrelationID: uuid.New(),
				Attempt:       1,
				Steps: []Step{
					{UserID: 1, Amount: d("-100"), Type: domain.TypeTransfer},
					{UserID: 2, Amount: d("60"), Type: domain.TypeTransfer},
					{UserID: 3, Amount: d("40"), Type: domain.TypeTransfer},
				},
			}
			requestRepo.EXPECT().GetResult(gomock.Any(), req.CorrelationID).Return(nil, nil)

			balances := map[int]decimal.Decimal{
				1: d("1000"), 2: d("500"), 3: d("250"),
			}
			applied := 0
			var nextID int64
			exec.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, r executor.ApplyRequest) (*domain.Transaction, error) {
					if r.Type != domain.TypeRefund && applied == failAt {
						return nil, executor.ErrInsufficientFunds
					}
					if r.Type != domain.TypeRefund {
						applied++
					}
					balances[r.UserID] = balances[r.UserID].Add(r.Amount)
					nextID++
					return &domain.Transaction{ID: nextID, UserID: r.UserID}, nil
				}).AnyTimes()

			result, err := coordinator.Execute(context.Background(), req)

			assert.NoError(t, err)
			assert.False(t, result.Success)
			assert.True(t, balances[1].Equal(d("1000")))
			assert.True(t, balances[2].Equal(d("500")))
			assert.True(t, balances[3].Equal(d("250")))
		})
	}
}

func TestExecuteIdempotentReplay(t *testing.T) {
	coordinator, _, requestRepo := NewMock(t)

	req := transferRequest(1, 2, "300")
	stored := Result{
		CorrelationID: req.CorrelationID,
		Success:       true,
		Steps: []StepResult{
			{UserID: 1, TransactionID: 11, Applied: true},
			{UserID: 2, TransactionID: 12, Applied: true},
		},
	}
	payload, _ := json.Marshal(stored)
	requestRepo.EXPECT().GetResult(gomock.Any(), req.CorrelationID).Return(payload, nil)

	// no executor expectations: a replay must not re-apply anything
	result, err := coordinator.Execute(context.Background(), req)

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Replayed)
	assert.Equal(t, int64(11), result.Steps[0].TransactionID)
}

func TestExecuteValidation(t *testing.T) {
	tests := []struct {
		name        string
		req         Request
		expectedErr error
	}{
		{
			name:        "No steps",
			req:         Request{CorrelationID: uuid.New()},
			expectedErr: ErrEmptyRequest,
		},
		{
			name: "Missing correlation id",
			req: Request{
				Steps: []Step{{UserID: 1, Amount: d("-10"), Type: domain.TypeTransfer}},
			},
			expectedErr: ErrNoCorrelationID,
		},
		{
			name: "Unbalanced closed-loop transfer",
			req: Request{
				CorrelationID: uuid.New(),
				Steps: []Step{
					{UserID: 1, Amount: d("-300"), Type: domain.TypeTransfer},
					{UserID: 2, Amount: d("200"), Type: domain.TypeTransfer},
				},
			},
			expectedErr: ErrUnbalanced,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coordinator, _, _ := NewMock(t)

			result, err := coordinator.Execute(context.Background(), tt.req)

			assert.ErrorIs(t, err, tt.expectedErr)
			assert.Nil(t, result)
		})
	}
}

func TestExecuteExternalInflowExemptFromNetZero(t *testing.T) {
	coordinator, exec, requestRepo := NewMock(t)

	req := Request{
		CorrelationID: uuid.New(),
		Attempt:       1,
		Steps: []Step{
			{UserID: 1, Amount: d("500"), Type: domain.TypeReward},
		},
	}
	requestRepo.EXPECT().GetResult(gomock.Any(), req.CorrelationID).Return(nil, nil)
	exec.EXPECT().Apply(gomock.Any(), gomock.Any()).Return(&domain.Transaction{ID: 1, UserID: 1}, nil)
	requestRepo.EXPECT().SaveResult(gomock.Any(), req.CorrelationID, gomock.Any()).Return(nil)

	result, err := coordinator.Execute(context.Background(), req)

	assert.NoError(t, err)
	assert.True(t, result.Success)
}

func TestExecuteCancelledBeforeFirstStep(t *testing.T) {
	coordinator, _, requestRepo := NewMock(t)

	req := transferRequest(1, 2, "300")
	requestRepo.EXPECT().GetResult(gomock.Any(), req.CorrelationID).Return(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := coordinator.Execute(ctx, req)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestExecuteHeldStepIsVoided(t *testing.T) {
	coordinator, exec, requestRepo := NewMock(t)

	req := transferRequest(1, 2, "5000")
	requestRepo.EXPECT().GetResult(gomock.Any(), req.CorrelationID).Return(nil, nil)

	held := &domain.Transaction{ID: 41, UserID: 1, Status: domain.StatusPending, IsSuspicious: true}
	gomock.InOrder(
		exec.EXPECT().Apply(gomock.Any(), gomock.Any()).Return(held, executor.ErrHeldForReview),
		// the pending debit must be rejected so a later review cannot apply
		// one leg of the unit on its own
		exec.EXPECT().Review(gomock.Any(), int64(41), false, gomock.Any()).
			Return(&domain.Transaction{ID: 41, Status: domain.StatusFailed, IsReviewed: true}, nil),
	)

	result, err := coordinator.Execute(context.Background(), req)

	assert.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "held for manual review")
}

func TestExecuteHeldSecondStepCompensatesAndVoids(t *testing.T) {
	coordinator, exec, requestRepo := NewMock(t)

	req := transferRequest(1, 2, "5000")
	requestRepo.EXPECT().GetResult(gomock.Any(), req.CorrelationID).Return(nil, nil)

	held := &domain.Transaction{ID: 42, UserID: 2, Status: domain.StatusPending, IsSuspicious: true}
	gomock.InOrder(
		exec.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, r executor.ApplyRequest) (*domain.Transaction, error) {
				assert.Equal(t, 1, r.UserID)
				return &domain.Transaction{ID: 11, UserID: 1}, nil
			}),
		exec.EXPECT().Apply(gomock.Any(), gomock.Any()).Return(held, executor.ErrHeldForReview),
		exec.EXPECT().Review(gomock.Any(), int64(42), false, gomock.Any()).
			Return(&domain.Transaction{ID: 42, Status: domain.StatusFailed, IsReviewed: true}, nil),
		exec.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, r executor.ApplyRequest) (*domain.Transaction, error) {
				assert.Equal(t, 1, r.UserID)
				assert.True(t, r.Amount.Equal(d("5000")))
				assert.Equal(t, domain.TypeRefund, r.Type)
				return &domain.Transaction{ID: 12, UserID: 1}, nil
			}),
	)

	result, err := coordinator.Execute(context.Background(), req)

	assert.NoError(t, err)
	assert.False(t, result.Success)
}

func TestExecuteFailedRequestNotPersisted(t *testing.T) {
	coordinator, exec, requestRepo := NewMock(t)

	req := transferRequest(1, 2, "300")
	requestRepo.EXPECT().GetResult(gomock.Any(), req.CorrelationID).Return(nil, nil)
	exec.EXPECT().Apply(gomock.Any(), gomock.Any()).Return(nil, executor.ErrInsufficientFunds)

	// no SaveResult expectation: a failed unit may be retried with the same id
	result, err := coordinator.Execute(context.Background(), req)

	assert.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "insufficient funds")
}

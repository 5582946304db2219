package atomic

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GlebRadaev/walletled/internal/domain"
	"github.com/GlebRadaev/walletled/internal/service/executor"
)

type Executor interface {
	Apply(ctx context.Context, req executor.ApplyRequest) (*domain.Transaction, error)
	Review(ctx context.Context, txID int64, approve bool, result string) (*domain.Transaction, error)
}

type RequestRepo interface {
	SaveResult(ctx context.Context, correlationID uuid.UUID, result []byte) error
	GetResult(ctx context.Context, correlationID uuid.UUID) ([]byte, error)
}

var (
	ErrEmptyRequest    = errors.New("atomic request has no steps")
	ErrNoCorrelationID = errors.New("atomic request needs a correlation id")
	ErrUnbalanced      = errors.New("closed-loop transfer steps must net to zero")
)

const (
	ConflictOptimisticLock = "OptimisticLockViolation"

	backoffBase         = 200 * time.Millisecond
	maxAttempts         = 5
	compensationRetries = 3
)

// Step is one signed per-wallet mutation inside an all-or-nothing unit.
type Step struct {
	UserID      int                    `json:"user_id"`
	Amount      decimal.Decimal        `json:"amount"`
	Bucket      domain.BalanceBucket   `json:"bucket,omitempty"`
	FreezeDelta decimal.Decimal        `json:"freeze_delta"`
	Type        domain.TransactionType `json:"type"`
	Fee         decimal.Decimal        `json:"fee"`
	Tax         decimal.Decimal        `json:"tax"`
}

// Request describes one all-or-nothing unit of work. Re-submitting the same
// correlation id after a full commit replays the original result.
type Request struct {
	CorrelationID uuid.UUID
	Steps         []Step
	Attempt       int
	SkipRisk      bool
	EscrowID      uuid.NullUUID
	Metadata      domain.TransactionMetadata
}

type StepResult struct {
	UserID        int    `json:"user_id"`
	TransactionID int64  `json:"transaction_id,omitempty"`
	Applied       bool   `json:"applied"`
	Error         string `json:"error,omitempty"`
}

type Result struct {
	CorrelationID uuid.UUID     `json:"correlation_id"`
	Success       bool          `json:"success"`
	Steps         []StepResult  `json:"steps"`
	ConflictType  string        `json:"conflict_type,omitempty"`
	RetryAfter    time.Duration `json:"retry_after,omitempty"`
	Error         string        `json:"error,omitempty"`
	Replayed      bool          `json:"-"`
}

type Coordinator struct {
	exec        Executor
	requestRepo RequestRepo
}

func New(exec Executor, requestRepo RequestRepo) *Coordinator {
	return &Coordinator{
		exec:        exec,
		requestRepo: requestRepo,
	}
}

// Execute applies the steps in request order through the executor. The first
// failing step stops the unit and every already-applied step is compensated
// with its exact inverse, so the net effect on every touched wallet is zero.
// There is no cross-wallet lock; a version race surfaces as a conflict result
// with a retry hint.
func (c *Coordinator) Execute(ctx context.Context, req Request) (*Result, error) {
	if len(req.Steps) == 0 {
		return nil, ErrEmptyRequest
	}
	if req.CorrelationID == uuid.Nil {
		return nil, ErrNoCorrelationID
	}
	if err := validateClosedLoop(req.Steps); err != nil {
		return nil, err
	}

	stored, err := c.requestRepo.GetResult(ctx, req.CorrelationID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		var replayed Result
		if err := json.Unmarshal(stored, &replayed); err != nil {
			return nil, err
		}
		replayed.Replayed = true
		zap.L().Info("atomic request replayed from idempotency store",
			zap.String("correlationID", req.CorrelationID.String()))
		return &replayed, nil
	}

	// Cancellation is honored only before the first step; once a step has
	// been applied the unit runs to completion or compensation.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		CorrelationID: req.CorrelationID,
		Steps:         make([]StepResult, 0, len(req.Steps)),
	}

	applied := make([]appliedStep, 0, len(req.Steps))
	for i, step := range req.Steps {
		tx, err := c.exec.Apply(ctx, c.applyRequest(req, step, i))
		if err != nil {
			if errors.Is(err, executor.ErrHeldForReview) && tx != nil {
				c.voidHeld(ctx, req, tx.ID)
			}
			result.Steps = append(result.Steps, StepResult{UserID: step.UserID, Error: err.Error()})
			c.compensate(ctx, req, applied)
			c.fillFailure(result, err, req.Attempt)
			return result, nil
		}
		applied = append(applied, appliedStep{step: step, txID: tx.ID})
		result.Steps = append(result.Steps, StepResult{UserID: step.UserID, TransactionID: tx.ID, Applied: true})
	}

	result.Success = true
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	if err := c.requestRepo.SaveResult(ctx, req.CorrelationID, payload); err != nil {
		// The unit is committed; losing the idempotency record only weakens
		// replay detection, so the result still stands.
		zap.L().Error("failed to persist atomic request result", zap.Error(err),
			zap.String("correlationID", req.CorrelationID.String()))
	}
	return result, nil
}

type appliedStep struct {
	step Step
	txID int64
}

// voidHeld rejects the pending row a risk-held step left behind. The unit is
// abandoned, so the row must not stay approvable: approving it later would
// apply one leg of the unit without the others.
func (c *Coordinator) voidHeld(ctx context.Context, req Request, txID int64) {
	if _, err := c.exec.Review(ctx, txID, false, "atomic unit abandoned before commit"); err != nil {
		zap.L().Error("failed to void risk-held step, ledger requires manual resolution",
			zap.Int64("txID", txID),
			zap.String("correlationID", req.CorrelationID.String()),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) applyRequest(req Request, step Step, idx int) executor.ApplyRequest {
	meta := req.Metadata
	if meta.CounterpartyID == 0 {
		meta.CounterpartyID = counterpartyFor(req.Steps, idx)
	}
	return executor.ApplyRequest{
		UserID:        step.UserID,
		Amount:        step.Amount,
		Bucket:        step.Bucket,
		FreezeDelta:   step.FreezeDelta,
		Type:          step.Type,
		Fee:           step.Fee,
		Tax:           step.Tax,
		CorrelationID: uuid.NullUUID{UUID: req.CorrelationID, Valid: true},
		EscrowID:      req.EscrowID,
		Metadata:      meta,
		SkipRisk:      req.SkipRisk,
	}
}

// compensate reverses already-applied steps in reverse order. Compensation
// bypasses the risk gate and the non-negative check: it restores a state the
// wallet already held.
func (c *Coordinator) compensate(ctx context.Context, req Request, applied []appliedStep) {
	for i := len(applied) - 1; i >= 0; i-- {
		a := applied[i]
		inverse := executor.ApplyRequest{
			UserID:        a.step.UserID,
			Amount:        a.step.Amount.Neg(),
			Bucket:        a.step.Bucket,
			FreezeDelta:   a.step.FreezeDelta.Neg(),
			Type:          domain.TypeRefund,
			Fee:           a.step.Fee.Neg(),
			Tax:           a.step.Tax.Neg(),
			CorrelationID: uuid.NullUUID{UUID: req.CorrelationID, Valid: true},
			EscrowID:      req.EscrowID,
			Metadata:      domain.TransactionMetadata{CompensatesID: a.txID},
			AllowNegative: true,
			SkipRisk:      true,
		}

		var err error
		for attempt := 1; attempt <= compensationRetries; attempt++ {
			_, err = c.exec.Apply(ctx, inverse)
			if err == nil || !errors.Is(err, executor.ErrConflict) {
				break
			}
			time.Sleep(backoffBase / 4 * time.Duration(attempt))
		}
		if err != nil {
			zap.L().Error("compensation failed, ledger requires manual resolution",
				zap.Error(err),
				zap.Int64("compensatesTxID", a.txID),
				zap.Int("userID", a.step.UserID),
				zap.String("correlationID", req.CorrelationID.String()),
			)
		}
	}
}

func (c *Coordinator) fillFailure(result *Result, cause error, attempt int) {
	result.Success = false
	result.Error = cause.Error()
	if errors.Is(cause, executor.ErrConflict) {
		result.ConflictType = ConflictOptimisticLock
		result.RetryAfter = retryAfter(attempt)
	}
}

func retryAfter(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > maxAttempts {
		attempt = maxAttempts
	}
	return backoffBase * time.Duration(attempt)
}

// validateClosedLoop requires pure transfer units to net to zero across
// steps. Units with external inflow or outflow (rewards, purchases) are
// exempt.
func validateClosedLoop(steps []Step) error {
	sum := decimal.Zero
	for _, s := range steps {
		if s.Type != domain.TypeTransfer {
			return nil
		}
		sum = sum.Add(s.Amount)
	}
	if !sum.IsZero() {
		return ErrUnbalanced
	}
	return nil
}

func counterpartyFor(steps []Step, idx int) int {
	for i, s := range steps {
		if i != idx && s.UserID != steps[idx].UserID {
			return s.UserID
		}
	}
	return 0
}

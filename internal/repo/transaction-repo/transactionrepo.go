package transactionrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GlebRadaev/walletled/internal/domain"
	"github.com/GlebRadaev/walletled/internal/pg"
)

type Repository struct {
	db pg.Database
}

func New(db pg.Database) *Repository {
	return &Repository{
		db: db,
	}
}

const txColumns = `id, user_id, type, status, amount, fee, tax, balance_before, balance_after,
		risk_score, is_suspicious, is_reviewed, review_result, correlation_id, escrow_id,
		metadata, created_at, completed_at`

// Append inserts one ledger entry. Entries are never updated afterwards
// except to attach a review outcome.
func (r *Repository) Append(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	query := `
		INSERT INTO transactions (user_id, type, status, amount, fee, tax, balance_before, balance_after,
			risk_score, is_suspicious, is_reviewed, review_result, correlation_id, escrow_id, metadata, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at
	`
	meta, err := json.Marshal(tx.Metadata)
	if err != nil {
		return nil, err
	}
	err = r.db.QueryRow(ctx, query,
		tx.UserID, tx.Type, tx.Status, tx.Amount, tx.Fee, tx.Tax, tx.BalanceBefore, tx.BalanceAfter,
		tx.RiskScore, tx.IsSuspicious, tx.IsReviewed, tx.ReviewResult, tx.CorrelationID, tx.EscrowID,
		meta, tx.CompletedAt,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		zap.L().Error("can't append transaction", zap.Error(err))
		return nil, err
	}
	return tx, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE id = $1`
	tx, err := r.scanOne(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		zap.L().Error("failed to get transaction", zap.Error(err))
		return nil, err
	}
	return tx, nil
}

// ListByUser returns the user's entries inside [from, to], newest first.
// Both bounds are inclusive so a range ending "now" catches entries written
// in the same instant.
func (r *Repository) ListByUser(ctx context.Context, userID int, from, to time.Time) ([]domain.Transaction, error) {
	query := `
        SELECT ` + txColumns + `
        FROM transactions
        WHERE user_id = $1 AND created_at >= $2 AND created_at <= $3
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, userID, from, to)
	if err != nil {
		zap.L().Error("failed to fetch transactions", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := r.scanOne(rows)
		if err != nil {
			zap.L().Error("failed to scan transaction row", zap.Error(err))
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, nil
}

// SumCompleted folds amount - fee - tax over every completed entry for the
// user. This is the ledger-derived expected wallet total.
func (r *Repository) SumCompleted(ctx context.Context, userID int) (decimal.Decimal, error) {
	query := `
        SELECT COALESCE(SUM(amount - fee - tax), 0)
        FROM transactions
        WHERE user_id = $1 AND status = 'COMPLETED'
    `
	var sum decimal.Decimal
	if err := r.db.QueryRow(ctx, query, userID).Scan(&sum); err != nil {
		zap.L().Error("failed to sum completed transactions", zap.Error(err))
		return decimal.Zero, err
	}
	return sum, nil
}

// SetReviewResult attaches the reviewer's verdict to a pending flagged entry
// and moves it to its terminal status.
func (r *Repository) SetReviewResult(ctx context.Context, id int64, status domain.TransactionStatus, result string, balanceBefore, balanceAfter decimal.Decimal) error {
	query := `
		UPDATE transactions
		SET status = $1, is_reviewed = TRUE, review_result = $2,
			balance_before = $3, balance_after = $4, completed_at = now()
		WHERE id = $5 AND status = 'PENDING'
	`
	tag, err := r.db.Exec(ctx, query, status, result, balanceBefore, balanceAfter, id)
	if err != nil {
		zap.L().Error("failed to set review result", zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) ListPendingReview(ctx context.Context, limit int) ([]domain.Transaction, error) {
	query := `
        SELECT ` + txColumns + `
        FROM transactions
        WHERE status = 'PENDING' AND is_suspicious = TRUE AND is_reviewed = FALSE
        ORDER BY created_at
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		zap.L().Error("failed to fetch pending reviews", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := r.scanOne(rows)
		if err != nil {
			zap.L().Error("failed to scan transaction row", zap.Error(err))
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, nil
}

func (r *Repository) CountSince(ctx context.Context, userID int, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	).Scan(&count)
	if err != nil {
		zap.L().Error("failed to count transactions", zap.Error(err))
		return 0, err
	}
	return count, nil
}

func (r *Repository) AvgAmountSince(ctx context.Context, userID int, since time.Time) (decimal.Decimal, error) {
	query := `
        SELECT COALESCE(AVG(ABS(amount)), 0)
        FROM transactions
        WHERE user_id = $1 AND created_at >= $2 AND status = 'COMPLETED'
    `
	var avg decimal.Decimal
	if err := r.db.QueryRow(ctx, query, userID, since).Scan(&avg); err != nil {
		zap.L().Error("failed to average transactions", zap.Error(err))
		return decimal.Zero, err
	}
	return avg, nil
}

func (r *Repository) CountWithCounterparty(ctx context.Context, userID, counterpartyID int) (int, error) {
	query := `
        SELECT COUNT(*)
        FROM transactions
        WHERE user_id = $1 AND (metadata->>'counterparty_id')::int = $2
    `
	var count int
	if err := r.db.QueryRow(ctx, query, userID, counterpartyID).Scan(&count); err != nil {
		zap.L().Error("failed to count counterparty transactions", zap.Error(err))
		return 0, err
	}
	return count, nil
}

func (r *Repository) scanOne(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	var meta []byte
	err := row.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Status, &tx.Amount, &tx.Fee, &tx.Tax,
		&tx.BalanceBefore, &tx.BalanceAfter, &tx.RiskScore, &tx.IsSuspicious, &tx.IsReviewed,
		&tx.ReviewResult, &tx.CorrelationID, &tx.EscrowID, &meta, &tx.CreatedAt, &tx.CompletedAt)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &tx.Metadata); err != nil {
			return nil, err
		}
	}
	return &tx, nil
}

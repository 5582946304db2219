package escrowrepo

import (
	"context"
	"time"

	"github.com/google/uuid"
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

const escrowColumns = `id, buyer_id, seller_id, amount, condition, status, release_reason, created_at, expires_at, completed_at`

func (r *Repository) Create(ctx context.Context, e *domain.Escrow) (*domain.Escrow, error) {
	query := `
		INSERT INTO escrows (id, buyer_id, seller_id, amount, condition, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, e.ID, e.BuyerID, e.SellerID, e.Amount, e.Condition, e.Status, e.ExpiresAt).Scan(&e.CreatedAt)
	if err != nil {
		zap.L().Error("can't save escrow", zap.Error(err))
		return nil, err
	}
	return e, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1`
	row := r.db.QueryRow(ctx, query, id)
	var e domain.Escrow
	err := row.Scan(&e.ID, &e.BuyerID, &e.SellerID, &e.Amount, &e.Condition, &e.Status, &e.ReleaseReason, &e.CreatedAt, &e.ExpiresAt, &e.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		zap.L().Error("failed to get escrow", zap.Error(err))
		return nil, err
	}
	return &e, nil
}

// UpdateStatus moves the escrow to a new status only when its current status
// is one of from. Returns false when the guard did not match, which keeps
// terminal rows immutable.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from []domain.EscrowStatus, to domain.EscrowStatus, reason domain.ReleaseReason, completed bool) (bool, error) {
	query := `
		UPDATE escrows
		SET status = $1, release_reason = $2,
			completed_at = CASE WHEN $3 THEN now() ELSE completed_at END
		WHERE id = $4 AND status = ANY($5)
	`
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	tag, err := r.db.Exec(ctx, query, to, reason, completed, id, statuses)
	if err != nil {
		zap.L().Error("failed to update escrow status", zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) ListExpired(ctx context.Context, before time.Time, limit int) ([]domain.Escrow, error) {
	query := `
        SELECT ` + escrowColumns + `
        FROM escrows
        WHERE status IN ('CREATED', 'FUNDED') AND expires_at <= $1
        ORDER BY expires_at
        LIMIT $2
    `
	return r.list(ctx, query, before, limit)
}

func (r *Repository) ListByUser(ctx context.Context, userID int) ([]domain.Escrow, error) {
	query := `
        SELECT ` + escrowColumns + `
        FROM escrows
        WHERE buyer_id = $1 OR seller_id = $1
        ORDER BY created_at DESC
    `
	return r.list(ctx, query, userID)
}

// SumFundedByBuyer returns the total amount a buyer currently holds in
// funded escrows. The reconciliation auditor checks it against the wallet's
// frozen balance.
func (r *Repository) SumFundedByBuyer(ctx context.Context, buyerID int) (decimal.Decimal, error) {
	query := `
        SELECT COALESCE(SUM(amount), 0)
        FROM escrows
        WHERE buyer_id = $1 AND status IN ('FUNDED', 'DISPUTED')
    `
	var sum decimal.Decimal
	if err := r.db.QueryRow(ctx, query, buyerID).Scan(&sum); err != nil {
		zap.L().Error("failed to sum funded escrows", zap.Error(err))
		return decimal.Zero, err
	}
	return sum, nil
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]domain.Escrow, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		zap.L().Error("failed to fetch escrows", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var escrows []domain.Escrow
	for rows.Next() {
		var e domain.Escrow
		err := rows.Scan(&e.ID, &e.BuyerID, &e.SellerID, &e.Amount, &e.Condition, &e.Status, &e.ReleaseReason, &e.CreatedAt, &e.ExpiresAt, &e.CompletedAt)
		if err != nil {
			zap.L().Error("failed to scan escrow row", zap.Error(err))
			return nil, err
		}
		escrows = append(escrows, e)
	}
	return escrows, nil
}

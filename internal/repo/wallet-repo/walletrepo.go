package walletrepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/GlebRadaev/walletled/internal/domain"
	"github.com/GlebRadaev/walletled/internal/pg"
	"go.uber.org/zap"
)

// ErrVersionConflict is returned when a conditional write loses the
// optimistic race: another writer bumped the wallet version first.
var ErrVersionConflict = errors.New("wallet version conflict")

type Repository struct {
	db pg.Database
}

func New(db pg.Database) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) GetWallet(ctx context.Context, userID int) (*domain.Wallet, error) {
	query := `
        SELECT user_id, main_balance, sales_balance, frozen_balance, version, updated_at
        FROM wallets
        WHERE user_id = $1
    `
	row := r.db.QueryRow(ctx, query, userID)
	var wallet domain.Wallet
	err := row.Scan(&wallet.UserID, &wallet.MainBalance, &wallet.SalesBalance, &wallet.FrozenBalance, &wallet.Version, &wallet.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		zap.L().Error("failed to get wallet", zap.Error(err))
		return nil, err
	}
	return &wallet, nil
}

func (r *Repository) CreateWallet(ctx context.Context, userID int) (*domain.Wallet, error) {
	query := `
        INSERT INTO wallets (user_id, main_balance, sales_balance, frozen_balance, version)
        VALUES ($1, 0, 0, 0, 1)
        RETURNING user_id, main_balance, sales_balance, frozen_balance, version, updated_at
    `
	row := r.db.QueryRow(ctx, query, userID)
	var wallet domain.Wallet
	err := row.Scan(&wallet.UserID, &wallet.MainBalance, &wallet.SalesBalance, &wallet.FrozenBalance, &wallet.Version, &wallet.UpdatedAt)
	if err != nil {
		zap.L().Error("failed to create wallet", zap.Error(err))
		return nil, err
	}
	return &wallet, nil
}

// UpdateWithVersion writes the new balances conditionally on the version
// being unchanged since the read. Zero affected rows means another writer
// won the race; the caller decides whether to retry.
func (r *Repository) UpdateWithVersion(ctx context.Context, wallet *domain.Wallet, expectedVersion int64) error {
	query := `
		UPDATE wallets
		SET main_balance = $1, sales_balance = $2, frozen_balance = $3,
			version = version + 1, updated_at = now()
		WHERE user_id = $4 AND version = $5
	`
	tag, err := r.db.Exec(ctx, query, wallet.MainBalance, wallet.SalesBalance, wallet.FrozenBalance, wallet.UserID, expectedVersion)
	if err != nil {
		zap.L().Error("failed to update wallet", zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ListUserIDs returns every wallet owner, used by the reconciliation sweep.
func (r *Repository) ListUserIDs(ctx context.Context) ([]int, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM wallets ORDER BY user_id`)
	if err != nil {
		zap.L().Error("failed to list wallets", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			zap.L().Error("failed to scan wallet row", zap.Error(err))
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

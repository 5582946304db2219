package requestrepo

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/GlebRadaev/walletled/internal/pg"
)

// Repository stores the outcome of committed atomic requests keyed by
// correlation id, so re-delivery of the same request never double-applies.
type Repository struct {
	db pg.Database
}

func New(db pg.Database) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) SaveResult(ctx context.Context, correlationID uuid.UUID, result []byte) error {
	query := `
		INSERT INTO atomic_requests (correlation_id, result)
		VALUES ($1, $2)
		ON CONFLICT (correlation_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, correlationID, result); err != nil {
		zap.L().Error("can't save atomic request result", zap.Error(err))
		return err
	}
	return nil
}

func (r *Repository) GetResult(ctx context.Context, correlationID uuid.UUID) ([]byte, error) {
	var result []byte
	err := r.db.QueryRow(ctx, `SELECT result FROM atomic_requests WHERE correlation_id = $1`, correlationID).Scan(&result)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		zap.L().Error("failed to get atomic request result", zap.Error(err))
		return nil, err
	}
	return result, nil
}

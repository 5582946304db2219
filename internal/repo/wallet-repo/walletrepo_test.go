package walletrepo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/GlebRadaev/walletled/internal/domain"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func NewMock(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	mockDB, err := pgxmock.NewPool()
	assert.NoError(t, err)
	repo := New(mockDB)
	defer mockDB.Close()

	return repo, mockDB
}

func TestRepository_GetWallet(t *testing.T) {
	repo, mock := NewMock(t)
	now := time.Now()

	tests := []struct {
		name      string
		userID    int
		mockSetup func()
		expectErr bool
		result    *domain.Wallet
	}{
		{
			name:   "Valid userID returns wallet",
			userID: 1,
			mockSetup: func() {
				rows := pgxmock.NewRows([]string{"user_id", "main_balance", "sales_balance", "frozen_balance", "version", "updated_at"}).
					AddRow(1, d("700"), d("200"), d("100"), int64(3), now)
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id, main_balance, sales_balance, frozen_balance, version, updated_at FROM wallets WHERE user_id = $1`)).
					WithArgs(1).
					WillReturnRows(rows)
			},
			result: &domain.Wallet{
				UserID:        1,
				MainBalance:   d("700"),
				SalesBalance:  d("200"),
				FrozenBalance: d("100"),
				Version:       3,
				UpdatedAt:     now,
			},
		},
		{
			name:   "Non-existing userID returns nil",
			userID: 99,
			mockSetup: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id, main_balance, sales_balance, frozen_balance, version, updated_at FROM wallets WHERE user_id = $1`)).
					WithArgs(99).
					WillReturnError(pgx.ErrNoRows)
			},
			result: nil,
		},
		{
			name:   "Database error",
			userID: 1,
			mockSetup: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id, main_balance, sales_balance, frozen_balance, version, updated_at FROM wallets WHERE user_id = $1`)).
					WithArgs(1).
					WillReturnError(errors.New("database error"))
			},
			expectErr: true,
			result:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			result, err := repo.GetWallet(context.Background(), tt.userID)

			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			if tt.result == nil {
				assert.Nil(t, result)
			} else {
				assert.Equal(t, tt.result, result)
			}
		})
	}
}

func TestRepository_CreateWallet(t *testing.T) {
	repo, mock := NewMock(t)
	now := time.Now()

	rows := pgxmock.NewRows([]string{"user_id", "main_balance", "sales_balance", "frozen_balance", "version", "updated_at"}).
		AddRow(1, d("0"), d("0"), d("0"), int64(1), now)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO wallets (user_id, main_balance, sales_balance, frozen_balance, version) VALUES ($1, 0, 0, 0, 1) RETURNING user_id, main_balance, sales_balance, frozen_balance, version, updated_at`)).
		WithArgs(1).
		WillReturnRows(rows)

	wallet, err := repo.CreateWallet(context.Background(), 1)

	assert.NoError(t, err)
	assert.Equal(t, int64(1), wallet.Version)
	assert.True(t, wallet.MainBalance.IsZero())
}

func TestRepository_UpdateWithVersion(t *testing.T) {
	updateQuery := regexp.QuoteMeta(`UPDATE wallets SET main_balance = $1, sales_balance = $2, frozen_balance = $3, version = version + 1, updated_at = now() WHERE user_id = $4 AND version = $5`)

	tests := []struct {
		name        string
		mockSetup   func(mock pgxmock.PgxPoolIface)
		expectedErr error
	}{
		{
			name: "Conditional write succeeds",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(updateQuery).
					WithArgs(d("400"), d("0"), d("0"), 1, int64(3)).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
		},
		{
			name: "Stale version loses the race",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(updateQuery).
					WithArgs(d("400"), d("0"), d("0"), 1, int64(3)).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
			},
			expectedErr: ErrVersionConflict,
		},
		{
			name: "Database error",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(updateQuery).
					WithArgs(d("400"), d("0"), d("0"), 1, int64(3)).
					WillReturnError(errors.New("database error"))
			},
			expectedErr: errors.New("database error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := NewMock(t)
			tt.mockSetup(mock)

			wallet := &domain.Wallet{UserID: 1, MainBalance: d("400"), SalesBalance: d("0"), FrozenBalance: d("0")}
			err := repo.UpdateWithVersion(context.Background(), wallet, 3)

			if tt.expectedErr != nil {
				assert.Error(t, err)
				assert.Equal(t, tt.expectedErr.Error(), err.Error())
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepository_ListUserIDs(t *testing.T) {
	repo, mock := NewMock(t)

	rows := pgxmock.NewRows([]string{"user_id"}).AddRow(1).AddRow(2)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id FROM wallets ORDER BY user_id`)).
		WillReturnRows(rows)

	ids, err := repo.ListUserIDs(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids)
}

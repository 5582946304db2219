package riskservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	gomock "go.uber.org/mock/gomock"

	"github.com/GlebRadaev/walletled/internal/domain"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func NewMock(t *testing.T, baselines Baselines) (*Service, *MockTransactionStats) {
	ctrl := gomock.NewController(t)
	stats := NewMockTransactionStats(ctrl)
	service := New(stats, baselines)
	defer ctrl.Finish()
	return service, stats
}

// countsBySince answers the hourly window with hourCount and the daily
// window with dayCount.
func countsBySince(hourCount, dayCount int) func(ctx context.Context, userID int, since time.Time) (int, error) {
	return func(_ context.Context, _ int, since time.Time) (int, error) {
		if time.Since(since) < 2*time.Hour {
			return hourCount, nil
		}
		return dayCount, nil
	}
}

func TestAssess(t *testing.T) {
	baselines := Baselines{
		AbsoluteAmount: d("500"),
		HourlyCount:    10,
		DailyCount:     50,
	}

	tests := []struct {
		name            string
		amount          string
		counterpartyID  int
		prepareMock     func(stats *MockTransactionStats)
		expectedScore   string
		expectedLevel   domain.RiskLevel
		expectedFactors []string
		expectedReview  bool
	}{
		{
			name:           "Ordinary transaction scores zero",
			amount:         "50",
			counterpartyID: 2,
			prepareMock: func(stats *MockTransactionStats) {
				stats.EXPECT().AvgAmountSince(gomock.Any(), 1, gomock.Any()).Return(d("100"), nil)
				stats.EXPECT().CountSince(gomock.Any(), 1, gomock.Any()).DoAndReturn(countsBySince(1, 3)).Times(2)
				stats.EXPECT().CountWithCounterparty(gomock.Any(), 1, 2).Return(5, nil)
			},
			expectedScore: "0",
			expectedLevel: domain.RiskLow,
		},
		{
			name:           "First-time counterparty alone stays low",
			amount:         "80",
			counterpartyID: 9,
			prepareMock: func(stats *MockTransactionStats) {
				stats.EXPECT().AvgAmountSince(gomock.Any(), 1, gomock.Any()).Return(d("100"), nil)
				stats.EXPECT().CountSince(gomock.Any(), 1, gomock.Any()).DoAndReturn(countsBySince(0, 0)).Times(2)
				stats.EXPECT().CountWithCounterparty(gomock.Any(), 1, 9).Return(0, nil)
			},
			expectedScore:   "0.15",
			expectedLevel:   domain.RiskLow,
			expectedFactors: []string{FactorFirstCounterparty},
		},
		{
			name:           "Large amount with known counterparty is medium",
			amount:         "1000",
			counterpartyID: 2,
			prepareMock: func(stats *MockTransactionStats) {
				stats.EXPECT().AvgAmountSince(gomock.Any(), 1, gomock.Any()).Return(d("100"), nil)
				stats.EXPECT().CountSince(gomock.Any(), 1, gomock.Any()).DoAndReturn(countsBySince(1, 3)).Times(2)
				stats.EXPECT().CountWithCounterparty(gomock.Any(), 1, 2).Return(2, nil)
			},
			expectedScore:   "0.55",
			expectedLevel:   domain.RiskMedium,
			expectedFactors: []string{FactorAmountAboveAverage, FactorAboveAbsoluteCeiling},
		},
		{
			name:           "Partially scaled factors add up exactly",
			amount:         "1000",
			counterpartyID: 2,
			prepareMock: func(stats *MockTransactionStats) {
				stats.EXPECT().AvgAmountSince(gomock.Any(), 1, gomock.Any()).Return(d("400"), nil)
				stats.EXPECT().CountSince(gomock.Any(), 1, gomock.Any()).DoAndReturn(countsBySince(15, 20)).Times(2)
				stats.EXPECT().CountWithCounterparty(gomock.Any(), 1, 2).Return(1, nil)
			},
			// 0.35*(2.5/5) + 0.30*(1.5/2) + 0.20
			expectedScore:   "0.6",
			expectedLevel:   domain.RiskMedium,
			expectedFactors: []string{FactorAmountAboveAverage, FactorVelocityAboveBase, FactorAboveAbsoluteCeiling},
		},
		{
			name:           "High score forces manual review",
			amount:         "1000",
			counterpartyID: 9,
			prepareMock: func(stats *MockTransactionStats) {
				stats.EXPECT().AvgAmountSince(gomock.Any(), 1, gomock.Any()).Return(d("100"), nil)
				stats.EXPECT().CountSince(gomock.Any(), 1, gomock.Any()).DoAndReturn(countsBySince(25, 30)).Times(2)
				stats.EXPECT().CountWithCounterparty(gomock.Any(), 1, 9).Return(0, nil)
			},
			// 0.35 + 0.30 + 0.15 + 0.20, clamped to 1
			expectedScore:   "1",
			expectedLevel:   domain.RiskCritical,
			expectedFactors: []string{FactorAmountAboveAverage, FactorVelocityAboveBase, FactorFirstCounterparty, FactorAboveAbsoluteCeiling},
			expectedReview:  true,
		},
		{
			name:           "No counterparty skips the counterparty factor",
			amount:         "1000",
			counterpartyID: 0,
			prepareMock: func(stats *MockTransactionStats) {
				stats.EXPECT().AvgAmountSince(gomock.Any(), 1, gomock.Any()).Return(d("100"), nil)
				stats.EXPECT().CountSince(gomock.Any(), 1, gomock.Any()).DoAndReturn(countsBySince(1, 3)).Times(2)
			},
			expectedScore:   "0.55",
			expectedLevel:   domain.RiskMedium,
			expectedFactors: []string{FactorAmountAboveAverage, FactorAboveAbsoluteCeiling},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, stats := NewMock(t, baselines)
			tt.prepareMock(stats)

			assessment, err := service.Assess(context.Background(), 1, d(tt.amount), tt.counterpartyID, domain.TypeTransfer)

			assert.NoError(t, err)
			assert.True(t, assessment.Score.Equal(d(tt.expectedScore)),
				"score %s, want %s", assessment.Score, tt.expectedScore)
			assert.Equal(t, tt.expectedLevel, assessment.Level)
			assert.Equal(t, tt.expectedFactors, assessment.Factors)
			assert.Equal(t, tt.expectedReview, assessment.RequiresManualReview)
		})
	}
}

func TestAssessDeterministic(t *testing.T) {
	baselines := Baselines{AbsoluteAmount: d("500"), HourlyCount: 10, DailyCount: 50}
	service, stats := NewMock(t, baselines)

	stats.EXPECT().AvgAmountSince(gomock.Any(), 1, gomock.Any()).Return(d("100"), nil).Times(2)
	stats.EXPECT().CountSince(gomock.Any(), 1, gomock.Any()).DoAndReturn(countsBySince(25, 30)).Times(4)
	stats.EXPECT().CountWithCounterparty(gomock.Any(), 1, 9).Return(0, nil).Times(2)

	first, err := service.Assess(context.Background(), 1, d("1000"), 9, domain.TypeTransfer)
	assert.NoError(t, err)
	second, err := service.Assess(context.Background(), 1, d("1000"), 9, domain.TypeTransfer)
	assert.NoError(t, err)

	assert.True(t, first.Score.Equal(second.Score))
	assert.Equal(t, first.Level, second.Level)
	assert.Equal(t, first.Factors, second.Factors)
}

func TestAssessStatsError(t *testing.T) {
	baselines := Baselines{AbsoluteAmount: d("500"), HourlyCount: 10, DailyCount: 50}
	service, stats := NewMock(t, baselines)

	stats.EXPECT().AvgAmountSince(gomock.Any(), 1, gomock.Any()).Return(decimal.Zero, errors.New("database error"))

	assessment, err := service.Assess(context.Background(), 1, d("1000"), 9, domain.TypeTransfer)

	assert.Error(t, err)
	assert.Nil(t, assessment)
}

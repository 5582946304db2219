package riskservice

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GlebRadaev/walletled/internal/domain"
)

type TransactionStats interface {
	CountSince(ctx context.Context, userID int, since time.Time) (int, error)
	AvgAmountSince(ctx context.Context, userID int, since time.Time) (decimal.Decimal, error)
	CountWithCounterparty(ctx context.Context, userID, counterpartyID int) (int, error)
}

// Factor weights. Deterministic heuristics, not a model: every point of the
// score is traceable to a named factor.
var (
	weightAmountVsAverage   = decimal.RequireFromString("0.35")
	weightVelocity          = decimal.RequireFromString("0.30")
	weightFirstCounterparty = decimal.RequireFromString("0.15")
	weightAbsoluteThreshold = decimal.RequireFromString("0.20")

	levelMedium   = decimal.RequireFromString("0.40")
	levelHigh     = decimal.RequireFromString("0.70")
	levelCritical = decimal.RequireFromString("0.90")

	// a transaction this many times the trailing average maxes out factor (a)
	averageRatioCeiling = decimal.NewFromInt(5)
	// velocity at twice the baseline maxes out factor (b)
	velocityRatioCeiling = decimal.NewFromInt(2)
)

const (
	FactorAmountAboveAverage   = "amount_above_average"
	FactorVelocityAboveBase    = "velocity_above_baseline"
	FactorFirstCounterparty    = "first_time_counterparty"
	FactorAboveAbsoluteCeiling = "amount_above_absolute_threshold"
)

// Baselines are the per-deployment knobs the factors are judged against.
type Baselines struct {
	AbsoluteAmount decimal.Decimal
	HourlyCount    int
	DailyCount     int
}

type Service struct {
	stats     TransactionStats
	baselines Baselines
}

func New(stats TransactionStats, baselines Baselines) *Service {
	return &Service{stats: stats, baselines: baselines}
}

// Assess scores a proposed transaction against the user's trailing history.
// The score is a weighted sum of four factors clamped to [0,1]; High and
// Critical levels force manual review.
func (s *Service) Assess(ctx context.Context, userID int, amount decimal.Decimal, counterpartyID int, txType domain.TransactionType) (*domain.RiskAssessment, error) {
	now := time.Now()
	abs := amount.Abs()
	score := decimal.Zero
	var factors []string

	avg, err := s.stats.AvgAmountSince(ctx, userID, now.AddDate(0, 0, -30))
	if err != nil {
		return nil, err
	}
	if avg.IsPositive() {
		ratio := abs.Div(avg)
		if ratio.GreaterThan(decimal.NewFromInt(1)) {
			score = score.Add(weightAmountVsAverage.Mul(capRatio(ratio, averageRatioCeiling)))
			factors = append(factors, FactorAmountAboveAverage)
		}
	}

	hourCount, err := s.stats.CountSince(ctx, userID, now.Add(-time.Hour))
	if err != nil {
		return nil, err
	}
	dayCount, err := s.stats.CountSince(ctx, userID, now.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}
	load := velocityLoad(hourCount, s.baselines.HourlyCount)
	if dayLoad := velocityLoad(dayCount, s.baselines.DailyCount); dayLoad.GreaterThan(load) {
		load = dayLoad
	}
	if load.GreaterThan(decimal.NewFromInt(1)) {
		score = score.Add(weightVelocity.Mul(capRatio(load, velocityRatioCeiling)))
		factors = append(factors, FactorVelocityAboveBase)
	}

	if counterpartyID != 0 {
		seen, err := s.stats.CountWithCounterparty(ctx, userID, counterpartyID)
		if err != nil {
			return nil, err
		}
		if seen == 0 {
			score = score.Add(weightFirstCounterparty)
			factors = append(factors, FactorFirstCounterparty)
		}
	}

	if s.baselines.AbsoluteAmount.IsPositive() && abs.GreaterThanOrEqual(s.baselines.AbsoluteAmount) {
		score = score.Add(weightAbsoluteThreshold)
		factors = append(factors, FactorAboveAbsoluteCeiling)
	}

	if score.GreaterThan(decimal.NewFromInt(1)) {
		score = decimal.NewFromInt(1)
	}

	assessment := &domain.RiskAssessment{
		Score:                score,
		Level:                levelFor(score),
		Factors:              factors,
		RequiresManualReview: score.GreaterThanOrEqual(levelHigh),
	}

	if assessment.RequiresManualReview {
		zap.L().Warn("transaction flagged for manual review",
			zap.Int("userID", userID),
			zap.String("amount", amount.String()),
			zap.String("score", score.String()),
			zap.Strings("factors", factors),
		)
	}
	return assessment, nil
}

// capRatio scales a ratio above 1 into (0,1] against a ceiling.
func capRatio(ratio, ceiling decimal.Decimal) decimal.Decimal {
	scaled := ratio.Div(ceiling)
	if scaled.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return scaled
}

func velocityLoad(count, baseline int) decimal.Decimal {
	if baseline <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(count)).Div(decimal.NewFromInt(int64(baseline)))
}

func levelFor(score decimal.Decimal) domain.RiskLevel {
	switch {
	case score.GreaterThanOrEqual(levelCritical):
		return domain.RiskCritical
	case score.GreaterThanOrEqual(levelHigh):
		return domain.RiskHigh
	case score.GreaterThanOrEqual(levelMedium):
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

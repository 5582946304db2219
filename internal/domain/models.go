package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID           int       `db:"id"`
	Login        string    `db:"login"`
	PasswordHash string    `db:"password_hash"`
	IsAdmin      bool      `db:"is_admin"`
	CreatedAt    time.Time `db:"created_at"`
}

// Wallet is the per-user balance row. All mutations go through the
// transaction executor and are guarded by Version.
type Wallet struct {
	UserID        int             `db:"user_id"`
	MainBalance   decimal.Decimal `db:"main_balance"`
	SalesBalance  decimal.Decimal `db:"sales_balance"`
	FrozenBalance decimal.Decimal `db:"frozen_balance"`
	Version       int64           `db:"version"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// Available is the part of the main balance not held by escrow or other holds.
func (w *Wallet) Available() decimal.Decimal {
	return w.MainBalance.Sub(w.FrozenBalance)
}

// Total is the sum of the main and sales balances. Frozen funds are part of
// the main balance, so they are not added again.
func (w *Wallet) Total() decimal.Decimal {
	return w.MainBalance.Add(w.SalesBalance)
}

type TransactionType string

const (
	TypePurchase        TransactionType = "PURCHASE"
	TypeSale            TransactionType = "SALE"
	TypeTransfer        TransactionType = "TRANSFER"
	TypeRefund          TransactionType = "REFUND"
	TypeFee             TransactionType = "FEE"
	TypeReward          TransactionType = "REWARD"
	TypePenalty         TransactionType = "PENALTY"
	TypeAdminAdjustment TransactionType = "ADMIN_ADJUSTMENT"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
)

// BalanceBucket names the wallet balance a ledger entry applies to.
type BalanceBucket string

const (
	BucketMain  BalanceBucket = "MAIN"
	BucketSales BalanceBucket = "SALES"
)

// TransactionMetadata is the bounded set of extra fields a ledger entry may
// carry. Stored as JSONB; absent fields are omitted.
type TransactionMetadata struct {
	AdminID        int    `json:"admin_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
	CompensatesID  int64  `json:"compensates_id,omitempty"`
	CounterpartyID int    `json:"counterparty_id,omitempty"`
}

// Transaction is one immutable ledger entry. BalanceBefore and BalanceAfter
// hold the wallet total around the write; for every completed entry
// BalanceAfter = BalanceBefore + Amount - Fee - Tax exactly.
type Transaction struct {
	ID            int64               `db:"id"`
	UserID        int                 `db:"user_id"`
	Type          TransactionType     `db:"type"`
	Status        TransactionStatus   `db:"status"`
	Amount        decimal.Decimal     `db:"amount"`
	Fee           decimal.Decimal     `db:"fee"`
	Tax           decimal.Decimal     `db:"tax"`
	BalanceBefore decimal.Decimal     `db:"balance_before"`
	BalanceAfter  decimal.Decimal     `db:"balance_after"`
	RiskScore     decimal.Decimal     `db:"risk_score"`
	IsSuspicious  bool                `db:"is_suspicious"`
	IsReviewed    bool                `db:"is_reviewed"`
	ReviewResult  string              `db:"review_result"`
	CorrelationID uuid.NullUUID       `db:"correlation_id"`
	EscrowID      uuid.NullUUID       `db:"escrow_id"`
	Metadata      TransactionMetadata `db:"metadata"`
	CreatedAt     time.Time           `db:"created_at"`
	CompletedAt   *time.Time          `db:"completed_at"`
}

type EscrowStatus string

const (
	EscrowCreated  EscrowStatus = "CREATED"
	EscrowFunded   EscrowStatus = "FUNDED"
	EscrowReleased EscrowStatus = "RELEASED"
	EscrowRefunded EscrowStatus = "REFUNDED"
	EscrowDisputed EscrowStatus = "DISPUTED"
	EscrowExpired  EscrowStatus = "EXPIRED"
)

// ReleaseReason identifies what triggered an escrow resolution.
type ReleaseReason string

const (
	ReasonTransactionCompleted ReleaseReason = "TRANSACTION_COMPLETED"
	ReasonBuyerConfirmed       ReleaseReason = "BUYER_CONFIRMED"
	ReasonSellerConfirmed      ReleaseReason = "SELLER_CONFIRMED"
	ReasonDisputeResolved      ReleaseReason = "DISPUTE_RESOLVED"
	ReasonSystemAutomatic      ReleaseReason = "SYSTEM_AUTOMATIC"
	ReasonExpired              ReleaseReason = "EXPIRED"
)

// Valid reports whether r belongs to the closed set of release reasons.
func (r ReleaseReason) Valid() bool {
	switch r {
	case ReasonTransactionCompleted, ReasonBuyerConfirmed, ReasonSellerConfirmed,
		ReasonDisputeResolved, ReasonSystemAutomatic, ReasonExpired:
		return true
	}
	return false
}

type Escrow struct {
	ID            uuid.UUID       `db:"id"`
	BuyerID       int             `db:"buyer_id"`
	SellerID      int             `db:"seller_id"`
	Amount        decimal.Decimal `db:"amount"`
	Condition     string          `db:"condition"`
	Status        EscrowStatus    `db:"status"`
	ReleaseReason ReleaseReason   `db:"release_reason"`
	CreatedAt     time.Time       `db:"created_at"`
	ExpiresAt     time.Time       `db:"expires_at"`
	CompletedAt   *time.Time      `db:"completed_at"`
}

// IsTerminal reports whether the escrow reached a final state.
func (e *Escrow) IsTerminal() bool {
	switch e.Status {
	case EscrowReleased, EscrowRefunded, EscrowExpired:
		return true
	}
	return false
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskAssessment is a derived, explainable score for one proposed transaction.
type RiskAssessment struct {
	Score                decimal.Decimal
	Level                RiskLevel
	Factors              []string
	RequiresManualReview bool
}

// ReconciliationResult compares a wallet's stored balances against the fold
// of its completed ledger entries. A nonzero discrepancy is reported, never
// auto-corrected.
type ReconciliationResult struct {
	UserID           int
	ExpectedBalance  decimal.Decimal
	StoredBalance    decimal.Decimal
	AvailableBalance decimal.Decimal
	FrozenBalance    decimal.Decimal
	Discrepancy      decimal.Decimal
	IsConsistent     bool
	CheckedAt        time.Time
}

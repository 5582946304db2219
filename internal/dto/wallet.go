package dto

import "time"

// Monetary fields are decimal strings end to end; JSON numbers would go
// through float64 and lose exactness.

type WalletResponseDTO struct {
	Main      string `json:"main" example:"700"`
	Sales     string `json:"sales" example:"200"`
	Frozen    string `json:"frozen" example:"100"`
	Available string `json:"available" example:"600"`
	Total     string `json:"total" example:"900"`
}

type TransactionResponseDTO struct {
	ID            int64      `json:"id" example:"42"`
	Type          string     `json:"type" example:"TRANSFER"`
	Status        string     `json:"status" example:"COMPLETED"`
	Amount        string     `json:"amount" example:"-300"`
	Fee           string     `json:"fee" example:"0"`
	Tax           string     `json:"tax" example:"0"`
	BalanceBefore string     `json:"balance_before" example:"1000"`
	BalanceAfter  string     `json:"balance_after" example:"700"`
	RiskScore     string     `json:"risk_score,omitempty" example:"0.15"`
	IsSuspicious  bool       `json:"is_suspicious,omitempty"`
	CreatedAt     time.Time  `json:"created_at" example:"2020-12-09T16:09:57+03:00"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

type TransferRequestDTO struct {
	ToUserID      int    `json:"to_user_id" example:"2"`
	Amount        string `json:"amount" example:"300"`
	CorrelationID string `json:"correlation_id,omitempty" example:"8b2c6a09-6b14-4c2f-9ad9-1f5c7e6d1a00"`
}

type TransferResponseDTO struct {
	Success       bool   `json:"success"`
	CorrelationID string `json:"correlation_id" example:"8b2c6a09-6b14-4c2f-9ad9-1f5c7e6d1a00"`
	ConflictType  string `json:"conflict_type,omitempty" example:"OptimisticLockViolation"`
	RetryAfterMS  int64  `json:"retry_after_ms,omitempty" example:"200"`
	Message       string `json:"message,omitempty"`
}

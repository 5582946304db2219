package dto

import "time"

type AdjustmentRequestDTO struct {
	UserID     int    `json:"user_id" example:"1"`
	Amount     string `json:"amount" example:"-500"`
	Reason     string `json:"reason" example:"penalty reversal"`
	NotifyUser bool   `json:"notify_user"`
}

type ReviewRequestDTO struct {
	Approve bool   `json:"approve"`
	Result  string `json:"result" example:"verified with user"`
}

type ReconcileResponseDTO struct {
	UserID       int       `json:"user_id" example:"1"`
	Expected     string    `json:"expected" example:"900"`
	Stored       string    `json:"stored" example:"950"`
	Available    string    `json:"available" example:"950"`
	Frozen       string    `json:"frozen" example:"0"`
	Discrepancy  string    `json:"discrepancy" example:"50"`
	IsConsistent bool      `json:"is_consistent"`
	CheckedAt    time.Time `json:"checked_at"`
}

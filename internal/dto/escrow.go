package dto

import "time"

type CreateEscrowRequestDTO struct {
	SellerID  int       `json:"seller_id" example:"2"`
	Amount    string    `json:"amount" example:"200"`
	Condition string    `json:"condition" example:"goods delivered"`
	ExpiresAt time.Time `json:"expires_at" example:"2020-12-10T16:09:57+03:00"`
}

type ResolveEscrowRequestDTO struct {
	Reason string `json:"reason" example:"BUYER_CONFIRMED"`
}

type EscrowResponseDTO struct {
	ID            string     `json:"id" example:"8b2c6a09-6b14-4c2f-9ad9-1f5c7e6d1a00"`
	BuyerID       int        `json:"buyer_id" example:"1"`
	SellerID      int        `json:"seller_id" example:"2"`
	Amount        string     `json:"amount" example:"200"`
	Condition     string     `json:"condition" example:"goods delivered"`
	Status        string     `json:"status" example:"FUNDED"`
	ReleaseReason string     `json:"release_reason,omitempty" example:"BUYER_CONFIRMED"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

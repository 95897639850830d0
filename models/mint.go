// models/mint.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type MintStatus string

const (
	MintStatusPendingSig MintStatus = "pending_sig"
	MintStatusSubmitted  MintStatus = "submitted"
	MintStatusExpired    MintStatus = "expired"
)

// MintRequest is an unsigned authorization for an on-chain reward payout.
type MintRequest struct {
	ID               string                      `gorm:"primaryKey;type:uuid" json:"id"`
	UserID           string                      `gorm:"type:uuid;not null;uniqueIndex:idx_pplp_mint_user_nonce" json:"user_id"`
	RecipientAddress string                      `gorm:"type:varchar(42);not null" json:"recipient_address"`
	AmountWei        string                      `gorm:"type:varchar(80);not null" json:"amount_wei"` // 18-decimal fixed point
	AmountDisplay    decimal.Decimal             `gorm:"type:decimal(38,18);not null" json:"amount_display"`
	EvidenceHash     string                      `gorm:"type:varchar(66);not null" json:"evidence_hash"`
	ActionIDs        datatypes.JSONSlice[string] `gorm:"not null" json:"action_ids"`
	ActionTypes      datatypes.JSONSlice[string] `gorm:"not null" json:"action_types"`
	ActionName       string                      `gorm:"type:varchar(128);not null" json:"action_name"`
	Nonce            int64                       `gorm:"not null;uniqueIndex:idx_pplp_mint_user_nonce" json:"nonce"`
	Status           MintStatus                  `gorm:"type:varchar(16);not null;default:'pending_sig';index" json:"status"`
	TypedDataDigest  string                      `gorm:"type:varchar(66)" json:"typed_data_digest"`
	TxHash           *string                     `gorm:"type:varchar(66)" json:"tx_hash,omitempty"`
	ExpiresAt        time.Time                   `gorm:"not null;index" json:"expires_at"`
	CreatedAt        time.Time                   `gorm:"not null" json:"created_at"`
	SubmittedAt      *time.Time                  `json:"submitted_at,omitempty"`
}

func (MintRequest) TableName() string {
	return "pplp_mint_requests"
}

// DistributionLog is the audit row for the cascading split of one mint request.
type DistributionLog struct {
	ID             string          `gorm:"primaryKey;type:uuid" json:"id"`
	MintRequestID  string          `gorm:"type:uuid;not null;uniqueIndex" json:"mint_request_id"`
	UserID         string          `gorm:"type:uuid;not null;index" json:"user_id"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"total_amount"`
	UserAmount     decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"user_amount"`
	UserPercentage decimal.Decimal `gorm:"type:decimal(6,2);not null" json:"user_percentage"`
	GenesisAmount  decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"genesis_amount"`
	PlatformAmount decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"platform_amount"`
	PartnersAmount decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"partners_amount"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
}

func (DistributionLog) TableName() string {
	return "pplp_distribution_logs"
}

// UserNonce backs the per-user monotonic mint nonce.
type UserNonce struct {
	UserID    string    `gorm:"primaryKey;type:uuid" json:"user_id"`
	LastNonce int64     `gorm:"not null;default:0" json:"last_nonce"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserNonce) TableName() string {
	return "pplp_user_nonces"
}

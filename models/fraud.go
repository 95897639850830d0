// models/fraud.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

type FraudSignalType string

const (
	FraudSignalBot   FraudSignalType = "BOT"
	FraudSignalSpam  FraudSignalType = "SPAM"
	FraudSignalSybil FraudSignalType = "SYBIL"
)

// FraudSignal is an append-only risk observation about one actor.
type FraudSignal struct {
	ID         string            `gorm:"primaryKey;type:uuid" json:"id"`
	ActorID    string            `gorm:"type:uuid;not null;index:idx_pplp_fraud_actor_created" json:"actor_id"`
	SignalType FraudSignalType   `gorm:"type:varchar(8);not null" json:"signal_type"`
	Severity   int               `gorm:"not null;check:severity BETWEEN 1 AND 5" json:"severity"`
	Details    datatypes.JSONMap `json:"details"`
	Source     string            `gorm:"type:varchar(64);not null" json:"source"`
	CreatedAt  time.Time         `gorm:"not null;index:idx_pplp_fraud_actor_created" json:"created_at"`
}

func (FraudSignal) TableName() string {
	return "pplp_fraud_signals"
}

// DeviceRegistry links a device fingerprint to a user.
type DeviceRegistry struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string    `gorm:"type:uuid;not null;uniqueIndex:idx_pplp_device_user" json:"user_id"`
	DeviceHash  string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_pplp_device_user;index" json:"device_hash"`
	IsFlagged   bool      `gorm:"not null;default:false" json:"is_flagged"`
	FirstSeenAt time.Time `gorm:"not null" json:"first_seen_at"`
	LastSeenAt  time.Time `gorm:"not null" json:"last_seen_at"`
}

func (DeviceRegistry) TableName() string {
	return "pplp_device_registry"
}

// UserTier is the per-user fraud aggregate used to gate minting.
type UserTier struct {
	ID             string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID         string     `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	FraudFlags     int        `gorm:"not null;default:0" json:"fraud_flags"`
	LastFraudCheck *time.Time `json:"last_fraud_check,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (UserTier) TableName() string {
	return "pplp_user_tiers"
}

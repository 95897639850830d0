// models/wallet_mirror.go
package models

import (
	"time"
)

// WalletMirror is a local copy of a user's custodial/linked wallet, pulled from
// the wallet sync service. The mint authorizer falls back to the user's active
// wallet on the configured chain when the admin does not name a recipient.
type WalletMirror struct {
	ID                 string    `gorm:"primaryKey;type:uuid;not null" json:"id"`
	UserID             string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Chain              string    `gorm:"type:varchar(64);not null;index" json:"chain"`
	Address            string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"address"`
	IsActive           bool      `gorm:"not null" json:"is_active"`
	LastBalanceCheckAt time.Time `json:"last_balance_check_at"`
	CreatedAt          time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time `gorm:"not null" json:"updated_at"`
}

func (WalletMirror) TableName() string {
	return "wallet_mirror"
}

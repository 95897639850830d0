package models

import "gorm.io/gorm"

// All lists every table owned by the service, in migration order.
func All() []interface{} {
	return []interface{}{
		&Action{},
		&Score{},
		&UserCapCounter{},
		&FraudSignal{},
		&DeviceRegistry{},
		&UserTier{},
		&UserNonce{},
		&MintRequest{},
		&DistributionLog{},
		&WalletMirror{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(All()...)
}

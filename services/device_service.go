// services/device_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pplp-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceService maintains the device fingerprint registry the sybil detector reads.
type DeviceService struct {
	DB    *gorm.DB
	Clock func() time.Time
}

func NewDeviceService(db *gorm.DB) *DeviceService {
	return &DeviceService{DB: db, Clock: utcNow}
}

// Register records that userID was seen on deviceHash (idempotent).
func (s *DeviceService) Register(ctx context.Context, userID, deviceHash string) (*models.DeviceRegistry, error) {
	deviceHash = strings.TrimSpace(deviceHash)
	if userID == "" || deviceHash == "" {
		return nil, fmt.Errorf("%w: device_hash is required", ErrValidation)
	}
	if len(deviceHash) > 128 {
		return nil, fmt.Errorf("%w: device_hash too long", ErrValidation)
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("%w: invalid user id %q", ErrValidation, userID)
	}
	now := s.Clock()
	db := s.DB.WithContext(ctx)

	entry := models.DeviceRegistry{
		ID:          uuid.NewString(),
		UserID:      userID,
		DeviceHash:  deviceHash,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "device_hash"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"last_seen_at": now}),
	}).Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}

	var stored models.DeviceRegistry
	if err := db.Where("user_id = ? AND device_hash = ?", userID, deviceHash).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("reload device: %w", err)
	}
	return &stored, nil
}

// SetFlag marks (or clears) a device fingerprint as fraudulent for every user on it.
func (s *DeviceService) SetFlag(ctx context.Context, deviceHash string, flagged bool) (int64, error) {
	if strings.TrimSpace(deviceHash) == "" {
		return 0, fmt.Errorf("%w: device_hash is required", ErrValidation)
	}
	res := s.DB.WithContext(ctx).
		Model(&models.DeviceRegistry{}).
		Where("device_hash = ?", deviceHash).
		Update("is_flagged", flagged)
	if res.Error != nil {
		return 0, fmt.Errorf("flag device: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("device %s: %w", deviceHash, ErrNotFound)
	}
	return res.RowsAffected, nil
}

// services/cap_service.go
package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"pplp-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CapResult reports what the cap enforcer allowed for one reward.
type CapResult struct {
	Allowed         bool      `json:"allowed"`
	Scaled          bool      `json:"scaled"`
	RequestedReward float64   `json:"requested_reward"`
	EffectiveReward float64   `json:"effective_reward"`
	Remaining       float64   `json:"remaining"`
	ActionCount     int       `json:"action_count"`
	MaxActions      int       `json:"max_actions"`
	MaxReward       float64   `json:"max_reward"`
	WindowStart     time.Time `json:"window_start"`
}

// CapService enforces per-user, per-action-type reward caps per window.
type CapService struct {
	DB     *gorm.DB
	Policy *Policy
	Clock  func() time.Time
}

func NewCapService(db *gorm.DB, policy *Policy) *CapService {
	return &CapService{DB: db, Policy: policy, Clock: utcNow}
}

// CheckAndUpdate atomically checks the caller's budget and books the reward.
func (s *CapService) CheckAndUpdate(ctx context.Context, userID, actionType string, reward float64) (*CapResult, error) {
	var res *CapResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.checkAndUpdateTx(tx, userID, actionType, reward)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// checkAndUpdateTx runs inside the caller's transaction. The counter row is
// created if missing and then locked, so concurrent scorers for the same
// user/type/window serialize on it.
func (s *CapService) checkAndUpdateTx(tx *gorm.DB, userID, actionType string, reward float64) (*CapResult, error) {
	now := s.Clock()
	window := now.Truncate(s.Policy.CapWindow)
	limit := s.Policy.CapFor(actionType)

	seed := models.UserCapCounter{
		ID:          uuid.NewString(),
		UserID:      userID,
		ActionType:  actionType,
		WindowStart: window,
		UpdatedAt:   now,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "action_type"}, {Name: "window_start"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("seed cap counter: %w", err)
	}

	var counter models.UserCapCounter
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND action_type = ? AND window_start = ?", userID, actionType, window).
		First(&counter).Error; err != nil {
		return nil, fmt.Errorf("lock cap counter: %w", err)
	}

	res := &CapResult{
		RequestedReward: reward,
		ActionCount:     counter.ActionCount,
		MaxActions:      limit.MaxActions,
		MaxReward:       limit.MaxReward,
		WindowStart:     window,
	}
	remaining := math.Max(0, limit.MaxReward-counter.RewardTotal)

	// Nothing to book.
	if reward <= 0 {
		res.Allowed = true
		res.Remaining = remaining
		return res, nil
	}

	if counter.ActionCount >= limit.MaxActions || remaining <= 0 {
		res.Remaining = remaining
		log.Printf("[CAP] 🚫 user=%s type=%s denied (count=%d/%d, reward=%.2f/%.2f)",
			userID, actionType, counter.ActionCount, limit.MaxActions, counter.RewardTotal, limit.MaxReward)
		return res, nil
	}

	effective := math.Min(reward, remaining)
	if err := tx.Model(&models.UserCapCounter{}).
		Where("id = ?", counter.ID).
		Updates(map[string]interface{}{
			"action_count": gorm.Expr("action_count + 1"),
			"reward_total": gorm.Expr("reward_total + ?", effective),
			"updated_at":   now,
		}).Error; err != nil {
		return nil, fmt.Errorf("update cap counter: %w", err)
	}

	res.Allowed = true
	res.Scaled = effective < reward
	res.EffectiveReward = effective
	res.ActionCount = counter.ActionCount + 1
	res.Remaining = remaining - effective
	return res, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}

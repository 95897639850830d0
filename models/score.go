// models/score.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

// Decision is the pass/fail verdict of the scorer.
type Decision string

const (
	DecisionPass Decision = "pass"
	DecisionFail Decision = "fail"
)

// Score is the immutable scoring result for exactly one Action.
type Score struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	ActionID string `gorm:"type:uuid;not null;uniqueIndex" json:"action_id"`

	// Pillars (0–100)
	PillarS float64 `gorm:"not null" json:"pillar_s"`
	PillarT float64 `gorm:"not null" json:"pillar_t"`
	PillarH float64 `gorm:"not null" json:"pillar_h"`
	PillarC float64 `gorm:"not null" json:"pillar_c"`
	PillarU float64 `gorm:"not null" json:"pillar_u"`

	LightScore  float64 `gorm:"not null" json:"light_score"`
	BaseReward  float64 `gorm:"not null" json:"base_reward"`
	MultiplierQ float64 `gorm:"not null" json:"multiplier_q"`
	MultiplierI float64 `gorm:"not null" json:"multiplier_i"`
	MultiplierK float64 `gorm:"not null" json:"multiplier_k"`
	FinalReward float64 `gorm:"not null" json:"final_reward"`

	Decision       Decision                    `gorm:"type:varchar(8);not null;index" json:"decision"`
	DecisionReason string                      `gorm:"type:text" json:"decision_reason"`
	FailReasons    datatypes.JSONSlice[string] `json:"fail_reasons"`
	ScoredBy       string                      `gorm:"type:varchar(64);not null" json:"scored_by"`
	PolicyVersion  string                      `gorm:"type:varchar(16);not null" json:"policy_version"`
	CreatedAt      time.Time                   `gorm:"not null" json:"created_at"`
}

func (Score) TableName() string {
	return "pplp_scores"
}

// UserCapCounter accumulates per-user, per-action-type usage inside one window.
type UserCapCounter struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string    `gorm:"type:uuid;not null;uniqueIndex:idx_pplp_cap_window" json:"user_id"`
	ActionType  string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_pplp_cap_window" json:"action_type"`
	WindowStart time.Time `gorm:"not null;uniqueIndex:idx_pplp_cap_window" json:"window_start"`
	ActionCount int       `gorm:"not null;default:0" json:"action_count"`
	RewardTotal float64   `gorm:"not null;default:0" json:"reward_total"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (UserCapCounter) TableName() string {
	return "pplp_user_caps"
}

// models/action.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActionStatus tracks an action through the scoring pipeline.
type ActionStatus string

const (
	ActionStatusPending ActionStatus = "pending"
	ActionStatusScored  ActionStatus = "scored"
	ActionStatusMinted  ActionStatus = "minted"
)

const (
	ActionTypePost       = "post"
	ActionTypeComment    = "comment"
	ActionTypeShare      = "share"
	ActionTypeReaction   = "reaction"
	ActionTypeFriend     = "friend"
	ActionTypeSignup     = "signup"
	ActionTypeLivestream = "livestream"
	ActionTypeDonate     = "donate"
	ActionTypeMentor     = "mentor"
)

const (
	OutcomePositive = "positive"
	OutcomeNeutral  = "neutral"
	OutcomeNegative = "negative"
)

// ActionMetadata is the content side of a claimed action, after intake defaults.
type ActionMetadata struct {
	Content        string  `json:"content,omitempty"`
	ContentLength  int     `json:"content_length"`
	HasEvidence    bool    `json:"has_evidence"`
	Verified       bool    `json:"verified"`
	SentimentScore float64 `json:"sentiment_score"`
	IsEducational  bool    `json:"is_educational"`
}

// ActionImpact describes who the action reached and how.
type ActionImpact struct {
	Beneficiaries int    `json:"beneficiaries"`
	Outcome       string `json:"outcome"`
	PromotesUnity bool   `json:"promotes_unity"`
	HealingEffect bool   `json:"healing_effect"`
}

// ActionIntegrity carries the trust signals attached by the caller.
type ActionIntegrity struct {
	SourceVerified bool    `json:"source_verified"`
	AntiSybilScore float64 `json:"anti_sybil_score"`
}

// Action is a claimed unit of user behavior awaiting (or past) scoring.
type Action struct {
	ID            string                              `gorm:"primaryKey;type:uuid" json:"id"`
	PlatformID    string                              `gorm:"type:varchar(64);not null;default:'fun_profile'" json:"platform_id"`
	ActionType    string                              `gorm:"type:varchar(32);not null;index" json:"action_type"`
	ActorID       string                              `gorm:"type:uuid;not null;index:idx_pplp_actions_actor_created" json:"actor_id"`
	TargetID      *string                             `gorm:"type:varchar(128)" json:"target_id,omitempty"`
	Metadata      datatypes.JSONType[ActionMetadata]  `json:"metadata"`
	Impact        datatypes.JSONType[ActionImpact]    `json:"impact"`
	Integrity     datatypes.JSONType[ActionIntegrity] `json:"integrity"`
	EvidenceHash  string                              `gorm:"type:varchar(66);not null" json:"evidence_hash"`
	CanonicalHash string                              `gorm:"type:varchar(66);not null;index" json:"canonical_hash"`
	Status        ActionStatus                        `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	PolicyVersion string                              `gorm:"type:varchar(16);not null" json:"policy_version"`

	// Inline/batch scoring bookkeeping
	ScoreAttempts  int     `gorm:"not null;default:0" json:"score_attempts"`
	LastScoreError *string `gorm:"type:text" json:"last_score_error,omitempty"`

	MintRequestID *string    `gorm:"type:uuid;index" json:"mint_request_id,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;index:idx_pplp_actions_actor_created" json:"created_at"`
	ScoredAt      *time.Time `json:"scored_at,omitempty"`

	Score *Score `gorm:"foreignKey:ActionID" json:"score,omitempty"`
}

func (Action) TableName() string {
	return "pplp_actions"
}

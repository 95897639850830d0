// services/action_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"pplp-service/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MetadataInput is the caller-supplied metadata; nil fields take policy defaults.
type MetadataInput struct {
	Content        string   `json:"content"`
	ContentLength  *int     `json:"content_length"`
	HasEvidence    *bool    `json:"has_evidence"`
	Verified       *bool    `json:"verified"`
	SentimentScore *float64 `json:"sentiment_score"`
	IsEducational  *bool    `json:"is_educational"`
}

type ImpactInput struct {
	Beneficiaries *int   `json:"beneficiaries"`
	Outcome       string `json:"outcome"`
	PromotesUnity *bool  `json:"promotes_unity"`
	HealingEffect *bool  `json:"healing_effect"`
}

type IntegrityInput struct {
	SourceVerified *bool    `json:"source_verified"`
	AntiSybilScore *float64 `json:"anti_sybil_score"`
}

// SubmitActionInput is one claimed action. ActorID comes from the verified
// token, never from the body.
type SubmitActionInput struct {
	PlatformID string         `json:"platform_id"`
	ActionType string         `json:"action_type"`
	ActorID    string         `json:"-"`
	TargetID   *string        `json:"target_id"`
	Metadata   MetadataInput  `json:"metadata"`
	Impact     ImpactInput    `json:"impact"`
	Integrity  IntegrityInput `json:"integrity"`
}

type SubmitActionResult struct {
	ActionID     string              `json:"action_id"`
	EvidenceHash string              `json:"evidence_hash"`
	Status       models.ActionStatus `json:"status"`
}

// ActionScorer is the slice of the scorer that intake depends on.
type ActionScorer interface {
	ScoreAction(ctx context.Context, actionID, scoredBy string) (*ScoreResult, error)
	RecordFailure(ctx context.Context, actionID string, cause error)
}

// ActionService accepts claimed actions and kicks off inline scoring.
type ActionService struct {
	DB     *gorm.DB
	Policy *Policy
	Scorer ActionScorer
	Clock  func() time.Time
}

func NewActionService(db *gorm.DB, policy *Policy, scorer ActionScorer) *ActionService {
	return &ActionService{DB: db, Policy: policy, Scorer: scorer, Clock: utcNow}
}

const defaultPlatformID = "fun_profile"

// Submit validates, deduplicates and persists an action, then makes a
// best-effort inline scoring attempt. A scoring failure never fails intake:
// the action stays pending and the batch sweep picks it up.
func (s *ActionService) Submit(ctx context.Context, in SubmitActionInput) (*SubmitActionResult, error) {
	in.ActionType = strings.ToLower(strings.TrimSpace(in.ActionType))
	if in.ActionType == "" {
		return nil, fmt.Errorf("%w: action_type is required", ErrValidation)
	}
	if in.ActorID == "" {
		return nil, fmt.Errorf("%w: actor_id is required", ErrValidation)
	}
	if _, ok := s.Policy.BaseReward(in.ActionType); !ok {
		return nil, fmt.Errorf("%w: unsupported action_type %q", ErrValidation, in.ActionType)
	}
	if in.TargetID != nil && strings.TrimSpace(*in.TargetID) == "" {
		in.TargetID = nil
	}
	if in.PlatformID == "" {
		in.PlatformID = defaultPlatformID
	}

	meta, impact, integrity := s.applyDefaults(in)
	now := s.Clock()

	action := models.Action{
		ID:            uuid.NewString(),
		PlatformID:    in.PlatformID,
		ActionType:    in.ActionType,
		ActorID:       in.ActorID,
		TargetID:      in.TargetID,
		Metadata:      datatypes.NewJSONType(meta),
		Impact:        datatypes.NewJSONType(impact),
		Integrity:     datatypes.NewJSONType(integrity),
		CanonicalHash: CanonicalHash(in.ActorID, in.ActionType, in.TargetID, meta.Content),
		Status:        models.ActionStatusPending,
		PolicyVersion: s.Policy.Version,
		CreatedAt:     now,
	}
	evidence, err := EvidenceHash(&action)
	if err != nil {
		return nil, fmt.Errorf("evidence hash: %w", err)
	}
	action.EvidenceHash = evidence

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockActor(tx, in.ActorID); err != nil {
			return fmt.Errorf("lock actor: %w", err)
		}
		var dupes int64
		if err := tx.Model(&models.Action{}).
			Where("actor_id = ? AND canonical_hash = ? AND created_at >= ?",
				in.ActorID, action.CanonicalHash, now.Add(-s.Policy.DuplicateWindow)).
			Count(&dupes).Error; err != nil {
			return fmt.Errorf("duplicate check: %w", err)
		}
		if dupes > 0 {
			return ErrDuplicateAction
		}
		if err := tx.Create(&action).Error; err != nil {
			return fmt.Errorf("insert action: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INTAKE] 📥 action=%s type=%s actor=%s", action.ID, action.ActionType, action.ActorID)

	status := models.ActionStatusPending
	if s.scoreInline(ctx, action.ID) {
		status = models.ActionStatusScored
	}

	return &SubmitActionResult{
		ActionID:     action.ID,
		EvidenceHash: action.EvidenceHash,
		Status:       status,
	}, nil
}

// lockActor serializes intake for one actor until tx ends, so the duplicate
// check and the insert cannot interleave with a concurrent submit. SQLite
// already allows a single writer.
func lockActor(tx *gorm.DB, actorID string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", actorID).Error
}

// scoreInline retries the scorer a bounded number of times with linear
// backoff. It reports whether the action ended up scored.
func (s *ActionService) scoreInline(ctx context.Context, actionID string) bool {
	if s.Scorer == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.Policy.InlineScoreTimeout)
	defer cancel()

	attempts := max(1, s.Policy.InlineScoreAttempts)
	for attempt := 1; attempt <= attempts; attempt++ {
		_, err := s.Scorer.ScoreAction(ctx, actionID, "inline")
		if err == nil {
			return true
		}
		if errors.Is(err, ErrAlreadyScored) {
			return true
		}
		log.Printf("[INTAKE] ⚠️ inline scoring attempt %d/%d for %s failed: %v", attempt, attempts, actionID, err)
		s.Scorer.RecordFailure(ctx, actionID, err)

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			log.Printf("[INTAKE] ⏱️ inline scoring for %s timed out; leaving pending for batch", actionID)
			return false
		case <-time.After(s.Policy.InlineScoreBackoff * time.Duration(attempt)):
		}
	}
	log.Printf("[INTAKE] ➡️ action %s left pending for batch processor", actionID)
	return false
}

func (s *ActionService) applyDefaults(in SubmitActionInput) (models.ActionMetadata, models.ActionImpact, models.ActionIntegrity) {
	d := s.Policy.Defaults

	meta := models.ActionMetadata{
		Content:        in.Metadata.Content,
		ContentLength:  utf8.RuneCountInString(in.Metadata.Content),
		HasEvidence:    boolOr(in.Metadata.HasEvidence, d.HasEvidence),
		Verified:       boolOr(in.Metadata.Verified, d.Verified),
		SentimentScore: clamp(floatOr(in.Metadata.SentimentScore, d.SentimentScore), 0, 1),
		IsEducational:  boolOr(in.Metadata.IsEducational, false),
	}
	if in.Metadata.ContentLength != nil && *in.Metadata.ContentLength >= 0 {
		meta.ContentLength = *in.Metadata.ContentLength
	}

	impact := models.ActionImpact{
		Beneficiaries: d.Beneficiaries,
		Outcome:       strings.ToLower(strings.TrimSpace(in.Impact.Outcome)),
		PromotesUnity: boolOr(in.Impact.PromotesUnity, d.PromotesUnity),
		HealingEffect: boolOr(in.Impact.HealingEffect, d.HealingEffect),
	}
	if in.Impact.Beneficiaries != nil && *in.Impact.Beneficiaries >= 0 {
		impact.Beneficiaries = *in.Impact.Beneficiaries
	}
	if impact.Outcome == "" {
		impact.Outcome = d.Outcome
	}

	integrity := models.ActionIntegrity{
		SourceVerified: boolOr(in.Integrity.SourceVerified, d.SourceVerified),
		AntiSybilScore: clamp(floatOr(in.Integrity.AntiSybilScore, d.AntiSybilScore), 0, 1),
	}
	return meta, impact, integrity
}

// ListForActor returns the actor's most recent actions with their scores.
func (s *ActionService) ListForActor(ctx context.Context, actorID string, status string, limit int) ([]models.Action, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := s.DB.WithContext(ctx).Preload("Score").Where("actor_id = ?", actorID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var actions []models.Action
	if err := q.Order("created_at DESC").Limit(limit).Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("list actions for %s: %w", actorID, err)
	}
	return actions, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

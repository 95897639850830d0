// services/scoring_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pplp-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScoreResult is what the scorer returns to internal callers.
type ScoreResult struct {
	ActionID       string          `json:"action_id"`
	Pillars        PillarScores    `json:"pillars"`
	LightScore     float64         `json:"light_score"`
	BaseReward     float64         `json:"base_reward"`
	MultiplierQ    float64         `json:"multiplier_q"`
	MultiplierI    float64         `json:"multiplier_i"`
	MultiplierK    float64         `json:"multiplier_k"`
	FinalReward    float64         `json:"final_reward"`
	Decision       models.Decision `json:"decision"`
	DecisionReason string          `json:"decision_reason"`
	FailReasons    []string        `json:"fail_reasons"`
	CapInfo        *CapResult      `json:"cap_info"`
	PolicyVersion  string          `json:"policy_version"`
}

// ScoringService turns pending actions into immutable Score rows.
type ScoringService struct {
	DB     *gorm.DB
	Policy *Policy
	Caps   *CapService
	Clock  func() time.Time
}

func NewScoringService(db *gorm.DB, policy *Policy, caps *CapService) *ScoringService {
	return &ScoringService{DB: db, Policy: policy, Caps: caps, Clock: utcNow}
}

// ScoreAction scores one pending action. It returns ErrNotFound for unknown
// ids and ErrAlreadyScored when the action has left the pending state, which
// includes losing a race against a concurrent scorer.
func (s *ScoringService) ScoreAction(ctx context.Context, actionID, scoredBy string) (*ScoreResult, error) {
	if _, err := uuid.Parse(actionID); err != nil {
		return nil, fmt.Errorf("%w: invalid action_id", ErrValidation)
	}

	var out *ScoreResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var action models.Action
		if err := tx.First(&action, "id = ?", actionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("action %s: %w", actionID, ErrNotFound)
			}
			return fmt.Errorf("load action %s: %w", actionID, err)
		}
		if action.Status != models.ActionStatusPending {
			return fmt.Errorf("action %s is %s: %w", actionID, action.Status, ErrAlreadyScored)
		}

		ev, err := s.Policy.Evaluate(action.ActionType, action.Metadata.Data(), action.Impact.Data(), action.Integrity.Data())
		if err != nil {
			return err
		}

		decision, reason, final := ev.Decision, ev.Reason, ev.FinalReward
		failReasons := ev.FailReasons

		var capInfo *CapResult
		if decision == models.DecisionPass {
			capInfo, err = s.Caps.checkAndUpdateTx(tx, action.ActorID, action.ActionType, final)
			if err != nil {
				return err
			}
			switch {
			case !capInfo.Allowed:
				decision, reason, final = models.DecisionFail, "cap exceeded", 0
				failReasons = append(failReasons, "cap exceeded")
			case capInfo.Scaled:
				final = capInfo.EffectiveReward
				reason = "reward scaled to remaining cap"
			}
		}

		now := s.Clock()
		res := tx.Model(&models.Action{}).
			Where("id = ? AND status = ?", action.ID, models.ActionStatusPending).
			Updates(map[string]interface{}{
				"status":           models.ActionStatusScored,
				"scored_at":        now,
				"last_score_error": nil,
			})
		if res.Error != nil {
			return fmt.Errorf("transition action %s: %w", action.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("action %s: %w", action.ID, ErrAlreadyScored)
		}

		score := models.Score{
			ID:             uuid.NewString(),
			ActionID:       action.ID,
			PillarS:        ev.Pillars.S,
			PillarT:        ev.Pillars.T,
			PillarH:        ev.Pillars.H,
			PillarC:        ev.Pillars.C,
			PillarU:        ev.Pillars.U,
			LightScore:     ev.LightScore,
			BaseReward:     ev.BaseReward,
			MultiplierQ:    ev.Q,
			MultiplierI:    ev.I,
			MultiplierK:    ev.K,
			FinalReward:    final,
			Decision:       decision,
			DecisionReason: reason,
			FailReasons:    failReasons,
			ScoredBy:       scoredBy,
			PolicyVersion:  s.Policy.Version,
			CreatedAt:      now,
		}
		if err := tx.Create(&score).Error; err != nil {
			return fmt.Errorf("insert score for %s: %w", action.ID, err)
		}

		out = &ScoreResult{
			ActionID:       action.ID,
			Pillars:        ev.Pillars,
			LightScore:     ev.LightScore,
			BaseReward:     ev.BaseReward,
			MultiplierQ:    ev.Q,
			MultiplierI:    ev.I,
			MultiplierK:    ev.K,
			FinalReward:    final,
			Decision:       decision,
			DecisionReason: reason,
			FailReasons:    failReasons,
			CapInfo:        capInfo,
			PolicyVersion:  s.Policy.Version,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[SCORE] ✅ action=%s decision=%s light=%.2f reward=%.4f by=%s",
		out.ActionID, out.Decision, out.LightScore, out.FinalReward, scoredBy)
	return out, nil
}

// RecordFailure notes a failed scoring attempt on the action so operators can
// see actions that keep failing in the batch sweep.
func (s *ScoringService) RecordFailure(ctx context.Context, actionID string, cause error) {
	msg := cause.Error()
	err := s.DB.WithContext(context.WithoutCancel(ctx)).
		Model(&models.Action{}).
		Where("id = ? AND status = ?", actionID, models.ActionStatusPending).
		Updates(map[string]interface{}{
			"score_attempts":   gorm.Expr("score_attempts + 1"),
			"last_score_error": msg,
		}).Error
	if err != nil {
		log.Printf("[SCORE] ⚠️ failed to record scoring failure for %s: %v", actionID, err)
	}
}

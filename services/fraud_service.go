// services/fraud_service.go
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"pplp-service/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Detector thresholds.
const (
	botWindow             = time.Hour
	botMaxActionsPerHour  = 20
	botMinAvgInterval     = 60 * time.Second
	spamSampleSize        = 50
	spamMaxRepeats        = 2
	sybilMaxSharedUsers   = 2
	riskPointsPerSeverity = 15
	maxRiskScore          = 100
)

// Signal sources; CurrentRisk counts each source once.
const (
	sourceBotVolume    = "bot_volume"
	sourceBotCadence   = "bot_cadence"
	sourceSpamRepeat   = "spam_repeat"
	sourceSybilFlagged = "sybil_flagged_device"
	sourceSybilShared  = "sybil_shared_device"
)

// FraudReport is the outcome of one detection pass.
type FraudReport struct {
	ActorID      string               `json:"actor_id"`
	SignalsCount int                  `json:"signals_count"`
	RiskScore    int                  `json:"risk_score"`
	Signals      []models.FraudSignal `json:"signals"`
	MintBlocked  bool                 `json:"mint_blocked"`
}

// FraudService runs the BOT/SPAM/SYBIL detectors for one actor.
type FraudService struct {
	DB     *gorm.DB
	Policy *Policy
	Clock  func() time.Time
}

func NewFraudService(db *gorm.DB, policy *Policy) *FraudService {
	return &FraudService{DB: db, Policy: policy, Clock: utcNow}
}

// RiskScore sums severity × 15 over the signals, capped at 100.
func RiskScore(signals []models.FraudSignal) int {
	total := 0
	for _, sig := range signals {
		total += sig.Severity * riskPointsPerSeverity
	}
	return min(total, maxRiskScore)
}

// Detect runs all detectors, appends their signals and bumps the user tier.
func (s *FraudService) Detect(ctx context.Context, actorID string) (*FraudReport, error) {
	if actorID == "" {
		return nil, fmt.Errorf("%w: actor_id is required", ErrValidation)
	}
	if _, err := uuid.Parse(actorID); err != nil {
		return nil, fmt.Errorf("%w: invalid actor_id %q", ErrValidation, actorID)
	}
	db := s.DB.WithContext(ctx)
	now := s.Clock()

	var signals []models.FraudSignal
	for _, detect := range []func(*gorm.DB, string, time.Time) ([]models.FraudSignal, error){
		s.detectBot,
		s.detectSpam,
		s.detectSybil,
	} {
		found, err := detect(db, actorID, now)
		if err != nil {
			return nil, err
		}
		signals = append(signals, found...)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if len(signals) > 0 {
			if err := tx.Create(&signals).Error; err != nil {
				return fmt.Errorf("insert fraud signals: %w", err)
			}
		}
		tier := models.UserTier{
			ID:             uuid.NewString(),
			UserID:         actorID,
			FraudFlags:     len(signals),
			LastFraudCheck: &now,
			UpdatedAt:      now,
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"fraud_flags":      gorm.Expr("pplp_user_tiers.fraud_flags + ?", len(signals)),
				"last_fraud_check": now,
				"updated_at":       now,
			}),
		}).Create(&tier).Error
	})
	if err != nil {
		return nil, err
	}

	report := &FraudReport{
		ActorID:      actorID,
		SignalsCount: len(signals),
		RiskScore:    RiskScore(signals),
		Signals:      signals,
	}
	if report.Signals == nil {
		report.Signals = []models.FraudSignal{}
	}
	report.MintBlocked = report.RiskScore > s.Policy.MintBlockRiskThreshold

	log.Printf("[FRAUD] 🔎 actor=%s signals=%d risk=%d blocked=%t",
		actorID, report.SignalsCount, report.RiskScore, report.MintBlocked)
	return report, nil
}

func (s *FraudService) detectBot(db *gorm.DB, actorID string, now time.Time) ([]models.FraudSignal, error) {
	var stamps []time.Time
	if err := db.Model(&models.Action{}).
		Where("actor_id = ? AND created_at >= ?", actorID, now.Add(-botWindow)).
		Order("created_at ASC").
		Pluck("created_at", &stamps).Error; err != nil {
		return nil, fmt.Errorf("bot detector: %w", err)
	}

	var out []models.FraudSignal
	if len(stamps) > botMaxActionsPerHour {
		out = append(out, newSignal(actorID, models.FraudSignalBot, 3, sourceBotVolume, now, datatypes.JSONMap{
			"actions_per_hour": len(stamps),
			"threshold":        botMaxActionsPerHour,
		}))
	}
	if len(stamps) >= 2 {
		span := stamps[len(stamps)-1].Sub(stamps[0])
		avg := span / time.Duration(len(stamps)-1)
		if avg < botMinAvgInterval {
			out = append(out, newSignal(actorID, models.FraudSignalBot, 2, sourceBotCadence, now, datatypes.JSONMap{
				"avg_interval_seconds": avg.Seconds(),
				"sample_size":          len(stamps),
			}))
		}
	}
	return out, nil
}

func (s *FraudService) detectSpam(db *gorm.DB, actorID string, now time.Time) ([]models.FraudSignal, error) {
	var hashes []string
	if err := db.Model(&models.Action{}).
		Where("actor_id = ? AND status <> ?", actorID, models.ActionStatusPending).
		Order("created_at DESC").
		Limit(spamSampleSize).
		Pluck("canonical_hash", &hashes).Error; err != nil {
		return nil, fmt.Errorf("spam detector: %w", err)
	}

	counts := make(map[string]int, len(hashes))
	for _, h := range hashes {
		counts[h]++
	}
	groups, worst := 0, 0
	for _, n := range counts {
		if n > spamMaxRepeats {
			groups++
			worst = max(worst, n)
		}
	}
	if groups == 0 {
		return nil, nil
	}
	return []models.FraudSignal{newSignal(actorID, models.FraudSignalSpam, 2, sourceSpamRepeat, now, datatypes.JSONMap{
		"duplicate_groups": groups,
		"max_repeats":      worst,
		"sample_size":      len(hashes),
	})}, nil
}

func (s *FraudService) detectSybil(db *gorm.DB, actorID string, now time.Time) ([]models.FraudSignal, error) {
	var devices []models.DeviceRegistry
	if err := db.Where("user_id = ?", actorID).Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("sybil detector: %w", err)
	}

	var out []models.FraudSignal
	for _, d := range devices {
		if d.IsFlagged {
			out = append(out, newSignal(actorID, models.FraudSignalSybil, 4, sourceSybilFlagged, now, datatypes.JSONMap{
				"device_hash": d.DeviceHash,
			}))
		}
		var others int64
		if err := db.Model(&models.DeviceRegistry{}).
			Where("device_hash = ? AND user_id <> ?", d.DeviceHash, actorID).
			Distinct("user_id").
			Count(&others).Error; err != nil {
			return nil, fmt.Errorf("sybil detector: %w", err)
		}
		if others > sybilMaxSharedUsers {
			out = append(out, newSignal(actorID, models.FraudSignalSybil, 3, sourceSybilShared, now, datatypes.JSONMap{
				"device_hash": d.DeviceHash,
				"other_users": others,
			}))
		}
	}
	return out, nil
}

// CurrentRisk scores the actor from signals recorded within FraudLookback.
// Repeated detection runs append the same findings again, so each source
// contributes only its most severe signal.
func (s *FraudService) CurrentRisk(ctx context.Context, actorID string) (int, error) {
	var signals []models.FraudSignal
	if err := s.DB.WithContext(ctx).
		Where("actor_id = ? AND created_at >= ?", actorID, s.Clock().Add(-s.Policy.FraudLookback)).
		Find(&signals).Error; err != nil {
		return 0, fmt.Errorf("load fraud signals for %s: %w", actorID, err)
	}
	worst := make(map[string]models.FraudSignal)
	for _, sig := range signals {
		if cur, ok := worst[sig.Source]; !ok || sig.Severity > cur.Severity {
			worst[sig.Source] = sig
		}
	}
	distinct := make([]models.FraudSignal, 0, len(worst))
	for _, sig := range worst {
		distinct = append(distinct, sig)
	}
	return RiskScore(distinct), nil
}

func newSignal(actorID string, kind models.FraudSignalType, severity int, source string, at time.Time, details datatypes.JSONMap) models.FraudSignal {
	return models.FraudSignal{
		ID:         uuid.NewString(),
		ActorID:    actorID,
		SignalType: kind,
		Severity:   severity,
		Details:    details,
		Source:     source,
		CreatedAt:  at,
	}
}

// services/batch_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"pplp-service/models"

	"gorm.io/gorm"
)

// BatchResult summarizes one sweep.
type BatchResult struct {
	Total    int      `json:"total"`
	Scored   int      `json:"scored"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Deferred int      `json:"deferred"`
	Expired  int64    `json:"expired"`
	Errors   []string `json:"errors"`
}

// MintExpirer expires mint requests that were never signed.
type MintExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// BatchService is the scheduled fallback that scores whatever intake left pending.
type BatchService struct {
	DB      *gorm.DB
	Policy  *Policy
	Scorer  ActionScorer
	Expirer MintExpirer
}

func NewBatchService(db *gorm.DB, policy *Policy, scorer ActionScorer, expirer MintExpirer) *BatchService {
	return &BatchService{DB: db, Policy: policy, Scorer: scorer, Expirer: expirer}
}

// Run scores up to BatchSize of the oldest pending actions, one at a time,
// then expires stale mint requests. Per-item failures are counted and
// reported (capped at BatchErrorLimit) without aborting the sweep. Hitting the
// batch deadline is not an error: unprocessed actions are reported as deferred.
func (s *BatchService) Run(ctx context.Context) (*BatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Policy.BatchTimeout)
	defer cancel()

	var ids []string
	if err := s.DB.WithContext(ctx).
		Model(&models.Action{}).
		Where("status = ?", models.ActionStatusPending).
		Order("created_at ASC").
		Limit(s.Policy.BatchSize).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("fetch pending actions: %w", err)
	}

	res := &BatchResult{Total: len(ids), Errors: []string{}}
	for i, id := range ids {
		if ctx.Err() != nil {
			res.Deferred = len(ids) - i
			log.Printf("[BATCH] ⏱️ deadline reached, %d action(s) deferred to next sweep", res.Deferred)
			break
		}

		_, err := s.Scorer.ScoreAction(ctx, id, "batch")
		switch {
		case err == nil:
			res.Scored++
		case errors.Is(err, ErrAlreadyScored):
			res.Skipped++
		default:
			res.Failed++
			s.Scorer.RecordFailure(ctx, id, err)
			if len(res.Errors) < s.Policy.BatchErrorLimit {
				res.Errors = append(res.Errors, fmt.Sprintf("action %s: %v", id, err))
			}
			log.Printf("[BATCH] ❌ action %s: %v", id, err)
		}
	}

	if s.Expirer != nil {
		expired, err := s.Expirer.ExpireStale(context.WithoutCancel(ctx))
		if err != nil {
			return res, fmt.Errorf("expire mint requests: %w", err)
		}
		res.Expired = expired
	}

	log.Printf("[BATCH] ✅ total=%d scored=%d skipped=%d failed=%d deferred=%d expired=%d",
		res.Total, res.Scored, res.Skipped, res.Failed, res.Deferred, res.Expired)
	return res, nil
}

// services/policy.go
package services

import (
	"fmt"
	"time"

	"pplp-service/models"

	"github.com/shopspring/decimal"
)

// PillarWeights combine the five pillars into the light score.
type PillarWeights struct {
	S float64 `mapstructure:"s"`
	T float64 `mapstructure:"t"`
	H float64 `mapstructure:"h"`
	C float64 `mapstructure:"c"`
	U float64 `mapstructure:"u"`
}

func (w PillarWeights) sum() float64 {
	return w.S + w.T + w.H + w.C + w.U
}

// CapLimit bounds one action type inside one cap window.
type CapLimit struct {
	MaxActions int     `mapstructure:"max_actions"`
	MaxReward  float64 `mapstructure:"max_reward"`
}

// DistributionSplit holds the cascade percentages (must total 100).
type DistributionSplit struct {
	UserPct     decimal.Decimal
	GenesisPct  decimal.Decimal
	PlatformPct decimal.Decimal
	PartnersPct decimal.Decimal
}

// IntakeDefaults are applied to trust-signal fields the caller left out.
type IntakeDefaults struct {
	HasEvidence    bool
	Verified       bool
	SentimentScore float64
	Beneficiaries  int
	Outcome        string
	PromotesUnity  bool
	HealingEffect  bool
	SourceVerified bool
	AntiSybilScore float64
}

// Policy is the versioned set of constants the scorer, cap enforcer, batch
// processor and mint authorizer run against. Scores record Version so a
// historical action can be re-evaluated under the policy it was scored with.
type Policy struct {
	Version string

	BaseRewards    map[string]float64
	Weights        PillarWeights
	MinLightScore  float64
	MinTruthPillar float64

	Caps       map[string]CapLimit
	DefaultCap CapLimit
	CapWindow  time.Duration

	DuplicateWindow time.Duration
	Defaults        IntakeDefaults

	InlineScoreAttempts int
	InlineScoreBackoff  time.Duration
	InlineScoreTimeout  time.Duration

	BatchSize       int
	BatchErrorLimit int
	BatchTimeout    time.Duration

	Distribution   DistributionSplit
	MintRequestTTL time.Duration
	TokenDecimals  int32

	FraudLookback          time.Duration
	MintBlockRiskThreshold int
}

// DefaultPolicy returns policy v1.0.
func DefaultPolicy() *Policy {
	return &Policy{
		Version: "v1.0",
		BaseRewards: map[string]float64{
			models.ActionTypePost:       100,
			models.ActionTypeComment:    40,
			models.ActionTypeShare:      30,
			models.ActionTypeReaction:   10,
			models.ActionTypeFriend:     20,
			models.ActionTypeSignup:     200,
			models.ActionTypeLivestream: 150,
			models.ActionTypeDonate:     120,
			models.ActionTypeMentor:     150,
		},
		Weights:        PillarWeights{S: 0.25, T: 0.20, H: 0.20, C: 0.20, U: 0.15},
		MinLightScore:  60,
		MinTruthPillar: 60,
		Caps: map[string]CapLimit{
			models.ActionTypePost:       {MaxActions: 10, MaxReward: 5000},
			models.ActionTypeComment:    {MaxActions: 50, MaxReward: 2000},
			models.ActionTypeShare:      {MaxActions: 20, MaxReward: 1000},
			models.ActionTypeReaction:   {MaxActions: 100, MaxReward: 500},
			models.ActionTypeFriend:     {MaxActions: 20, MaxReward: 400},
			models.ActionTypeSignup:     {MaxActions: 1, MaxReward: 2000},
			models.ActionTypeLivestream: {MaxActions: 3, MaxReward: 3000},
			models.ActionTypeDonate:     {MaxActions: 10, MaxReward: 3000},
			models.ActionTypeMentor:     {MaxActions: 5, MaxReward: 3000},
		},
		DefaultCap:      CapLimit{MaxActions: 20, MaxReward: 1000},
		CapWindow:       24 * time.Hour,
		DuplicateWindow: 24 * time.Hour,
		Defaults: IntakeDefaults{
			HasEvidence:    true,
			Verified:       false,
			SentimentScore: 0.75,
			Beneficiaries:  1,
			Outcome:        models.OutcomePositive,
			PromotesUnity:  true,
			HealingEffect:  false,
			SourceVerified: true,
			AntiSybilScore: 0.85,
		},
		InlineScoreAttempts: 2,
		InlineScoreBackoff:  200 * time.Millisecond,
		InlineScoreTimeout:  5 * time.Second,
		BatchSize:           50,
		BatchErrorLimit:     10,
		BatchTimeout:        50 * time.Second,
		Distribution: DistributionSplit{
			UserPct:     decimal.NewFromInt(70),
			GenesisPct:  decimal.NewFromInt(10),
			PlatformPct: decimal.NewFromInt(10),
			PartnersPct: decimal.NewFromInt(10),
		},
		MintRequestTTL:         24 * time.Hour,
		TokenDecimals:          18,
		FraudLookback:          7 * 24 * time.Hour,
		MintBlockRiskThreshold: 50,
	}
}

// Validate rejects policies that would break scoring or the distribution split.
func (p *Policy) Validate() error {
	if p.Version == "" {
		return fmt.Errorf("%w: policy version is empty", ErrValidation)
	}
	if len(p.BaseRewards) == 0 {
		return fmt.Errorf("%w: policy has no base rewards", ErrValidation)
	}
	for t, r := range p.BaseRewards {
		if r < 0 {
			return fmt.Errorf("%w: negative base reward for %q", ErrValidation, t)
		}
	}
	if s := p.Weights.sum(); s < 0.999 || s > 1.001 {
		return fmt.Errorf("%w: pillar weights sum to %.3f, want 1", ErrValidation, s)
	}
	d := p.Distribution
	total := d.UserPct.Add(d.GenesisPct).Add(d.PlatformPct).Add(d.PartnersPct)
	if !total.Equal(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: distribution split sums to %s, want 100", ErrValidation, total)
	}
	if d.UserPct.IsNegative() || d.GenesisPct.IsNegative() || d.PlatformPct.IsNegative() || d.PartnersPct.IsNegative() {
		return fmt.Errorf("%w: negative distribution percentage", ErrValidation)
	}
	if p.BatchSize <= 0 || p.BatchErrorLimit < 0 {
		return fmt.Errorf("%w: invalid batch settings", ErrValidation)
	}
	if p.CapWindow <= 0 || p.DuplicateWindow <= 0 || p.MintRequestTTL <= 0 {
		return fmt.Errorf("%w: windows must be positive", ErrValidation)
	}
	return nil
}

// BaseReward looks up the reward for an action type.
func (p *Policy) BaseReward(actionType string) (float64, bool) {
	r, ok := p.BaseRewards[actionType]
	return r, ok
}

// CapFor returns the cap limit for an action type, falling back to DefaultCap.
func (p *Policy) CapFor(actionType string) CapLimit {
	if c, ok := p.Caps[actionType]; ok {
		return c
	}
	return p.DefaultCap
}

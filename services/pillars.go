// services/pillars.go
package services

import (
	"fmt"
	"math"

	"pplp-service/models"
)

// Pillar bonuses for policy v1. Every pillar starts at pillarBase.
const (
	pillarBase = 50.0

	serviceBonusPositive      = 15
	serviceBonusBeneficiaries = 10
	serviceBonusEducational   = 15
	serviceBonusHealing       = 10

	truthBonusEvidence       = 20
	truthBonusVerified       = 15
	truthBonusSourceVerified = 15

	healingBonusHealing   = 20
	healingBonusSentiment = 15
	healingBonusPositive  = 10

	contributionBonusLong        = 10 // content > 100
	contributionBonusVeryLong    = 10 // content > 500, on top of the above
	contributionBonusEducational = 15
	contributionBonusReach       = 15 // beneficiaries > 5

	unityBonusPromotes  = 20
	unityBonusReach     = 10 // beneficiaries > 10
	unityBonusSentiment = 10 // sentiment > 0.8
	unityBonusAntiSybil = 10 // anti_sybil > 0.8
)

// Multiplier bounds.
const (
	minQuality, maxQuality     = 0.5, 3.0
	minImpact, maxImpact       = 0.5, 5.0
	minIntegrity, maxIntegrity = 0.0, 1.0
)

// PillarScores are the five 0–100 sub-scores of one action.
type PillarScores struct {
	S float64 `json:"S"`
	T float64 `json:"T"`
	H float64 `json:"H"`
	C float64 `json:"C"`
	U float64 `json:"U"`
}

// ScorePillars computes the five pillars from the action's inputs.
func ScorePillars(m models.ActionMetadata, im models.ActionImpact, ig models.ActionIntegrity) PillarScores {
	positive := im.Outcome == models.OutcomePositive

	s := pillarBase
	if positive {
		s += serviceBonusPositive
	}
	if im.Beneficiaries > 0 {
		s += serviceBonusBeneficiaries
	}
	if m.IsEducational {
		s += serviceBonusEducational
	}
	if im.HealingEffect {
		s += serviceBonusHealing
	}

	t := pillarBase
	if m.HasEvidence {
		t += truthBonusEvidence
	}
	if m.Verified {
		t += truthBonusVerified
	}
	if ig.SourceVerified {
		t += truthBonusSourceVerified
	}

	h := pillarBase
	if im.HealingEffect {
		h += healingBonusHealing
	}
	if m.SentimentScore > 0.7 {
		h += healingBonusSentiment
	}
	if positive {
		h += healingBonusPositive
	}

	c := pillarBase
	if m.ContentLength > 100 {
		c += contributionBonusLong
	}
	if m.ContentLength > 500 {
		c += contributionBonusVeryLong
	}
	if m.IsEducational {
		c += contributionBonusEducational
	}
	if im.Beneficiaries > 5 {
		c += contributionBonusReach
	}

	u := pillarBase
	if im.PromotesUnity {
		u += unityBonusPromotes
	}
	if im.Beneficiaries > 10 {
		u += unityBonusReach
	}
	if m.SentimentScore > 0.8 {
		u += unityBonusSentiment
	}
	if ig.AntiSybilScore > 0.8 {
		u += unityBonusAntiSybil
	}

	return PillarScores{
		S: clamp(s, 0, 100),
		T: clamp(t, 0, 100),
		H: clamp(h, 0, 100),
		C: clamp(c, 0, 100),
		U: clamp(u, 0, 100),
	}
}

// LightScore is the weighted combination of the pillars, rounded to 2 places.
func (w PillarWeights) LightScore(p PillarScores) float64 {
	ls := w.S*p.S + w.T*p.T + w.H*p.H + w.C*p.C + w.U*p.U
	return round(clamp(ls, 0, 100), 2)
}

// QualityMultiplier (Q) rewards evidence, educational value, verification and length.
func QualityMultiplier(m models.ActionMetadata) float64 {
	q := 1.0
	if m.HasEvidence {
		q += 0.3
	}
	if m.IsEducational {
		q += 0.5
	}
	if m.Verified {
		q += 0.2
	}
	switch {
	case m.ContentLength > 500:
		q += 0.5
	case m.ContentLength > 200:
		q += 0.3
	}
	return round(clamp(q, minQuality, maxQuality), 2)
}

// ImpactMultiplier (I) scales with reach and outcome.
func ImpactMultiplier(im models.ActionImpact) float64 {
	i := 1.0
	switch {
	case im.Beneficiaries > 10:
		i += 2.0
	case im.Beneficiaries > 5:
		i += 1.0
	case im.Beneficiaries > 1:
		i += 0.5
	}
	if im.Outcome == models.OutcomePositive {
		i += 0.5
	}
	if im.HealingEffect {
		i += 0.5
	}
	return round(clamp(i, minImpact, maxImpact), 2)
}

// IntegrityMultiplier (K) is a step function of the anti-sybil confidence.
func IntegrityMultiplier(ig models.ActionIntegrity) float64 {
	a := ig.AntiSybilScore
	switch {
	case a < 0.3:
		return 0
	case a < 0.5:
		return 0.3
	case a < 0.7:
		return 0.7
	default:
		return round(clamp(math.Min(1.0, a), minIntegrity, maxIntegrity), 4)
	}
}

// Evaluation is the pure scoring outcome of one action, before caps.
type Evaluation struct {
	Pillars     PillarScores    `json:"pillars"`
	LightScore  float64         `json:"light_score"`
	BaseReward  float64         `json:"base_reward"`
	Q           float64         `json:"multiplier_q"`
	I           float64         `json:"multiplier_i"`
	K           float64         `json:"multiplier_k"`
	RawReward   float64         `json:"raw_reward"`
	FinalReward float64         `json:"final_reward"`
	Decision    models.Decision `json:"decision"`
	Reason      string          `json:"decision_reason"`
	FailReasons []string        `json:"fail_reasons"`
}

// Evaluate runs the full pillar/multiplier model for one action. It is a pure
// function of its inputs and the policy.
func (p *Policy) Evaluate(actionType string, m models.ActionMetadata, im models.ActionImpact, ig models.ActionIntegrity) (Evaluation, error) {
	base, ok := p.BaseReward(actionType)
	if !ok {
		return Evaluation{}, fmt.Errorf("%w: unsupported action_type %q", ErrValidation, actionType)
	}

	pillars := ScorePillars(m, im, ig)
	ev := Evaluation{
		Pillars:     pillars,
		LightScore:  p.Weights.LightScore(pillars),
		BaseReward:  base,
		Q:           QualityMultiplier(m),
		I:           ImpactMultiplier(im),
		K:           IntegrityMultiplier(ig),
		FailReasons: []string{},
	}
	ev.RawReward = round(math.Max(0, base*ev.Q*ev.I*ev.K), 4)

	if ev.LightScore < p.MinLightScore {
		ev.FailReasons = append(ev.FailReasons,
			fmt.Sprintf("light_score %.2f below minimum %.0f", ev.LightScore, p.MinLightScore))
	}
	if pillars.T < p.MinTruthPillar {
		ev.FailReasons = append(ev.FailReasons,
			fmt.Sprintf("truth pillar %.0f below minimum %.0f", pillars.T, p.MinTruthPillar))
	}
	if ev.K == 0 {
		ev.FailReasons = append(ev.FailReasons,
			fmt.Sprintf("integrity too low (anti_sybil_score %.2f)", ig.AntiSybilScore))
	}

	if len(ev.FailReasons) > 0 {
		ev.Decision = models.DecisionFail
		ev.Reason = ev.FailReasons[0]
		ev.FinalReward = 0
	} else {
		ev.Decision = models.DecisionPass
		ev.Reason = "all pillar thresholds met"
		ev.FinalReward = ev.RawReward
	}
	return ev, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

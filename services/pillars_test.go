package services

import (
	"strings"
	"testing"

	"pplp-service/models"

	"github.com/stretchr/testify/require"
)

func TestEvaluate_EducationalLongPost(t *testing.T) {
	p := DefaultPolicy()
	m := models.ActionMetadata{
		Content:        strings.Repeat("A", 600),
		ContentLength:  600,
		HasEvidence:    true,
		IsEducational:  true,
		SentimentScore: p.Defaults.SentimentScore,
	}
	im := models.ActionImpact{Beneficiaries: 12, Outcome: models.OutcomePositive, PromotesUnity: true}
	ig := models.ActionIntegrity{SourceVerified: true, AntiSybilScore: 0.9}

	ev, err := p.Evaluate(models.ActionTypePost, m, im, ig)
	require.NoError(t, err)

	require.Equal(t, PillarScores{S: 90, T: 85, H: 75, C: 100, U: 90}, ev.Pillars)
	require.InDelta(t, 88.0, ev.LightScore, 1e-9)
	require.InDelta(t, 2.3, ev.Q, 1e-9)
	require.InDelta(t, 3.5, ev.I, 1e-9)
	require.InDelta(t, 0.9, ev.K, 1e-9)
	require.Equal(t, models.DecisionPass, ev.Decision)
	require.InDelta(t, 724.5, ev.FinalReward, 1e-6)
	require.Empty(t, ev.FailReasons)
}

func TestEvaluate_LowIntegrityZeroesReward(t *testing.T) {
	p := DefaultPolicy()
	m := models.ActionMetadata{HasEvidence: true, SentimentScore: 0.9, ContentLength: 300}
	im := models.ActionImpact{Beneficiaries: 20, Outcome: models.OutcomePositive, PromotesUnity: true, HealingEffect: true}
	ig := models.ActionIntegrity{SourceVerified: true, AntiSybilScore: 0.2}

	ev, err := p.Evaluate(models.ActionTypeComment, m, im, ig)
	require.NoError(t, err)
	require.Zero(t, ev.K)
	require.Zero(t, ev.FinalReward)
	require.Equal(t, models.DecisionFail, ev.Decision)
	require.NotEmpty(t, ev.FailReasons)
	require.Contains(t, strings.Join(ev.FailReasons, ";"), "integrity")
}

func TestEvaluate_LowTruthFails(t *testing.T) {
	p := DefaultPolicy()
	m := models.ActionMetadata{SentimentScore: 0.9, IsEducational: true, ContentLength: 600}
	im := models.ActionImpact{Beneficiaries: 20, Outcome: models.OutcomePositive, PromotesUnity: true, HealingEffect: true}
	ig := models.ActionIntegrity{AntiSybilScore: 0.95}

	ev, err := p.Evaluate(models.ActionTypePost, m, im, ig)
	require.NoError(t, err)
	require.Equal(t, 50.0, ev.Pillars.T)
	require.Equal(t, models.DecisionFail, ev.Decision)
	require.Zero(t, ev.FinalReward)
	require.Contains(t, ev.Reason, "truth pillar")
}

func TestEvaluate_UnknownType(t *testing.T) {
	_, err := DefaultPolicy().Evaluate("teleport", models.ActionMetadata{}, models.ActionImpact{}, models.ActionIntegrity{})
	require.ErrorIs(t, err, ErrValidation)
}

func TestIntegrityMultiplierSteps(t *testing.T) {
	cases := []struct {
		score float64
		want  float64
	}{
		{0, 0},
		{0.29, 0},
		{0.3, 0.3},
		{0.49, 0.3},
		{0.5, 0.7},
		{0.69, 0.7},
		{0.7, 0.7},
		{0.85, 0.85},
		{1, 1},
		{1.7, 1},
	}
	for _, tc := range cases {
		got := IntegrityMultiplier(models.ActionIntegrity{AntiSybilScore: tc.score})
		require.InDelta(t, tc.want, got, 1e-9, "anti_sybil_score=%v", tc.score)
	}
}

// Sweeps a grid of inputs: every evaluation stays inside its bounds and
// repeated evaluation is identical.
func TestEvaluate_BoundsAndDeterminism(t *testing.T) {
	p := DefaultPolicy()
	bools := []bool{false, true}
	for _, evidence := range bools {
		for _, edu := range bools {
			for _, healing := range bools {
				for _, length := range []int{0, 150, 250, 1000} {
					for _, benef := range []int{0, 3, 8, 50} {
						for _, sybil := range []float64{0, 0.4, 0.6, 0.99} {
							m := models.ActionMetadata{HasEvidence: evidence, IsEducational: edu, Verified: edu, ContentLength: length, SentimentScore: 0.95}
							im := models.ActionImpact{Beneficiaries: benef, Outcome: models.OutcomePositive, HealingEffect: healing, PromotesUnity: true}
							ig := models.ActionIntegrity{SourceVerified: evidence, AntiSybilScore: sybil}

							a, err := p.Evaluate(models.ActionTypeMentor, m, im, ig)
							require.NoError(t, err)
							b, err := p.Evaluate(models.ActionTypeMentor, m, im, ig)
							require.NoError(t, err)
							require.Equal(t, a, b)

							for _, v := range []float64{a.Pillars.S, a.Pillars.T, a.Pillars.H, a.Pillars.C, a.Pillars.U, a.LightScore} {
								require.GreaterOrEqual(t, v, 0.0)
								require.LessOrEqual(t, v, 100.0)
							}
							require.True(t, a.Q >= 0.5 && a.Q <= 3.0, "Q=%v", a.Q)
							require.True(t, a.I >= 0.5 && a.I <= 5.0, "I=%v", a.I)
							require.True(t, a.K >= 0 && a.K <= 1, "K=%v", a.K)
							require.GreaterOrEqual(t, a.FinalReward, 0.0)
						}
					}
				}
			}
		}
	}
}

package services

import (
	"testing"

	"pplp-service/models"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestCanonicalHash_NormalizesContent(t *testing.T) {
	a := CanonicalHash("u1", "post", nil, "Hello   World\n")
	b := CanonicalHash("u1", "post", nil, "hello world")
	c := CanonicalHash("u1", "post", nil, "ｈｅｌｌｏ　ｗｏｒｌｄ") // fullwidth folds under NFKC
	require.Equal(t, a, b)
	require.Equal(t, a, c)
	require.Len(t, a, 66)
}

func TestCanonicalHash_DistinguishesActorTypeAndTarget(t *testing.T) {
	target := "post-42"
	base := CanonicalHash("u1", "comment", &target, "nice")
	require.NotEqual(t, base, CanonicalHash("u2", "comment", &target, "nice"))
	require.NotEqual(t, base, CanonicalHash("u1", "share", &target, "nice"))
	require.NotEqual(t, base, CanonicalHash("u1", "comment", nil, "nice"))
}

func TestEvidenceHash_Stable(t *testing.T) {
	action := &models.Action{
		PlatformID: "fun_profile",
		ActionType: "post",
		ActorID:    "u1",
		Metadata:   datatypes.NewJSONType(models.ActionMetadata{Content: "x", ContentLength: 1}),
		Impact:     datatypes.NewJSONType(models.ActionImpact{Beneficiaries: 1}),
		Integrity:  datatypes.NewJSONType(models.ActionIntegrity{AntiSybilScore: 0.9}),
	}
	h1, err := EvidenceHash(action)
	require.NoError(t, err)
	h2, err := EvidenceHash(action)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	action.Integrity = datatypes.NewJSONType(models.ActionIntegrity{AntiSybilScore: 0.1})
	h3, err := EvidenceHash(action)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}

func TestMintEvidenceHash_OrderMatters(t *testing.T) {
	require.Equal(t, MintEvidenceHash([]string{"post", "share"}), MintEvidenceHash([]string{"post", "share"}))
	require.NotEqual(t, MintEvidenceHash([]string{"post", "share"}), MintEvidenceHash([]string{"share", "post"}))
}

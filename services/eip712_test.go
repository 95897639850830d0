package services

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"
)

var testEIP712 = EIP712Config{
	Name:              "FUN Money",
	Version:           "1",
	ChainID:           97,
	VerifyingContract: "0x1aa8DE8B1E4465C6d729E8564893f8EF823a5ff2",
}

func testProof(nonce int64) PureLoveProof {
	return PureLoveProof{
		User:         "0x8ba1f109551bd432803012645ac136ddd64dba72",
		ActionName:   "Light Action",
		AmountWei:    "210000000000000000000",
		EvidenceHash: MintEvidenceHash([]string{"post", "comment"}),
		Nonce:        nonce,
	}
}

func TestBuildPureLoveProof_MatchesTypedDataHash(t *testing.T) {
	data, err := BuildPureLoveProof(testEIP712, testProof(1))
	require.NoError(t, err)

	require.Equal(t, "PureLoveProof", data.PrimaryType)
	require.Equal(t, "0x8ba1f109551bD432803012645Ac136ddd64DBA72", data.Message["user"])
	require.Equal(t, "210000000000000000000", data.Message["amount"])
	require.Equal(t, "1", data.Message["nonce"])

	hash, _, err := apitypes.TypedDataAndHash(data.TypedData)
	require.NoError(t, err)
	require.Equal(t, hexutil.Encode(hash), data.Digest)
}

func TestBuildPureLoveProof_DigestDependsOnNonce(t *testing.T) {
	a, err := BuildPureLoveProof(testEIP712, testProof(1))
	require.NoError(t, err)
	b, err := BuildPureLoveProof(testEIP712, testProof(1))
	require.NoError(t, err)
	c, err := BuildPureLoveProof(testEIP712, testProof(2))
	require.NoError(t, err)

	require.Equal(t, a.Digest, b.Digest)
	require.NotEqual(t, a.Digest, c.Digest)
}

func TestBuildPureLoveProof_RejectsBadInput(t *testing.T) {
	p := testProof(1)
	p.User = "not-an-address"
	_, err := BuildPureLoveProof(testEIP712, p)
	require.ErrorIs(t, err, ErrValidation)

	p = testProof(1)
	p.AmountWei = "12.5"
	_, err = BuildPureLoveProof(testEIP712, p)
	require.Error(t, err)

	cfg := testEIP712
	cfg.VerifyingContract = ""
	_, err = BuildPureLoveProof(cfg, testProof(1))
	require.Error(t, err)
}

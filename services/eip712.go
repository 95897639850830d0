// services/eip712.go
package services

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const pureLoveProofType = "PureLoveProof"

// EIP712Config identifies the minting contract the signer targets.
type EIP712Config struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract string
}

// EIP712Data is the typed-data payload a wallet signs, plus its digest.
type EIP712Data struct {
	apitypes.TypedData
	Digest string `json:"digest"`
}

// PureLoveProof is the message the minting contract verifies.
type PureLoveProof struct {
	User         string
	ActionName   string
	AmountWei    string
	EvidenceHash string
	Nonce        int64
}

var pureLoveProofTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	pureLoveProofType: {
		{Name: "user", Type: "address"},
		{Name: "actionType", Type: "bytes32"},
		{Name: "amount", Type: "uint256"},
		{Name: "evidenceHash", Type: "bytes32"},
		{Name: "nonce", Type: "uint256"},
	},
}

// BuildPureLoveProof assembles the typed data for one mint request and hashes
// it as keccak256("\x19\x01" ‖ domainSeparator ‖ structHash).
func BuildPureLoveProof(cfg EIP712Config, proof PureLoveProof) (*EIP712Data, error) {
	if !common.IsHexAddress(proof.User) {
		return nil, fmt.Errorf("%w: invalid user address %q", ErrValidation, proof.User)
	}
	if !common.IsHexAddress(cfg.VerifyingContract) {
		return nil, fmt.Errorf("invalid verifying contract %q", cfg.VerifyingContract)
	}
	amount, ok := new(big.Int).SetString(proof.AmountWei, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", proof.AmountWei)
	}

	typedData := apitypes.TypedData{
		Types:       pureLoveProofTypes,
		PrimaryType: pureLoveProofType,
		Domain: apitypes.TypedDataDomain{
			Name:              cfg.Name,
			Version:           cfg.Version,
			ChainId:           (*math.HexOrDecimal256)(big.NewInt(cfg.ChainID)),
			VerifyingContract: common.HexToAddress(cfg.VerifyingContract).Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"user":         common.HexToAddress(proof.User).Hex(),
			"actionType":   crypto.Keccak256Hash([]byte(proof.ActionName)).Hex(),
			"amount":       amount.String(),
			"evidenceHash": proof.EvidenceHash,
			"nonce":        big.NewInt(proof.Nonce).String(),
		},
	}

	dataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash struct: %w", err)
	}
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, dataHash...)

	return &EIP712Data{
		TypedData: typedData,
		Digest:    crypto.Keccak256Hash(rawData).Hex(),
	}, nil
}

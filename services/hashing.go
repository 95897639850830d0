// services/hashing.go
package services

import (
	"encoding/json"
	"strings"

	"pplp-service/models"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// normalizeContent folds case, applies NFKC and collapses whitespace so that
// trivially re-formatted resubmissions fingerprint identically.
func normalizeContent(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// CanonicalHash fingerprints an action for duplicate detection.
func CanonicalHash(actorID, actionType string, targetID *string, content string) string {
	target := ""
	if targetID != nil {
		target = *targetID
	}
	parts := []string{actorID, actionType, target, normalizeContent(content)}
	return crypto.Keccak256Hash([]byte(strings.Join(parts, "|"))).Hex()
}

// evidencePayload fixes the field order of the evidence serialization.
type evidencePayload struct {
	PlatformID string                 `json:"platform_id"`
	ActionType string                 `json:"action_type"`
	ActorID    string                 `json:"actor_id"`
	TargetID   string                 `json:"target_id"`
	Metadata   models.ActionMetadata  `json:"metadata"`
	Impact     models.ActionImpact    `json:"impact"`
	Integrity  models.ActionIntegrity `json:"integrity"`
}

// EvidenceHash is the keccak256 digest of the canonical JSON of an action's
// discriminating fields.
func EvidenceHash(a *models.Action) (string, error) {
	target := ""
	if a.TargetID != nil {
		target = *a.TargetID
	}
	b, err := json.Marshal(evidencePayload{
		PlatformID: a.PlatformID,
		ActionType: a.ActionType,
		ActorID:    a.ActorID,
		TargetID:   target,
		Metadata:   a.Metadata.Data(),
		Impact:     a.Impact.Data(),
		Integrity:  a.Integrity.Data(),
	})
	if err != nil {
		return "", err
	}
	return crypto.Keccak256Hash(b).Hex(), nil
}

// MintEvidenceHash anchors a mint request to the action types it bundles.
func MintEvidenceHash(actionTypes []string) string {
	return crypto.Keccak256Hash([]byte(strings.Join(actionTypes, ","))).Hex()
}

// services/mint_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"pplp-service/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultActionName = "Light Action"

// RiskChecker reports an actor's current fraud risk (0–100).
type RiskChecker interface {
	CurrentRisk(ctx context.Context, actorID string) (int, error)
}

// MintOutbox receives signed-later payloads for the off-chain signer.
type MintOutbox interface {
	Publish(ctx context.Context, key string, body []byte) error
}

type AuthorizeMintInput struct {
	ActionIDs        []string `json:"action_ids"`
	RecipientAddress string   `json:"recipient_address"`
	ActionName       string   `json:"action_name"`
}

// MintAuthorization is returned to the admin tooling and forwarded to the signer.
type MintAuthorization struct {
	MintRequestID    string          `json:"mint_request_id"`
	UserID           string          `json:"user_id"`
	RecipientAddress string          `json:"recipient_address"`
	TotalReward      decimal.Decimal `json:"total_reward"`
	AmountWei        string          `json:"amount_wei"`
	Distribution     Distribution    `json:"distribution"`
	Nonce            int64           `json:"nonce"`
	EvidenceHash     string          `json:"evidence_hash"`
	ActionsCount     int             `json:"actions_count"`
	EIP712Data       *EIP712Data     `json:"eip712_data"`
	ExpiresAt        time.Time       `json:"expires_at"`
}

// MintRequestView is a mint request with its distribution audit row.
type MintRequestView struct {
	models.MintRequest
	Distribution *models.DistributionLog `json:"distribution,omitempty"`
}

// MintService turns scored, passing actions into mint requests.
type MintService struct {
	DB          *gorm.DB
	Policy      *Policy
	Risk        RiskChecker
	Outbox      MintOutbox
	EIP712      EIP712Config
	WalletChain string
	Clock       func() time.Time
}

func NewMintService(db *gorm.DB, policy *Policy, risk RiskChecker, outbox MintOutbox, eip EIP712Config, walletChain string) *MintService {
	return &MintService{
		DB:          db,
		Policy:      policy,
		Risk:        risk,
		Outbox:      outbox,
		EIP712:      eip,
		WalletChain: walletChain,
		Clock:       utcNow,
	}
}

// Authorize bundles the named actions into one pending_sig mint request. The
// nonce allocation, request insert, action transition and distribution log
// commit together or not at all.
func (s *MintService) Authorize(ctx context.Context, in AuthorizeMintInput) (*MintAuthorization, error) {
	ids := dedupe(in.ActionIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: action_ids is required", ErrValidation)
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("%w: invalid action id %q", ErrValidation, id)
		}
	}
	actionName := strings.TrimSpace(in.ActionName)
	if actionName == "" {
		actionName = defaultActionName
	}
	db := s.DB.WithContext(ctx)

	var actions []models.Action
	if err := db.Preload("Score").
		Where("id IN ? AND status = ?", ids, models.ActionStatusScored).
		Order("created_at ASC").
		Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("no eligible scored actions: %w", ErrNotFound)
	}

	var passed []models.Action
	for _, a := range actions {
		if a.Score != nil && a.Score.Decision == models.DecisionPass {
			passed = append(passed, a)
		}
	}
	if len(passed) == 0 {
		return nil, ErrNoPassingActions
	}

	actorID := passed[0].ActorID
	for _, a := range passed[1:] {
		if a.ActorID != actorID {
			return nil, ErrMixedActors
		}
	}

	recipient, err := s.resolveRecipient(db, actorID, in.RecipientAddress)
	if err != nil {
		return nil, err
	}

	if s.Risk != nil {
		risk, err := s.Risk.CurrentRisk(ctx, actorID)
		if err != nil {
			return nil, err
		}
		if risk > s.Policy.MintBlockRiskThreshold {
			log.Printf("[MINT] 🚫 actor=%s blocked (risk=%d)", actorID, risk)
			return nil, fmt.Errorf("actor %s risk %d: %w", actorID, risk, ErrMintBlocked)
		}
	}

	total := decimal.Zero
	passedIDs := make([]string, 0, len(passed))
	actionTypes := make([]string, 0, len(passed))
	for _, a := range passed {
		total = total.Add(decimal.NewFromFloat(a.Score.FinalReward))
		passedIDs = append(passedIDs, a.ID)
		actionTypes = append(actionTypes, a.ActionType)
	}
	dist := CalculateCascadeDistribution(total, s.Policy.Distribution, s.Policy.TokenDecimals)
	amountWei := ToWei(dist.UserAmount, s.Policy.TokenDecimals)
	evidenceHash := MintEvidenceHash(actionTypes)

	now := s.Clock()
	req := models.MintRequest{
		ID:               uuid.NewString(),
		UserID:           actorID,
		RecipientAddress: recipient,
		AmountWei:        amountWei,
		AmountDisplay:    dist.UserAmount,
		EvidenceHash:     evidenceHash,
		ActionIDs:        passedIDs,
		ActionTypes:      actionTypes,
		ActionName:       actionName,
		Status:           models.MintStatusPendingSig,
		ExpiresAt:        now.Add(s.Policy.MintRequestTTL),
		CreatedAt:        now,
	}
	var typed *EIP712Data

	err = db.Transaction(func(tx *gorm.DB) error {
		nonce, err := nextNonce(tx, actorID, now)
		if err != nil {
			return err
		}
		req.Nonce = nonce

		typed, err = BuildPureLoveProof(s.EIP712, PureLoveProof{
			User:         recipient,
			ActionName:   actionName,
			AmountWei:    amountWei,
			EvidenceHash: evidenceHash,
			Nonce:        nonce,
		})
		if err != nil {
			return fmt.Errorf("build typed data: %w", err)
		}
		req.TypedDataDigest = typed.Digest

		if err := tx.Create(&req).Error; err != nil {
			return fmt.Errorf("insert mint request: %w", err)
		}

		res := tx.Model(&models.Action{}).
			Where("id IN ? AND status = ?", passedIDs, models.ActionStatusScored).
			Updates(map[string]interface{}{
				"status":          models.ActionStatusMinted,
				"mint_request_id": req.ID,
			})
		if res.Error != nil {
			return fmt.Errorf("mark actions minted: %w", res.Error)
		}
		if res.RowsAffected != int64(len(passedIDs)) {
			return fmt.Errorf("%d of %d actions changed state concurrently: %w",
				int64(len(passedIDs))-res.RowsAffected, len(passedIDs), ErrConflict)
		}

		logRow := models.DistributionLog{
			ID:             uuid.NewString(),
			MintRequestID:  req.ID,
			UserID:         actorID,
			TotalAmount:    dist.Total,
			UserAmount:     dist.UserAmount,
			UserPercentage: dist.UserPercentage,
			GenesisAmount:  dist.GenesisAmount,
			PlatformAmount: dist.PlatformAmount,
			PartnersAmount: dist.PartnersAmount,
			CreatedAt:      now,
		}
		if err := tx.Create(&logRow).Error; err != nil {
			return fmt.Errorf("insert distribution log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &MintAuthorization{
		MintRequestID:    req.ID,
		UserID:           actorID,
		RecipientAddress: recipient,
		TotalReward:      total,
		AmountWei:        amountWei,
		Distribution:     dist,
		Nonce:            req.Nonce,
		EvidenceHash:     evidenceHash,
		ActionsCount:     len(passed),
		EIP712Data:       typed,
		ExpiresAt:        req.ExpiresAt,
	}
	log.Printf("[MINT] ✅ request=%s actor=%s nonce=%d total=%s user=%s actions=%d",
		req.ID, actorID, req.Nonce, total, dist.UserAmount, len(passed))

	s.publish(ctx, out, actionName)
	return out, nil
}

// nextNonce is the transactional equivalent of get_next_nonce: the per-user
// row is created on first use and locked for the increment.
func nextNonce(tx *gorm.DB, userID string, now time.Time) (int64, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.UserNonce{UserID: userID, UpdatedAt: now}).Error; err != nil {
		return 0, fmt.Errorf("seed nonce: %w", err)
	}
	var row models.UserNonce
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&row, "user_id = ?", userID).Error; err != nil {
		return 0, fmt.Errorf("lock nonce: %w", err)
	}
	next := row.LastNonce + 1
	if err := tx.Model(&models.UserNonce{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"last_nonce": next, "updated_at": now}).Error; err != nil {
		return 0, fmt.Errorf("bump nonce: %w", err)
	}
	return next, nil
}

func (s *MintService) resolveRecipient(db *gorm.DB, userID, requested string) (string, error) {
	addr := strings.TrimSpace(requested)
	if addr == "" {
		var wallet models.WalletMirror
		err := db.Where("user_id = ? AND chain = ? AND is_active = ?", userID, s.WalletChain, true).
			Order("updated_at DESC").
			First(&wallet).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: recipient_address is required (no active %s wallet on file)", ErrValidation, s.WalletChain)
		}
		if err != nil {
			return "", fmt.Errorf("lookup wallet for %s: %w", userID, err)
		}
		addr = wallet.Address
	}
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: invalid recipient_address %q", ErrValidation, addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

// publish hands the payload to the signer outbox. It is best-effort: the
// request is already committed and the signer can also poll for pending_sig.
func (s *MintService) publish(ctx context.Context, auth *MintAuthorization, actionName string) {
	if s.Outbox == nil {
		return
	}
	body, err := json.Marshal(auth)
	if err != nil {
		log.Printf("[MINT] ⚠️ failed to encode outbox payload for %s: %v", auth.MintRequestID, err)
		return
	}
	key := fmt.Sprintf("mint-requests/%s/%s.json", slug.Make(actionName), auth.MintRequestID)
	if err := s.Outbox.Publish(context.WithoutCancel(ctx), key, body); err != nil {
		log.Printf("[MINT] ⚠️ failed to publish %s to signer outbox: %v", key, err)
		return
	}
	log.Printf("[MINT] 📤 published %s", key)
}

// Get returns one mint request with its distribution log.
func (s *MintService) Get(ctx context.Context, id string) (*MintRequestView, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: invalid mint request id", ErrValidation)
	}
	db := s.DB.WithContext(ctx)
	var view MintRequestView
	if err := db.First(&view.MintRequest, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("mint request %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	var logRow models.DistributionLog
	err := db.First(&logRow, "mint_request_id = ?", id).Error
	switch {
	case err == nil:
		view.Distribution = &logRow
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return &view, nil
}

// MarkSubmitted is the signer's callback once the contract call is broadcast.
func (s *MintService) MarkSubmitted(ctx context.Context, id, txHash string) (*models.MintRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: invalid mint request id", ErrValidation)
	}
	raw, err := hexutil.Decode(txHash)
	if err != nil || len(raw) != common.HashLength {
		return nil, fmt.Errorf("%w: tx_hash must be a 32-byte hex string", ErrValidation)
	}
	txHash = common.BytesToHash(raw).Hex()
	now := s.Clock()

	var req models.MintRequest
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("mint request %s: %w", id, ErrNotFound)
			}
			return err
		}
		switch {
		case req.Status == models.MintStatusSubmitted && req.TxHash != nil && *req.TxHash == txHash:
			return nil
		case req.Status != models.MintStatusPendingSig:
			return fmt.Errorf("mint request %s is %s: %w", id, req.Status, ErrConflict)
		case now.After(req.ExpiresAt):
			return fmt.Errorf("mint request %s expired at %s: %w", id, req.ExpiresAt.Format(time.RFC3339), ErrConflict)
		}
		req.Status = models.MintStatusSubmitted
		req.TxHash = &txHash
		req.SubmittedAt = &now
		return tx.Model(&req).Updates(map[string]interface{}{
			"status":       req.Status,
			"tx_hash":      txHash,
			"submitted_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ExpireStale marks pending_sig requests past their deadline expired. Bundled actions
// stay minted: a signature over the expired payload may already exist, so the
// same actions are never bundled under a second nonce.
func (s *MintService) ExpireStale(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.MintRequest{}).
		Where("status = ? AND expires_at < ?", models.MintStatusPendingSig, s.Clock()).
		Update("status", models.MintStatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("expire mint requests: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("[MINT] ⌛ expired %d stale mint request(s)", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pplp-service/models"
	"pplp-service/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	userToken    = "user-token"
	adminToken   = "admin-token"
	serviceToken = "svc-token"
	testUserID   = "6f1c9a52-7d0e-4e57-9d3a-0f7a1c2b3d4e"
	testAdminID  = "0b8e7d6c-5a4f-4e3d-8c2b-1a0f9e8d7c6b"
)

type stubVerifier struct{}

func (stubVerifier) ValidateToken(ctx context.Context, token string) (*services.ValidateResponse, error) {
	switch token {
	case userToken:
		return &services.ValidateResponse{UserID: testUserID, Roles: []string{"user"}}, nil
	case adminToken:
		return &services.ValidateResponse{UserID: testAdminID, Roles: []string{"user", "Admin"}}, nil
	}
	return nil, errors.New("auth validation failed: 401")
}

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.AutoMigrate(db))

	policy := services.DefaultPolicy()
	caps := services.NewCapService(db, policy)
	scoring := services.NewScoringService(db, policy, caps)
	fraud := services.NewFraudService(db, policy)
	mint := services.NewMintService(db, policy, fraud, nil, services.EIP712Config{
		Name:              "FUN Money",
		Version:           "1",
		ChainID:           97,
		VerifyingContract: "0x1aa8DE8B1E4465C6d729E8564893f8EF823a5ff2",
	}, "bsc")

	app := fiber.New()
	SetupPPLPRoutes(app, PPLPServices{
		DB:           db,
		Actions:      services.NewActionService(db, policy, scoring),
		Scoring:      scoring,
		Batch:        services.NewBatchService(db, policy, scoring, mint),
		Fraud:        fraud,
		Devices:      services.NewDeviceService(db),
		Mint:         mint,
		Verifier:     stubVerifier{},
		ServiceToken: serviceToken,
	})
	return app, db
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t)
	status, body := doJSON(t, app, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body["status"])
}

func TestSubmitAction(t *testing.T) {
	app, db := newTestApp(t)
	payload := map[string]any{
		"action_type": "post",
		"metadata":    map[string]any{"content": "Sharing what I learned today"},
	}

	status, _ := doJSON(t, app, http.MethodPost, "/pplp/actions", "", payload)
	require.Equal(t, http.StatusUnauthorized, status)
	status, _ = doJSON(t, app, http.MethodPost, "/pplp/actions", "bogus", payload)
	require.Equal(t, http.StatusUnauthorized, status)

	status, body := doJSON(t, app, http.MethodPost, "/pplp/actions", userToken, payload)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, true, body["success"])
	require.Equal(t, "scored", body["status"])
	require.True(t, strings.HasPrefix(body["evidence_hash"].(string), "0x"))

	var stored models.Action
	require.NoError(t, db.First(&stored, "id = ?", body["action_id"]).Error)
	require.Equal(t, testUserID, stored.ActorID)

	status, body = doJSON(t, app, http.MethodPost, "/pplp/actions", userToken, payload)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, false, body["success"])

	status, _ = doJSON(t, app, http.MethodPost, "/pplp/actions", userToken, map[string]any{"action_type": "teleport"})
	require.Equal(t, http.StatusBadRequest, status)

	status, body = doJSON(t, app, http.MethodGet, "/pplp/actions?status=scored", userToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["actions"], 1)
}

func TestInternalRoutesRequireServiceToken(t *testing.T) {
	app, _ := newTestApp(t)

	status, _ := doJSON(t, app, http.MethodPost, "/pplp/internal/batch", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	status, _ = doJSON(t, app, http.MethodPost, "/pplp/internal/batch", userToken, nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, body := doJSON(t, app, http.MethodPost, "/pplp/internal/batch", serviceToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["success"])

	status, _ = doJSON(t, app, http.MethodPost, "/pplp/internal/score", serviceToken, map[string]any{})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestInternalScoreRejectsRescoring(t *testing.T) {
	app, _ := newTestApp(t)
	_, submitted := doJSON(t, app, http.MethodPost, "/pplp/actions", userToken, map[string]any{"action_type": "comment"})

	status, _ := doJSON(t, app, http.MethodPost, "/pplp/internal/score", serviceToken,
		map[string]any{"action_id": submitted["action_id"]})
	require.Equal(t, http.StatusConflict, status)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	app, _ := newTestApp(t)
	payload := map[string]any{"actor_id": testUserID}

	status, _ := doJSON(t, app, http.MethodPost, "/pplp/admin/fraud/detect", "", payload)
	require.Equal(t, http.StatusUnauthorized, status)
	status, body := doJSON(t, app, http.MethodPost, "/pplp/admin/fraud/detect", userToken, payload)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "admin role required", body["error"])

	status, body = doJSON(t, app, http.MethodPost, "/pplp/admin/fraud/detect", adminToken, payload)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 0, body["risk_score"])
	require.Equal(t, false, body["mint_blocked"])

	status, _ = doJSON(t, app, http.MethodPost, "/pplp/admin/fraud/detect", adminToken,
		map[string]any{"actor_id": "not-a-uuid"})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestMintFlow(t *testing.T) {
	app, db := newTestApp(t)

	_, submitted := doJSON(t, app, http.MethodPost, "/pplp/actions", userToken, map[string]any{
		"action_type": "post",
		"metadata":    map[string]any{"content": "Weekly community cleanup"},
	})
	actionID := submitted["action_id"].(string)

	status, body := doJSON(t, app, http.MethodPost, "/pplp/admin/mint/authorize", adminToken, map[string]any{
		"action_ids": []string{actionID},
	})
	require.Equal(t, http.StatusBadRequest, status, body)

	status, body = doJSON(t, app, http.MethodPost, "/pplp/admin/mint/authorize", adminToken, map[string]any{
		"action_ids":        []string{actionID},
		"recipient_address": "0x8ba1f109551bd432803012645ac136ddd64dba72",
	})
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, true, body["success"])
	require.EqualValues(t, 1, body["nonce"])
	require.Equal(t, "0x8ba1f109551bD432803012645Ac136ddd64DBA72", body["recipient_address"])
	mintID := body["mint_request_id"].(string)
	require.NotEmpty(t, body["eip712_data"])
	total, ok := body["total_reward"].(float64)
	require.True(t, ok, "total_reward should be a JSON number: %#v", body["total_reward"])
	require.Greater(t, total, 0.0)
	split := body["distribution"].(map[string]any)
	_, ok = split["user_amount"].(float64)
	require.True(t, ok, "user_amount should be a JSON number: %#v", split["user_amount"])

	status, _ = doJSON(t, app, http.MethodPost, "/pplp/admin/mint/authorize", adminToken, map[string]any{
		"action_ids":        []string{actionID},
		"recipient_address": "0x8ba1f109551bd432803012645ac136ddd64dba72",
	})
	require.Equal(t, http.StatusNotFound, status)

	status, body = doJSON(t, app, http.MethodGet, "/pplp/admin/mint-requests/"+mintID, adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	view := body["mint_request"].(map[string]any)
	require.Equal(t, "pending_sig", view["status"])
	require.NotNil(t, view["distribution"])

	txHash := "0x" + strings.Repeat("ab", 32)
	status, _ = doJSON(t, app, http.MethodPost, "/pplp/internal/mint-requests/"+mintID+"/submitted", serviceToken,
		map[string]any{"tx_hash": "0xdead"})
	require.Equal(t, http.StatusBadRequest, status)
	status, body = doJSON(t, app, http.MethodPost, "/pplp/internal/mint-requests/"+mintID+"/submitted", serviceToken,
		map[string]any{"tx_hash": txHash})
	require.Equal(t, http.StatusOK, status, body)

	var req models.MintRequest
	require.NoError(t, db.First(&req, "id = ?", mintID).Error)
	require.Equal(t, models.MintStatusSubmitted, req.Status)
}

func TestMintBlockedByFraudRisk(t *testing.T) {
	app, db := newTestApp(t)
	_, submitted := doJSON(t, app, http.MethodPost, "/pplp/actions", userToken, map[string]any{"action_type": "share"})

	signal := models.FraudSignal{
		ID:         "1d3a8f0e-2b4c-4d6e-8f0a-1b2c3d4e5f60",
		ActorID:    testUserID,
		SignalType: models.FraudSignalSybil,
		Severity:   4,
		Source:     "sybil_flagged_device",
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, db.Create(&signal).Error)

	status, _ := doJSON(t, app, http.MethodPost, "/pplp/admin/mint/authorize", adminToken, map[string]any{
		"action_ids":        []string{submitted["action_id"].(string)},
		"recipient_address": "0x8ba1f109551bd432803012645ac136ddd64dba72",
	})
	require.Equal(t, http.StatusForbidden, status)
}

func TestDevices(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := doJSON(t, app, http.MethodPost, "/pplp/devices", userToken, map[string]any{"device_hash": "fp-123"})
	require.Equal(t, http.StatusOK, status, body)

	status, _ = doJSON(t, app, http.MethodPost, "/pplp/devices", userToken, map[string]any{"device_hash": ""})
	require.Equal(t, http.StatusBadRequest, status)

	status, body = doJSON(t, app, http.MethodPost, "/pplp/admin/devices/flag", adminToken, map[string]any{"device_hash": "fp-123"})
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1, body["devices_updated"])
	require.Equal(t, true, body["flagged"])
}

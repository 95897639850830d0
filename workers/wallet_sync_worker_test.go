package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pplp-service/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func TestSyncOnce_UpsertsByAddress(t *testing.T) {
	db := newTestDB(t)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "/api/v1/public/wallets", r.URL.Path)
		require.Equal(t, "svc-token", r.Header.Get("X-Service-Token"))
		require.Equal(t, since.Format(time.RFC3339), r.URL.Query().Get("since"))

		active := calls == 1
		id := "2f6c1a9e-4b3d-4e8f-9a1b-7c6d5e4f3a2b"
		if !active {
			id = "9c0d1e2f-3a4b-4c5d-8e6f-7a8b9c0d1e2f"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"wallets": []models.WalletMirror{{
				ID:        id,
				UserID:    "6f1c9a52-7d0e-4e57-9d3a-0f7a1c2b3d4e",
				Chain:     "bsc",
				Address:   "0x8ba1f109551bd432803012645ac136ddd64dba72",
				IsActive:  active,
				CreatedAt: now,
				UpdatedAt: now,
			}},
		})
	}))
	defer srv.Close()

	client := NewWalletSyncClient(db, srv.URL+"/", "svc-token")

	n, err := client.SyncOnce(context.Background(), since)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// the second pull deactivates the same address under a new row id
	_, err = client.SyncOnce(context.Background(), since)
	require.NoError(t, err)

	var wallets []models.WalletMirror
	require.NoError(t, db.Find(&wallets).Error)
	require.Len(t, wallets, 1)
	require.False(t, wallets[0].IsActive)
}

func TestSyncOnce_ServiceError(t *testing.T) {
	db := newTestDB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewWalletSyncClient(db, srv.URL, "svc-token").SyncOnce(context.Background(), time.Now())
	require.ErrorContains(t, err, "status 502")
}

func TestUpsertWallets_Empty(t *testing.T) {
	client := NewWalletSyncClient(newTestDB(t), "http://unused", "")
	require.NoError(t, client.UpsertWallets(context.Background(), nil))
}

package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pplp-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletSyncClient pulls wallet changes from the wallet sync service into
// wallet_mirror, where the mint authorizer looks up default recipients.
type WalletSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewWalletSyncClient(db *gorm.DB, baseURL, token string) *WalletSyncClient {
	return &WalletSyncClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		DB:      db,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *WalletSyncClient) GetChangedWallets(ctx context.Context, since time.Time) ([]models.WalletMirror, error) {
	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/wallets", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call sync service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Wallets []models.WalletMirror `json:"wallets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return response.Wallets, nil
}

// UpsertWallets stores a batch keyed on address. Addresses are not
// checksummed here; the mint authorizer normalizes on read.
func (c *WalletSyncClient) UpsertWallets(ctx context.Context, wallets []models.WalletMirror) error {
	if len(wallets) == 0 {
		return nil
	}
	return c.DB.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "address"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"user_id",
				"chain",
				"is_active",
				"last_balance_check_at",
				"updated_at",
			}),
		},
	).Create(&wallets).Error
}

// SyncOnce pulls and stores changes since the given time.
func (c *WalletSyncClient) SyncOnce(ctx context.Context, since time.Time) (int, error) {
	wallets, err := c.GetChangedWallets(ctx, since)
	if err != nil {
		return 0, err
	}
	if err := c.UpsertWallets(ctx, wallets); err != nil {
		return 0, fmt.Errorf("upsert %d wallet(s): %w", len(wallets), err)
	}
	return len(wallets), nil
}

// PollWallets syncs on every tick until ctx is done. The window only
// advances after a successful upsert, so a failed tick is retried.
func PollWallets(ctx context.Context, client *WalletSyncClient, pollInterval time.Duration) {
	log.Println("[WALLET_SYNC] Starting wallet polling...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[WALLET_SYNC] Wallet polling stopped.")
			return
		case <-ticker.C:
			tickTime := time.Now().UTC()
			count, err := client.SyncOnce(ctx, lastSyncTime)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Printf("[WALLET_SYNC] ❌ %v", err)
				}
				continue
			}
			lastSyncTime = tickTime
			if count > 0 {
				log.Printf("[WALLET_SYNC] ✅ Upserted %d wallet(s) into wallet_mirror.", count)
			}
		}
	}
}

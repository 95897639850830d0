// config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"pplp-service/services"
	"pplp-service/utils"

	"github.com/joho/godotenv"
)

// Config is the process configuration, read from the environment (and an
// optional .env file).
type Config struct {
	Port           string
	DatabaseURL    string
	ServiceToken   string
	RequestTimeout time.Duration

	AuthServiceURL   string
	AuthServiceToken string

	BatchInterval time.Duration
	PolicyFile    string

	EIP712      services.EIP712Config
	WalletChain string

	// Wallet sync is optional; empty SyncServiceURL disables it.
	SyncServiceURL     string
	WalletPollInterval time.Duration

	// Signer outbox is optional; empty bucket disables it.
	Outbox utils.R2Config
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg := &Config{
		Port:             getenv("PORT", "5300"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		ServiceToken:     os.Getenv("PPLP_SERVICE_TOKEN"),
		AuthServiceURL:   os.Getenv("AUTH_SERVICE_URL"),
		AuthServiceToken: os.Getenv("AUTH_SERVICE_TOKEN"),
		PolicyFile:       os.Getenv("PPLP_POLICY_FILE"),
		WalletChain:      getenv("WALLET_CHAIN", "bsc"),
		SyncServiceURL:   os.Getenv("SYNC_SERVICE_URL"),
		EIP712: services.EIP712Config{
			Name:              getenv("EIP712_NAME", "FUN Money"),
			Version:           getenv("EIP712_VERSION", "1"),
			VerifyingContract: os.Getenv("EIP712_VERIFYING_CONTRACT"),
		},
		Outbox: utils.R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_OUTBOX_BUCKET"),
			Endpoint:        os.Getenv("R2_ENDPOINT"),
		},
	}

	var err error
	if cfg.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.BatchInterval, err = durationEnv("BATCH_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.WalletPollInterval, err = durationEnv("WALLET_POLL_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	chainID, err := strconv.ParseInt(getenv("EIP712_CHAIN_ID", "97"), 10, 64)
	if err != nil || chainID <= 0 {
		return nil, fmt.Errorf("EIP712_CHAIN_ID must be a positive integer")
	}
	cfg.EIP712.ChainID = chainID

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	for name, v := range map[string]string{
		"DATABASE_URL":              c.DatabaseURL,
		"PPLP_SERVICE_TOKEN":        c.ServiceToken,
		"AUTH_SERVICE_URL":          c.AuthServiceURL,
		"EIP712_VERIFYING_CONTRACT": c.EIP712.VerifyingContract,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration (e.g. 5m), got %q", key, raw)
	}
	return d, nil
}

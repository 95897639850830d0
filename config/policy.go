// config/policy.go
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"pplp-service/services"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// policyFile mirrors the YAML layout of pplp-policy.yaml. Every key is
// optional; omitted keys keep the built-in policy value.
type policyFile struct {
	Version        string                       `mapstructure:"version"`
	BaseRewards    map[string]float64           `mapstructure:"base_rewards"`
	Weights        *services.PillarWeights      `mapstructure:"weights"`
	MinLightScore  *float64                     `mapstructure:"min_light_score"`
	MinTruthPillar *float64                     `mapstructure:"min_truth_pillar"`
	Caps           map[string]services.CapLimit `mapstructure:"caps"`
	Distribution   *struct {
		User     float64 `mapstructure:"user"`
		Genesis  float64 `mapstructure:"genesis"`
		Platform float64 `mapstructure:"platform"`
		Partners float64 `mapstructure:"partners"`
	} `mapstructure:"distribution"`
	MintBlockRiskThreshold *int `mapstructure:"mint_block_risk_threshold"`
	BatchSize              *int `mapstructure:"batch_size"`
}

// LoadPolicy starts from services.DefaultPolicy and overlays the YAML file at
// path. An empty path looks for ./pplp-policy.yaml; a missing file is fine.
func LoadPolicy(path string) (*services.Policy, error) {
	policy := services.DefaultPolicy()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pplp-policy")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetDefault("mint_request_ttl", policy.MintRequestTTL)
	v.SetDefault("cap_window", policy.CapWindow)
	v.SetDefault("batch_timeout", policy.BatchTimeout)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read policy file: %w", err)
		}
		log.Printf("[CONFIG] No policy file found, using built-in policy %s", policy.Version)
		return policy, nil
	}

	var file policyFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode policy file: %w", err)
	}

	if file.Version != "" {
		policy.Version = file.Version
	}
	for t, r := range file.BaseRewards {
		policy.BaseRewards[strings.ToLower(t)] = r
	}
	if file.Weights != nil {
		policy.Weights = *file.Weights
	}
	if file.MinLightScore != nil {
		policy.MinLightScore = *file.MinLightScore
	}
	if file.MinTruthPillar != nil {
		policy.MinTruthPillar = *file.MinTruthPillar
	}
	for t, c := range file.Caps {
		policy.Caps[strings.ToLower(t)] = c
	}
	if d := file.Distribution; d != nil {
		policy.Distribution = services.DistributionSplit{
			UserPct:     decimal.NewFromFloat(d.User),
			GenesisPct:  decimal.NewFromFloat(d.Genesis),
			PlatformPct: decimal.NewFromFloat(d.Platform),
			PartnersPct: decimal.NewFromFloat(d.Partners),
		}
	}
	if file.MintBlockRiskThreshold != nil {
		policy.MintBlockRiskThreshold = *file.MintBlockRiskThreshold
	}
	if file.BatchSize != nil {
		policy.BatchSize = *file.BatchSize
	}
	policy.MintRequestTTL = v.GetDuration("mint_request_ttl")
	policy.CapWindow = v.GetDuration("cap_window")
	policy.BatchTimeout = v.GetDuration("batch_timeout")

	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("policy %s: %w", policy.Version, err)
	}
	log.Printf("[CONFIG] ✅ loaded policy %s from %s", policy.Version, v.ConfigFileUsed())
	return policy, nil
}

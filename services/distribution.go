// services/distribution.go
package services

import (
	"github.com/shopspring/decimal"
)

func init() {
	// Amounts go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Distribution is the cascading split of one total reward.
type Distribution struct {
	Total          decimal.Decimal `json:"total"`
	UserAmount     decimal.Decimal `json:"user_amount"`
	UserPercentage decimal.Decimal `json:"user_percentage"`
	GenesisAmount  decimal.Decimal `json:"genesis_amount"`
	PlatformAmount decimal.Decimal `json:"platform_amount"`
	PartnersAmount decimal.Decimal `json:"partners_amount"`
}

// CalculateCascadeDistribution splits total by the policy percentages. The
// ecosystem buckets are truncated to the token's decimal precision and the
// user bucket takes the remainder, so the four amounts always sum to total.
func CalculateCascadeDistribution(total decimal.Decimal, split DistributionSplit, decimals int32) Distribution {
	if total.IsNegative() {
		total = decimal.Zero
	}
	share := func(pct decimal.Decimal) decimal.Decimal {
		return total.Mul(pct).Shift(-2).Truncate(decimals)
	}
	genesis := share(split.GenesisPct)
	platform := share(split.PlatformPct)
	partners := share(split.PartnersPct)

	return Distribution{
		Total:          total,
		UserAmount:     total.Sub(genesis).Sub(platform).Sub(partners),
		UserPercentage: split.UserPct,
		GenesisAmount:  genesis,
		PlatformAmount: platform,
		PartnersAmount: partners,
	}
}

// ToWei converts a display amount to its integer base-unit string.
func ToWei(amount decimal.Decimal, decimals int32) string {
	return amount.Shift(decimals).Truncate(0).String()
}

package settings

// DB config keys and defaults for platform settings.
const (
	// RewardPerCodeKey is the DB config key for points granted per approved code.
	RewardPerCodeKey = "reward_per_code"
	// ReferralRateKey is the DB config key for the referral commission rate.
	ReferralRateKey = "referral_rate"
	// MinWithdrawKey is the DB config key for the minimum withdrawal amount in points.
	MinWithdrawKey = "min_withdraw"
	// GasPriceGweiKey is the DB config key for the payout gas price in gwei.
	GasPriceGweiKey = "gas_price_gwei"
	// GasLimitKey is the DB config key for the payout gas limit.
	GasLimitKey = "gas_limit"
	// BotModeKey is the DB config key for the platform operating mode.
	BotModeKey = "bot_mode"

	// DefaultRewardPerCode is the fallback reward per approved code.
	DefaultRewardPerCode = 2
	// DefaultReferralRate is the fallback commission rate.
	DefaultReferralRate = 0.05
	// DefaultMinWithdraw is the fallback minimum withdrawal in points.
	DefaultMinWithdraw = 500
	// DefaultGasPriceGwei is the fallback gas price in gwei.
	DefaultGasPriceGwei = 5
	// DefaultGasLimit is the fallback gas limit for token transfers.
	DefaultGasLimit = 90000
	// DefaultBotMode is the fallback operating mode.
	DefaultBotMode = ModeLive
)

// Operating modes accepted for BotModeKey.
const (
	// ModeLive means all operations are available.
	ModeLive = "live"
	// ModeMaintenance blocks user-facing mutations while operators work.
	ModeMaintenance = "maintenance"
)

// allowedKeys is the closed set of keys the settings API may read or write.
var allowedKeys = map[string]struct{}{
	RewardPerCodeKey: {},
	ReferralRateKey:  {},
	MinWithdrawKey:   {},
	GasPriceGweiKey:  {},
	GasLimitKey:      {},
	BotModeKey:       {},
}

// IsAllowedKey reports whether key belongs to the settings allow-list.
func IsAllowedKey(key string) bool {
	_, ok := allowedKeys[key]
	return ok
}

// AllowedKeys returns the settings allow-list.
func AllowedKeys() []string {
	keys := make([]string, 0, len(allowedKeys))
	for key := range allowedKeys {
		keys = append(keys, key)
	}
	return keys
}

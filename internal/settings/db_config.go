package settings

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"
)

// dbConfigSnapshot holds the in-memory DB config values.
type dbConfigSnapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

// globalDBConfig stores the latest dbConfigSnapshot atomically.
var globalDBConfig atomic.Value // stores dbConfigSnapshot

// init seeds the global DB config snapshot.
func init() {
	globalDBConfig.Store(dbConfigSnapshot{values: map[string]json.RawMessage{}})
}

// StoreDBConfig replaces the in-memory snapshot of DB-backed settings.
func StoreDBConfig(updatedAt time.Time, values map[string]json.RawMessage) {
	next := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		if v == nil {
			next[key] = nil
			continue
		}
		copied := make([]byte, len(v))
		copy(copied, v)
		next[key] = copied
	}

	globalDBConfig.Store(dbConfigSnapshot{
		updatedAt: updatedAt.UTC(),
		values:    next,
	})
}

// DBConfigUpdatedAt returns the last update timestamp for DB config.
func DBConfigUpdatedAt() time.Time {
	cfg := loadDBConfig()
	return cfg.updatedAt
}

// DBConfigValue returns a copy of the raw config value for a key.
func DBConfigValue(key string) (json.RawMessage, bool) {
	cfg := loadDBConfig()
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false
	}
	val, ok := cfg.values[key]
	if !ok {
		return nil, false
	}
	if val == nil {
		return nil, true
	}
	copied := make([]byte, len(val))
	copy(copied, val)
	return copied, true
}

// loadDBConfig returns the current snapshot with safe defaults.
func loadDBConfig() dbConfigSnapshot {
	v := globalDBConfig.Load()
	cfg, ok := v.(dbConfigSnapshot)
	if !ok {
		return dbConfigSnapshot{values: map[string]json.RawMessage{}}
	}
	if cfg.values == nil {
		return dbConfigSnapshot{updatedAt: cfg.updatedAt, values: map[string]json.RawMessage{}}
	}
	return cfg
}

// int64Value decodes an allow-listed key as an integer.
func int64Value(key string, fallback int64) int64 {
	raw, ok := DBConfigValue(key)
	if !ok || len(raw) == 0 {
		return fallback
	}
	var value int64
	if err := json.Unmarshal(raw, &value); err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	return value
}

// floatValue decodes an allow-listed key as a float.
func floatValue(key string, fallback float64) float64 {
	raw, ok := DBConfigValue(key)
	if !ok || len(raw) == 0 {
		return fallback
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return fallback
	}
	if value < 0 {
		return fallback
	}
	return value
}

// stringValue decodes an allow-listed key as a string.
func stringValue(key string, fallback string) string {
	raw, ok := DBConfigValue(key)
	if !ok || len(raw) == 0 {
		return fallback
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return fallback
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}

// RewardPerCode returns the points granted for an approved submission.
func RewardPerCode() int64 {
	return int64Value(RewardPerCodeKey, DefaultRewardPerCode)
}

// ReferralRate returns the commission rate applied to referral earnings.
func ReferralRate() float64 {
	return floatValue(ReferralRateKey, DefaultReferralRate)
}

// MinWithdraw returns the minimum points a withdrawal may request.
func MinWithdraw() int64 {
	return int64Value(MinWithdrawKey, DefaultMinWithdraw)
}

// GasPriceGwei returns the configured payout gas price in gwei.
func GasPriceGwei() int64 {
	return int64Value(GasPriceGweiKey, DefaultGasPriceGwei)
}

// GasLimit returns the configured payout gas limit.
func GasLimit() uint64 {
	return uint64(int64Value(GasLimitKey, DefaultGasLimit))
}

// BotMode returns the current operating mode.
func BotMode() string {
	mode := stringValue(BotModeKey, DefaultBotMode)
	if mode != ModeLive && mode != ModeMaintenance {
		return DefaultBotMode
	}
	return mode
}

// MaintenanceActive reports whether user-facing mutations are paused.
func MaintenanceActive() bool {
	return BotMode() == ModeMaintenance
}

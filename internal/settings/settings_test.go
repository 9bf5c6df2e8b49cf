package settings

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/synkgo/rewards/internal/models"
)

func resetSnapshot(t *testing.T) {
	t.Helper()
	StoreDBConfig(time.Time{}, nil)
}

func TestTypedAccessorsUseDefaultsWhenUnset(t *testing.T) {
	resetSnapshot(t)

	if got := RewardPerCode(); got != DefaultRewardPerCode {
		t.Fatalf("RewardPerCode = %d, want %d", got, int64(DefaultRewardPerCode))
	}
	if got := ReferralRate(); got != DefaultReferralRate {
		t.Fatalf("ReferralRate = %v, want %v", got, DefaultReferralRate)
	}
	if got := MinWithdraw(); got != DefaultMinWithdraw {
		t.Fatalf("MinWithdraw = %d, want %d", got, int64(DefaultMinWithdraw))
	}
	if got := BotMode(); got != ModeLive {
		t.Fatalf("BotMode = %q, want %q", got, ModeLive)
	}
}

func TestTypedAccessorsReadSnapshot(t *testing.T) {
	resetSnapshot(t)

	StoreDBConfig(time.Now(), map[string]json.RawMessage{
		RewardPerCodeKey: json.RawMessage(`5`),
		ReferralRateKey:  json.RawMessage(`0.1`),
		MinWithdrawKey:   json.RawMessage(`1000`),
		BotModeKey:       json.RawMessage(`"maintenance"`),
	})

	if got := RewardPerCode(); got != 5 {
		t.Fatalf("RewardPerCode = %d, want 5", got)
	}
	if got := ReferralRate(); got != 0.1 {
		t.Fatalf("ReferralRate = %v, want 0.1", got)
	}
	if got := MinWithdraw(); got != 1000 {
		t.Fatalf("MinWithdraw = %d, want 1000", got)
	}
	if !MaintenanceActive() {
		t.Fatal("MaintenanceActive = false, want true")
	}
}

func TestAccessorsIgnoreMalformedValues(t *testing.T) {
	resetSnapshot(t)

	StoreDBConfig(time.Now(), map[string]json.RawMessage{
		RewardPerCodeKey: json.RawMessage(`"not a number"`),
		ReferralRateKey:  json.RawMessage(`-1`),
		BotModeKey:       json.RawMessage(`"unknown"`),
	})

	if got := RewardPerCode(); got != DefaultRewardPerCode {
		t.Fatalf("RewardPerCode = %d, want default %d", got, int64(DefaultRewardPerCode))
	}
	if got := ReferralRate(); got != DefaultReferralRate {
		t.Fatalf("ReferralRate = %v, want default %v", got, DefaultReferralRate)
	}
	if got := BotMode(); got != DefaultBotMode {
		t.Fatalf("BotMode = %q, want default %q", got, DefaultBotMode)
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range []string{RewardPerCodeKey, ReferralRateKey, MinWithdrawKey, GasPriceGweiKey, GasLimitKey, BotModeKey} {
		if !IsAllowedKey(key) {
			t.Fatalf("IsAllowedKey(%q) = false", key)
		}
	}
	if IsAllowedKey("jwt_secret") {
		t.Fatal("IsAllowedKey accepted a key outside the allow-list")
	}
}

func TestRefreshDBConfigSnapshot(t *testing.T) {
	resetSnapshot(t)

	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	ctx := context.Background()
	if errUpsert := UpsertSetting(ctx, conn, MinWithdrawKey, json.RawMessage(`750`)); errUpsert != nil {
		t.Fatalf("upsert: %v", errUpsert)
	}
	if errRefresh := RefreshDBConfigSnapshot(ctx, conn); errRefresh != nil {
		t.Fatalf("refresh: %v", errRefresh)
	}

	if got := MinWithdraw(); got != 750 {
		t.Fatalf("MinWithdraw = %d, want 750", got)
	}
	if DBConfigUpdatedAt().IsZero() {
		t.Fatal("DBConfigUpdatedAt is zero after refresh")
	}
}

func TestUpsertSettingRejectsUnknownKey(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	if err := UpsertSetting(context.Background(), conn, "arbitrary", json.RawMessage(`1`)); err == nil {
		t.Fatal("UpsertSetting accepted a key outside the allow-list")
	}
}

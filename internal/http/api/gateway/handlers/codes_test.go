package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/synkgo/rewards/internal/gift"
	"github.com/synkgo/rewards/internal/models"
	"github.com/synkgo/rewards/internal/moderation"
	"github.com/synkgo/rewards/internal/notify"
	"github.com/synkgo/rewards/internal/payout"
	"github.com/synkgo/rewards/internal/store"
	"github.com/synkgo/rewards/internal/withdrawal"
)

const testAdminID int64 = 999

var testDBSeq int

// stubGateway covers the payout interface for handler tests.
type stubGateway struct{}

func (stubGateway) Liquidity(ctx context.Context) (payout.Liquidity, error) {
	return payout.Liquidity{GasWei: big.NewInt(1), TokenUnits: big.NewInt(1)}, nil
}
func (stubGateway) CanCover(liq payout.Liquidity, points int64) bool { return true }
func (stubGateway) BroadcastTransfer(ctx context.Context, toAddress string, points int64) (string, error) {
	return "0xstub", nil
}
func (stubGateway) Confirm(ctx context.Context, txHash string) (payout.ConfirmStatus, error) {
	return payout.ConfirmSuccess, nil
}

type testEnv struct {
	router *gin.Engine
	store  *store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:gateway_handlers_%d?mode=memory&cache=shared", testDBSeq)
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	errMigrate := conn.AutoMigrate(
		&models.User{}, &models.Code{}, &models.GiftCode{},
		&models.Withdrawal{}, &models.Moderator{},
	)
	if errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	st := store.New(conn)
	notifier := notify.NewLogNotifier(testAdminID)
	moderationEngine := moderation.NewEngine(st, notifier, testAdminID)
	giftEngine := gift.NewEngine(st, notifier)
	withdrawalEngine := withdrawal.NewEngine(st, stubGateway{}, notifier)

	codes := NewCodesHandler(moderationEngine)
	users := NewUsersHandler(st, moderationEngine)
	gifts := NewGiftsHandler(giftEngine)
	withdrawals := NewWithdrawalsHandler(withdrawalEngine)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/users/bootstrap", users.Bootstrap)
	router.GET("/users/:telegram_id", users.Profile)
	router.POST("/codes", codes.Submit)
	router.GET("/codes/pending", codes.Pending)
	router.POST("/codes/:id/claim", codes.Claim)
	router.POST("/codes/:id/decide", codes.Decide)
	router.POST("/gifts/claim", gifts.Claim)
	router.POST("/withdrawals", withdrawals.Request)

	return &testEnv{router: router, store: st}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestSubmitAndModerateOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodPost, "/users/bootstrap", gin.H{"telegram_id": 100}); rec.Code != http.StatusOK {
		t.Fatalf("bootstrap status = %d: %s", rec.Code, rec.Body.String())
	}

	rec := env.do(t, http.MethodPost, "/codes", gin.H{"telegram_id": 100, "code": "HTTPCODE1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID uint64 `json:"id"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &created); errDecode != nil {
		t.Fatalf("decode submit response: %v", errDecode)
	}

	rec = env.do(t, http.MethodGet, "/codes/pending", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pending status = %d", rec.Code)
	}

	claimPath := fmt.Sprintf("/codes/%d/claim", created.ID)
	if rec = env.do(t, http.MethodPost, claimPath, gin.H{"moderator_id": testAdminID}); rec.Code != http.StatusOK {
		t.Fatalf("claim status = %d: %s", rec.Code, rec.Body.String())
	}

	decidePath := fmt.Sprintf("/codes/%d/decide", created.ID)
	rec = env.do(t, http.MethodPost, decidePath, gin.H{"moderator_id": testAdminID, "approve": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("decide status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/users/100", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile status = %d", rec.Code)
	}
	var profile struct {
		Balance int64 `json:"balance"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &profile); errDecode != nil {
		t.Fatalf("decode profile: %v", errDecode)
	}
	if profile.Balance <= 0 {
		t.Fatalf("balance = %d after approval, want > 0", profile.Balance)
	}
}

func TestSubmitByOutsiderModeratorForbidden(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/users/bootstrap", gin.H{"telegram_id": 100})
	rec := env.do(t, http.MethodPost, "/codes", gin.H{"telegram_id": 100, "code": "HTTPCODE2"})
	var created struct {
		ID uint64 `json:"id"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &created); errDecode != nil {
		t.Fatalf("decode submit response: %v", errDecode)
	}

	claimPath := fmt.Sprintf("/codes/%d/claim", created.ID)
	if rec = env.do(t, http.MethodPost, claimPath, gin.H{"moderator_id": 12345}); rec.Code != http.StatusForbidden {
		t.Fatalf("claim by outsider status = %d, want 403", rec.Code)
	}
}

func TestGiftClaimOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.do(t, http.MethodPost, "/users/bootstrap", gin.H{"telegram_id": 100})

	giftEngine := gift.NewEngine(env.store, notify.NewLogNotifier(testAdminID))
	if _, err := giftEngine.Create(ctx, testAdminID, "HTTPGIFT", 40, 1); err != nil {
		t.Fatalf("create gift: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/gifts/claim", gin.H{"telegram_id": 100, "code": "HTTPGIFT"})
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/gifts/claim", gin.H{"telegram_id": 100, "code": "HTTPGIFT"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second claim status = %d, want 409", rec.Code)
	}
}

func TestWithdrawalRequestOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/users/bootstrap", gin.H{"telegram_id": 100})
	errFund := env.store.DB().Model(&models.User{}).
		Where("telegram_id = ?", int64(100)).
		Updates(map[string]any{"balance": 1000, "total_earned": 1000}).Error
	if errFund != nil {
		t.Fatalf("fund user: %v", errFund)
	}

	rec := env.do(t, http.MethodPost, "/withdrawals", gin.H{
		"telegram_id":    100,
		"points":         600,
		"payout_address": "0x0000000000000000000000000000000000000001",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("request status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/withdrawals", gin.H{
		"telegram_id":    100,
		"points":         100,
		"payout_address": "0x0000000000000000000000000000000000000001",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("below-minimum status = %d, want 400", rec.Code)
	}
}

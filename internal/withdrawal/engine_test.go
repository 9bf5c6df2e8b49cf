package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/synkgo/rewards/internal/models"
	"github.com/synkgo/rewards/internal/notify"
	"github.com/synkgo/rewards/internal/payout"
	"github.com/synkgo/rewards/internal/retry"
	"github.com/synkgo/rewards/internal/store"
)

const testPayoutAddress = "0x00000000000000000000000000000000000000a1"

var testDBSeq int

// fakeGateway scripts the payout side of the engine.
type fakeGateway struct {
	mu sync.Mutex

	liquidityErr   error
	covers         bool
	broadcastFails int
	broadcastErr   error
	broadcasts     int
	confirmSeq     []payout.ConfirmStatus
	confirms       int
}

func (f *fakeGateway) Liquidity(ctx context.Context) (payout.Liquidity, error) {
	if f.liquidityErr != nil {
		return payout.Liquidity{}, f.liquidityErr
	}
	return payout.Liquidity{GasWei: big.NewInt(1), TokenUnits: big.NewInt(1)}, nil
}

func (f *fakeGateway) CanCover(liq payout.Liquidity, points int64) bool {
	return f.covers
}

func (f *fakeGateway) BroadcastTransfer(ctx context.Context, toAddress string, points int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts++
	if f.broadcasts <= f.broadcastFails {
		errSend := f.broadcastErr
		if errSend == nil {
			errSend = errors.New("rpc unavailable")
		}
		return "", errSend
	}
	return fmt.Sprintf("0xhash%d", f.broadcasts), nil
}

func (f *fakeGateway) Confirm(ctx context.Context, txHash string) (payout.ConfirmStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirms < len(f.confirmSeq) {
		status := f.confirmSeq[f.confirms]
		f.confirms++
		return status, nil
	}
	return payout.ConfirmSuccess, nil
}

func newTestEngine(t *testing.T, gw *fakeGateway) (*Engine, *store.Store) {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:withdrawal_%d?mode=memory&cache=shared", testDBSeq)
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.User{}, &models.Withdrawal{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	st := store.New(conn)
	engine := NewEngine(st, gw, notify.NewLogNotifier(0))
	engine.broadcastPolicy = retry.Policy{MaxAttempts: 3}
	engine.confirmPolicy = retry.Policy{MaxAttempts: 3}
	return engine, st
}

func fundedUser(t *testing.T, st *store.Store, telegramID int64, points int64) {
	t.Helper()
	if _, err := st.GetOrCreateUser(context.Background(), telegramID); err != nil {
		t.Fatalf("create user: %v", err)
	}
	errFund := st.DB().Model(&models.User{}).
		Where("telegram_id = ?", telegramID).
		Updates(map[string]any{"balance": points, "total_earned": points}).Error
	if errFund != nil {
		t.Fatalf("fund user: %v", errFund)
	}
}

func reload(t *testing.T, st *store.Store, withdrawalID string) *models.Withdrawal {
	t.Helper()
	var wd models.Withdrawal
	if err := st.DB().First(&wd, "withdrawal_id = ?", withdrawalID).Error; err != nil {
		t.Fatalf("reload withdrawal: %v", err)
	}
	return &wd
}

func TestRequestReservesPoints(t *testing.T) {
	engine, st := newTestEngine(t, &fakeGateway{covers: true})
	ctx := context.Background()
	fundedUser(t, st, 100, 1000)

	wd, errReq := engine.Request(ctx, 100, 600, testPayoutAddress)
	if errReq != nil {
		t.Fatalf("Request: %v", errReq)
	}
	if wd.Status != models.WithdrawalStatusProcessing {
		t.Fatalf("status = %q, want processing", wd.Status)
	}

	user, _ := st.GetUser(ctx, 100)
	if user.Balance != 400 {
		t.Fatalf("balance = %d, want 400", user.Balance)
	}
	if user.TotalEarned != 1000 {
		t.Fatalf("total earned = %d, want 1000", user.TotalEarned)
	}
}

func TestRequestBelowMinimum(t *testing.T) {
	engine, st := newTestEngine(t, &fakeGateway{covers: true})
	fundedUser(t, st, 100, 1000)

	if _, err := engine.Request(context.Background(), 100, 100, testPayoutAddress); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("Request = %v, want ErrBelowMinimum", err)
	}
}

func TestRequestBadAddress(t *testing.T) {
	engine, st := newTestEngine(t, &fakeGateway{covers: true})
	fundedUser(t, st, 100, 1000)

	if _, err := engine.Request(context.Background(), 100, 600, "not-an-address"); !errors.Is(err, ErrBadAddress) {
		t.Fatalf("Request = %v, want ErrBadAddress", err)
	}

	user, _ := st.GetUser(context.Background(), 100)
	if user.Balance != 1000 {
		t.Fatalf("balance = %d after rejected request, want 1000", user.Balance)
	}
}

func TestRequestIDsStayUniqueWithinOneSecond(t *testing.T) {
	engine, st := newTestEngine(t, &fakeGateway{covers: true})
	ctx := context.Background()
	fundedUser(t, st, 100, 2000)

	first, errFirst := engine.Request(ctx, 100, 600, testPayoutAddress)
	if errFirst != nil {
		t.Fatalf("first request: %v", errFirst)
	}
	if err := engine.Reject(ctx, first.WithdrawalID, "audit"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	second, errSecond := engine.Request(ctx, 100, 600, testPayoutAddress)
	if errSecond != nil {
		t.Fatalf("request after reject in the same second: %v", errSecond)
	}
	if second.WithdrawalID == first.WithdrawalID {
		t.Fatalf("withdrawal id %q reused", second.WithdrawalID)
	}
}

func TestRequestStorageFailureAlertsOperator(t *testing.T) {
	testDBSeq++
	dsn := fmt.Sprintf("file:withdrawal_%d?mode=memory&cache=shared", testDBSeq)
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	// No withdrawals table, so the request transaction fails on storage.
	if errMigrate := conn.AutoMigrate(&models.User{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	st := store.New(conn)
	rec := &recordingNotifier{}
	engine := NewEngine(st, &fakeGateway{covers: true}, rec)
	fundedUser(t, st, 100, 1000)

	ctx := context.Background()
	if _, err := engine.Request(ctx, 100, 600, testPayoutAddress); err == nil {
		t.Fatal("Request succeeded without a withdrawals table")
	}
	if rec.operatorAlerts() != 1 {
		t.Fatalf("operator alerts = %d, want 1", rec.operatorAlerts())
	}
	user, _ := st.GetUser(ctx, 100)
	if user.Balance != 1000 {
		t.Fatalf("balance = %d, debit must roll back", user.Balance)
	}
}

func TestRequestInsufficientBalance(t *testing.T) {
	engine, st := newTestEngine(t, &fakeGateway{covers: true})
	ctx := context.Background()
	fundedUser(t, st, 100, 500)

	if _, err := engine.Request(ctx, 100, 600, testPayoutAddress); err == nil {
		t.Fatal("Request accepted an over-balance withdrawal")
	}
	user, _ := st.GetUser(ctx, 100)
	if user.Balance != 500 {
		t.Fatalf("balance = %d after rejected request, want 500", user.Balance)
	}
}

func TestRequestSingleInFlight(t *testing.T) {
	engine, st := newTestEngine(t, &fakeGateway{covers: true})
	ctx := context.Background()
	fundedUser(t, st, 100, 2000)

	if _, err := engine.Request(ctx, 100, 600, testPayoutAddress); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := engine.Request(ctx, 100, 600, testPayoutAddress); !errors.Is(err, ErrInFlight) {
		t.Fatalf("second request = %v, want ErrInFlight", err)
	}
}

func TestRequestBannedUser(t *testing.T) {
	engine, st := newTestEngine(t, &fakeGateway{covers: true})
	fundedUser(t, st, 100, 1000)
	errBan := st.DB().Model(&models.User{}).
		Where("telegram_id = ?", int64(100)).
		Update("banned", true).Error
	if errBan != nil {
		t.Fatalf("ban user: %v", errBan)
	}
	if _, err := engine.Request(context.Background(), 100, 600, testPayoutAddress); !errors.Is(err, ErrBanned) {
		t.Fatalf("Request = %v, want ErrBanned", err)
	}
}

func TestProcessCompletes(t *testing.T) {
	gw := &fakeGateway{covers: true}
	engine, st := newTestEngine(t, gw)
	ctx := context.Background()
	fundedUser(t, st, 100, 1000)

	wd, _ := engine.Request(ctx, 100, 600, testPayoutAddress)
	if err := engine.Process(ctx, wd.WithdrawalID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	settled := reload(t, st, wd.WithdrawalID)
	if settled.Status != models.WithdrawalStatusCompleted {
		t.Fatalf("status = %q, want completed", settled.Status)
	}
	if settled.TxHash == "" {
		t.Fatal("tx hash not recorded")
	}
	if settled.ProcessedAt == nil {
		t.Fatal("processed time not set")
	}

	user, _ := st.GetUser(ctx, 100)
	if user.Balance != 400 {
		t.Fatalf("balance = %d, want 400 (no refund on success)", user.Balance)
	}
	if user.WithdrawalCount != 1 {
		t.Fatalf("withdrawal count = %d, want 1", user.WithdrawalCount)
	}
}

func TestProcessInsufficientLiquidityFailsWithoutRetry(t *testing.T) {
	gw := &fakeGateway{covers: false}
	engine, st := newTestEngine(t, gw)
	ctx := context.Background()
	fundedUser(t, st, 100, 1000)

	wd, _ := engine.Request(ctx, 100, 600, testPayoutAddress)
	if err := engine.Process(ctx, wd.WithdrawalID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	failed := reload(t, st, wd.WithdrawalID)
	if failed.Status != models.WithdrawalStatusFailed {
		t.Fatalf("status = %q, want failed", failed.Status)
	}
	if gw.broadcasts != 0 {
		t.Fatalf("broadcasts = %d, want 0 on liquidity shortfall", gw.broadcasts)
	}

	user, _ := st.GetUser(ctx, 100)
	if user.Balance != 1000 {
		t.Fatalf("balance = %d, want full refund 1000", user.Balance)
	}
}

func TestProcessLiquidityErrorFailsAndAlerts(t *testing.T) {
	gw := &fakeGateway{liquidityErr: errors.New("rpc down")}
	engine, st := newTestEngine(t, gw)
	rec := &recordingNotifier{}
	engine.notifier = rec
	ctx := context.Background()
	fundedUser(t, st, 100, 1000)

	wd, _ := engine.Request(ctx, 100, 600, testPayoutAddress)
	if err := engine.Process(ctx, wd.WithdrawalID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if got := reload(t, st, wd.WithdrawalID).Status; got != models.WithdrawalStatusFailed {
		t.Fatalf("status = %q, want failed", got)
	}
	user, _ := st.GetUser(ctx, 100)
	if user.Balance != 1000 {
		t.Fatalf("balance = %d, want full refund 1000", user.Balance)
	}
	if rec.operatorAlerts() == 0 {
		t.Fatal("no operator alert on liquidity check failure")
	}
}

func TestProcessRetriesBroadcast(t *testing.T) {
	gw := &fakeGateway{covers: true, broadcastFails: 2}
	engine, st := newTestEngine(t, gw)
	ctx := context.Background()
	fundedUser(t, st, 100, 1000)

	wd, _ := engine.Request(ctx, 100, 600, testPayoutAddress)
	if err := engine.Process(ctx, wd.WithdrawalID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if gw.broadcasts != 3 {
		t.Fatalf("broadcasts = %d, want 3", gw.broadcasts)
	}
	if got := reload(t, st, wd.WithdrawalID).Status; got != models.WithdrawalStatusCompleted {
		t.Fatalf("status = %q, want completed", got)
	}
}

func TestProcessBroadcastExhaustionRefunds(t *testing.T) {
	gw := &fakeGateway{covers: true, broadcastFails: 10}
	engine, st := newTestEngine(t, gw)
	ctx := context.Background()
	fundedUser(t, st, 100, 1000)

	wd, _ := engine.Request(ctx, 100, 600, testPayoutAddress)
	if err := engine.Process(ctx, wd.WithdrawalID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if gw.broadcasts != 3 {
		t.Fatalf("broadcasts = %d, want exactly 3 attempts", gw.broadcasts)
	}
	if got := reload(t, st, wd.WithdrawalID).Status; got != models.WithdrawalStatusFailed {
		t.Fatalf("status = %q, want failed", got)
	}
	user, _ := st.GetUser(ctx, 100)
	if user.Balance != 1000 {
		t.Fatalf("balance = %d, want full refund 1000", user.Balance)
	}
}

func TestProcessRevertedRefunds(t *testing.T) {
	gw := &fakeGateway{covers: true, confirmSeq: []payout.ConfirmStatus{payout.ConfirmReverted}}
	engine, st := newTestEngine(t, gw)
	ctx := context.Background()
	fundedUser(t, st, 100, 1000)

	wd, _ := engine.Request(ctx, 100, 600, testPayoutAddress)
	if err := engine.Process(ctx, wd.WithdrawalID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if got := reload(t, st, wd.WithdrawalID).Status; got != models.WithdrawalStatusFailed {
		t.Fatalf("status = %q, want failed", got)
	}
	user, _ := st.GetUser(ctx, 100)
	if user.Balance != 1000 {
		t.Fatalf("balance = %d, want full refund 1000", user.Balance)
	}
}

func TestProcessUnconfirmedStaysProcessing(t *testing.T) {
	gw := &fakeGateway{covers: true, confirmSeq: []payout.ConfirmStatus{
		payout.ConfirmPending, payout.ConfirmPending, payout.ConfirmPending,
		payout.ConfirmPending, payout.ConfirmPending, payout.ConfirmPending,
	}}
	engine, st := newTestEngine(t, gw)
	rec := &recordingNotifier{}
	engine.notifier = rec
	ctx := context.Background()
	fundedUser(t, st, 100, 1000)

	wd, _ := engine.Request(ctx, 100, 600, testPayoutAddress)
	if err := engine.Process(ctx, wd.WithdrawalID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	row := reload(t, st, wd.WithdrawalID)
	if row.Status != models.WithdrawalStatusProcessing {
		t.Fatalf("status = %q, want processing while unconfirmed", row.Status)
	}
	if row.TxHash == "" {
		t.Fatal("tx hash should be recorded before confirmation")
	}
	user, _ := st.GetUser(ctx, 100)
	if user.Balance != 400 {
		t.Fatalf("balance = %d, reservation must hold while unconfirmed", user.Balance)
	}
	if rec.userNotices() == 0 {
		t.Fatal("user not told the withdrawal is still confirming")
	}
}

func TestRejectRefundsOnce(t *testing.T) {
	engine, st := newTestEngine(t, &fakeGateway{covers: true})
	ctx := context.Background()
	fundedUser(t, st, 100, 1000)

	wd, _ := engine.Request(ctx, 100, 600, testPayoutAddress)
	if err := engine.Reject(ctx, wd.WithdrawalID, "suspicious activity"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	row := reload(t, st, wd.WithdrawalID)
	if row.Status != models.WithdrawalStatusRejected {
		t.Fatalf("status = %q, want rejected", row.Status)
	}
	if row.FailReason != "suspicious activity" {
		t.Fatalf("reason = %q", row.FailReason)
	}
	user, _ := st.GetUser(ctx, 100)
	if user.Balance != 1000 {
		t.Fatalf("balance = %d, want 1000", user.Balance)
	}

	if err := engine.Reject(ctx, wd.WithdrawalID, "again"); !errors.Is(err, ErrNotProcessing) {
		t.Fatalf("second reject = %v, want ErrNotProcessing", err)
	}
	user, _ = st.GetUser(ctx, 100)
	if user.Balance != 1000 {
		t.Fatalf("balance = %d after second reject, want 1000", user.Balance)
	}
}

func TestReconcilerRefundsStuckWithdrawals(t *testing.T) {
	gw := &fakeGateway{covers: true}
	engine, st := newTestEngine(t, gw)
	ctx := context.Background()
	fundedUser(t, st, 100, 1000)

	wd, _ := engine.Request(ctx, 100, 600, testPayoutAddress)

	// Age the row beyond the cutoff.
	old := time.Now().UTC().Add(-2 * time.Hour)
	errAge := st.DB().Model(&models.Withdrawal{}).
		Where("withdrawal_id = ?", wd.WithdrawalID).
		Update("created_at", old).Error
	if errAge != nil {
		t.Fatalf("age row: %v", errAge)
	}

	rec := NewReconciler(st, engine, notify.NewLogNotifier(0))
	rec.SweepOnce(ctx)

	row := reload(t, st, wd.WithdrawalID)
	if row.Status != models.WithdrawalStatusFailed {
		t.Fatalf("status = %q, want failed", row.Status)
	}
	user, _ := st.GetUser(ctx, 100)
	if user.Balance != 1000 {
		t.Fatalf("balance = %d, want refund to 1000", user.Balance)
	}

	// A second sweep must not refund again.
	rec.SweepOnce(ctx)
	user, _ = st.GetUser(ctx, 100)
	if user.Balance != 1000 {
		t.Fatalf("balance = %d after second sweep, want 1000", user.Balance)
	}
}

func TestReconcilerIgnoresFreshProcessing(t *testing.T) {
	gw := &fakeGateway{covers: true}
	engine, st := newTestEngine(t, gw)
	ctx := context.Background()
	fundedUser(t, st, 100, 1000)

	wd, _ := engine.Request(ctx, 100, 600, testPayoutAddress)

	rec := NewReconciler(st, engine, notify.NewLogNotifier(0))
	rec.SweepOnce(ctx)

	if got := reload(t, st, wd.WithdrawalID).Status; got != models.WithdrawalStatusProcessing {
		t.Fatalf("status = %q, fresh rows must stay processing", got)
	}
}

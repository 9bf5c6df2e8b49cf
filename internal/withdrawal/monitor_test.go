package withdrawal

import (
	"context"
	"sync"
	"testing"
)

// recordingNotifier captures operator alerts.
type recordingNotifier struct {
	mu       sync.Mutex
	operator []string
	user     []string
}

func (r *recordingNotifier) NotifyUser(_ context.Context, _ int64, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.user = append(r.user, message)
}

func (r *recordingNotifier) NotifyOperator(_ context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operator = append(r.operator, message)
}

func (r *recordingNotifier) operatorAlerts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.operator)
}

func (r *recordingNotifier) userNotices() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.user)
}

func TestMonitorAlertsWhenWalletCannotCover(t *testing.T) {
	gw := &fakeGateway{covers: false}
	engine, st := newTestEngine(t, gw)
	ctx := context.Background()
	fundedUser(t, st, 100, 1000)

	if _, err := engine.Request(ctx, 100, 600, testPayoutAddress); err != nil {
		t.Fatalf("Request: %v", err)
	}

	rec := &recordingNotifier{}
	mon := NewMonitor(st, gw, rec)
	mon.CheckOnce(ctx)

	if rec.operatorAlerts() != 1 {
		t.Fatalf("operator alerts = %d, want 1", rec.operatorAlerts())
	}
}

func TestMonitorQuietWhenCovered(t *testing.T) {
	gw := &fakeGateway{covers: true}
	engine, st := newTestEngine(t, gw)
	ctx := context.Background()
	fundedUser(t, st, 100, 1000)

	if _, err := engine.Request(ctx, 100, 600, testPayoutAddress); err != nil {
		t.Fatalf("Request: %v", err)
	}

	rec := &recordingNotifier{}
	mon := NewMonitor(st, gw, rec)
	mon.CheckOnce(ctx)

	if rec.operatorAlerts() != 0 {
		t.Fatalf("operator alerts = %d, want 0", rec.operatorAlerts())
	}
}

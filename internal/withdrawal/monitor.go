package withdrawal

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/synkgo/rewards/internal/models"
	"github.com/synkgo/rewards/internal/notify"
	"github.com/synkgo/rewards/internal/payout"
	"github.com/synkgo/rewards/internal/settings"
	"github.com/synkgo/rewards/internal/store"
)

const defaultMonitorInterval = time.Hour

// Monitor periodically checks whether the hot wallet can still cover the
// outstanding withdrawal load and alerts an operator when it cannot.
type Monitor struct {
	store    *store.Store
	gateway  payout.Gateway
	notifier notify.Notifier
	interval time.Duration
}

// NewMonitor creates a liquidity monitor.
func NewMonitor(st *store.Store, gateway payout.Gateway, notifier notify.Notifier) *Monitor {
	if st == nil || gateway == nil {
		return nil
	}
	return &Monitor{
		store:    st,
		gateway:  gateway,
		notifier: notifier,
		interval: defaultMonitorInterval,
	}
}

// Start launches the monitor loop in a background goroutine.
func (m *Monitor) Start(ctx context.Context) {
	if m == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go m.run(ctx)
	log.Infof("liquidity monitor started (interval=%s)", m.interval)
}

func (m *Monitor) run(ctx context.Context) {
	for {
		if ctx != nil && ctx.Err() != nil {
			return
		}
		m.CheckOnce(ctx)
		if ctx != nil && ctx.Err() != nil {
			return
		}
		timer := time.NewTimer(m.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// CheckOnce runs a single liquidity check.
func (m *Monitor) CheckOnce(ctx context.Context) {
	if m == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	liq, errLiq := m.gateway.Liquidity(ctx)
	if errLiq != nil {
		log.WithError(errLiq).Warn("liquidity monitor: check failed")
		return
	}

	var outstanding int64
	errSum := m.store.DB().WithContext(ctx).
		Model(&models.Withdrawal{}).
		Where("status IN ?", []string{models.WithdrawalStatusPending, models.WithdrawalStatusProcessing}).
		Select("COALESCE(SUM(points), 0)").
		Scan(&outstanding).Error
	if errSum != nil {
		log.WithError(errSum).Warn("liquidity monitor: outstanding sum failed")
		return
	}

	// The wallet should cover everything in flight plus at least one more
	// minimum-sized withdrawal.
	need := outstanding + settings.MinWithdraw()
	if m.gateway.CanCover(liq, need) {
		return
	}

	log.WithFields(log.Fields{
		"outstanding_points": outstanding,
		"need_points":        need,
	}).Warn("liquidity monitor: hot wallet running low")
	if m.notifier != nil {
		m.notifier.NotifyOperator(ctx, fmt.Sprintf(
			"Hot wallet liquidity is low: %d points outstanding, cannot cover %d points.",
			outstanding, need))
	}
}

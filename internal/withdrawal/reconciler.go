package withdrawal

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/synkgo/rewards/internal/models"
	"github.com/synkgo/rewards/internal/notify"
	"github.com/synkgo/rewards/internal/store"
)

const (
	defaultReconcileInterval = 10 * time.Minute
	defaultStuckCutoff       = time.Hour
)

// Reconciler sweeps withdrawals stuck in processing. Anything older than
// the cutoff is failed and refunded, and an operator is alerted because a
// broadcast transaction may still settle later.
type Reconciler struct {
	store    *store.Store
	engine   *Engine
	notifier notify.Notifier
	interval time.Duration
	cutoff   time.Duration
}

// NewReconciler creates a reconciler over the withdrawal engine.
func NewReconciler(st *store.Store, engine *Engine, notifier notify.Notifier) *Reconciler {
	if st == nil || engine == nil {
		return nil
	}
	return &Reconciler{
		store:    st,
		engine:   engine,
		notifier: notifier,
		interval: defaultReconcileInterval,
		cutoff:   defaultStuckCutoff,
	}
}

// Start launches the sweep loop in a background goroutine.
func (r *Reconciler) Start(ctx context.Context) {
	if r == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go r.run(ctx)
	log.Infof("withdrawal reconciler started (interval=%s cutoff=%s)", r.interval, r.cutoff)
}

func (r *Reconciler) run(ctx context.Context) {
	for {
		if ctx != nil && ctx.Err() != nil {
			return
		}
		r.SweepOnce(ctx)
		if ctx != nil && ctx.Err() != nil {
			return
		}
		timer := time.NewTimer(r.interval)
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

// SweepOnce fails and refunds every withdrawal stuck in processing beyond
// the cutoff. Safe to call concurrently with normal processing: the
// engine's conditional transitions guarantee a single refund.
func (r *Reconciler) SweepOnce(ctx context.Context) {
	if r == nil || r.store == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stale := time.Now().UTC().Add(-r.cutoff)
	var stuck []models.Withdrawal
	errFind := r.store.DB().WithContext(ctx).
		Where("status = ? AND created_at < ?", models.WithdrawalStatusProcessing, stale).
		Order("created_at ASC").
		Find(&stuck).Error
	if errFind != nil {
		log.WithError(errFind).Warn("withdrawal reconciler: query failed")
		return
	}
	if len(stuck) == 0 {
		return
	}

	for _, wd := range stuck {
		if ctx != nil && ctx.Err() != nil {
			return
		}
		reason := "stuck in processing beyond cutoff"
		errTerm := r.engine.terminate(ctx, &wd, models.WithdrawalStatusFailed, reason, true)
		if errTerm != nil {
			log.WithError(errTerm).WithField("withdrawal", wd.WithdrawalID).
				Warn("withdrawal reconciler: terminate failed")
			continue
		}
		log.WithFields(log.Fields{
			"withdrawal": wd.WithdrawalID,
			"age":        time.Since(wd.CreatedAt).Round(time.Minute).String(),
			"tx_hash":    wd.TxHash,
		}).Warn("withdrawal reconciler: refunded stuck withdrawal")
		if r.notifier != nil {
			msg := fmt.Sprintf(
				"Withdrawal %s was stuck in processing and has been refunded. Verify tx %q did not settle on chain.",
				wd.WithdrawalID, wd.TxHash)
			r.notifier.NotifyOperator(ctx, msg)
			r.notifier.NotifyUser(ctx, wd.UserID,
				fmt.Sprintf("Withdrawal %s could not be confirmed. %d points refunded.", wd.WithdrawalID, wd.Points))
		}
	}
}

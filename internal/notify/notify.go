// Package notify delivers out-of-band messages to users and operators.
// Delivery is fire-and-forget: ledger state never depends on whether a
// notification went out.
package notify

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Notifier sends a message to a messaging identity.
type Notifier interface {
	NotifyUser(ctx context.Context, telegramID int64, message string)
	NotifyOperator(ctx context.Context, message string)
}

// LogNotifier writes notifications to the structured log. It stands in for
// a messaging transport in tests and single-node deployments.
type LogNotifier struct {
	OperatorID int64
}

// NewLogNotifier creates a LogNotifier for the given operator identity.
func NewLogNotifier(operatorID int64) *LogNotifier {
	return &LogNotifier{OperatorID: operatorID}
}

// NotifyUser logs a user-directed notification.
func (n *LogNotifier) NotifyUser(_ context.Context, telegramID int64, message string) {
	log.WithFields(log.Fields{
		"recipient": telegramID,
		"message":   message,
	}).Info("user notification")
}

// NotifyOperator logs an operator alert.
func (n *LogNotifier) NotifyOperator(_ context.Context, message string) {
	log.WithFields(log.Fields{
		"recipient": n.OperatorID,
		"message":   message,
	}).Warn("operator alert")
}

// AlertStorageFailure raises an operator alert for an unexpected storage
// error during op. Errors matching one of the expected business sentinels
// stay quiet.
func AlertStorageFailure(ctx context.Context, n Notifier, op string, err error, expected ...error) {
	if err == nil || n == nil {
		return
	}
	for _, candidate := range expected {
		if errors.Is(err, candidate) {
			return
		}
	}
	log.WithError(err).WithField("operation", op).Error("storage failure")
	n.NotifyOperator(ctx, fmt.Sprintf("Storage failure during %s: %v", op, err))
}

// Package ledger holds the point accounting rules. The functions mutate a
// user row in memory; callers persist the row inside the same transaction
// that loaded it with a row lock.
package ledger

import (
	"errors"
	"fmt"

	"github.com/synkgo/rewards/internal/models"
)

// ErrInsufficientBalance is returned when a debit would drive the balance
// negative.
var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

// ErrNonPositiveAmount is returned when an amount is zero or negative.
var ErrNonPositiveAmount = errors.New("ledger: amount must be positive")

// Credit adds earned points to a user. Both the spendable balance and the
// lifetime total grow.
func Credit(user *models.User, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrNonPositiveAmount, amount)
	}
	user.Balance += amount
	user.TotalEarned += amount
	return nil
}

// Debit reserves points from a user's spendable balance. The lifetime
// total is untouched.
func Debit(user *models.User, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrNonPositiveAmount, amount)
	}
	if user.Balance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, user.Balance, amount)
	}
	user.Balance -= amount
	return nil
}

// Refund returns previously debited points to the spendable balance. The
// lifetime total is untouched because the points were already counted when
// first earned.
func Refund(user *models.User, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrNonPositiveAmount, amount)
	}
	user.Balance += amount
	return nil
}

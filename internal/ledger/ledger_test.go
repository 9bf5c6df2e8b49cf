package ledger

import (
	"errors"
	"testing"

	"github.com/synkgo/rewards/internal/models"
)

func TestCreditGrowsBalanceAndTotal(t *testing.T) {
	user := &models.User{Balance: 10, TotalEarned: 10}
	if err := Credit(user, 5); err != nil {
		t.Fatalf("Credit returned error: %v", err)
	}
	if user.Balance != 15 {
		t.Fatalf("balance = %d, want 15", user.Balance)
	}
	if user.TotalEarned != 15 {
		t.Fatalf("total earned = %d, want 15", user.TotalEarned)
	}
}

func TestCreditRejectsNonPositive(t *testing.T) {
	user := &models.User{}
	for _, amount := range []int64{0, -1} {
		if err := Credit(user, amount); !errors.Is(err, ErrNonPositiveAmount) {
			t.Fatalf("Credit(%d) = %v, want ErrNonPositiveAmount", amount, err)
		}
	}
	if user.Balance != 0 || user.TotalEarned != 0 {
		t.Fatalf("user mutated on rejected credit: %+v", user)
	}
}

func TestDebitLeavesTotalEarned(t *testing.T) {
	user := &models.User{Balance: 20, TotalEarned: 20}
	if err := Debit(user, 8); err != nil {
		t.Fatalf("Debit returned error: %v", err)
	}
	if user.Balance != 12 {
		t.Fatalf("balance = %d, want 12", user.Balance)
	}
	if user.TotalEarned != 20 {
		t.Fatalf("total earned = %d, want 20", user.TotalEarned)
	}
}

func TestDebitNeverGoesNegative(t *testing.T) {
	user := &models.User{Balance: 3, TotalEarned: 3}
	if err := Debit(user, 4); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("Debit = %v, want ErrInsufficientBalance", err)
	}
	if user.Balance != 3 {
		t.Fatalf("balance mutated on failed debit: %d", user.Balance)
	}
}

func TestDebitExactBalance(t *testing.T) {
	user := &models.User{Balance: 7, TotalEarned: 7}
	if err := Debit(user, 7); err != nil {
		t.Fatalf("Debit returned error: %v", err)
	}
	if user.Balance != 0 {
		t.Fatalf("balance = %d, want 0", user.Balance)
	}
}

func TestRefundRestoresBalanceOnly(t *testing.T) {
	user := &models.User{Balance: 0, TotalEarned: 50}
	if err := Refund(user, 50); err != nil {
		t.Fatalf("Refund returned error: %v", err)
	}
	if user.Balance != 50 {
		t.Fatalf("balance = %d, want 50", user.Balance)
	}
	if user.TotalEarned != 50 {
		t.Fatalf("total earned = %d, want 50", user.TotalEarned)
	}
}

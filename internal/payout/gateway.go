// Package payout abstracts the on-chain settlement of withdrawals. The
// withdrawal engine only ever talks to the Gateway interface; the concrete
// implementation speaks ERC-20 over an Ethereum-compatible RPC node.
package payout

import (
	"context"
	"math/big"
)

// ConfirmStatus is the observed fate of a broadcast transaction.
type ConfirmStatus int

const (
	// ConfirmPending means the transaction has not been mined yet.
	ConfirmPending ConfirmStatus = iota
	// ConfirmSuccess means the transaction was mined and succeeded.
	ConfirmSuccess
	// ConfirmReverted means the transaction was mined but reverted.
	ConfirmReverted
)

// Liquidity describes what the hot wallet can currently pay out.
type Liquidity struct {
	GasWei     *big.Int // Native balance available for transaction fees.
	TokenUnits *big.Int // Token balance in smallest units.
}

// Gateway settles withdrawals against an external payment system.
type Gateway interface {
	// Liquidity reports the hot wallet's current balances.
	Liquidity(ctx context.Context) (Liquidity, error)

	// CanCover reports whether the wallet can pay out the given points
	// plus transaction fees, based on liq.
	CanCover(liq Liquidity, points int64) bool

	// BroadcastTransfer signs and broadcasts a token transfer worth the
	// given points and returns the transaction hash.
	BroadcastTransfer(ctx context.Context, toAddress string, points int64) (string, error)

	// Confirm checks whether a broadcast transaction has been mined.
	Confirm(ctx context.Context, txHash string) (ConfirmStatus, error)
}

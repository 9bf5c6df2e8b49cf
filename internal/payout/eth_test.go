package payout

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func testGateway() *EthGateway {
	return &EthGateway{
		tokenPerPoint: decimal.NewFromFloat(0.001),
		tokenDecimals: 18,
	}
}

func TestTokenAmountConversion(t *testing.T) {
	g := testGateway()

	// 1000 points at 0.001 token each is exactly one token.
	want, _ := new(big.Int).SetString("1000000000000000000", 10)
	if got := g.TokenAmount(1000); got.Cmp(want) != 0 {
		t.Fatalf("TokenAmount(1000) = %s, want %s", got, want)
	}

	// 1 point is 0.001 token.
	want, _ = new(big.Int).SetString("1000000000000000", 10)
	if got := g.TokenAmount(1); got.Cmp(want) != 0 {
		t.Fatalf("TokenAmount(1) = %s, want %s", got, want)
	}
}

func TestCanCover(t *testing.T) {
	g := testGateway()

	oneToken := g.TokenAmount(1000)
	plentyGas := new(big.Int).Mul(big.NewInt(1_000_000_000_000), big.NewInt(1_000_000))

	liq := Liquidity{GasWei: plentyGas, TokenUnits: oneToken}
	if !g.CanCover(liq, 1000) {
		t.Fatal("CanCover = false with exact token balance and ample gas")
	}
	if g.CanCover(liq, 1001) {
		t.Fatal("CanCover = true beyond token balance")
	}

	noGas := Liquidity{GasWei: big.NewInt(0), TokenUnits: oneToken}
	if g.CanCover(noGas, 1000) {
		t.Fatal("CanCover = true without gas for the transfer")
	}

	if g.CanCover(Liquidity{}, 1) {
		t.Fatal("CanCover = true on empty liquidity")
	}
}

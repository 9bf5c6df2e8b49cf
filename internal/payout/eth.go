package payout

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/synkgo/rewards/internal/settings"
)

// erc20ABI covers the two methods the gateway needs.
const erc20ABI = `[
    {
        "constant": false,
        "inputs": [
            {"name": "_to", "type": "address"},
            {"name": "_value", "type": "uint256"}
        ],
        "name": "transfer",
        "outputs": [{"name": "", "type": "bool"}],
        "type": "function"
    },
    {
        "constant": true,
        "inputs": [{"name": "_owner", "type": "address"}],
        "name": "balanceOf",
        "outputs": [{"name": "balance", "type": "uint256"}],
        "type": "function"
    }
]`

const rpcTimeout = 30 * time.Second

// EthConfig configures the Ethereum gateway.
type EthConfig struct {
	RPCEndpoint   string
	ChainID       int64
	TokenContract string
	PrivateKey    string
	TokenPerPoint decimal.Decimal // Token amount one point converts to.
	TokenDecimals int32           // Token contract decimals.
}

// EthGateway settles withdrawals as ERC-20 transfers from a hot wallet.
type EthGateway struct {
	client      *ethclient.Client
	contractABI abi.ABI
	token       common.Address
	wallet      common.Address
	privateKey  *ecdsa.PrivateKey
	chainID     *big.Int

	tokenPerPoint decimal.Decimal
	tokenDecimals int32
}

// NewEthGateway connects to the RPC node and prepares the signer. The
// connection is retried a few times because nodes routinely flap on boot.
func NewEthGateway(cfg EthConfig) (*EthGateway, error) {
	if strings.TrimSpace(cfg.RPCEndpoint) == "" {
		return nil, errors.New("payout: empty rpc endpoint")
	}
	if !common.IsHexAddress(cfg.TokenContract) {
		return nil, fmt.Errorf("payout: invalid token contract: %s", cfg.TokenContract)
	}

	privateKey, errKey := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if errKey != nil {
		return nil, fmt.Errorf("payout: parse private key: %w", errKey)
	}

	var client *ethclient.Client
	var errDial error
	for attempt := 0; attempt < 3; attempt++ {
		dialCtx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
		client, errDial = ethclient.DialContext(dialCtx, cfg.RPCEndpoint)
		cancel()
		if errDial == nil {
			break
		}
		log.WithError(errDial).WithField("attempt", attempt+1).Warn("payout: rpc dial failed")
		time.Sleep(2 * time.Second)
	}
	if errDial != nil {
		return nil, fmt.Errorf("payout: dial rpc: %w", errDial)
	}

	parsedABI, errABI := abi.JSON(strings.NewReader(erc20ABI))
	if errABI != nil {
		client.Close()
		return nil, fmt.Errorf("payout: parse abi: %w", errABI)
	}

	tokenPerPoint := cfg.TokenPerPoint
	if tokenPerPoint.IsZero() {
		tokenPerPoint = decimal.NewFromFloat(0.001)
	}
	tokenDecimals := cfg.TokenDecimals
	if tokenDecimals == 0 {
		tokenDecimals = 18
	}

	return &EthGateway{
		client:        client,
		contractABI:   parsedABI,
		token:         common.HexToAddress(cfg.TokenContract),
		wallet:        crypto.PubkeyToAddress(privateKey.PublicKey),
		privateKey:    privateKey,
		chainID:       big.NewInt(cfg.ChainID),
		tokenPerPoint: tokenPerPoint,
		tokenDecimals: tokenDecimals,
	}, nil
}

// ValidAddress reports whether addr is a well-formed hex address.
func ValidAddress(addr string) bool {
	return common.IsHexAddress(addr)
}

// WalletAddress returns the hot wallet address derived from the signer key.
func (g *EthGateway) WalletAddress() string {
	return g.wallet.Hex()
}

// TokenAmount converts a point amount into token units.
func (g *EthGateway) TokenAmount(points int64) *big.Int {
	return decimal.NewFromInt(points).
		Mul(g.tokenPerPoint).
		Shift(g.tokenDecimals).
		BigInt()
}

// Liquidity reports the hot wallet's native and token balances.
func (g *EthGateway) Liquidity(ctx context.Context) (Liquidity, error) {
	callCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	gasWei, errGas := g.client.BalanceAt(callCtx, g.wallet, nil)
	if errGas != nil {
		return Liquidity{}, fmt.Errorf("payout: gas balance: %w", errGas)
	}

	data, errPack := g.contractABI.Pack("balanceOf", g.wallet)
	if errPack != nil {
		return Liquidity{}, fmt.Errorf("payout: pack balanceOf: %w", errPack)
	}
	result, errCall := g.client.CallContract(callCtx, ethereum.CallMsg{
		To:   &g.token,
		Data: data,
	}, nil)
	if errCall != nil {
		return Liquidity{}, fmt.Errorf("payout: token balance: %w", errCall)
	}

	return Liquidity{
		GasWei:     gasWei,
		TokenUnits: new(big.Int).SetBytes(result),
	}, nil
}

// CanCover reports whether liq covers the token amount for points plus the
// worst-case transaction fee at the configured gas settings.
func (g *EthGateway) CanCover(liq Liquidity, points int64) bool {
	if liq.GasWei == nil || liq.TokenUnits == nil {
		return false
	}
	need := g.TokenAmount(points)
	if liq.TokenUnits.Cmp(need) < 0 {
		return false
	}
	fee := new(big.Int).Mul(g.gasPriceWei(), new(big.Int).SetUint64(settings.GasLimit()))
	return liq.GasWei.Cmp(fee) >= 0
}

// BroadcastTransfer signs and sends an ERC-20 transfer for points worth of
// tokens to toAddress.
func (g *EthGateway) BroadcastTransfer(ctx context.Context, toAddress string, points int64) (string, error) {
	if !common.IsHexAddress(toAddress) {
		return "", fmt.Errorf("payout: invalid destination address: %s", toAddress)
	}

	data, errPack := g.contractABI.Pack("transfer", common.HexToAddress(toAddress), g.TokenAmount(points))
	if errPack != nil {
		return "", fmt.Errorf("payout: pack transfer: %w", errPack)
	}

	nonceCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	nonce, errNonce := g.client.PendingNonceAt(nonceCtx, g.wallet)
	cancel()
	if errNonce != nil {
		return "", fmt.Errorf("payout: nonce: %w", errNonce)
	}

	tx := types.NewTransaction(
		nonce,
		g.token,
		big.NewInt(0),
		settings.GasLimit(),
		g.gasPriceWei(),
		data,
	)

	signedTx, errSign := types.SignTx(tx, types.NewEIP155Signer(g.chainID), g.privateKey)
	if errSign != nil {
		return "", fmt.Errorf("payout: sign: %w", errSign)
	}

	sendCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	if errSend := g.client.SendTransaction(sendCtx, signedTx); errSend != nil {
		return "", fmt.Errorf("payout: send: %w", errSend)
	}
	return signedTx.Hash().Hex(), nil
}

// Confirm checks the receipt of a broadcast transaction.
func (g *EthGateway) Confirm(ctx context.Context, txHash string) (ConfirmStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	receipt, errReceipt := g.client.TransactionReceipt(callCtx, common.HexToHash(txHash))
	if errReceipt != nil {
		if errors.Is(errReceipt, ethereum.NotFound) {
			return ConfirmPending, nil
		}
		return ConfirmPending, fmt.Errorf("payout: receipt: %w", errReceipt)
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return ConfirmSuccess, nil
	}
	return ConfirmReverted, nil
}

// Close releases the RPC connection.
func (g *EthGateway) Close() {
	if g.client != nil {
		g.client.Close()
	}
}

// gasPriceWei converts the configured gwei gas price to wei.
func (g *EthGateway) gasPriceWei() *big.Int {
	gwei := big.NewInt(settings.GasPriceGwei())
	return gwei.Mul(gwei, big.NewInt(1_000_000_000))
}

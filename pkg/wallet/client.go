package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	polygonUSDC        = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	polygonCTFExchange = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

	usdcDecimals  = 6
	maticDecimals = 18
)

// Client reads the wallet balances the balance guard trades against.
type Client struct {
	rpcURL string
	logger *zap.Logger
}

// Balances are raw on-chain amounts: MATIC in wei, USDC in 6-decimal units.
type Balances struct {
	MATIC         *big.Int
	USDC          *big.Int
	USDCAllowance *big.Int
}

// NewClient creates a wallet client. Each GetBalances call dials the endpoint.
func NewClient(rpcURL string, logger *zap.Logger) (*Client, error) {
	switch {
	case rpcURL == "":
		return nil, errors.New("rpcURL cannot be empty")
	case logger == nil:
		return nil, errors.New("logger cannot be nil")
	}
	return &Client{rpcURL: rpcURL, logger: logger}, nil
}

// erc20View covers the two read-only ERC20 calls the engine needs.
//
//nolint:gochecknoglobals // parsed once
var erc20View = mustParseABI(`[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	return parsed
}

// GetBalances reads MATIC, USDC and the USDC allowance granted to the CTF exchange.
func (c *Client) GetBalances(ctx context.Context, address common.Address) (*Balances, error) {
	client, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	defer client.Close()

	matic, err := client.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("get MATIC balance: %w", err)
	}

	usdc := common.HexToAddress(polygonUSDC)
	balance, err := callUint(ctx, client, usdc, "balanceOf", address)
	if err != nil {
		return nil, fmt.Errorf("get USDC balance: %w", err)
	}
	allowance, err := callUint(ctx, client, usdc, "allowance", address, common.HexToAddress(polygonCTFExchange))
	if err != nil {
		return nil, fmt.Errorf("get USDC allowance: %w", err)
	}

	balances := &Balances{MATIC: matic, USDC: balance, USDCAllowance: allowance}

	MATICBalance.Set(balances.MATICFloat())
	USDCBalance.Set(balances.USDCFloat())
	USDCAllowance.Set(ToUSDC(allowance).InexactFloat64())

	c.logger.Debug("wallet-balances-fetched",
		zap.String("address", address.Hex()),
		zap.String("usdc", ToUSDC(balance).StringFixed(2)),
		zap.String("allowance", ToUSDC(allowance).StringFixed(2)))

	return balances, nil
}

func callUint(ctx context.Context, client *ethclient.Client, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	data, err := erc20View.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return decodeUint(method, out)
}

func decodeUint(method string, out []byte) (*big.Int, error) {
	values, err := erc20View.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected %T", method, values[0])
	}
	return value, nil
}

// ToUSDC converts a raw 6-decimal USDC amount into dollars.
func ToUSDC(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -usdcDecimals)
}

// FromUSDC converts dollars into a raw 6-decimal amount, truncating sub-micro dust.
func FromUSDC(amount decimal.Decimal) *big.Int {
	return amount.Shift(usdcDecimals).Truncate(0).BigInt()
}

// USDCFloat returns the USDC balance in dollars.
func (b *Balances) USDCFloat() float64 {
	return ToUSDC(b.USDC).InexactFloat64()
}

// MATICFloat returns the MATIC balance in native units.
func (b *Balances) MATICFloat() float64 {
	if b.MATIC == nil {
		return 0
	}
	return decimal.NewFromBigInt(b.MATIC, -maticDecimals).InexactFloat64()
}

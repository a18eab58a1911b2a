package execution

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-updown/internal/ledger"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"github.com/mselser95/polymarket-updown/pkg/wallet"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	polygonChainID = 137
	zeroAddress    = "0x0000000000000000000000000000000000000000"
)

// ClobClient signs orders with EIP-712 and talks to the Polymarket CLOB REST API
// using L2 HMAC authentication.
type ClobClient struct {
	baseURL       string
	apiKey        string
	secret        string
	passphrase    string
	privateKey    *ecdsa.PrivateKey
	address       string // EOA signer
	proxyAddress  string // maker/funder when trading through a proxy wallet
	signatureType model.SignatureType
	orderBuilder  builder.ExchangeOrderBuilder
	httpClient    *http.Client
	logger        *zap.Logger
	now           func() time.Time
}

// ClobConfig holds configuration for the CLOB client.
type ClobConfig struct {
	BaseURL       string
	APIKey        string
	Secret        string
	Passphrase    string
	PrivateKey    string
	ProxyAddress  string
	SignatureType int
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// NewClobClient parses the signing key and prepares the order builder.
func NewClobClient(cfg *ClobConfig) (*ClobClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL cannot be empty")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("derive public key")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &ClobClient{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		secret:        cfg.Secret,
		passphrase:    cfg.Passphrase,
		privateKey:    privateKey,
		address:       crypto.PubkeyToAddress(*publicKey).Hex(),
		proxyAddress:  cfg.ProxyAddress,
		signatureType: model.SignatureType(cfg.SignatureType),
		orderBuilder:  builder.NewExchangeOrderBuilderImpl(big.NewInt(polygonChainID), nil),
		httpClient:    httpClient,
		logger:        cfg.Logger,
		now:           time.Now,
	}, nil
}

// Address returns the EOA that signs orders.
func (c *ClobClient) Address() string {
	return c.address
}

// orderAmounts returns raw maker and taker amounts. A BUY pays USDC for shares,
// a SELL gives shares for USDC; both use six decimals.
func orderAmounts(req OrderRequest) (maker, taker *big.Int) {
	shares := decimal.NewFromFloat(req.Size).Truncate(2)
	notional := shares.Mul(decimal.NewFromFloat(req.Price)).Truncate(4)

	if req.Side == ledger.SideSell {
		return wallet.FromUSDC(shares), wallet.FromUSDC(notional)
	}
	return wallet.FromUSDC(notional), wallet.FromUSDC(shares)
}

// Sign builds and signs an order locally.
func (c *ClobClient) Sign(_ context.Context, req OrderRequest) (*SignedOrder, error) {
	maker := c.address
	if c.proxyAddress != "" {
		maker = c.proxyAddress
	}

	side := model.BUY
	if req.Side == ledger.SideSell {
		side = model.SELL
	}

	makerAmount, takerAmount := orderAmounts(req)
	if makerAmount.Sign() <= 0 || takerAmount.Sign() <= 0 {
		return nil, &types.OrderError{
			Code:    types.ErrInvalidMinSize,
			Message: fmt.Sprintf("order rounds to zero: size %.4f price %.4f", req.Size, req.Price),
		}
	}

	data := &model.OrderData{
		Maker:         maker,
		Taker:         zeroAddress,
		TokenId:       req.TokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Side:          side,
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        c.address,
		Expiration:    "0",
		SignatureType: c.signatureType,
	}

	signed, err := c.orderBuilder.BuildSignedOrder(c.privateKey, data, model.CTFExchange)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}

	return &SignedOrder{
		Request: req,
		Payload: types.SignedOrderJSON{
			Salt:          signed.Salt.Int64(),
			Maker:         signed.Maker.Hex(),
			Signer:        signed.Signer.Hex(),
			Taker:         signed.Taker.Hex(),
			TokenID:       signed.TokenId.String(),
			MakerAmount:   signed.MakerAmount.String(),
			TakerAmount:   signed.TakerAmount.String(),
			Side:          string(req.Side),
			Expiration:    signed.Expiration.String(),
			Nonce:         signed.Nonce.String(),
			FeeRateBps:    signed.FeeRateBps.String(),
			SignatureType: int(signed.SignatureType.Int64()),
			Signature:     "0x" + common.Bytes2Hex(signed.Signature),
		},
	}, nil
}

// Submit posts a signed order.
func (c *ClobClient) Submit(ctx context.Context, order *SignedOrder, orderType OrderType) (*SubmitResult, error) {
	body, err := json.Marshal(types.OrderSubmissionRequest{
		Order:     order.Payload,
		Owner:     c.apiKey,
		OrderType: string(orderType),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	var resp types.OrderSubmissionResponse
	err = c.do(ctx, http.MethodPost, "/order", body, &resp)
	if err != nil {
		return nil, err
	}

	if !resp.Success && resp.ErrorMsg != "" {
		return nil, &types.OrderError{
			Code:       errorCode(resp.ErrorMsg),
			Message:    resp.ErrorMsg,
			OrderID:    resp.OrderID,
			Side:       string(order.Request.Side),
			HTTPStatus: http.StatusOK,
		}
	}

	filled := parseAmount(resp.TakingAmount)
	if order.Request.Side == ledger.SideSell {
		filled = parseAmount(resp.MakingAmount)
	}
	if filled == 0 && strings.EqualFold(resp.Status, "matched") {
		filled = order.Request.Size
	}

	result := &SubmitResult{
		OrderID:    resp.OrderID,
		Status:     legStatusOf(resp.Status, order.Request.Size, filled),
		FilledSize: filled,
	}
	if filled > 0 {
		result.FillPrice = order.Request.Price
	}

	c.logger.Debug("order-submitted",
		zap.String("order-id", resp.OrderID),
		zap.String("token-id", order.Request.TokenID),
		zap.String("status", resp.Status),
		zap.Float64("filled", filled))

	return result, nil
}

// GetOrder queries one order.
func (c *ClobClient) GetOrder(ctx context.Context, orderID string) (*OrderState, error) {
	var resp types.OrderQueryResponse
	err := c.do(ctx, http.MethodGet, "/data/order/"+orderID, nil, &resp)
	if err != nil {
		return nil, err
	}

	return &OrderState{
		OrderID:    orderID,
		Status:     legStatusOf(resp.Status, resp.Size, resp.SizeFilled),
		Size:       resp.Size,
		FilledSize: resp.SizeFilled,
		Price:      resp.Price,
	}, nil
}

// Cancel cancels the given orders.
func (c *ClobClient) Cancel(ctx context.Context, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}

	body, err := json.Marshal(types.CancelRequest{OrderIDs: orderIDs})
	if err != nil {
		return fmt.Errorf("marshal cancel: %w", err)
	}

	var resp types.CancelResponse
	err = c.do(ctx, http.MethodDelete, "/orders", body, &resp)
	if err != nil {
		return err
	}

	for id, reason := range resp.NotCanceled {
		c.logger.Warn("order-not-cancelled", zap.String("order-id", id), zap.String("reason", reason))
	}
	return nil
}

// CancelAll cancels every open order of the API key.
func (c *ClobClient) CancelAll(ctx context.Context) (*types.CancelResponse, error) {
	var resp types.CancelResponse
	err := c.do(ctx, http.MethodDelete, "/cancel-all", nil, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ClobClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	headers, err := c.l2Headers(method, path, body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := string(data)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &types.OrderError{
			Code:       errorCode(msg),
			Message:    msg,
			HTTPStatus: resp.StatusCode,
		}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	err = json.Unmarshal(data, out)
	if err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// l2Headers signs timestamp+method+path+body with the URL-safe base64 API secret.
func (c *ClobClient) l2Headers(method, path string, body []byte) (map[string]string, error) {
	secret, err := base64.URLEncoding.DecodeString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp + method + path + string(body)))

	return map[string]string{
		"POLY_ADDRESS":    c.address,
		"POLY_API_KEY":    c.apiKey,
		"POLY_PASSPHRASE": c.passphrase,
		"POLY_SIGNATURE":  base64.URLEncoding.EncodeToString(mac.Sum(nil)),
		"POLY_TIMESTAMP":  timestamp,
	}, nil
}

var knownCodes = []string{
	types.ErrInvalidMinTickSize,
	types.ErrInvalidMinSize,
	types.ErrNotEnoughBalance,
	types.ErrInvalidExpiration,
	types.ErrFOKNotFilled,
	types.ErrMarketNotReady,
}

func errorCode(msg string) string {
	upper := strings.ToUpper(msg)
	for _, code := range knownCodes {
		if strings.Contains(upper, code) {
			return code
		}
	}
	switch {
	case strings.Contains(upper, "NOT ENOUGH BALANCE"):
		return types.ErrNotEnoughBalance
	case strings.Contains(upper, "TICK SIZE"):
		return types.ErrInvalidMinTickSize
	}
	return types.ErrUnknownStatus
}

func parseAmount(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

package execution

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-updown/internal/ledger"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// well-known development key, never funded
const testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testSecret = base64.URLEncoding.EncodeToString([]byte("test-secret-bytes"))

func newTestClob(t *testing.T, handler http.HandlerFunc) *ClobClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClobClient(&ClobConfig{
		BaseURL:    server.URL,
		APIKey:     "api-key",
		Secret:     testSecret,
		Passphrase: "pass",
		PrivateKey: testPrivateKey,
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	client.now = func() time.Time { return time.Unix(1700000000, 0) }
	return client
}

func TestClobClient_SignBuildsAmounts(t *testing.T) {
	client := newTestClob(t, func(w http.ResponseWriter, _ *http.Request) {})

	order, err := client.Sign(context.Background(), OrderRequest{
		TokenID: "123456789",
		Side:    ledger.SideBuy,
		Price:   0.45,
		Size:    10,
	})
	require.NoError(t, err)

	assert.Equal(t, "4500000", order.Payload.MakerAmount)
	assert.Equal(t, "10000000", order.Payload.TakerAmount)
	assert.Equal(t, "BUY", order.Payload.Side)
	assert.Equal(t, "123456789", order.Payload.TokenID)
	assert.Equal(t, client.Address(), order.Payload.Signer)
	assert.Contains(t, order.Payload.Signature, "0x")
	assert.Greater(t, len(order.Payload.Signature), 100)
}

func TestClobClient_SignRejectsDust(t *testing.T) {
	client := newTestClob(t, func(w http.ResponseWriter, _ *http.Request) {})

	_, err := client.Sign(context.Background(), OrderRequest{TokenID: "1", Side: ledger.SideBuy, Price: 0.5, Size: 0.001})
	require.Error(t, err)
	assert.False(t, types.IsRetryable(err))
}

func TestClobClient_SubmitSendsL2Headers(t *testing.T) {
	var gotBody []byte
	client := newTestClob(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order", r.URL.Path)

		gotBody, _ = io.ReadAll(r.Body)
		assert.Equal(t, "api-key", r.Header.Get("POLY_API_KEY"))
		assert.Equal(t, "pass", r.Header.Get("POLY_PASSPHRASE"))
		assert.Equal(t, "1700000000", r.Header.Get("POLY_TIMESTAMP"))

		secret, _ := base64.URLEncoding.DecodeString(testSecret)
		mac := hmac.New(sha256.New, secret)
		mac.Write([]byte(strconv.Itoa(1700000000) + "POST/order" + string(gotBody)))
		assert.Equal(t, base64.URLEncoding.EncodeToString(mac.Sum(nil)), r.Header.Get("POLY_SIGNATURE"))

		_, _ = w.Write([]byte(`{"success":true,"orderId":"0xabc","status":"matched","takingAmount":"10","makingAmount":"4.5"}`))
	})

	order, err := client.Sign(context.Background(), OrderRequest{TokenID: "42", Side: ledger.SideBuy, Price: 0.45, Size: 10})
	require.NoError(t, err)

	result, err := client.Submit(context.Background(), order, OrderTypeGTC)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", result.OrderID)
	assert.Equal(t, ledger.LegFilled, result.Status)
	assert.InDelta(t, 10, result.FilledSize, 1e-9)

	var req types.OrderSubmissionRequest
	require.NoError(t, json.Unmarshal(gotBody, &req))
	assert.Equal(t, "api-key", req.Owner)
	assert.Equal(t, "GTC", req.OrderType)
}

func TestClobClient_SubmitErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		blocked   bool
		code      string
	}{
		{"forbidden", http.StatusForbidden, `<html>blocked</html>`, false, true, types.ErrUnknownStatus},
		{"server error", http.StatusInternalServerError, `{"error":"oops"}`, true, false, types.ErrUnknownStatus},
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, true, false, types.ErrUnknownStatus},
		{"balance", http.StatusBadRequest, `{"error":"INVALID_ORDER_NOT_ENOUGH_BALANCE"}`, false, false, types.ErrNotEnoughBalance},
		{"tick size", http.StatusBadRequest, `{"error":"invalid tick size"}`, false, false, types.ErrInvalidMinTickSize},
		{"rejected in body", http.StatusOK, `{"success":false,"errorMsg":"not enough balance / allowance"}`, false, false, types.ErrNotEnoughBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClob(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			order, err := client.Sign(context.Background(), OrderRequest{TokenID: "42", Side: ledger.SideBuy, Price: 0.5, Size: 10})
			require.NoError(t, err)

			_, err = client.Submit(context.Background(), order, OrderTypeGTC)
			require.Error(t, err)
			assert.Equal(t, tt.retryable, types.IsRetryable(err))
			assert.Equal(t, tt.blocked, errors.Is(err, types.ErrAuthBlocked))

			var orderErr *types.OrderError
			require.ErrorAs(t, err, &orderErr)
			assert.Equal(t, tt.code, orderErr.Code)
		})
	}
}

func TestClobClient_GetOrderAndCancel(t *testing.T) {
	client := newTestClob(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/data/order/o1":
			_, _ = w.Write([]byte(`{"id":"o1","status":"LIVE","original_size":"10","size_matched":"4","price":"0.45"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/orders":
			var req types.CancelRequest
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &req)
			assert.Equal(t, []string{"o1"}, req.OrderIDs)
			_, _ = w.Write([]byte(`{"canceled":["o1"],"not_canceled":{}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	state, err := client.GetOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, ledger.LegMatched, state.Status)
	assert.InDelta(t, 4, state.FilledSize, 1e-9)
	assert.InDelta(t, 10, state.Size, 1e-9)

	require.NoError(t, client.Cancel(context.Background(), []string{"o1"}))
	require.NoError(t, client.Cancel(context.Background(), nil))
}

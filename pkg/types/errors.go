package types

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrAuthBlocked is returned when the gateway rejects every request (403 / WAF).
var ErrAuthBlocked = errors.New("gateway rejected request: forbidden")

// OrderError is an error that occurred during order signing, submission or query.
type OrderError struct {
	Code       string // API error code or internal error code
	Message    string // Human-readable error message
	OrderID    string // Order ID if available
	Side       string // YES or NO
	HTTPStatus int    // 0 when the request never got a response
}

func (e *OrderError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("%s order failed (ID: %s): %s (%s)", e.Side, e.OrderID, e.Message, e.Code)
	}

	return fmt.Sprintf("%s order failed: %s (%s)", e.Side, e.Message, e.Code)
}

// Is lets errors.Is match ErrAuthBlocked on 403 responses.
func (e *OrderError) Is(target error) bool {
	return target == ErrAuthBlocked && e.HTTPStatus == http.StatusForbidden
}

// Known Polymarket CLOB API error codes
const (
	ErrInvalidMinTickSize = "INVALID_ORDER_MIN_TICK_SIZE"
	ErrInvalidMinSize     = "INVALID_ORDER_MIN_SIZE"
	ErrNotEnoughBalance   = "INVALID_ORDER_NOT_ENOUGH_BALANCE"
	ErrInvalidExpiration  = "INVALID_ORDER_EXPIRATION"
	ErrFOKNotFilled       = "FOK_ORDER_NOT_FILLED_ERROR"
	ErrMarketNotReady     = "MARKET_NOT_READY"
	ErrUnmatched          = "UNMATCHED"
	ErrUnknownStatus      = "UNKNOWN_STATUS"
	ErrTimeout            = "TIMEOUT"
	ErrNetwork            = "NETWORK"
)

var nonRetryableCodes = map[string]bool{
	ErrInvalidMinTickSize: true,
	ErrInvalidMinSize:     true,
	ErrNotEnoughBalance:   true,
	ErrInvalidExpiration:  true,
	ErrFOKNotFilled:       true,
}

// IsRetryable classifies an exchange error. Network failures, timeouts, 429 and 5xx
// are transient. Validation and balance rejections, other 4xx and 403 are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, ErrAuthBlocked) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var orderErr *OrderError
	if errors.As(err, &orderErr) {
		if nonRetryableCodes[orderErr.Code] {
			return false
		}
		switch {
		case orderErr.HTTPStatus == 0:
			return orderErr.Code == ErrTimeout || orderErr.Code == ErrNetwork || orderErr.Code == ErrMarketNotReady
		case orderErr.HTTPStatus == http.StatusTooManyRequests:
			return true
		case orderErr.HTTPStatus >= 500:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

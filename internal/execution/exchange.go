package execution

import (
	"context"

	"github.com/mselser95/polymarket-updown/internal/ledger"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

// OrderType is the CLOB time-in-force.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC"
	OrderTypeFOK OrderType = "FOK"
	OrderTypeFAK OrderType = "FAK"
)

// OrderRequest describes one limit order before signing.
type OrderRequest struct {
	TokenID  string
	Side     ledger.Side
	Price    float64 // already rounded to tick
	Size     float64 // shares
	TickSize float64
}

// SignedOrder is an order signed locally and ready to post.
type SignedOrder struct {
	Request OrderRequest
	Payload types.SignedOrderJSON
}

// SubmitResult is the gateway's answer to a posted order.
type SubmitResult struct {
	OrderID    string
	Status     ledger.LegStatus
	FilledSize float64
	FillPrice  float64
}

// OrderState is the current state of a posted order.
type OrderState struct {
	OrderID    string
	Status     ledger.LegStatus
	Size       float64
	FilledSize float64
	Price      float64
}

// Exchange is the two-phase order API. Sign never touches the network;
// Submit posts an already signed order.
type Exchange interface {
	Sign(ctx context.Context, req OrderRequest) (*SignedOrder, error)
	Submit(ctx context.Context, order *SignedOrder, orderType OrderType) (*SubmitResult, error)
	GetOrder(ctx context.Context, orderID string) (*OrderState, error)
	Cancel(ctx context.Context, orderIDs []string) error
}

const fillTolerance = 0.001

// legStatusOf maps a CLOB order status and match size onto a leg status.
func legStatusOf(status string, size, matched float64) ledger.LegStatus {
	switch {
	case size > 0 && matched >= size-fillTolerance:
		return ledger.LegFilled
	case matched > 0:
		return ledger.LegMatched
	}

	switch status {
	case "CANCELED", "CANCELLED", "canceled", "cancelled":
		return ledger.LegCancelled
	case "LIVE", "live":
		return ledger.LegLive
	case "MATCHED", "matched":
		return ledger.LegMatched
	case "unmatched", "UNMATCHED":
		return ledger.LegRejected
	default:
		return ledger.LegPosted
	}
}

package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mselser95/polymarket-updown/internal/ledger"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"go.uber.org/zap"
)

// PaperExchange simulates the order API. Every order fills in full at its limit
// price on submission.
type PaperExchange struct {
	logger *zap.Logger

	mu     sync.Mutex
	orders map[string]*OrderState
}

// NewPaperExchange creates a simulated exchange.
func NewPaperExchange(logger *zap.Logger) *PaperExchange {
	return &PaperExchange{
		logger: logger,
		orders: make(map[string]*OrderState),
	}
}

// Sign wraps the request without signing anything.
func (p *PaperExchange) Sign(_ context.Context, req OrderRequest) (*SignedOrder, error) {
	if req.Size <= 0 || req.Price <= 0 || req.Price >= 1 {
		return nil, &types.OrderError{
			Code:    types.ErrInvalidMinSize,
			Message: fmt.Sprintf("invalid paper order: size %.4f price %.4f", req.Size, req.Price),
			Side:    string(req.Side),
		}
	}

	return &SignedOrder{
		Request: req,
		Payload: types.SignedOrderJSON{TokenID: req.TokenID, Side: string(req.Side)},
	}, nil
}

// Submit fills the order immediately.
func (p *PaperExchange) Submit(_ context.Context, order *SignedOrder, _ OrderType) (*SubmitResult, error) {
	id := "paper-" + uuid.New().String()
	state := &OrderState{
		OrderID:    id,
		Status:     ledger.LegFilled,
		Size:       order.Request.Size,
		FilledSize: order.Request.Size,
		Price:      order.Request.Price,
	}

	p.mu.Lock()
	p.orders[id] = state
	p.mu.Unlock()

	p.logger.Info("paper-order-filled",
		zap.String("order-id", id),
		zap.String("token-id", order.Request.TokenID),
		zap.String("side", string(order.Request.Side)),
		zap.Float64("price", order.Request.Price),
		zap.Float64("size", order.Request.Size))

	return &SubmitResult{
		OrderID:    id,
		Status:     ledger.LegFilled,
		FilledSize: state.FilledSize,
		FillPrice:  state.Price,
	}, nil
}

// GetOrder returns a simulated order.
func (p *PaperExchange) GetOrder(_ context.Context, orderID string) (*OrderState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.orders[orderID]
	if !ok {
		return nil, &types.OrderError{Code: types.ErrUnknownStatus, Message: "unknown paper order", OrderID: orderID}
	}
	stateCopy := *state
	return &stateCopy, nil
}

// Cancel marks resting simulated orders as cancelled.
func (p *PaperExchange) Cancel(_ context.Context, orderIDs []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range orderIDs {
		state, ok := p.orders[id]
		if ok && state.Status != ledger.LegFilled {
			state.Status = ledger.LegCancelled
		}
	}
	return nil
}

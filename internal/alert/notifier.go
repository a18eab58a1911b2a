// Package alert delivers high-severity operator notifications: circuit
// breaker trips, unhedged trades and trading halts.
package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Severity classifies an alert.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is one notification.
type Alert struct {
	Severity Severity
	Title    string
	Message  string
}

// Sender delivers alerts to one channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches alerts to every sender asynchronously. Alerts raised
// from the trading path must never wait on a webhook.
type Notifier struct {
	logger  *zap.Logger
	senders []Sender
	timeout time.Duration
	queue   chan Alert

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNotifier creates a notifier. With no senders alerts are only logged.
func NewNotifier(logger *zap.Logger, senders ...Sender) *Notifier {
	return &Notifier{
		logger:  logger,
		senders: senders,
		timeout: 10 * time.Second,
		queue:   make(chan Alert, 64),
	}
}

// Notify logs the alert and queues it for delivery.
func (n *Notifier) Notify(a Alert) {
	n.logger.Warn("alert",
		zap.String("severity", string(a.Severity)),
		zap.String("title", a.Title),
		zap.String("message", a.Message))
	AlertsTotal.WithLabelValues(string(a.Severity)).Inc()

	if len(n.senders) == 0 {
		return
	}

	select {
	case n.queue <- a:
	default:
		AlertsDroppedTotal.Inc()
	}
}

// Start begins delivering queued alerts.
func (n *Notifier) Start(ctx context.Context) error {
	n.ctx, n.cancel = context.WithCancel(ctx)

	n.wg.Add(1)
	go n.run()
	return nil
}

func (n *Notifier) run() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			n.drain()
			return
		case a := <-n.queue:
			_ = n.Dispatch(n.ctx, a)
		}
	}
}

// drain delivers whatever is still queued on shutdown.
func (n *Notifier) drain() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(n.ctx), n.timeout)
	defer cancel()

	for {
		select {
		case a := <-n.queue:
			_ = n.Dispatch(ctx, a)
		default:
			return
		}
	}
}

// Dispatch sends a to every sender synchronously. One sender failing does not
// stop delivery to the others.
func (n *Notifier) Dispatch(ctx context.Context, a Alert) error {
	title := fmt.Sprintf("[%s] %s", a.Severity, a.Title)

	var errs []error
	for _, s := range n.senders {
		sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
		err := s.Send(sendCtx, title, a.Message)
		cancel()
		if err != nil {
			SendErrorsTotal.WithLabelValues(s.Name()).Inc()
			n.logger.Error("alert-send-failed", zap.String("sender", s.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes queued alerts and stops the notifier.
func (n *Notifier) Close() error {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
	return nil
}

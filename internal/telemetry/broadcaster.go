package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Sink receives encoded events.
type Sink interface {
	Publish(ctx context.Context, payload []byte) error
	Name() string
}

// Config holds broadcaster configuration.
type Config struct {
	Logger         *zap.Logger
	Sinks          []Sink
	BufferSize     int
	PublishTimeout time.Duration
}

// Broadcaster fans events out to every sink. Emit never blocks; a slow or
// failing sink loses events but cannot stall the caller.
type Broadcaster struct {
	logger  *zap.Logger
	sinks   []Sink
	timeout time.Duration
	events  chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a broadcaster.
func New(cfg Config) (*Broadcaster, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}

	return &Broadcaster{
		logger:  cfg.Logger,
		sinks:   cfg.Sinks,
		timeout: cfg.PublishTimeout,
		events:  make(chan Event, cfg.BufferSize),
	}, nil
}

// Emit queues an event. It returns false if the event was dropped.
func (b *Broadcaster) Emit(event Event) bool {
	select {
	case b.events <- event:
		EventsTotal.WithLabelValues(string(event.Type)).Inc()
		return true
	default:
		EventsDroppedTotal.Inc()
		return false
	}
}

// Start begins delivering events.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(1)
	go b.run()

	b.logger.Info("telemetry-broadcaster-started", zap.Int("sinks", len(b.sinks)))
	return nil
}

func (b *Broadcaster) run() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case event := <-b.events:
			b.deliver(event)
		}
	}
}

func (b *Broadcaster) deliver(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("telemetry-marshal-failed", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}

	for _, sink := range b.sinks {
		ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
		err = sink.Publish(ctx, payload)
		cancel()
		if err != nil {
			PublishErrorsTotal.WithLabelValues(sink.Name()).Inc()
			b.logger.Debug("telemetry-publish-failed",
				zap.String("sink", sink.Name()),
				zap.Error(err))
		}
	}
}

// Close stops delivery. Queued events are discarded.
func (b *Broadcaster) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	return nil
}

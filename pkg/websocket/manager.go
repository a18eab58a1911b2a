package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"go.uber.org/zap"
)

// Manager is the market feed adapter: one WebSocket connection to the CLOB market
// channel, emitting normalized per-token deltas in receipt order.
type Manager struct {
	url             string
	conn            *websocket.Conn
	logger          *zap.Logger
	reconnectMgr    *ReconnectManager
	config          Config
	deltaChan       chan *types.BookDelta
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	mu              sync.RWMutex
	writeMu         sync.Mutex
	subscribed      map[string]bool // tracks subscribed token IDs
	connected       atomic.Bool
	blocked         atomic.Bool
	lastPongTime    atomic.Int64
	connectionStart atomic.Int64 // Unix timestamp of connection start
}

// Config holds WebSocket manager configuration.
type Config struct {
	URL                   string
	DialTimeout           time.Duration
	PongTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	MessageBufferSize     int
	Logger                *zap.Logger

	// OnDiscontinuity receives every subscribed token when the stream drops.
	OnDiscontinuity func(tokenIDs []string)
	// OnBlocked fires once when the gateway answers 403; the connection is not retried.
	OnBlocked func(err error)
}

// New creates a new WebSocket manager.
func New(cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	reconnectCfg := ReconnectConfig{
		InitialDelay:      cfg.ReconnectInitialDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		BackoffMultiplier: cfg.ReconnectBackoffMult,
		JitterPercent:     0.2,
	}

	return &Manager{
		url:          cfg.URL,
		logger:       cfg.Logger,
		reconnectMgr: NewReconnectManager(reconnectCfg, cfg.Logger),
		config:       cfg,
		deltaChan:    make(chan *types.BookDelta, cfg.MessageBufferSize),
		ctx:          ctx,
		cancel:       cancel,
		subscribed:   make(map[string]bool),
	}
}

// Start connects and launches the read, ping and reconnect loops.
func (m *Manager) Start() error {
	m.logger.Info("websocket-manager-starting", zap.String("url", m.url))

	err := m.connect(m.ctx)
	if err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	m.wg.Add(3)
	go m.readLoop()
	go m.pingLoop()
	go m.reconnectLoop()

	return nil
}

// connect establishes a WebSocket connection.
func (m *Manager) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: m.config.DialTimeout,
	}

	m.logger.Info("connecting-to-websocket", zap.String("url", m.url))

	conn, resp, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusForbidden {
			return &types.OrderError{
				Code:       "WS_FORBIDDEN",
				Message:    "market websocket handshake rejected",
				HTTPStatus: resp.StatusCode,
			}
		}
		return fmt.Errorf("dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		m.lastPongTime.Store(time.Now().Unix())
		return conn.SetReadDeadline(m.readDeadline())
	})
	_ = conn.SetReadDeadline(m.readDeadline())

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	now := time.Now()
	m.connected.Store(true)
	m.lastPongTime.Store(now.Unix())
	m.connectionStart.Store(now.Unix())
	ActiveConnections.Set(1)

	m.logger.Info("websocket-connected")

	return nil
}

func (m *Manager) readDeadline() time.Time {
	if m.config.PongTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(m.config.PingInterval + m.config.PongTimeout)
}

func (m *Manager) writeJSON(v interface{}) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil || !m.connected.Load() {
		return errors.New("not connected")
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	return conn.WriteJSON(v)
}

// Subscribe subscribes to a list of token IDs. Already-subscribed tokens are skipped.
func (m *Manager) Subscribe(ctx context.Context, tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}

	m.mu.Lock()

	newTokens := make([]string, 0, len(tokenIDs))
	for _, tokenID := range tokenIDs {
		if !m.subscribed[tokenID] {
			newTokens = append(newTokens, tokenID)
			m.subscribed[tokenID] = true
		}
	}

	if len(newTokens) == 0 {
		m.mu.Unlock()
		m.logger.Debug("all-tokens-already-subscribed")
		return nil
	}

	var subscribeMsg map[string]interface{}
	if len(m.subscribed) == len(newTokens) {
		subscribeMsg = map[string]interface{}{
			"assets_ids": newTokens,
			"type":       "market",
		}
	} else {
		subscribeMsg = map[string]interface{}{
			"assets_ids": newTokens,
			"operation":  "subscribe",
		}
	}

	totalSubscribed := len(m.subscribed)
	m.mu.Unlock()

	err := m.writeJSON(subscribeMsg)
	if err != nil {
		if !m.connected.Load() {
			// kept in the set; resubscribeAll sends it after reconnect
			m.logger.Warn("subscribe-deferred-until-reconnect", zap.Int("count", len(newTokens)))
			SubscriptionCount.Set(float64(totalSubscribed))
			return nil
		}

		m.mu.Lock()
		for _, tokenID := range newTokens {
			delete(m.subscribed, tokenID)
		}
		totalSubscribed = len(m.subscribed)
		m.mu.Unlock()

		SubscriptionCount.Set(float64(totalSubscribed))
		return fmt.Errorf("write subscribe message: %w", err)
	}

	SubscriptionCount.Set(float64(totalSubscribed))

	m.logger.Info("subscribed-to-tokens",
		zap.Int("new-count", len(newTokens)),
		zap.Int("total-count", totalSubscribed))

	return nil
}

// Unsubscribe unsubscribes from a list of token IDs.
func (m *Manager) Unsubscribe(ctx context.Context, tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}

	m.mu.Lock()

	tokensToUnsubscribe := make([]string, 0, len(tokenIDs))
	for _, tokenID := range tokenIDs {
		if m.subscribed[tokenID] {
			tokensToUnsubscribe = append(tokensToUnsubscribe, tokenID)
			delete(m.subscribed, tokenID)
		}
	}

	if len(tokensToUnsubscribe) == 0 {
		m.mu.Unlock()
		m.logger.Debug("no-tokens-to-unsubscribe")
		return nil
	}

	unsubscribeMsg := map[string]interface{}{
		"assets_ids": tokensToUnsubscribe,
		"operation":  "unsubscribe",
	}

	totalSubscribed := len(m.subscribed)
	m.mu.Unlock()

	SubscriptionCount.Set(float64(totalSubscribed))
	UnsubscriptionsTotal.Inc()

	err := m.writeJSON(unsubscribeMsg)
	if err != nil {
		// The set no longer holds these tokens, so a reconnect drops them anyway.
		m.logger.Warn("unsubscribe-write-failed", zap.Error(err))
		return nil
	}

	m.logger.Info("unsubscribed-from-tokens",
		zap.Int("count", len(tokensToUnsubscribe)),
		zap.Int("remaining-count", totalSubscribed))

	return nil
}

// Subscribed returns a copy of the subscribed token set.
func (m *Manager) Subscribed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tokenIDs := make([]string, 0, len(m.subscribed))
	for tokenID := range m.subscribed {
		tokenIDs = append(tokenIDs, tokenID)
	}
	return tokenIDs
}

// readLoop reads frames and forwards normalized deltas.
func (m *Manager) readLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		m.mu.RLock()
		conn := m.conn
		m.mu.RUnlock()

		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, frame, err := conn.ReadMessage()
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			m.logger.Warn("read-error", zap.Error(err))
			m.markDisconnected()
			return
		}

		start := time.Now()
		deltas, err := normalize(frame, start)
		if err != nil {
			previewLen := len(frame)
			if previewLen > 100 {
				previewLen = 100
			}
			m.logger.Debug("websocket-unparseable-message",
				zap.Error(err),
				zap.Int("bytes", len(frame)),
				zap.String("preview", string(frame[:previewLen])))
		}

		for _, delta := range deltas {
			if !m.deliver(delta) {
				return
			}
		}

		MessageLatencySeconds.Observe(time.Since(start).Seconds())
	}
}

// deliver hands a delta to the consumer. A full channel holds the reader back
// rather than losing the delta; it only gives up when the manager closes.
func (m *Manager) deliver(delta *types.BookDelta) bool {
	select {
	case m.deltaChan <- delta:
		return true
	default:
	}

	DeliveryBlockedTotal.Inc()
	m.logger.Debug("delta-channel-full", zap.String("token-id", delta.TokenID))

	select {
	case m.deltaChan <- delta:
		return true
	case <-m.ctx.Done():
		return false
	}
}

func (m *Manager) markDisconnected() {
	startTime := m.connectionStart.Load()
	if startTime > 0 {
		ConnectionDuration.Observe(time.Since(time.Unix(startTime, 0)).Seconds())
	}

	m.connected.Store(false)
	ActiveConnections.Set(0)
	DiscontinuitiesTotal.Inc()

	if m.config.OnDiscontinuity != nil {
		m.config.OnDiscontinuity(m.Subscribed())
	}
}

// pingLoop sends periodic PING control frames.
func (m *Manager) pingLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if !m.connected.Load() {
				continue
			}

			m.mu.RLock()
			conn := m.conn
			m.mu.RUnlock()

			if conn == nil {
				continue
			}

			m.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
			m.writeMu.Unlock()
			if err != nil {
				m.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

// reconnectLoop reconnects after a drop and resubscribes every tracked token.
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		if m.connected.Load() || m.blocked.Load() {
			time.Sleep(time.Second)
			continue
		}

		m.logger.Warn("connection-lost-initiating-reconnect")

		err := m.reconnectMgr.Reconnect(m.ctx, m.connect)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, types.ErrAuthBlocked) {
				m.block(err)
				continue
			}
			m.logger.Error("reconnection-failed", zap.Error(err))
			continue
		}

		err = m.resubscribeAll()
		if err != nil {
			m.logger.Error("resubscribe-failed", zap.Error(err))
			m.connected.Store(false)
			continue
		}

		m.logger.Info("reconnection-complete-restarting-read-loop")

		m.wg.Add(1)
		go m.readLoop()
	}
}

func (m *Manager) block(err error) {
	if m.blocked.Swap(true) {
		return
	}

	AuthFailuresTotal.Inc()
	m.logger.Error("websocket-blocked-by-gateway", zap.Error(err))

	if m.config.OnBlocked != nil {
		m.config.OnBlocked(err)
	}
}

// resubscribeAll resubscribes to all previously subscribed tokens.
func (m *Manager) resubscribeAll() error {
	tokenIDs := m.Subscribed()
	if len(tokenIDs) == 0 {
		return nil
	}

	subscribeMsg := map[string]interface{}{
		"assets_ids": tokenIDs,
		"type":       "market",
	}

	err := m.writeJSON(subscribeMsg)
	if err != nil {
		return fmt.Errorf("write resubscribe message: %w", err)
	}

	m.logger.Info("resubscribed-to-all-tokens", zap.Int("count", len(tokenIDs)))

	return nil
}

// Connected reports whether the stream is currently up.
func (m *Manager) Connected() bool {
	return m.connected.Load()
}

// Blocked reports whether the gateway refused the connection with 403.
func (m *Manager) Blocked() bool {
	return m.blocked.Load()
}

// DeltaChan returns the channel of normalized book deltas.
func (m *Manager) DeltaChan() <-chan *types.BookDelta {
	return m.deltaChan
}

// Close gracefully closes the WebSocket manager.
func (m *Manager) Close() error {
	m.logger.Info("closing-websocket-manager")

	m.cancel()

	m.mu.RLock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.mu.RUnlock()

	m.wg.Wait()

	close(m.deltaChan)

	ActiveConnections.Set(0)

	m.logger.Info("websocket-manager-closed")

	return nil
}

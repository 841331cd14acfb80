package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Manager owns one persistent WebSocket connection to the enhancement service.
type Manager interface {
	// Connect begins connecting. Any existing socket is discarded first.
	Connect()

	// Send encodes payload as a data URL and writes one frame.
	// Fails with ErrNotConnected unless the connection is open.
	Send(ctx context.Context, correlationID, kind string, payload io.Reader) error

	// SetOnMessage registers the handler for all inbound frames.
	SetOnMessage(handler MessageHandler)

	// Disconnect closes the socket and permanently disables reconnection.
	Disconnect()

	// State returns the current connection state.
	State() State

	// Stats returns a snapshot of connection statistics.
	Stats() Stats
}

// Observer receives connection events. Implementations must not block.
type Observer interface {
	StateChanged(state string)
	ReconnectScheduled(attempt int, delay time.Duration)
	FrameSent(bytes int)
	FrameReceived(bytes int)
	DecodeFailed()
	TransportError()
}

type nopObserver struct{}

func (nopObserver) StateChanged(string)                   {}
func (nopObserver) ReconnectScheduled(int, time.Duration) {}
func (nopObserver) FrameSent(int)                         {}
func (nopObserver) FrameReceived(int)                     {}
func (nopObserver) DecodeFailed()                         {}
func (nopObserver) TransportError()                       {}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type timeScheduler struct{}

func (timeScheduler) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// Option configures a Manager.
type Option func(*manager)

// WithDialer sets the socket dialer.
func WithDialer(d Dialer) Option {
	return func(m *manager) {
		m.dialer = d
	}
}

// WithScheduler sets the reconnect timer source.
func WithScheduler(s Scheduler) Option {
	return func(m *manager) {
		m.scheduler = s
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(m *manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// manager implements the Manager interface.
//
// state, sock, gen, attempts and shouldReconnect are guarded by mu. Every
// socket is tagged with the generation that opened it; events carrying an
// older generation are ignored, so at most one socket is ever current.
type manager struct {
	cfg       ManagerConfig
	logger    *slog.Logger
	dialer    Dialer
	scheduler Scheduler
	observer  Observer

	mu              sync.Mutex
	state           State
	sock            Socket
	gen             uint64
	attempts        int
	lastDelay       time.Duration
	shouldReconnect bool

	handlerMu sync.RWMutex
	handler   MessageHandler

	framesSent     atomic.Int64
	framesReceived atomic.Int64
}

// NewManager creates a Manager for cfg.URL. No socket is opened until Connect.
func NewManager(cfg ManagerConfig, logger *slog.Logger, opts ...Option) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &manager{
		cfg:             cfg,
		logger:          logger.With("endpoint", cfg.URL),
		scheduler:       timeScheduler{},
		observer:        nopObserver{},
		state:           StateIdle,
		shouldReconnect: cfg.Reconnect.Enabled,
	}
	m.handler = m.defaultHandler

	for _, opt := range opts {
		opt(m)
	}

	if m.dialer == nil {
		m.dialer = NewDialer(cfg, nil, m.logger)
	}

	return m
}

// Connect starts opening a new socket.
func (m *manager) Connect() {
	m.mu.Lock()
	gen, old := m.beginConnectLocked()
	m.mu.Unlock()

	m.startOpen(gen, old)
}

// beginConnectLocked advances the generation and detaches the current socket.
func (m *manager) beginConnectLocked() (uint64, Socket) {
	m.gen++
	old := m.sock
	m.sock = nil
	m.setStateLocked(StateConnecting)
	return m.gen, old
}

func (m *manager) startOpen(gen uint64, old Socket) {
	if old != nil {
		m.logger.Debug("discarding previous socket")
		old.Close()
	}
	go m.open(gen)
}

// open dials and, on success, runs the socket's read loop until it closes.
func (m *manager) open(gen uint64) {
	ctx := context.Background()
	if m.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
		defer cancel()
	}

	sock, err := m.dialer.Dial(ctx, m.cfg.URL)
	if err != nil {
		m.onError(gen, err)
		m.onClose(gen, err)
		return
	}

	if !m.onOpen(gen, sock) {
		sock.Close()
		return
	}

	m.readLoop(gen, sock)
}

func (m *manager) onOpen(gen uint64, sock Socket) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return false
	}

	m.sock = sock
	m.attempts = 0
	m.lastDelay = 0
	m.setStateLocked(StateOpen)

	m.logger.Info("websocket connection opened")
	return true
}

// onError only reports; closure drives reconnection.
func (m *manager) onError(gen uint64, err error) {
	if !m.isCurrent(gen) {
		m.logger.Debug("error on discarded socket", "error", err)
		return
	}
	m.observer.TransportError()
	m.logger.Error("websocket error", "error", err)
}

func (m *manager) onClose(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}

	m.sock = nil
	m.setStateLocked(StateClosed)
	m.logger.Info("websocket connection closed", "cause", cause)

	if !m.shouldReconnect {
		m.mu.Unlock()
		return
	}

	delay, ok := m.scheduleReconnectLocked()
	m.mu.Unlock()

	if ok {
		m.scheduler.AfterFunc(delay, func() {
			m.fireReconnect(gen)
		})
	}
}

// scheduleReconnectLocked advances the backoff and returns the delay before
// the next attempt. ok is false once MaxAttempts is exhausted.
func (m *manager) scheduleReconnectLocked() (delay time.Duration, ok bool) {
	p := m.cfg.Reconnect
	if p.MaxAttempts > 0 && m.attempts >= p.MaxAttempts {
		m.logger.Error("reconnect attempts exhausted, giving up", "attempts", m.attempts)
		return 0, false
	}

	m.attempts++
	delay = p.Delay(m.attempts)
	m.lastDelay = delay
	m.setStateLocked(StateReconnecting)
	m.observer.ReconnectScheduled(m.attempts, delay)

	m.logger.Info("attempting to reconnect",
		"attempt", m.attempts,
		"delay", delay,
	)
	return delay, true
}

// fireReconnect is the reconnect timer body. The flag is checked here, at
// fire time: Disconnect never cancels the timer itself.
func (m *manager) fireReconnect(prev uint64) {
	m.mu.Lock()
	if !m.shouldReconnect || m.gen != prev {
		m.mu.Unlock()
		m.logger.Debug("reconnect timer fired after disconnect or manual connect, skipping")
		return
	}
	gen, old := m.beginConnectLocked()
	m.mu.Unlock()

	m.startOpen(gen, old)
}

// readLoop delivers frames until the socket fails.
func (m *manager) readLoop(gen uint64, sock Socket) {
	for {
		data, err := sock.ReadMessage()
		if err != nil {
			if !isNormalClose(err) {
				m.onError(gen, err)
			}
			m.onClose(gen, err)
			return
		}

		if !m.isCurrent(gen) {
			continue
		}
		m.dispatch(data)
	}
}

// dispatch decodes a frame best-effort and hands it to the handler.
// Undecodable frames are forwarded with DecodeErr set.
func (m *manager) dispatch(data []byte) {
	msg := InboundMessage{
		Data:       data,
		ReceivedAt: time.Now(),
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		msg.DecodeErr = err
		m.observer.DecodeFailed()
		m.logger.Warn("failed to decode frame, forwarding raw", "bytes", len(data), "error", err)
	} else {
		msg.Value = v
	}

	m.framesReceived.Add(1)
	m.observer.FrameReceived(len(data))

	m.handlerMu.RLock()
	h := m.handler
	m.handlerMu.RUnlock()

	h(msg)
}

func (m *manager) defaultHandler(msg InboundMessage) {
	m.logger.Debug("received data", "bytes", len(msg.Data))
}

// SetOnMessage replaces the inbound handler. nil restores the logging default.
func (m *manager) SetOnMessage(handler MessageHandler) {
	if handler == nil {
		handler = m.defaultHandler
	}
	m.handlerMu.Lock()
	m.handler = handler
	m.handlerMu.Unlock()
}

// Send encodes payload and writes a single frame.
func (m *manager) Send(ctx context.Context, correlationID, kind string, payload io.Reader) error {
	if m.State() != StateOpen {
		return ErrNotConnected
	}

	image, err := EncodeDataURL(payload, m.cfg.MaxPayloadBytes)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	frame, err := json.Marshal(OutboundMessage{
		UUID:            correlationID,
		EnhancementType: kind,
		Image:           image,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// The connection may have dropped while encoding
	m.mu.Lock()
	sock := m.sock
	open := m.state == StateOpen && sock != nil
	m.mu.Unlock()
	if !open {
		return ErrNotConnected
	}

	if err := sock.WriteMessage(frame); err != nil {
		m.observer.TransportError()
		return fmt.Errorf("%w: write frame: %w", ErrTransport, err)
	}

	m.framesSent.Add(1)
	m.observer.FrameSent(len(frame))
	m.logger.Debug("sent image", "uuid", correlationID, "kind", kind, "bytes", len(frame))

	return nil
}

// Disconnect disables reconnection and closes the socket if there is one.
func (m *manager) Disconnect() {
	m.mu.Lock()
	m.shouldReconnect = false
	m.gen++
	sock := m.sock
	m.sock = nil
	if sock != nil {
		m.setStateLocked(StateClosing)
	} else if m.state != StateClosed {
		m.setStateLocked(StateClosed)
	}
	m.mu.Unlock()

	if sock == nil {
		return
	}

	if err := sock.Close(); err != nil {
		m.logger.Debug("close socket", "error", err)
	}

	m.mu.Lock()
	if m.state == StateClosing {
		m.setStateLocked(StateClosed)
	}
	m.mu.Unlock()

	m.logger.Info("websocket disconnected")
}

// State returns the current state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns current statistics.
func (m *manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		State:            m.state,
		Attempts:         m.attempts,
		LastDelay:        m.lastDelay,
		FramesSent:       m.framesSent.Load(),
		FramesReceived:   m.framesReceived.Load(),
		ReconnectEnabled: m.shouldReconnect,
	}
}

func (m *manager) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

func (m *manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.observer.StateChanged(s.String())
}

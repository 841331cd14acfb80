package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is a single open WebSocket connection.
type Socket interface {
	// ReadMessage blocks until the next data frame arrives or the socket fails.
	ReadMessage() ([]byte, error)

	// WriteMessage writes one text frame.
	WriteMessage(data []byte) error

	// Close closes the socket. Safe to call more than once.
	Close() error
}

// Dialer opens sockets.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// DialerFunc is a function adapter for Dialer.
type DialerFunc func(ctx context.Context, url string) (Socket, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Socket, error) {
	return f(ctx, url)
}

// wsDialer dials gorilla WebSocket connections.
type wsDialer struct {
	cfg    ManagerConfig
	header http.Header
	logger *slog.Logger
}

// NewDialer creates a Dialer backed by gorilla/websocket.
func NewDialer(cfg ManagerConfig, header http.Header, logger *slog.Logger) Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &wsDialer{
		cfg:    cfg,
		header: header,
		logger: logger,
	}
}

// Dial establishes the WebSocket connection and starts its keepalive loop.
func (d *wsDialer) Dial(ctx context.Context, url string) (Socket, error) {
	header := http.Header{}
	for k, v := range d.header {
		header[k] = v
	}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}

	s := &wsSocket{
		conn:       conn,
		cfg:        d.cfg,
		logger:     d.logger,
		lastPingAt: time.Now(),
		done:       make(chan struct{}),
	}

	// Server ping: record liveness and answer with a pong
	conn.SetPingHandler(func(data string) error {
		s.touch()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	// Pong for our own keepalive ping
	conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})

	if d.cfg.PingInterval > 0 {
		go s.heartbeatLoop()
	}

	return s, nil
}

// wsSocket implements Socket over a gorilla connection.
type wsSocket struct {
	conn   *websocket.Conn
	cfg    ManagerConfig
	logger *slog.Logger

	// Write serialization
	writeMu sync.Mutex

	mu         sync.Mutex
	lastPingAt time.Time
	stale      bool

	done      chan struct{}
	closeOnce sync.Once
}

func (s *wsSocket) touch() {
	s.mu.Lock()
	s.lastPingAt = time.Now()
	s.mu.Unlock()
}

// ReadMessage returns the next text or binary frame.
func (s *wsSocket) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		s.mu.Lock()
		stale := s.stale
		s.mu.Unlock()
		if stale {
			return nil, fmt.Errorf("%w: %v", ErrStaleConnection, err)
		}
		return nil, err
	}
	return data, nil
}

// WriteMessage writes one text frame under the write deadline.
func (s *wsSocket) WriteMessage(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.cfg.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and closes the underlying connection.
func (s *wsSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
	})
	return err
}

// heartbeatLoop pings the server and closes the socket when it goes quiet.
// Closing makes ReadMessage fail, which is the manager's only reconnect trigger.
func (s *wsSocket) heartbeatLoop() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			wait := s.cfg.WriteTimeout
			if wait <= 0 {
				wait = time.Second
			}
			deadline := time.Now().Add(wait)
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				s.logger.Debug("failed to send ping", "error", err)
			}

			if s.cfg.PingTimeout <= 0 {
				continue
			}

			s.mu.Lock()
			lastPing := s.lastPingAt
			s.mu.Unlock()

			if time.Since(lastPing) > s.cfg.PingTimeout {
				s.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", s.cfg.PingTimeout,
				)
				s.mu.Lock()
				s.stale = true
				s.mu.Unlock()
				s.conn.Close()
				return
			}
		}
	}
}

// isNormalClose reports whether err is a clean close from either side.
func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

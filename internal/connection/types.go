package connection

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrEncode          = errors.New("encode payload")
	ErrTransport       = errors.New("transport error")
	ErrStaleConnection = errors.New("connection stale (no ping)")
)

// State is the lifecycle state of a Manager's connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// OutboundMessage is the wire envelope for one enhancement job.
type OutboundMessage struct {
	UUID            string `json:"uuid"`
	EnhancementType string `json:"enhancement_type"`
	Image           string `json:"image"` // base64 data URL
}

// InboundMessage is a frame received from the server.
//
// Value holds the JSON decode of Data. When decoding fails Value is nil and
// DecodeErr is set; the frame is still delivered.
type InboundMessage struct {
	Data       []byte
	Value      any
	DecodeErr  error
	ReceivedAt time.Time
}

// Decode unmarshals the raw frame into v.
func (m InboundMessage) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

// MessageHandler receives every inbound frame.
type MessageHandler func(InboundMessage)

// ReconnectPolicy configures automatic reconnection.
type ReconnectPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Enabled      bool
	MaxAttempts  int // 0 = retry forever
}

// DefaultReconnectPolicy returns the 1s → 5s doubling policy.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialDelay: 1 * time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		Enabled:      true,
	}
}

// Delay returns the wait before reconnect attempt n (n >= 1):
// min(InitialDelay * Multiplier^(n-1), MaxDelay).
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}

	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
		d = time.Duration(float64(d) * mult)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	URL              string        // WebSocket URL of the enhancement service
	HandshakeTimeout time.Duration // Dial + upgrade timeout
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // Client keepalive ping period (0 = disabled)
	PingTimeout      time.Duration // Max time without ping/pong before the socket is considered stale
	MaxPayloadBytes  int64         // Largest raw payload Send accepts (0 = unlimited)
	Reconnect        ReconnectPolicy
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		MaxPayloadBytes:  32 << 20,
		Reconnect:        DefaultReconnectPolicy(),
	}
}

// Stats is a snapshot of a Manager.
type Stats struct {
	State            State
	Attempts         int           // Consecutive failed attempts since the last open
	LastDelay        time.Duration // Most recently scheduled reconnect delay
	FramesSent       int64
	FramesReceived   int64
	ReconnectEnabled bool // false forever after Disconnect
}

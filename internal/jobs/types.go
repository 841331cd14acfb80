package jobs

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrUnknownKind = errors.New("unknown enhancement kind")
	ErrEmptyImage  = errors.New("empty image")
	ErrJobTimeout  = errors.New("job timed out")
	ErrRemote      = errors.New("server rejected job")
	ErrClosed      = errors.New("tracker closed")
)

// Kind selects the enhancement model on the server.
type Kind string

const (
	KindDefault     Kind = "default"
	KindAnime       Kind = "anime"
	KindTraditional Kind = "traditional"
)

// ParseKind validates an enhancement kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindDefault, KindAnime, KindTraditional:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Status is the final outcome of a job.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// Response is the server's reply to one job.
type Response struct {
	UUID            string `json:"uuid"`
	EnhancementType string `json:"enhancement_type"`
	Image           string `json:"image"`           // base64 data URL
	Error           string `json:"error,omitempty"` // set instead of Image on failure
}

// Result is delivered once per job.
type Result struct {
	ID       string
	Kind     Kind
	Status   Status
	Image    []byte
	MIME     string
	Attempts int // Frames sent, including resends
	Latency  time.Duration
	Err      error
}

// Record is a finished job as written to the journal.
type Record struct {
	ID          string
	Kind        string
	Status      string
	Attempts    int
	BytesIn     int
	BytesOut    int
	Error       string
	SubmittedAt time.Time
	FinishedAt  time.Time
}

// Config configures a Tracker.
type Config struct {
	ResendAfter  time.Duration // Resend when no response arrived within this window
	Timeout      time.Duration // Fail the job after this long
	MaxResends   int           // Resends per job after the first send
	TickInterval time.Duration // How often pending jobs are checked
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ResendAfter:  30 * time.Second,
		Timeout:      2 * time.Minute,
		MaxResends:   2,
		TickInterval: time.Second,
	}
}

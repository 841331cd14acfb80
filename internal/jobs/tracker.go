package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/enhance-client/internal/connection"
)

// Sender transmits one job frame. connection.Manager satisfies it.
type Sender interface {
	Send(ctx context.Context, correlationID, kind string, payload io.Reader) error
}

// Journal receives finished jobs. Implementations must not block.
type Journal interface {
	Record(rec Record)
}

// Observer receives job events, e.g. for metrics.
type Observer interface {
	JobSubmitted(kind string)
	JobResent(kind string)
	JobFinished(kind, status string, latency time.Duration)
}

type nopObserver struct{}

func (nopObserver) JobSubmitted(string)                       {}
func (nopObserver) JobResent(string)                          {}
func (nopObserver) JobFinished(string, string, time.Duration) {}

// Option configures a Tracker.
type Option func(*Tracker)

// WithJournal sets the journal for finished jobs.
func WithJournal(j Journal) Option {
	return func(t *Tracker) {
		t.journal = j
	}
}

// WithObserver sets the job event observer.
func WithObserver(o Observer) Option {
	return func(t *Tracker) {
		if o != nil {
			t.observer = o
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(gen func() string) Option {
	return func(t *Tracker) {
		t.newID = gen
	}
}

// job is one pending request. Mutable fields are guarded by Tracker.mu.
type job struct {
	id          string
	kind        Kind
	image       []byte
	submittedAt time.Time
	lastSentAt  time.Time
	sends       int
	sending     bool
	done        chan Result
}

// Job is the caller's handle on a submitted job.
type Job struct {
	ID   string
	Kind Kind
	done <-chan Result
}

// Done yields the job's Result exactly once.
func (j *Job) Done() <-chan Result {
	return j.done
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case res := <-j.done:
		return res, res.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Tracker correlates enhancement requests and responses by uuid.
type Tracker struct {
	cfg      Config
	sender   Sender
	logger   *slog.Logger
	journal  Journal
	observer Observer
	now      func() time.Time
	newID    func() string

	mu      sync.Mutex
	pending map[string]*job
	closed  bool
}

// NewTracker creates a Tracker that sends through sender.
func NewTracker(cfg Config, sender Sender, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		cfg:      cfg,
		sender:   sender,
		logger:   logger,
		observer: nopObserver{},
		now:      time.Now,
		newID:    uuid.NewString,
		pending:  make(map[string]*job),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Submit registers a job and sends it. A job that cannot be sent yet because
// the connection is down stays pending and is sent by Run once it is back.
func (t *Tracker) Submit(ctx context.Context, kind Kind, image []byte) (*Job, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	j := &job{
		id:          t.newID(),
		kind:        kind,
		image:       image,
		submittedAt: t.now(),
		sending:     true,
		done:        make(chan Result, 1),
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	t.pending[j.id] = j
	t.mu.Unlock()

	t.observer.JobSubmitted(string(kind))
	t.logger.Debug("job submitted", "uuid", j.id, "kind", kind, "bytes", len(image))

	t.send(ctx, j)

	return &Job{ID: j.id, Kind: kind, done: j.done}, nil
}

// send transmits j once. The caller must have set j.sending.
func (t *Tracker) send(ctx context.Context, j *job) {
	err := t.sender.Send(ctx, j.id, string(j.kind), bytes.NewReader(j.image))

	t.mu.Lock()
	j.sending = false
	if err == nil {
		j.sends++
		j.lastSentAt = t.now()
	}
	sends := j.sends
	t.mu.Unlock()

	switch {
	case err == nil:
		t.logger.Debug("sent image", "uuid", j.id, "attempt", sends)
	case errors.Is(err, connection.ErrEncode):
		t.finish(j.id, Result{Err: err}, StatusFailed)
	case errors.Is(err, connection.ErrNotConnected):
		t.logger.Debug("not connected, job will be sent after reconnect", "uuid", j.id)
	default:
		t.logger.Warn("send failed, will retry", "uuid", j.id, "error", err)
	}
}

// HandleMessage completes the job named by an inbound frame's uuid.
// Register it with connection.Manager.SetOnMessage.
func (t *Tracker) HandleMessage(msg connection.InboundMessage) {
	if msg.DecodeErr != nil {
		t.logger.Warn("ignoring malformed frame", "bytes", len(msg.Data), "error", msg.DecodeErr)
		return
	}

	var resp Response
	if err := msg.Decode(&resp); err != nil {
		t.logger.Warn("ignoring frame that is not a job response", "error", err)
		return
	}
	if resp.UUID == "" {
		t.logger.Debug("ignoring frame without uuid")
		return
	}

	t.mu.Lock()
	_, ok := t.pending[resp.UUID]
	t.mu.Unlock()
	if !ok {
		// Duplicate reply to a resend, or a job from a previous run
		t.logger.Debug("response for unknown job", "uuid", resp.UUID)
		return
	}

	if resp.Error != "" {
		t.finish(resp.UUID, Result{Err: fmt.Errorf("%w: %s", ErrRemote, resp.Error)}, StatusFailed)
		return
	}

	mime, data, err := connection.DecodeDataURL(resp.Image)
	if err != nil {
		t.finish(resp.UUID, Result{Err: fmt.Errorf("decode result image: %w", err)}, StatusFailed)
		return
	}
	if len(data) == 0 {
		t.finish(resp.UUID, Result{Err: ErrEmptyImage}, StatusFailed)
		return
	}

	t.finish(resp.UUID, Result{Image: data, MIME: mime}, StatusCompleted)
}

// finish removes the job and delivers res. Later calls for the same id are no-ops.
func (t *Tracker) finish(id string, res Result, status Status) {
	t.mu.Lock()
	j, ok := t.pending[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.pending, id)
	attempts := j.sends
	t.mu.Unlock()

	finishedAt := t.now()
	res.ID = j.id
	res.Kind = j.kind
	res.Status = status
	res.Attempts = attempts
	res.Latency = finishedAt.Sub(j.submittedAt)
	j.done <- res

	t.observer.JobFinished(string(j.kind), string(status), res.Latency)

	if t.journal != nil {
		rec := Record{
			ID:          j.id,
			Kind:        string(j.kind),
			Status:      string(status),
			Attempts:    attempts,
			BytesIn:     len(j.image),
			BytesOut:    len(res.Image),
			SubmittedAt: j.submittedAt,
			FinishedAt:  finishedAt,
		}
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
		t.journal.Record(rec)
	}

	if res.Err != nil {
		t.logger.Warn("job finished",
			"uuid", j.id,
			"kind", j.kind,
			"status", status,
			"attempts", attempts,
			"error", res.Err,
		)
		return
	}
	t.logger.Info("job finished",
		"uuid", j.id,
		"kind", j.kind,
		"status", status,
		"attempts", attempts,
		"latency", res.Latency,
	)
}

// Run checks pending jobs every TickInterval until ctx is done, then cancels
// whatever is still pending.
func (t *Tracker) Run(ctx context.Context) error {
	interval := t.cfg.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Close()
			return nil
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

// tick fails expired jobs and (re)sends jobs that are due.
func (t *Tracker) tick(ctx context.Context) {
	now := t.now()

	var expired, due []*job
	resend := make(map[string]bool)

	t.mu.Lock()
	for _, j := range t.pending {
		switch {
		case t.cfg.Timeout > 0 && now.Sub(j.submittedAt) >= t.cfg.Timeout:
			expired = append(expired, j)
		case j.sending:
		case j.sends == 0:
			j.sending = true
			due = append(due, j)
		case now.Sub(j.lastSentAt) >= t.cfg.ResendAfter && j.sends <= t.cfg.MaxResends:
			j.sending = true
			due = append(due, j)
			resend[j.id] = true
		}
	}
	t.mu.Unlock()

	for _, j := range expired {
		t.finish(j.id, Result{Err: ErrJobTimeout}, StatusTimeout)
	}

	for _, j := range due {
		if resend[j.id] {
			t.observer.JobResent(string(j.kind))
			t.logger.Info("no response, resending job", "uuid", j.id)
		}
		t.send(ctx, j)
	}
}

// Close stops accepting jobs and cancels every pending one.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	ids := make([]string, 0, len(t.pending))
	for id := range t.pending {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.finish(id, Result{Err: ErrClosed}, StatusCancelled)
	}
}

// Pending returns the number of unfinished jobs.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

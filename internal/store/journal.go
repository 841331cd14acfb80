package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/enhance-client/internal/jobs"
)

// DB is the subset of pgxpool.Pool the journal uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config configures a Journal.
type Config struct {
	InstanceID    string
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
	}
}

// Metrics tracks journal activity.
type Metrics struct {
	Written int64
	Flushes int64
	Errors  int64
	Dropped int64
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS enhancement_jobs (
	uuid         TEXT PRIMARY KEY,
	instance_id  TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL,
	attempts     INTEGER NOT NULL,
	bytes_in     INTEGER NOT NULL,
	bytes_out    INTEGER NOT NULL,
	error        TEXT,
	submitted_at TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS enhancement_jobs_finished_at_idx ON enhancement_jobs (finished_at);
`

const upsertSQL = `
	INSERT INTO enhancement_jobs (uuid, instance_id, kind, status, attempts, bytes_in, bytes_out, error, submitted_at, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (uuid) DO UPDATE SET
		status = EXCLUDED.status,
		attempts = EXCLUDED.attempts,
		bytes_out = EXCLUDED.bytes_out,
		error = EXCLUDED.error,
		finished_at = EXCLUDED.finished_at
`

// EnsureSchema creates the enhancement_jobs table if it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, schemaSQL)
	return err
}

// Journal batches finished jobs into the enhancement_jobs table.
// It implements jobs.Journal.
type Journal struct {
	cfg    Config
	db     DB
	logger *slog.Logger

	input *queue[jobs.Record]

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	metrics Metrics
}

// NewJournal creates a Journal writing to db.
func NewJournal(cfg Config, db DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &Journal{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  newQueue[jobs.Record](cfg.BatchSize),
	}
}

// Record queues rec for the next flush. Records arriving after Stop are dropped.
func (j *Journal) Record(rec jobs.Record) {
	if !j.input.Push(rec) {
		j.mu.Lock()
		j.metrics.Dropped++
		j.mu.Unlock()
		j.logger.Warn("journal stopped, dropping record", "uuid", rec.ID)
	}
}

// Start begins flushing in the background.
func (j *Journal) Start(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(1)
	go j.loop()

	j.logger.Info("job journal started",
		"batch_size", j.cfg.BatchSize,
		"flush_interval", j.cfg.FlushInterval,
	)
	return nil
}

// Stop stops the flush loop and writes whatever is still queued.
func (j *Journal) Stop(ctx context.Context) error {
	j.logger.Info("stopping job journal")

	j.input.Close()
	if j.cancel != nil {
		j.cancel()
	}

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		j.logger.Warn("job journal stop timed out")
	}

	// Final flush with the caller's deadline
	for j.input.Len() > 0 {
		if err := j.flush(ctx); err != nil {
			return err
		}
	}

	j.logger.Info("job journal stopped")
	return nil
}

// Stats returns current metrics.
func (j *Journal) Stats() Metrics {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.metrics
}

func (j *Journal) loop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.flush(j.ctx)
		case <-j.input.Ready():
			if j.input.Len() >= j.cfg.BatchSize {
				j.flush(j.ctx)
			}
		}
	}
}

// flush writes up to one batch of queued records.
func (j *Journal) flush(ctx context.Context) error {
	rows := j.input.Drain(j.cfg.BatchSize)
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()

	if err := j.write(ctx, rows); err != nil {
		j.logger.Error("journal batch insert failed", "error", err, "count", len(rows))
		j.mu.Lock()
		j.metrics.Errors++
		j.mu.Unlock()
		return err
	}

	j.mu.Lock()
	j.metrics.Written += int64(len(rows))
	j.metrics.Flushes++
	j.mu.Unlock()

	j.logger.Debug("flushed job records",
		"count", len(rows),
		"duration", time.Since(start),
	)
	return nil
}

func (j *Journal) write(ctx context.Context, rows []jobs.Record) error {
	batch := j.buildBatch(rows)

	results := j.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) buildBatch(rows []jobs.Record) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, r := range rows {
		var errText *string
		if r.Error != "" {
			errText = &r.Error
		}
		batch.Queue(upsertSQL,
			r.ID, j.cfg.InstanceID, r.Kind, r.Status, r.Attempts,
			r.BytesIn, r.BytesOut, errText, r.SubmittedAt, r.FinishedAt,
		)
	}
	return batch
}

package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/enhance-client/internal/jobs"
)

type fakeResults struct {
	err error
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), r.err
}
func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error             { return nil }

// fakeDB records batches instead of talking to Postgres.
type fakeDB struct {
	mu      sync.Mutex
	err     error
	execs   []string
	batches []int
}

func (d *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.execs = append(d.execs, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), d.err
}

func (d *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, b.Len())
	return &fakeResults{err: d.err}
}

func (d *fakeDB) rowsWritten() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, b := range d.batches {
		n += b
	}
	return n
}

func testRecord(id string) jobs.Record {
	submitted := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	return jobs.Record{
		ID:          id,
		Kind:        "anime",
		Status:      "completed",
		Attempts:    1,
		BytesIn:     1024,
		BytesOut:    2048,
		SubmittedAt: submitted,
		FinishedAt:  submitted.Add(3 * time.Second),
	}
}

func TestJournal_BuildBatch(t *testing.T) {
	j := NewJournal(Config{InstanceID: "test"}, nil, nil)

	failed := testRecord("b")
	failed.Status = "failed"
	failed.Error = "server rejected job: model not loaded"

	batch := j.buildBatch([]jobs.Record{testRecord("a"), failed})
	if batch.Len() != 2 {
		t.Errorf("batch.Len() = %d, want 2", batch.Len())
	}
}

func TestJournal_FlushOnBatchSize(t *testing.T) {
	db := &fakeDB{}
	j := NewJournal(Config{BatchSize: 3, FlushInterval: time.Hour}, db, nil)
	if err := j.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer j.Stop(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		j.Record(testRecord(id))
	}

	deadline := time.Now().Add(time.Second)
	for db.rowsWritten() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("rows written = %d, want 3", db.rowsWritten())
		}
		time.Sleep(5 * time.Millisecond)
	}

	stats := j.Stats()
	if stats.Written != 3 || stats.Flushes != 1 {
		t.Errorf("Stats = %+v, want 3 written in 1 flush", stats)
	}
}

func TestJournal_FlushOnInterval(t *testing.T) {
	db := &fakeDB{}
	j := NewJournal(Config{BatchSize: 100, FlushInterval: 10 * time.Millisecond}, db, nil)
	if err := j.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer j.Stop(context.Background())

	j.Record(testRecord("a"))

	deadline := time.Now().Add(time.Second)
	for db.rowsWritten() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("record was not flushed on interval")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJournal_StopFlushesRemaining(t *testing.T) {
	db := &fakeDB{}
	j := NewJournal(Config{BatchSize: 2, FlushInterval: time.Hour}, db, nil)

	// Not started: everything stays queued until Stop
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		j.Record(testRecord(id))
	}

	if err := j.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := db.rowsWritten(); got != 5 {
		t.Errorf("rows written = %d, want 5", got)
	}
	if len(db.batches) != 3 {
		t.Errorf("batches = %v, want 3 batches of at most 2", db.batches)
	}

	j.Record(testRecord("late"))
	if got := j.Stats().Dropped; got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
}

func TestJournal_WriteError(t *testing.T) {
	db := &fakeDB{err: errors.New("connection refused")}
	j := NewJournal(Config{BatchSize: 10, FlushInterval: time.Hour}, db, nil)

	j.Record(testRecord("a"))
	if err := j.Stop(context.Background()); err == nil {
		t.Error("Stop should report the failed flush")
	}
	if got := j.Stats().Errors; got != 1 {
		t.Errorf("Errors = %d, want 1", got)
	}
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if len(db.execs) != 1 {
		t.Fatalf("execs = %d, want 1", len(db.execs))
	}
}

func TestQueue_Drain(t *testing.T) {
	q := newQueue[int](2)
	for i := range 5 {
		if !q.Push(i) {
			t.Fatalf("Push(%d) rejected", i)
		}
	}

	first := q.Drain(3)
	if len(first) != 3 || first[0] != 0 || first[2] != 2 {
		t.Errorf("Drain(3) = %v, want [0 1 2]", first)
	}
	rest := q.Drain(0)
	if len(rest) != 2 || rest[0] != 3 {
		t.Errorf("Drain(0) = %v, want [3 4]", rest)
	}
	if q.Drain(1) != nil {
		t.Error("Drain on empty queue should return nil")
	}

	q.Close()
	if q.Push(9) {
		t.Error("Push after Close should fail")
	}
}

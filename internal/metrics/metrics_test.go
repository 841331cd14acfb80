package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStateChanged(t *testing.T) {
	m := New()

	m.StateChanged("open")

	if got := testutil.ToFloat64(m.state.WithLabelValues("open")); got != 1 {
		t.Errorf("state{open} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.state.WithLabelValues("idle")); got != 0 {
		t.Errorf("state{idle} = %v, want 0", got)
	}
}

func TestConnectionCounters(t *testing.T) {
	m := New()

	m.ReconnectScheduled(1, time.Second)
	m.ReconnectScheduled(2, 2*time.Second)
	m.FrameSent(100)
	m.FrameReceived(40)
	m.FrameReceived(60)
	m.DecodeFailed()
	m.TransportError()

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"reconnects", testutil.ToFloat64(m.reconnects), 2},
		{"backoff delay", testutil.ToFloat64(m.backoffDelay), 2},
		{"frames sent", testutil.ToFloat64(m.framesSent), 1},
		{"bytes sent", testutil.ToFloat64(m.bytesSent), 100},
		{"frames received", testutil.ToFloat64(m.framesReceived), 2},
		{"bytes received", testutil.ToFloat64(m.bytesReceived), 100},
		{"decode failures", testutil.ToFloat64(m.decodeFailures), 1},
		{"transport errors", testutil.ToFloat64(m.transportErrs), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.JobSubmitted("anime")
	m.JobFinished("anime", "completed", 3*time.Second)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`enhancer_jobs_submitted_total{kind="anime"} 1`,
		`enhancer_jobs_finished_total{kind="anime",status="completed"} 1`,
		`enhancer_connection_state{state="idle"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

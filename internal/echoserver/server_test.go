package echoserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/enhance-client/internal/connection"
	"github.com/rickgao/enhance-client/internal/jobs"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func TestServer_Home(t *testing.T) {
	server := httptest.NewServer(New(Config{}, nil).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["message"] == "" {
		t.Error("expected a liveness message")
	}
}

func TestServer_Answers(t *testing.T) {
	s := New(Config{}, nil)
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	tests := []struct {
		name    string
		req     request
		wantErr bool
	}{
		{name: "echo", req: request{UUID: "a", EnhancementType: "anime", Image: "data:image/png;base64,iVBORw0KGgo="}},
		{name: "missing image", req: request{UUID: "b", EnhancementType: "anime"}, wantErr: true},
		{name: "unknown kind", req: request{UUID: "c", EnhancementType: "sepia", Image: "aGk="}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteJSON(tt.req); err != nil {
				t.Fatalf("WriteJSON failed: %v", err)
			}
			var resp jobs.Response
			if err := conn.ReadJSON(&resp); err != nil {
				t.Fatalf("ReadJSON failed: %v", err)
			}
			if resp.UUID != tt.req.UUID {
				t.Errorf("uuid = %q, want %q", resp.UUID, tt.req.UUID)
			}
			if tt.wantErr {
				if resp.Error == "" || resp.Image != "" {
					t.Errorf("response = %+v, want error", resp)
				}
				return
			}
			if resp.Image != tt.req.Image {
				t.Error("image was not echoed")
			}
		})
	}

	if got := s.Jobs(); got != 3 {
		t.Errorf("Jobs = %d, want 3", got)
	}
}

func TestServer_WithManagerAndTracker(t *testing.T) {
	server := httptest.NewServer(New(Config{}, nil).Handler())
	defer server.Close()

	cfg := connection.DefaultManagerConfig()
	cfg.URL = wsURL(server)
	cfg.HandshakeTimeout = time.Second
	cfg.PingInterval = 0

	m := connection.NewManager(cfg, nil)
	defer m.Disconnect()

	tracker := jobs.NewTracker(jobs.DefaultConfig(), m, nil)
	m.SetOnMessage(tracker.HandleMessage)

	m.Connect()
	deadline := time.Now().Add(2 * time.Second)
	for m.State() != connection.StateOpen {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want open", m.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	job, err := tracker.Submit(context.Background(), jobs.KindTraditional, pngHeader)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := job.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if res.Status != jobs.StatusCompleted {
		t.Errorf("Status = %q, want completed", res.Status)
	}
	if !bytes.Equal(res.Image, pngHeader) {
		t.Error("round-tripped image does not match")
	}
	if res.MIME != "image/png" {
		t.Errorf("MIME = %q, want image/png", res.MIME)
	}
}

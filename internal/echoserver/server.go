// Package echoserver is a stub enhancement service. It answers every job
// with the image it was sent, which is enough to exercise the client end to
// end without a model behind it.
package echoserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/enhance-client/internal/jobs"
)

// request mirrors the client's outbound frame.
type request struct {
	UUID            string `json:"uuid"`
	EnhancementType string `json:"enhancement_type"`
	Image           string `json:"image"`
}

// Config configures the stub.
type Config struct {
	Delay           time.Duration // Artificial processing time per job
	MaxMessageBytes int64
}

// Server serves the stub over HTTP.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	jobs atomic.Int64
}

// New creates a Server.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the routes: GET / for liveness and /ws for jobs.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Jobs returns the number of jobs answered so far.
func (s *Server) Jobs() int64 {
	return s.jobs.Load()
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "enhancement stub is running"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if s.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}

	logger := s.logger.With("remote", r.RemoteAddr)
	logger.Info("client connected")

	for {
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("read failed", "error", err)
			}
			logger.Info("client disconnected")
			return
		}

		if s.cfg.Delay > 0 {
			time.Sleep(s.cfg.Delay)
		}

		resp := s.answer(req)
		if err := conn.WriteJSON(resp); err != nil {
			logger.Warn("write failed", "uuid", req.UUID, "error", err)
			return
		}
		s.jobs.Add(1)

		logger.Debug("answered job", "uuid", req.UUID, "kind", req.EnhancementType, "error", resp.Error)
	}
}

// answer echoes the image back, or reports why it cannot.
func (s *Server) answer(req request) jobs.Response {
	resp := jobs.Response{
		UUID:            req.UUID,
		EnhancementType: req.EnhancementType,
	}

	if req.Image == "" {
		resp.Error = "No image uploaded"
		return resp
	}
	if _, err := jobs.ParseKind(req.EnhancementType); err != nil {
		resp.Error = err.Error()
		return resp
	}

	resp.Image = req.Image
	return resp
}

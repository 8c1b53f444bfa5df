package monitor

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/tuyalan/internal/logging"
)

// Config holds the fan-out server's network settings. CertPath/KeyPath are
// optional; when both are empty the server listens on plain HTTP, which is
// adequate for a dashboard reachable only on the local network.
type Config struct {
	Host     string
	Port     int
	CertPath string
	KeyPath  string
}

func (c Config) addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// event is the JSON shape sent to every connected client.
type event struct {
	Type string         `json:"type"` // "dps" or "disconnected"
	DPS  map[string]any `json:"dps,omitempty"`
	Err  string         `json:"error,omitempty"`
}

// Server accepts WebSocket clients at /ws and broadcasts every data-point
// update it receives to all of them. It implements tuya.Listener directly,
// so it can be passed as the listener argument to Session.Connect.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	http     *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New constructs a Server; call Start to begin listening.
func New(cfg Config) *Server {
	s := &Server{
		cfg:     cfg,
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.http = &http.Server{Addr: cfg.addr(), Handler: mux}
	return s
}

// Start begins listening in the background and returns immediately. Call
// Shutdown to stop it.
func (s *Server) Start() error {
	ln, err := newListener(s.cfg)
	if err != nil {
		return err
	}
	logging.Info("monitor server listening", zap.String("addr", s.cfg.addr()))
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Error("monitor server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully closes all client connections and the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.clients {
		_ = conn.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()
	return s.http.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	remoteAddr := r.RemoteAddr
	logging.LogMonitorClient(remoteAddr, "connected")

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		_ = conn.Close()
		logging.LogMonitorClient(remoteAddr, "disconnected")
	}()

	// Clients only receive; drain and discard anything they send (e.g.
	// protocol-level pings) so the read loop notices a dropped connection.
	conn.SetReadDeadline(time.Time{})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) broadcast(ev event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logging.Error("failed to marshal monitor event", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logging.Warn("dropping monitor client after write error",
				zap.String("remote_addr", conn.RemoteAddr().String()),
				zap.Error(err),
			)
			_ = conn.Close()
			delete(s.clients, conn)
		}
	}
}

// StatusUpdated implements tuya.Listener: every DP snapshot the session
// reports is broadcast verbatim to all connected dashboard clients.
func (s *Server) StatusUpdated(dps map[string]any) {
	s.broadcast(event{Type: "dps", DPS: dps})
}

// Disconnected implements tuya.Listener.
func (s *Server) Disconnected(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.broadcast(event{Type: "disconnected", Err: msg})
}

// newListener opens the plain-TCP or TLS listener the server will Serve on,
// depending on whether a certificate/key pair was configured.
func newListener(cfg Config) (net.Listener, error) {
	if cfg.CertPath == "" && cfg.KeyPath == "" {
		return net.Listen("tcp", cfg.addr())
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("monitor: loading TLS certificate: %w", err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	return tls.Listen("tcp", cfg.addr(), tlsCfg)
}

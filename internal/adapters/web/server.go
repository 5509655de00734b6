// Package web serves the gateway's local HTTP status/diagnostics
// surface (node list, resource-directory dump, network-management
// state) over gorilla/mux, plus a websocket event stream - grounded on
// the teacher's internal/adapters/web server/router/ws_manager split.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zwave-gw/zipgw/internal/core/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Diagnostics is the read-only surface the web adapter renders; it is
// satisfied by wiring closures over the gateway's live components
// rather than a single fat interface, since each endpoint only needs
// one component's state.
type Diagnostics struct {
	Nodes       func() []domain.NodeEntry
	NMState     func() (domain.NMState, domain.NMFlags)
	IPAssocs    func() []domain.IPAssociation
}

// Server exposes Diagnostics over HTTP/websocket.
type Server struct {
	log   *slog.Logger
	addr  string
	diag  Diagnostics

	mu      sync.Mutex
	clients map[*websocket.Conn]bool

	httpSrv *http.Server
}

// NewServer constructs a Server bound to addr.
func NewServer(log *slog.Logger, addr string, diag Diagnostics) *Server {
	return &Server{
		log:     log,
		addr:    addr,
		diag:    diag,
		clients: make(map[*websocket.Conn]bool),
	}
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/nodes", s.handleNodes).Methods(http.MethodGet)
	r.HandleFunc("/api/nms", s.handleNMState).Methods(http.MethodGet)
	r.HandleFunc("/api/associations", s.handleAssociations).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Run starts the HTTP server and the periodic websocket broadcaster,
// blocking until ctx is cancelled (same shape as the teacher's
// Server.Run).
func (s *Server) Run(ctx context.Context) error {
	instrumented := otelhttp.NewHandler(s.router(), "zipgw-web")
	s.httpSrv = &http.Server{Addr: s.addr, Handler: instrumented}

	go s.broadcastLoop(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("web server shutdown error", "error", err)
		}
	}()

	s.log.Info("web server listening", "addr", s.addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"nodes": s.diag.Nodes()})
}

func (s *Server) handleNMState(w http.ResponseWriter, r *http.Request) {
	state, flags := s.diag.NMState()
	writeJSON(w, map[string]any{"state": state.String(), "flags": flags})
}

func (s *Server) handleAssociations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"associations": s.diag.IPAssocs()})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	clientID := uuid.New().String()
	s.log.Info("websocket client connected", "client", clientID)

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	go func() {
		defer conn.Close()
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			s.log.Info("websocket client disconnected", "client", clientID)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcastNodes()
		}
	}
}

func (s *Server) broadcastNodes() {
	data, err := json.Marshal(map[string]any{"type": "nodes", "nodes": s.diag.Nodes()})
	if err != nil {
		s.log.Warn("websocket broadcast marshal error", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

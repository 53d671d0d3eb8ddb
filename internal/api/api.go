// Package api provides the HTTP surface of the twin engine.
//
// # Endpoints
//
// Dashboard API:
//   - GET  /api/v1/health - Engine self-health
//   - GET  /api/network/status - Full topology snapshot
//   - GET  /ws - WebSocket event stream
//
// Control API:
//   - POST /api/control/topology/import - Replace the topology on the agent
//   - POST /api/control/device/{name}/toggle - Toggle a host or switch
//   - POST /api/control/link/{id}/toggle - Toggle a link
//   - PUT  /api/control/link/{id}/update - Update link conditions
//   - GET  /api/control/actions/history - Action audit trail
//   - GET  /api/control/actions/{id} - Single action record
//
// Agent API:
//   - POST /api/init/topology - Declare the live topology
//   - POST /api/telemetry - Push a telemetry batch
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/twinlab/nettwin/internal/actions"
	"github.com/twinlab/nettwin/internal/cache"
	"github.com/twinlab/nettwin/internal/config"
	"github.com/twinlab/nettwin/internal/metrics"
	"github.com/twinlab/nettwin/internal/twin"
	"github.com/twinlab/nettwin/pkg/types"
)

const snapshotCacheKey = "network:status"

// CommandPublisher dispatches a command message to the remote agent.
type CommandPublisher interface {
	PublishCommand(ctx context.Context, msg types.CommandMessage) error
}

// TelemetryProcessor applies one telemetry batch to the twin.
type TelemetryProcessor interface {
	Process(batch types.TelemetryBatch)
}

// Broadcaster pushes an event to all dashboard subscribers.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// GraphMirror maintains the external topology graph copy. May be nil.
type GraphMirror interface {
	Rebuild(ctx context.Context, g twin.Graph) error
}

// Server is the HTTP API server.
type Server struct {
	reg       *twin.Registry
	pipeline  TelemetryProcessor
	actionLog *actions.Log
	commands  CommandPublisher
	broadcast Broadcaster
	collector *metrics.Collector
	cache     *cache.Cache // may be nil
	mirror    GraphMirror  // may be nil
	logger    *slog.Logger
	mux       *http.ServeMux

	// bcrypt hash of the shared agent token; empty disables auth on the
	// agent endpoints.
	agentTokenHash string
}

// Deps carries the server's collaborators.
type Deps struct {
	Registry       *twin.Registry
	Pipeline       TelemetryProcessor
	ActionLog      *actions.Log
	Commands       CommandPublisher
	Broadcast      Broadcaster
	Collector      *metrics.Collector
	Cache          *cache.Cache
	Mirror         GraphMirror
	AgentTokenHash string
}

// NewServer creates the API server and registers its routes.
func NewServer(d Deps, logger *slog.Logger) *Server {
	s := &Server{
		reg:            d.Registry,
		pipeline:       d.Pipeline,
		actionLog:      d.ActionLog,
		commands:       d.Commands,
		broadcast:      d.Broadcast,
		collector:      d.Collector,
		cache:          d.Cache,
		mirror:         d.Mirror,
		logger:         logger.With("component", "api"),
		mux:            http.NewServeMux(),
		agentTokenHash: d.AgentTokenHash,
	}
	s.registerRoutes()
	return s
}

// Mux returns the underlying ServeMux for registering additional routes,
// such as the WebSocket endpoint.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("request",
		"method", r.Method,
		"path", r.URL.Path,
		"duration", time.Since(start))
}

func (s *Server) registerRoutes() {
	agentAuth := s.agentAuthMiddleware()

	// Dashboard
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/network/status", s.handleNetworkStatus)

	// Control
	s.mux.HandleFunc("POST /api/control/topology/import", s.handleImportTopology)
	s.mux.HandleFunc("POST /api/control/device/{name}/toggle", s.handleToggleDevice)
	s.mux.HandleFunc("POST /api/control/link/{id}/toggle", s.handleToggleLink)
	s.mux.HandleFunc("PUT /api/control/link/{id}/update", s.handleUpdateLink)
	s.mux.HandleFunc("GET /api/control/actions/history", s.handleActionHistory)
	s.mux.HandleFunc("GET /api/control/actions/{id}", s.handleGetAction)

	// Agent
	s.mux.HandleFunc("POST /api/init/topology", wrapHandler(s.handleInitTopology, agentAuth))
	s.mux.HandleFunc("POST /api/telemetry", wrapHandler(s.handleTelemetry, agentAuth))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.collector.Health())
}

// handleNetworkStatus serves the full snapshot. The projection is cheap but
// the endpoint is polled by every dashboard, so the serialized response is
// cached briefly in Redis.
func (s *Server) handleNetworkStatus(w http.ResponseWriter, r *http.Request) {
	if s.cache != nil {
		data, err := s.cache.Get(r.Context(), snapshotCacheKey)
		if err != nil {
			s.logger.Warn("snapshot cache read failed", "error", err)
		} else if data != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(data)
			return
		}
	}

	s.reg.RLock()
	graph := twin.Project(s.reg)
	s.reg.RUnlock()

	if s.cache != nil {
		data, err := json.Marshal(graph)
		if err == nil {
			if err := s.cache.Set(r.Context(), snapshotCacheKey, data, config.SnapshotCacheTTL); err != nil {
				s.logger.Warn("snapshot cache write failed", "error", err)
			}
		}
	}
	writeJSON(w, http.StatusOK, graph)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// readJSON decodes a request body, rejecting unknown fields.
func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid request body: trailing data")
	}
	return nil
}

package api

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/twinlab/nettwin/internal/twin"
	"github.com/twinlab/nettwin/pkg/types"
)

// agentAuthMiddleware validates the agent's bearer token against the
// configured bcrypt hash. An empty hash disables enforcement, which is the
// lab default; production deployments set one.
func (s *Server) agentAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.agentTokenHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				s.logger.Warn("agent auth failed: missing credentials",
					"path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "unauthorized: missing credentials")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if err := bcrypt.CompareHashAndPassword([]byte(s.agentTokenHash), []byte(token)); err != nil {
				s.logger.Warn("agent auth failed: invalid token",
					"path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "unauthorized: invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// wrapHandler converts an http.HandlerFunc to use middleware.
func wrapHandler(h http.HandlerFunc, middleware func(http.Handler) http.Handler) http.HandlerFunc {
	return middleware(h).ServeHTTP
}

// handleInitTopology replaces the twin's topology with the agent's declared
// one. Called by the agent on startup and after a topology reload; every
// subscriber gets a fresh initial_state because all prior deltas are moot.
func (s *Server) handleInitTopology(w http.ResponseWriter, r *http.Request) {
	var spec types.TopologySpec
	if err := readJSON(r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := validateTopology(spec); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	s.reg.Lock()
	err := s.reg.RebuildTopology(spec)
	var graph twin.Graph
	if err == nil {
		graph = twin.Project(s.reg)
	}
	s.reg.Unlock()
	if err != nil {
		writeError(w, http.StatusBadRequest, "rebuilding topology: "+err.Error())
		return
	}

	if s.cache != nil {
		if cerr := s.cache.Delete(r.Context(), snapshotCacheKey); cerr != nil {
			s.logger.Warn("snapshot cache invalidation failed", "error", cerr)
		}
	}

	s.broadcast.Broadcast(types.EventInitialState, graph)

	if s.mirror != nil {
		// Mirroring is best-effort and slow; keep it off the agent's path.
		go func(g twin.Graph) {
			if merr := s.mirror.Rebuild(context.Background(), g); merr != nil {
				s.logger.Error("graph mirror rebuild failed", "error", merr)
			}
		}(graph)
	}

	s.logger.Info("topology initialized",
		"hosts", graph.TotalHosts,
		"switches", graph.TotalSwitches,
		"links", graph.TotalLinks)
	writeJSON(w, http.StatusOK, map[string]any{
		"model_name":     graph.ModelName,
		"total_hosts":    graph.TotalHosts,
		"total_switches": graph.TotalSwitches,
		"total_links":    graph.TotalLinks,
	})
}

// handleTelemetry is the HTTP fallback for agents that cannot reach the
// bus. The batch goes through the same pipeline as bus-delivered telemetry.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	var batch types.TelemetryBatch
	if err := readJSON(r, &batch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.pipeline.Process(batch)
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

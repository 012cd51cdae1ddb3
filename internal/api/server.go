// Package api provides the HTTP API for observing and steering a world.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane) and are rate
// limited per client.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/gridsim/internal/engine"
	"github.com/talgya/gridsim/internal/metrics"
	"github.com/talgya/gridsim/internal/persistence"
)

// Server serves the world over HTTP.
type Server struct {
	World    *engine.World
	Eng      *engine.Engine     // Nil: speed changes unavailable
	DB       *persistence.DB    // Nil: history and persisted snapshots unavailable
	Metrics  *metrics.Collector // Nil: commands are not counted
	Hub      *Hub               // Nil: streaming unavailable
	Limiter  *RateLimiter       // Nil: admin endpoints unlimited
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	MetricsPath string   // Default /metrics
	CORSOrigins []string // Extra allowed origins

	srv *http.Server
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.getOnly(s.handleStatus))
	mux.HandleFunc("/api/v1/buildings", s.getOnly(s.handleBuildings))
	mux.HandleFunc("/api/v1/building/", s.getOnly(s.handleBuildingDetail))
	mux.HandleFunc("/api/v1/edges", s.getOnly(s.handleEdges))
	mux.HandleFunc("/api/v1/layers", s.getOnly(s.handleLayers))
	mux.HandleFunc("/api/v1/graph", s.getOnly(s.handleGraph))
	mux.HandleFunc("/api/v1/events", s.getOnly(s.handleEvents))
	mux.HandleFunc("/api/v1/stats/history", s.getOnly(s.handleStatsHistory))
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	path := s.MetricsPath
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, metrics.Handler())

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))
	mux.HandleFunc("/api/v1/attack", s.adminOnly(s.handleCommand(engine.CommandAttack)))
	mux.HandleFunc("/api/v1/recovery", s.adminOnly(s.handleCommand(engine.CommandRecovery)))

	return corsMiddleware(s.CORSOrigins, mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "stream", s.Hub != nil)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the server started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// PublishTick pushes a summary to stream subscribers. Wire it to
// Engine.OnTick.
func (s *Server) PublishTick(sum engine.Summary) {
	if s.Hub != nil {
		s.Hub.Publish("tick", sum.Tick, sum)
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(extra []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range extra {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowedOrigins[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no GRIDSIM_API_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if s.Limiter != nil {
				RateLimitMiddleware(s.Limiter, next)(w, r)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// ── Observation ────────────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name":    "gridsim",
		"run_id":  s.World.RunID,
		"summary": s.World.StatusSummary(),
	}
	if s.Eng != nil {
		status["speed"] = s.Eng.Speed()
		status["running"] = s.Eng.Running()
	}
	if s.Hub != nil {
		status["stream_clients"] = s.Hub.Clients()
	}
	writeJSON(w, status)
}

func (s *Server) handleBuildings(w http.ResponseWriter, r *http.Request) {
	list := s.World.Graph().Nodes
	if st := r.URL.Query().Get("status"); st != "" {
		filtered := list[:0]
		for _, n := range list {
			if n.Status == st {
				filtered = append(filtered, n)
			}
		}
		list = filtered
	}
	writeJSON(w, list)
}

func (s *Server) handleBuildingDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/building/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "missing building id", http.StatusBadRequest)
		return
	}

	g := s.World.Graph()
	for _, n := range g.Nodes {
		if n.ID != id {
			continue
		}
		var outgoing, incoming []engine.LinkView
		for _, l := range g.Links {
			if l.From == id {
				outgoing = append(outgoing, l)
			}
			if l.To == id {
				incoming = append(incoming, l)
			}
		}
		writeJSON(w, map[string]any{
			"building": n,
			"outgoing": nonNil(outgoing),
			"incoming": nonNil(incoming),
		})
		return
	}
	http.Error(w, "building not found", http.StatusNotFound)
}

func (s *Server) handleEdges(w http.ResponseWriter, r *http.Request) {
	links := s.World.Graph().Links
	layer := r.URL.Query().Get("layer")
	status := r.URL.Query().Get("status")
	if layer != "" || status != "" {
		filtered := links[:0]
		for _, l := range links {
			if (layer == "" || l.Layer == layer) && (status == "" || l.Status == status) {
				filtered = append(filtered, l)
			}
		}
		links = filtered
	}
	writeJSON(w, links)
}

func (s *Server) handleLayers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.World.Layers())
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.World.Graph())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var events []engine.Event
	if a := q.Get("after"); a != "" {
		seq, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			http.Error(w, "invalid after", http.StatusBadRequest)
			return
		}
		events = s.World.EventsAfter(seq)
	} else {
		events = s.World.Events(0)
	}

	if category := q.Get("category"); category != "" {
		filtered := events[:0]
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	writeJSON(w, nonNil(events[start:]))
}

func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	fromTick := uint64(0)
	toTick := uint64(0)
	limit := 30

	if f := r.URL.Query().Get("from"); f != "" {
		if v, err := strconv.ParseUint(f, 10, 64); err == nil {
			fromTick = v
		}
	}
	if t := r.URL.Query().Get("to"); t != "" {
		if v, err := strconv.ParseUint(t, 10, 64); err == nil {
			toTick = v
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	rows, err := s.DB.LoadStatsHistory(fromTick, toTick, limit)
	if err != nil {
		slog.Error("stats history query failed", "error", err)
		writeJSON(w, []persistence.StatsRow{})
		return
	}
	writeJSON(w, nonNil(rows))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}
	s.Hub.ServeWS(w, r)
}

// ── Control plane ──────────────────────────────────────────────────

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not running", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	g := s.World.CaptureSnapshot()
	persisted := false
	if s.DB != nil {
		if err := s.DB.SaveWorldState(s.World); err != nil {
			slog.Error("snapshot save failed", "error", err)
			http.Error(w, "snapshot failed", http.StatusInternalServerError)
			return
		}
		persisted = true
	}

	writeJSON(w, map[string]any{
		"tick":      g.Tick,
		"nodes":     len(g.Nodes),
		"links":     len(g.Links),
		"persisted": persisted,
		"message":   "snapshot saved",
	})
}

// commandRequest is the body of /attack and /recovery. Attack accepts
// "severity" as an alias of "level".
type commandRequest struct {
	Target   string   `json:"target"`
	Level    *float64 `json:"level,omitempty"`
	Severity *float64 `json:"severity,omitempty"`
}

func (s *Server) handleCommand(kind engine.CommandKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req commandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Target == "" {
			http.Error(w, "target is required", http.StatusBadRequest)
			return
		}
		level := req.Level
		if level == nil && kind == engine.CommandAttack {
			level = req.Severity
		}
		if level == nil {
			http.Error(w, "level is required", http.StatusBadRequest)
			return
		}

		var (
			o   engine.Outcome
			err error
		)
		if kind == engine.CommandAttack {
			o, err = s.World.ExecuteAttack(req.Target, *level)
		} else {
			o, err = s.World.ExecuteRecovery(req.Target, *level)
		}
		if errors.Is(err, engine.ErrInvalidLevel) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			slog.Error("command failed", "kind", kind, "target", req.Target, "error", err)
			http.Error(w, "command failed", http.StatusInternalServerError)
			return
		}

		if s.Metrics != nil {
			s.Metrics.RecordCommand(o)
		}
		if s.Hub != nil {
			s.Hub.Publish("command", o.Tick, o)
		}
		slog.Info("command via API",
			"kind", kind,
			"target", req.Target,
			"level", *level,
			"matched", len(o.Entities),
			"applied", o.Applied,
		)
		writeJSON(w, o)
	}
}

// ── Helpers ────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("response write failed", "error", err)
	}
}

// nonNil keeps empty lists rendering as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

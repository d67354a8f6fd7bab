// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FilipeJohansson/gopulse"
)

// Config holds the HTTP/websocket glue configuration.
type Config struct {
	Port           int
	AllowedOrigins []string // empty allows any origin
	AdminKey       string   // empty disables the admin endpoints
	WriteTimeout   time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         8989,
		WriteTimeout: 10 * time.Second,
		PingPeriod:   30 * time.Second,
		PongWait:     60 * time.Second,
	}
}

// Server exposes the tracker over websockets and HTTP. It is glue: every
// analytics decision lives in the gopulse package, the server only resolves
// variants at the boundary, moves payloads and enforces CORS and the admin
// key.
type Server struct {
	tracker     *gopulse.Tracker
	broadcaster *gopulse.Broadcaster
	config      *Config
	logger      gopulse.Logger
	upgrader    websocket.Upgrader
	httpServer  *http.Server

	activeMu sync.RWMutex
	active   map[gopulse.Variant]map[string]struct{} // connection IDs per variant

	mu        sync.RWMutex
	isRunning bool
}

// New returns a Server for the given tracker and broadcaster with default
// configuration.
func New(tracker *gopulse.Tracker, broadcaster *gopulse.Broadcaster, options ...func(*Server)) *Server {
	s := &Server{
		tracker:     tracker,
		broadcaster: broadcaster,
		config:      DefaultConfig(),
		logger:      &gopulse.DefaultLogger{},
		active:      make(map[gopulse.Variant]map[string]struct{}),
	}

	for _, v := range tracker.Variants() {
		s.active[v] = make(map[string]struct{})
	}

	for _, o := range options {
		o(s)
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	return s
}

// ===== Functional Options =====

// WithPort sets the port number for the server to listen on. If the port is
// outside the valid range of 1-65535, the default port 8989 is kept.
func WithPort(port int) func(*Server) {
	return func(s *Server) {
		if port <= 0 || port > 65535 {
			fmt.Printf("Warning: invalid port %d, using default %d\n", port, s.config.Port)
			return
		}
		s.config.Port = port
	}
}

// WithAllowedOrigins sets the allowed origins for websocket upgrades and
// CORS responses. If the slice is empty, any origin is allowed.
func WithAllowedOrigins(origins []string) func(*Server) {
	return func(s *Server) {
		s.config.AllowedOrigins = origins
	}
}

// WithAdminKey sets the shared key required by the admin endpoints. An empty
// key leaves them disabled.
func WithAdminKey(key string) func(*Server) {
	return func(s *Server) {
		s.config.AdminKey = key
	}
}

// WithPingPong sets the websocket ping period and pong wait. Non-positive
// values keep the defaults.
func WithPingPong(pingPeriod, pongWait time.Duration) func(*Server) {
	return func(s *Server) {
		if pingPeriod <= 0 || pongWait <= 0 {
			fmt.Println("Warning: ping period and pong wait must be greater than 0, keeping defaults")
			return
		}
		s.config.PingPeriod = pingPeriod
		s.config.PongWait = pongWait
	}
}

// WithLogger sets the server's logger.
func WithLogger(logger gopulse.Logger) func(*Server) {
	return func(s *Server) {
		s.logger = logger
	}
}

// ===== CONTROLLERS =====

// Routes returns the server's handler: websocket endpoints, read endpoints,
// health and admin, wrapped in the CORS middleware. Exposed so tests can
// drive the server through httptest.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws/public", s.handlePublicWS)
	mux.HandleFunc("/ws/users", s.handlePrivateWS)
	mux.HandleFunc("/users/count", s.handleUsersCount)
	mux.HandleFunc("/users/weekly-unique", s.handleWeeklyUnique)
	mux.HandleFunc("/users/stats", s.handleUsersStats)
	mux.HandleFunc("/admin/flush", s.handleAdminFlush)
	mux.HandleFunc("/ping", s.handlePing)

	return s.corsMiddleware(mux)
}

// StartWithContext starts the server and blocks until ctx is canceled or the
// listener fails. On cancellation the server shuts down gracefully.
func (s *Server) StartWithContext(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Routes(),
		WriteTimeout: s.config.WriteTimeout,
	}
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Log(gopulse.LogTypeServer, gopulse.LogLevelInfo, "server running on http://localhost:%d", s.config.Port)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		s.logger.Log(gopulse.LogTypeServer, gopulse.LogLevelInfo, "server stopped by context")
		return ctx.Err()

	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

// Stop closes the server and all active connections.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning || s.httpServer == nil {
		return fmt.Errorf("server is not running")
	}
	s.isRunning = false
	return s.httpServer.Close()
}

// StopGracefully shuts the server down, waiting up to timeout for in-flight
// requests to finish.
func (s *Server) StopGracefully(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning || s.httpServer == nil {
		return fmt.Errorf("server is not running")
	}
	s.isRunning = false

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// ActiveConnections returns the number of identity-bearing connections
// currently in the Active state, per variant.
func (s *Server) ActiveConnections() map[gopulse.Variant]int {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()

	out := make(map[gopulse.Variant]int, len(s.active))
	for v, conns := range s.active {
		out[v] = len(conns)
	}
	return out
}

func (s *Server) trackActive(v gopulse.Variant, connID string) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	if conns, exists := s.active[v]; exists {
		conns[connID] = struct{}{}
	}
}

func (s *Server) untrackActive(v gopulse.Variant, connID string) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	if conns, exists := s.active[v]; exists {
		delete(conns, connID)
	}
}

// ===== HTTP ENDPOINTS =====

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "pong!")
}

// handleUsersCount returns the current counts and weekly averages in the
// same shape as the push payload.
func (s *Server) handleUsersCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	current := make(map[gopulse.Variant]int64)
	weeklyAvg := make(map[gopulse.Variant]float64)
	for _, v := range s.tracker.Variants() {
		current[v] = s.tracker.Counters().Read(ctx, v)
		weeklyAvg[v] = s.tracker.Weekly().AverageActivity(ctx, v)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"current":   current,
		"weeklyAvg": weeklyAvg,
	})
}

// handleWeeklyUnique returns the 7-day unique-user count per variant.
func (s *Server) handleWeeklyUnique(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	unique := make(map[gopulse.Variant]int64)
	for _, v := range s.tracker.Variants() {
		unique[v] = s.tracker.Unique().WeeklyUnique(ctx, v)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"unique": unique})
}

// handleUsersStats returns the combined per-variant figures: current count,
// weekly unique and all-time unique.
func (s *Server) handleUsersStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	type variantStats struct {
		Count         int64 `json:"count"`
		Unique        int64 `json:"unique"`
		AllTimeUnique int64 `json:"allTimeUnique"`
	}

	stats := make(map[gopulse.Variant]variantStats)
	for _, v := range s.tracker.Variants() {
		stats[v] = variantStats{
			Count:         s.tracker.Counters().Read(ctx, v),
			Unique:        s.tracker.Unique().WeeklyUnique(ctx, v),
			AllTimeUnique: s.tracker.Unique().AllTimeUnique(ctx, v),
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"stats": stats})
}

// handleAdminFlush wipes every tracked store key and zeroes the local cache.
// It requires the configured admin key as a bearer token.
func (s *Server) handleAdminFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
			"success": false, "error": "method not allowed",
		})
		return
	}

	if s.config.AdminKey == "" {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false, "error": "admin key not configured",
		})
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+s.config.AdminKey {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"success": false, "error": "forbidden: invalid admin key",
		})
		return
	}

	if err := s.tracker.Reset(r.Context()); err != nil {
		s.logger.Log(gopulse.LogTypeError, gopulse.LogLevelError, "flush failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false, "error": "failed to flush store",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ===== HELPERS =====

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.config.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// corsMiddleware mirrors the allowed origins into CORS response headers and
// answers preflight requests.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			allowed := len(s.config.AllowedOrigins) == 0
			for _, o := range s.config.AllowedOrigins {
				if origin == o {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(3600))
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

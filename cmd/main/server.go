package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/CTAG07/cadence/pkg/store"
	"github.com/CTAG07/cadence/pkg/text"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// requestIDHeader is echoed back on every API response.
const requestIDHeader = "X-Request-Id"

type Server struct {
	cm        *ConfigManager
	db        *sql.DB
	logger    *slog.Logger
	store     *store.Store[string]
	library   *Library
	authAPI   *AuthAPI
	markovAPI *MarkovAPI
	statsAPI  *StatsAPI
	serverAPI *ServerAPI
	apiMux    *http.ServeMux
	handler   http.Handler
}

// NewServer wires the model library and every API onto one handler. The
// database schemas must already exist.
func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {
	cfg := cm.Get()

	st, err := store.New(db, store.StringCodec{})
	if err != nil {
		return nil, fmt.Errorf("error creating model store: %w", err)
	}
	st.SetLogger(logger)

	tokenizer := text.New(
		text.WithSeparator(cfg.Model.Separator),
		text.WithEOC(cfg.Model.EOC),
	)
	library := NewLibrary(st, tokenizer, cfg.Model.Workers, logger)

	server := &Server{
		cm:        cm,
		db:        db,
		logger:    logger,
		store:     st,
		library:   library,
		authAPI:   NewAuthAPI(db, logger),
		markovAPI: NewMarkovAPI(library, cm, logger),
		statsAPI:  NewStatsAPI(library, logger),
		serverAPI: NewServerAPI(cm, actionChan, logger),
		apiMux:    http.NewServeMux(),
	}

	apiMux := http.NewServeMux()

	server.authAPI.RegisterRoutes(apiMux)
	server.markovAPI.RegisterRoutes(apiMux)
	server.statsAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Make sure api functions must pass through authentication first
	authedAPI := server.authAPI.Authenticate(apiMux)
	// ... except for the health check and metrics, which are unauthed so probes and scrapers can use them
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.apiMux.Handle("/metrics", promhttp.Handler())
	server.apiMux.Handle("/api/", authedAPI)

	server.handler = server.withRequestContext(server.apiMux)
	return server, nil
}

// ServeHTTP makes Server usable directly as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close releases the store's prepared statements. The database stays open.
func (s *Server) Close() {
	s.store.Close()
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// withRequestContext tags every request with an ID, logs it and records
// API metrics.
func (s *Server) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		route := routeLabel(r.URL.Path, rec.status)
		elapsed := time.Since(start)
		apiRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		apiRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		s.logger.DebugContext(ctx, "API request served",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", s.clientIP(r)),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", elapsed),
		)
	})
}

// routeLabel collapses path parameters so metric labels stay bounded.
func routeLabel(path string, status int) string {
	if status == http.StatusNotFound {
		return "unmatched"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) >= 4 && parts[0] == "api" && parts[1] == "markov" && parts[2] == "models":
		parts[3] = "{name}"
	case len(parts) >= 4 && parts[0] == "api" && parts[1] == "auth" && parts[2] == "keys":
		parts[3] = "{id}"
	}
	return "/" + strings.Join(parts, "/")
}

// clientIP returns the caller's address. Forwarding headers are honored only
// when the direct peer is a trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If splitting fails (e.g., no port), use the address as is.
		ip = r.RemoteAddr
	}
	if !s.cm.IsTrusted(ip) {
		return ip
	}

	// The X-Real-Ip header contains the forwarded IP in some cases (like from nginx)
	if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
		return realIP
	}

	// The first IP in X-Forwarded-For is the original client IP.
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		return strings.TrimSpace(first)
	}
	return ip
}

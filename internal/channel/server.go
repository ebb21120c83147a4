// Package channel connects front-ends to the pipeline: the HTTP chat API,
// the desktop websocket and Slack socket mode.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"kirabridge/internal/agent"
	"kirabridge/internal/domain"

	"github.com/google/uuid"
)

const (
	defaultMaxBody  = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Handler runs one request through the pipeline. *agent.Pipeline implements it.
type Handler interface {
	Handle(ctx context.Context, in agent.Inbound) (*agent.Reply, error)
}

// PersonaCatalog is the part of the persona catalog the API exposes.
type PersonaCatalog interface {
	List() []domain.PersonaDefinition
	Reload() error
	Len() int
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string
	Port            int
	WSPath          string // desktop websocket endpoint; empty disables it
	MetricsPath     string
	Metrics         http.Handler // optional
	MaxBodyBytes    int64
	Pipeline        Handler
	Personas        PersonaCatalog             // optional
	OnPersonaReload func(count int, err error) // optional
	Logger          *slog.Logger
}

// Server serves the chat API and, when WSPath is set, the desktop websocket.
// It implements domain.Channel; Start blocks until ctx is done.
type Server struct {
	addr     string
	wsPath   string
	maxBody  int64
	pipeline Handler
	personas PersonaCatalog
	onReload func(int, error)
	desktop  *Desktop
	handler  http.Handler
	server   *http.Server
	logger   *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		wsPath:   cfg.WSPath,
		maxBody:  cfg.MaxBodyBytes,
		pipeline: cfg.Pipeline,
		personas: cfg.Personas,
		onReload: cfg.OnPersonaReload,
		logger:   cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/message", s.handleChatMessage)
	mux.HandleFunc("GET /api/chat/personas", s.handleListPersonas)
	mux.HandleFunc("POST /api/chat/personas/reload", s.handleReloadPersonas)
	mux.HandleFunc("POST /api/messages", s.handleRawMessage)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if cfg.Metrics != nil && cfg.MetricsPath != "" {
		mux.Handle("GET "+cfg.MetricsPath, cfg.Metrics)
	}
	if cfg.WSPath != "" {
		s.desktop = NewDesktop(DesktopConfig{Logger: cfg.Logger})
		mux.HandleFunc("GET "+cfg.WSPath, s.desktop.ServeHTTP)
	}
	s.handler = s.withRequestID(mux)
	return s
}

func (s *Server) Name() string { return "http" }

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Start serves until ctx is done. Desktop websocket messages are published
// to bus; replies come back through the bus's "desktop" outbound route.
func (s *Server) Start(ctx context.Context, bus domain.MessageBus) error {
	if s.desktop != nil {
		s.desktop.Attach(bus)
	}

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      150 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.logger.Info("http server started", "addr", "http://"+s.addr, "ws", s.wsPath)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		if s.desktop != nil {
			s.desktop.CloseAll()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

func (s *Server) Stop() error {
	if s.desktop != nil {
		s.desktop.CloseAll()
	}
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

type requestIDKey struct{}

// withRequestID tags every request with an X-Request-ID, reusing the caller's when present.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		rw.Header().Set("X-Request-ID", id)
		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

// errorStatus maps pipeline errors to HTTP: rejections are the caller's fault.
func errorStatus(err error) int {
	if domain.IsRejection(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(rw http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= 500 {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", requestID(r.Context()), "err", err)
	} else {
		s.logger.Warn("request rejected", "path", r.URL.Path, "request_id", requestID(r.Context()), "err", err)
	}
	writeJSON(rw, status, map[string]any{"success": false, "error": err.Error()})
}

func (s *Server) handleHealth(rw http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.personas != nil {
		resp["personas"] = s.personas.Len()
	}
	writeJSON(rw, http.StatusOK, resp)
}

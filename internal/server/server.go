// Package server exposes the Bitbucket tools over MCP transports: JSON-RPC on
// stdio and a small HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"bitbucket-mcp/internal/tools"
)

// Config contains HTTP transport settings.
type Config struct {
	Port        string `env:"PORT" envDefault:"3000"`
	Token       string `env:"MCP_TOKEN"`
	TLSCertFile string `env:"TLS_CERT_FILE"`
	TLSKeyFile  string `env:"TLS_KEY_FILE"`
}

// Dispatcher is the tool surface both transports serve.
type Dispatcher interface {
	ListTools() []tools.Descriptor
	Dispatch(ctx context.Context, name string, arguments map[string]any) (string, error)
}

// Server contains the configured router and dispatcher for the HTTP transport.
type Server struct {
	cfg    Config
	router *chi.Mux
	tools  Dispatcher
	logger *slog.Logger
}

// New constructs a Server with middleware and routes configured.
func New(cfg Config, d Dispatcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		tools:  d,
		logger: logger,
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(logger.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/mcp", func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/tools", s.handleListTools)
		r.Post("/call", s.handleCall)
	})

	return s
}

// Router exposes the root HTTP handler for the server.
func (s *Server) Router() http.Handler { return s.router }

// Addr is the listen address derived from the configured port.
func (s *Server) Addr() string { return ":" + s.cfg.Port }

// TLS reports whether a certificate and key are configured.
func (s *Server) TLS() bool { return s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if s.TLS() {
			err = srv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.cfg.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ToolsList{Tools: s.tools.ListTools()})
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]ErrorBody{"error": {
			Code:    tools.CodeInvalidParams,
			Kind:    tools.InvalidParams.String(),
			Message: "invalid json: " + err.Error(),
		}})
		return
	}

	text, err := s.tools.Dispatch(r.Context(), req.Name, req.Args)
	if err != nil {
		te := asToolError(err)
		writeJSON(w, httpStatus(te.Kind), map[string]ErrorBody{"error": {
			Code:    te.Kind.Code(),
			Kind:    te.Kind.String(),
			Message: te.Message,
		}})
		return
	}
	writeJSON(w, http.StatusOK, textResult(text))
}

func httpStatus(k tools.Kind) int {
	switch k {
	case tools.InvalidParams:
		return http.StatusBadRequest
	case tools.MethodNotFound:
		return http.StatusNotFound
	case tools.UpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// asToolError recovers the classified error; anything else is internal.
func asToolError(err error) *tools.Error {
	var te *tools.Error
	if errors.As(err, &te) {
		return te
	}
	return &tools.Error{Kind: tools.InternalError, Message: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Package server exposes a session over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/poundlens/entity"
	"github.com/hazyhaar/poundlens/internal/annotate"
	"github.com/hazyhaar/poundlens/internal/idgen"
	"github.com/hazyhaar/poundlens/internal/orchestrate"
)

// Backend is what the HTTP surface drives.
type Backend interface {
	Entities(ctx context.Context) ([]orchestrate.EntityReport, error)
	Summary(ctx context.Context, format string) (string, error)
	HTML(ctx context.Context) (string, error)
	Replace(ctx context.Context, r io.Reader) error
	Click(ctx context.Context, id entity.ID, role annotate.Role) (annotate.CopyResult, error)
	Pass(ctx context.Context) (orchestrate.Report, error)
	FallbackPage() ([]byte, error)
}

// Config configures the server.
type Config struct {
	Addr string
	// MaxBody caps uploaded documents. Default: 10 MB.
	MaxBody int64
	IDs     idgen.Generator
	Logger  *slog.Logger
}

// Server is the HTTP surface of a session.
type Server struct {
	b      Backend
	cfg    Config
	logger *slog.Logger
	router chi.Router
}

// New creates a Server for b.
func New(b Backend, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 10 << 20
	}
	if cfg.IDs == nil {
		cfg.IDs = idgen.Prefixed("req_", idgen.Default)
	}
	s := &Server{b: b, cfg: cfg, logger: cfg.Logger}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(headToGet)
	r.Use(securityHeaders)
	r.Use(requestID(s.logger, s.cfg.IDs))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/page", s.handlePage)
	r.Get("/fallback", s.handleFallback)

	r.Route("/api", func(r chi.Router) {
		r.Get("/entities", s.handleEntities)
		r.Get("/summary", s.handleSummary)
		r.Post("/pass", s.handlePass)
		r.Post("/copy", s.handleCopy)
		r.With(maxBody(s.cfg.MaxBody)).Post("/document", s.handleDocument)
	})
	return r
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	page, err := s.b.HTML(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, page)
}

func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	page, err := s.b.FallbackPage()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	ents, err := s.b.Entities(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ents == nil {
		ents = []orchestrate.EntityReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": ents})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	text, err := s.b.Summary(r.Context(), r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if r.URL.Query().Get("raw") != "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, text)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handlePass(w http.ResponseWriter, r *http.Request) {
	rep, err := s.b.Pass(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type copyRequest struct {
	Entity string `json:"entity"`
	Role   string `json:"role"`
}

type copyResponse struct {
	Entity entity.ID     `json:"entity"`
	Role   annotate.Role `json:"role"`
	Text   string        `json:"text"`
	OK     bool          `json:"ok"`
	Error  string        `json:"error,omitempty"`
}

// handleCopy activates a control. Entity ids may contain slashes, so they
// travel in the body rather than the path.
func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var req copyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode: %w", err))
		return
	}
	if req.Entity == "" {
		writeError(w, http.StatusBadRequest, errors.New("entity is required"))
		return
	}
	if req.Role == "" {
		req.Role = string(annotate.RoleCopy)
	}
	role, err := annotate.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.b.Click(r.Context(), entity.ID(req.Entity), role)
	if errors.Is(err, annotate.ErrNoControl) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := copyResponse{Entity: res.Entity, Role: res.Role, Text: res.Text, OK: true}
	if werr := res.Wait(r.Context()); werr != nil {
		resp.OK = false
		resp.Error = werr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.b.Replace(r.Context(), r.Body); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "replaced"})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	GetLogger(r.Context()).Error("server: request failed", "error", err)
	code := http.StatusInternalServerError
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		code = http.StatusServiceUnavailable
	}
	writeError(w, code, err)
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server: listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.logger.Info("server: stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/openproject-mcp/internal/logger"
	"github.com/HendryAvila/openproject-mcp/internal/tools"
)

const (
	// MCPPath is where the streamable HTTP transport is mounted.
	MCPPath = "/mcp"

	healthTimeout   = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// HTTPHandler returns the router for the HTTP transport: the MCP endpoint
// plus a /healthz endpoint that pings OpenProject.
func (s *Server) HTTPHandler() http.Handler {
	mcpHTTP := server.NewStreamableHTTPServer(s.MCP, server.WithEndpointPath(MCPPath))

	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.RequestID, chimw.Recoverer)
	r.Use(accessLog(logger.Named("http")))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Mcp-Session-Id", "Mcp-Protocol-Version", "Last-Event-ID"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle(MCPPath, mcpHTTP)
	return r
}

// handleHealth answers 200 when OpenProject is reachable and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	report := tools.CheckHealth(ctx, s.client)
	status := http.StatusOK
	if report.Status != tools.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}

// accessLog logs one line per request. The wrapped writer keeps Flush so
// server-sent events still stream.
func accessLog(l *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			l.Debug().
				Str("request_id", chimw.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("request done")
		})
	}
}

// ServeHTTP runs the HTTP transport on the configured address until ctx
// is cancelled, then shuts down gracefully.
func (s *Server) ServeHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Str("path", MCPPath).Msg("serving MCP over HTTP")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down HTTP transport")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ServeStdio runs the stdio transport until stdin closes or ctx is
// cancelled. Logs must go to stderr since stdout carries the protocol.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdio := server.NewStdioServer(s.MCP)
	stdio.SetErrorLogger(log.New(os.Stderr, "mcp: ", log.LstdFlags))
	s.log.Info().Msg("serving MCP over stdio")
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

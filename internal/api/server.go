package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"pixelbatch/internal/archive"
	"pixelbatch/internal/blob"
	"pixelbatch/internal/config"
	"pixelbatch/internal/ingest"
	"pixelbatch/internal/logging"
	"pixelbatch/internal/queue"
	"pixelbatch/internal/scheduler"
)

// Deps are the components the server drives.
type Deps struct {
	Config    *config.Config
	Store     *queue.Store
	Scheduler *scheduler.Scheduler
	Ingestor  *ingest.Ingestor
	Registry  *blob.Registry
	Packager  *archive.Packager
	Logger    *slog.Logger

	// Context bounds conversions started through the API. Request contexts
	// end with the response, so they cannot be used.
	Context context.Context
}

func (d Deps) baseContext() context.Context {
	if d.Context == nil {
		return context.Background()
	}
	return d.Context
}

// Server serves the queue API.
type Server struct {
	deps     Deps
	logger   *slog.Logger
	router   *chi.Mux
	upgrader websocket.Upgrader

	maxUploadBytes int64
}

// NewServer wires the routes.
func NewServer(deps Deps) (*Server, error) {
	if deps.Config == nil || deps.Store == nil || deps.Scheduler == nil || deps.Ingestor == nil ||
		deps.Registry == nil || deps.Packager == nil {
		return nil, errors.New("api server requires config, store, scheduler, ingestor, registry, and packager")
	}
	s := &Server{
		deps:   deps,
		logger: logging.NewComponentLogger(deps.Logger, "api"),
		router: chi.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameHostOrigin,
		},
		maxUploadBytes: 64 * deps.Config.MaxFileBytes(),
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/items", s.handleUpload)
		r.Delete("/items", s.handleClear)
		r.Delete("/items/{id}", s.handleRemove)
		r.Post("/items/{id}/retry", s.handleRetry)
		r.Put("/format", s.handleFormat)
		r.Post("/convert", s.handleConvert)
		r.Post("/pause", s.handlePause)
		r.Get("/blobs/{id}", s.handleBlob)
		r.Get("/archive", s.handleArchive)
		r.Get("/health", s.handleHealth)
		r.Get("/events", s.handleEvents)
	})
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, bind string) error {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listening"),
	)
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api serve: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(started)),
			logging.String(logging.FieldCorrelationID, middleware.GetReqID(r.Context())),
		)
	})
}

// sameHostOrigin accepts requests without an Origin header and browser
// requests from the page the server itself served.
func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	host := strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://")
	return strings.EqualFold(host, r.Host)
}

package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/andresmejia3/facecam/internal/pipeline"
	"github.com/andresmejia3/facecam/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Controller is the subset of *pipeline.Controller the API drives.
type Controller interface {
	StartCamera(deviceID string) error
	StopCamera() error
	StartRegister(name, email string) error
	StartVerify() error
	Cancel() error
	SetVisible(visible bool) error
	Status() (pipeline.Status, error)
}

// History is the read side of the journal. It may be nil.
type History interface {
	ListEvents(ctx context.Context, kind string, limit int) ([]store.Event, error)
	ListSessions(ctx context.Context, limit int) ([]store.Session, error)
	Summarize(ctx context.Context) (store.Summary, error)
}

// Options wires a Server.
type Options struct {
	Host    string
	Port    int
	Ctrl    Controller
	Events  *Broadcaster
	History History
	Devices func() ([]string, error)
	Logger  *zap.Logger
}

// Server is the control API and live event stream.
type Server struct {
	ctrl       Controller
	events     *Broadcaster
	history    History
	devices    func() ([]string, error)
	log        *zap.Logger
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates a new web server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Events == nil {
		opts.Events = NewBroadcaster()
	}
	if opts.Devices == nil {
		opts.Devices = func() ([]string, error) { return nil, nil }
	}

	r := chi.NewRouter()
	s := &Server{
		ctrl:    opts.Ctrl,
		events:  opts.Events,
		history: opts.History,
		devices: opts.Devices,
		log:     opts.Logger.Named("web"),
		router:  r,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		// Streams are exempt from the request timeout
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(30 * time.Second))
			r.Get("/devices", s.handleDevices)
			r.Get("/status", s.handleStatus)
			r.Post("/camera/start", s.handleCameraStart)
			r.Post("/camera/stop", s.handleCameraStop)
			r.Post("/register", s.handleRegister)
			r.Post("/verify", s.handleVerify)
			r.Post("/cancel", s.handleCancel)
			r.Post("/visibility", s.handleVisibility)
			r.Get("/history", s.handleHistory)
			r.Get("/history/sessions", s.handleSessions)
			r.Get("/history/summary", s.handleSummary)
		})
	})
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.log.Info("starting web server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown disconnects event streams and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")
	s.events.Close()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
		)
	})
}

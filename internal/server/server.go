package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dl-alexandre/batfiles/internal/logging"
	"github.com/dl-alexandre/batfiles/internal/utils"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// Options configures the HTTP surface
type Options struct {
	RootFolderID   string
	Version        string
	AllowedOrigins []string
	// RateLimitRPS of 0 disables the per-IP limiter
	RateLimitRPS   float64
	RateLimitBurst int
	// Debug mounts the /api/debug routes
	Debug           bool
	ShutdownTimeout time.Duration
	Logger          logging.Logger
}

// NewRouter builds the chi router serving the API
func NewRouter(svc BatService, debug DebugLister, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	h := &handlers{
		svc:     svc,
		debug:   debug,
		rootID:  opts.RootFolderID,
		version: opts.Version,
		logger:  opts.Logger,
		now:     time.Now,
	}

	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		logging.RequestLogger(opts.Logger),
		chimw.Recoverer,
		CORS(opts.AllowedOrigins),
	)
	if opts.RateLimitRPS > 0 {
		r.Use(NewRateLimiter(rate.Limit(opts.RateLimitRPS), opts.RateLimitBurst).Middleware)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: errorBody{
			Kind:    string(utils.KindNotFound),
			Code:    "ROUTE_NOT_FOUND",
			Message: "No route for " + r.URL.Path,
		}})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/bat/{batId}/files", h.batFiles)
		r.Get("/file/{fileId}", h.file)

		if opts.Debug && debug != nil {
			r.Route("/debug", func(r chi.Router) {
				r.Get("/folders", h.debugFolders)
				r.Get("/all-items", h.debugAllItems)
			})
		}
	})

	return r
}

// Server runs the API until its context ends
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          logging.Logger
}

// New creates a server listening on addr
func New(addr string, handler http.Handler, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		shutdownTimeout: opts.ShutdownTimeout,
		logger:          opts.Logger,
	}
}

// Run listens and serves until ctx is cancelled, then shuts down gracefully.
// No write timeout is set; downloads stream for as long as the client reads.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting api server", logging.F("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("graceful shutdown failed", logging.F("error", err.Error()))
		return err
	}
	return <-errCh
}

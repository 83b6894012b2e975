package relay

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedarden/stickycheese/internal/config"
	"github.com/jedarden/stickycheese/internal/logging"
)

// Server represents the relay server.
type Server struct {
	cfg         *config.Config
	handler     *Handler
	server      *http.Server
	rateLimiter *RateLimiter
	shutdownCh  chan struct{} // Channel to signal goroutines to stop
}

// NewServer creates a new relay server.
func NewServer(cfg *config.Config, version string) *Server {
	handler := NewHandler(cfg)
	handler.SetVersion(version)

	s := &Server{
		cfg:        cfg,
		handler:    handler,
		shutdownCh: make(chan struct{}),
	}

	if cfg.RateLimitEnabled {
		s.rateLimiter = NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.RateLimitBurst)
		s.handler.SetRateLimiter(s.rateLimiter)
	}

	s.server = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute, // Long timeout for streaming
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Routes returns the relay's HTTP handler with its middleware chain.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handler.HandleRoot)
	mux.HandleFunc("/health", s.handler.HandleHealth)
	mux.HandleFunc("/metrics", s.handler.HandleMetrics)

	var handler http.Handler = mux
	if s.rateLimiter != nil {
		handler = RateLimitMiddleware(s.rateLimiter)(handler)
	}
	handler = CORSMiddleware(s.cfg.AllowedOrigins)(handler)
	return loggingMiddleware(handler)
}

// Start runs the relay until SIGINT or SIGTERM.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(ln)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("%s Received signal %v, shutting down...", logging.Prefix, sig)
		return s.Shutdown()
	}
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	if s.rateLimiter != nil {
		log.Printf("%s Rate limiting enabled: %d requests per %d seconds (burst: %d)",
			logging.Prefix, s.cfg.RateLimitRequests, s.cfg.RateLimitWindow, s.cfg.RateLimitBurst)
		go s.cleanupPeriodically()
	}
	if len(s.cfg.AllowedOrigins) > 0 {
		log.Printf("%s Allowed origins: %v", logging.Prefix, s.cfg.AllowedOrigins)
	} else {
		log.Printf("%s Allowing all origins. Set STICKYCHEESE_ALLOWED_ORIGINS to restrict.", logging.Prefix)
	}
	log.Printf("%s Starting relay on %s", logging.Prefix, ln.Addr())
	log.Printf("%s Set STICKYCHEESE_RELAY_URL=http://localhost:%d to route chats through it", logging.Prefix, s.cfg.Port)

	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	select {
	case <-s.shutdownCh:
	default:
		close(s.shutdownCh)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	log.Printf("%s Relay stopped", logging.Prefix)
	return nil
}

// cleanupPeriodically evicts idle rate limiter entries until shutdown.
func (s *Server) cleanupPeriodically() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdownCh:
			return
		case <-ticker.C:
			s.rateLimiter.Cleanup()
		}
	}
}

// GetHandler returns the handler for testing and metrics access.
func (s *Server) GetHandler() *Handler {
	return s.handler
}

// loggingMiddleware logs method, path, status and duration. Headers are
// never logged since they carry provider keys.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)

		log.Printf("%s %s %s %d %v", logging.Prefix, r.Method, r.URL.Path, lrw.statusCode, time.Since(start))
	})
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher.
func (lrw *loggingResponseWriter) Flush() {
	if f, ok := lrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

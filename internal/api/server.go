package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/wonny/newsdeck/backend/pkg/config"
	"github.com/wonny/newsdeck/backend/pkg/logger"
)

// Activity records when the server last handled a request.
type Activity struct {
	last atomic.Int64
	now  func() time.Time
}

// NewActivity starts the idle clock now.
func NewActivity() *Activity {
	a := &Activity{now: time.Now}
	a.Touch()
	return a
}

// Touch marks the server as active.
func (a *Activity) Touch() {
	a.last.Store(a.now().UnixNano())
}

// Idle returns how long the server has been without requests.
func (a *Activity) Idle() time.Duration {
	return a.now().Sub(time.Unix(0, a.last.Load()))
}

// Middleware touches the activity clock for every request.
func (a *Activity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.Touch()
		next.ServeHTTP(w, r)
	})
}

// ErrIdle is returned by Run when the server stopped after being idle.
var ErrIdle = errors.New("server idle")

// Server represents the HTTP API server
// ⭐ SSOT: API 서버 설정은 이 파일에서만
type Server struct {
	httpServer  *http.Server
	logger      *logger.Logger
	config      *config.Config
	activity    *Activity
	idleTimeout time.Duration
	busy        func() bool
}

// New creates a new API server. activity may be nil when idle shutdown is
// not wanted; persistent mode disables it as well.
func New(cfg *config.Config, log *logger.Logger, router http.Handler, activity *Activity) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 5 * time.Minute, // task runs relay their output synchronously
			IdleTimeout:  60 * time.Second,
		},
		logger:   log,
		config:   cfg,
		activity: activity,
	}
	if !cfg.PersistentMode && activity != nil {
		s.idleTimeout = cfg.IdleTimeout
	}
	return s
}

// KeepAliveWhile registers a check that postpones idle shutdown while it
// returns true (e.g. websocket clients are connected).
func (s *Server) KeepAliveWhile(busy func() bool) {
	s.busy = busy
}

// Run serves until ctx is done or the server has been idle for the
// configured timeout. It shuts down gracefully in both cases.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.WithFields(map[string]interface{}{
		"addr":         ln.Addr().String(),
		"env":          s.config.Env,
		"idle_timeout": s.idleTimeout,
	}).Info("Starting API server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errCh)
	}()

	var idle <-chan time.Time
	if s.idleTimeout > 0 {
		ticker := time.NewTicker(idleCheckInterval(s.idleTimeout))
		defer ticker.Stop()
		idle = ticker.C
	}

	var reason error
loop:
	for {
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			break loop
		case <-idle:
			if s.busy != nil && s.busy() {
				s.activity.Touch()
				continue
			}
			if s.activity.Idle() >= s.idleTimeout {
				s.logger.WithField("idle", s.activity.Idle().Round(time.Second)).Info("Server idle, shutting down")
				reason = ErrIdle
				break loop
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return reason
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

func idleCheckInterval(timeout time.Duration) time.Duration {
	interval := timeout / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return interval
}

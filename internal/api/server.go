package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"agentcron/internal/eventbus"
	rtsup "agentcron/internal/runtime/supervisor"
	logx "agentcron/pkg/logx"
)

const DefaultAddr = "127.0.0.1:7470"

// Config controls the API listener.
//
// Security:
//   - Prefer binding to localhost (default).
//   - A non-loopback Addr requires Token unless AllowInsecure is set.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool

	RunRatePerSec float64 // 0 disables the run limiter
	RunBurst      int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	Pprof bool
}

func (c Config) addr() string {
	if a := strings.TrimSpace(c.Addr); a != "" {
		return a
	}
	return DefaultAddr
}

// Server serves the task API. The listener runs under a supervisor restart
// loop so a crashed Serve comes back on its own.
type Server struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	svc     Scheduler
	bus     eventbus.Bus
	status  map[string]func() any
	limiter *rate.Limiter

	ln    net.Listener // bound by Start, consumed by the first serveOnce
	srv   *http.Server
	sup   *rtsup.Supervisor
	bound string
}

type Option func(*Server)

// WithStatus adds a named section to GET /status.
func WithStatus(name string, fn func() any) Option {
	return func(s *Server) {
		if fn != nil {
			s.status[name] = fn
		}
	}
}

func New(cfg Config, svc Scheduler, bus eventbus.Bus, log logx.Logger, opts ...Option) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		cfg:     cfg,
		log:     log,
		svc:     svc,
		bus:     bus,
		status:  map[string]func() any{},
		limiter: rate.NewLimiter(runLimit(cfg), runBurst(cfg)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func runLimit(cfg Config) rate.Limit {
	if cfg.RunRatePerSec <= 0 {
		return rate.Inf
	}
	return rate.Limit(cfg.RunRatePerSec)
}

func runBurst(cfg Config) int {
	if cfg.RunBurst > 0 {
		return cfg.RunBurst
	}
	return max(1, int(math.Ceil(cfg.RunRatePerSec)))
}

// Supervisor returns the serve loop supervisor, nil when stopped.
func (s *Server) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Addr returns the bound listen address, empty when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// Start binds the listener synchronously, so bind errors surface to the
// caller, then serves in the background. Start is idempotent.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled {
		return nil
	}
	ln, err := s.listenLocked()
	if err != nil {
		return err
	}
	s.ln = ln
	s.bound = ln.Addr().String()
	s.sup = rtsup.New(context.WithoutCancel(ctx),
		rtsup.WithLogger(s.log),
		// The API is one surface among several; never take the daemon down.
		rtsup.WithCancelOnError(false),
	)
	s.sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
	return nil
}

func (s *Server) listenLocked() (net.Listener, error) {
	cur := s.cfg
	addr := cur.addr()
	if cur.Token == "" && !IsLoopbackAddr(addr) {
		if !cur.AllowInsecure {
			s.log.Error("api refused to start: non-loopback addr requires token or allow_insecure",
				logx.String("addr", addr))
			return nil, fmt.Errorf("api: refusing insecure bind on %s", addr)
		}
		s.log.Warn("api running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("api listen %s: %w", addr, err)
	}
	return ln, nil
}

func (s *Server) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cfg
	ln := s.ln
	s.ln = nil
	if ln == nil {
		var err error
		if ln, err = s.listenLocked(); err != nil {
			s.mu.Unlock()
			if ctx.Err() != nil {
				return context.Canceled
			}
			return err
		}
		s.bound = ln.Addr().String()
	}
	srv := &http.Server{
		Handler:      s.handlerFor(cur),
		ReadTimeout:  cur.ReadTimeout,
		WriteTimeout: cur.WriteTimeout,
		IdleTimeout:  cur.IdleTimeout,
	}
	s.srv = srv
	s.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// Stop does the graceful shutdown; this only bounds a cancelled loop.
			cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = srv.Shutdown(cctx)
			cancel()
		case <-done:
		}
	}()

	s.log.Info("api started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", cur.Token != ""),
		logx.Bool("pprof", cur.Pprof),
	)
	err := srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv = nil
	}
	s.mu.Unlock()

	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("api server exited unexpectedly")
	}
	return err
}

// Stop shuts the server down gracefully, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup, srv, ln := s.sup, s.srv, s.ln
	s.sup, s.srv, s.ln, s.bound = nil, nil, nil, ""
	s.mu.Unlock()
	if sup == nil {
		return nil
	}

	var err error
	if srv != nil {
		if err = srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
		}
	}
	if ln != nil {
		_ = ln.Close()
	}
	sup.Cancel()
	if werr := sup.Wait(ctx); werr != nil && ctx.Err() != nil {
		err = werr
	}
	s.log.Info("api stopped")
	return err
}

// Reconfigure applies cfg, restarting the listener only when a setting it
// was built with changed. Run limits apply in place.
func (s *Server) Reconfigure(ctx context.Context, cfg Config) error {
	s.limiter.SetLimit(runLimit(cfg))
	s.limiter.SetBurst(runBurst(cfg))

	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		return s.Stop(ctx)
	case !running:
		return s.Start(ctx)
	case needsRestart(prev, cfg):
		if err := s.Stop(ctx); err != nil {
			return err
		}
		return s.Start(ctx)
	}
	return nil
}

func needsRestart(a, b Config) bool {
	a.RunRatePerSec, a.RunBurst = 0, 0
	b.RunRatePerSec, b.RunBurst = 0, 0
	a.Addr, b.Addr = a.addr(), b.addr()
	return a != b
}

func IsLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// All interfaces.
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

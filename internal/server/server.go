// ABOUTME: Server orchestrator wiring the webhook, viewer streams and chat proxy
// ABOUTME: Owns the store, hub, worker pool and resolver lifecycles plus HTTP/tsnet listeners

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/switchboard/internal/auth"
	"github.com/2389/switchboard/internal/callflow"
	"github.com/2389/switchboard/internal/config"
	"github.com/2389/switchboard/internal/gwclient"
	"github.com/2389/switchboard/internal/hub"
	"github.com/2389/switchboard/internal/resolver"
	"github.com/2389/switchboard/internal/store"
	"github.com/2389/switchboard/internal/webhook"
	"github.com/2389/switchboard/internal/worker"
)

// Server runs the switchboard HTTP surface and its background services.
type Server struct {
	config      *config.Config
	store       store.Store
	hub         *hub.Hub
	gateway     *gwclient.Client
	pool        *worker.Pool
	resolver    *resolver.Queue
	calls       *callflow.Automation
	normalizer  *webhook.Normalizer
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	stopResolver context.CancelFunc
	resolverDone chan struct{}
}

// OpenStore opens the store selected by database.driver.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		s, err := store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("initializing postgres store: %w", err)
		}
		return s, nil
	case "", "sqlite":
		s, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("initializing sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("database driver %q not supported", cfg.Database.Driver)
	}
}

// New creates a Server from configuration, opening the configured store.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newServer(cfg, s, logger), nil
}

// newServer wires every component around an already opened store.
func newServer(cfg *config.Config, st store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	h := hub.New(logger,
		hub.WithCapacity(cfg.Hub.QueueSize),
		hub.WithHeartbeat(cfg.Hub.HeartbeatInterval),
	)

	gw := gwclient.New(gwclient.Config{
		BaseURL:       cfg.Gateway.BaseURL,
		Timeout:       cfg.Gateway.Timeout,
		RatePerSecond: cfg.Gateway.RatePerSecond,
		Burst:         cfg.Gateway.Burst,
		Logger:        logger,
	})

	pool := worker.New(logger, cfg.Workers.Count, cfg.Workers.QueueSize)

	rq := resolver.New(resolver.Config{
		Workers:     cfg.Resolver.Workers,
		QueueSize:   cfg.Resolver.QueueSize,
		InflightTTL: cfg.Resolver.InflightTTL,
	}, st, st, gw, h, logger)

	calls := callflow.New(callflow.Config{
		Message:      cfg.Automation.CallMessage,
		MessageDelay: cfg.Automation.MessageDelay,
		UnreadDelay:  cfg.Automation.UnreadDelay,
		Location:     cfg.Automation.Location(),
	}, st, gw, rq, pool, logger)

	srv := &Server{
		config:     cfg,
		store:      st,
		hub:        h,
		gateway:    gw,
		pool:       pool,
		resolver:   rq,
		calls:      calls,
		normalizer: webhook.NewNormalizer(st, rq, h, calls, logger),
		logger:     logger.With("component", "server"),
	}

	resolverCtx, cancel := context.WithCancel(context.Background())
	srv.stopResolver = cancel
	srv.resolverDone = make(chan struct{})
	go func() {
		defer close(srv.resolverDone)
		if err := rq.Run(resolverCtx); err != nil {
			srv.logger.Error("resolver stopped", "error", err)
		}
	}()

	srv.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Streams only end when their queue closes, so closing the hub lets
	// Shutdown finish instead of waiting on idle viewers.
	srv.httpServer.RegisterOnShutdown(h.Close)

	return srv
}

// routes builds the HTTP handler.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)

	// Gateway webhooks - authenticated by network placement, not tokens
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/webhook/{session}", s.handleWebhook)

	var verifier auth.TokenVerifier
	if s.config.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(s.config.Auth.JWTSecret))
	}
	requireViewer := auth.HTTPAuthMiddleware(verifier, s.logger)

	mux.Handle("GET /api/events", requireViewer(http.HandlerFunc(s.handleEvents)))
	mux.Handle("GET /api/events/ws", requireViewer(http.HandlerFunc(s.handleEventsWS)))

	mux.Handle("GET /api/sessions/{session}/chats", requireViewer(http.HandlerFunc(s.handleListChats)))
	mux.Handle("GET /api/sessions/{session}/chats/{phone}/messages", requireViewer(http.HandlerFunc(s.handleListMessages)))
	mux.Handle("POST /api/sessions/{session}/messages", requireViewer(http.HandlerFunc(s.handleSendMessage)))
	mux.Handle("POST /api/sessions/{session}/media", requireViewer(http.HandlerFunc(s.handleSendMedia)))
	mux.Handle("POST /api/sessions/{session}/media/download", requireViewer(http.HandlerFunc(s.handleDownloadMedia)))
	mux.Handle("GET /api/sessions/{session}/profile-picture/{phone}", requireViewer(http.HandlerFunc(s.handleProfilePicture)))

	return mux
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Hub returns the event hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// setupListener creates the HTTP listener based on configuration (Tailscale or TCP).
func (s *Server) setupListener(ctx context.Context) (net.Listener, error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" && s.config.Server.HTTPAddr != config.DefaultHTTPAddr {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", s.config.Server.HTTPAddr)
		}
		return s.setupTailscaleListener(ctx)
	}

	s.logger.Info("starting switchboard", "http_addr", s.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails. The
// background tasks and store are released on every return path.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.setupListener(ctx)
	if err != nil {
		s.logger.Error("listener setup failed", "error", err)
		return errors.Join(err, s.gracefulShutdown())
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context since the run
// context is already canceled.
func (s *Server) gracefulShutdown() error {
	timeout := s.config.Workers.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests, ends viewer streams, drains background
// tasks and releases the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down switchboard")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))
	s.hub.Close()

	s.stopResolver()
	select {
	case <-s.resolverDone:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("resolver shutdown: %w", ctx.Err()))
	}

	errs = appendCloseError(errs, "worker shutdown", s.pool.Shutdown(ctx))

	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", s.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "switchboard", "tailscale"), nil
}

// setupTailscaleListener starts a tsnet node and listens on it.
func (s *Server) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := s.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}
	if tsCfg.AuthKey == "" {
		return nil, errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   tsCfg.AuthKey,
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.logTailscaleStatus(tsCfg.Hostname, status)

	switch {
	case tsCfg.Funnel:
		s.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := s.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return s.createTailscaleTLSListener()
	default:
		ln, err := s.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// logTailscaleStatus logs info about the tailscale node status.
func (s *Server) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	s.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (s *Server) createTailscaleTLSListener() (net.Listener, error) {
	s.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := s.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := s.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the store is reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d viewers)", s.hub.ViewerCount())
}

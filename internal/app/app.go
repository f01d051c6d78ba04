// Package app assembles domainwatch's components from configuration. The
// server binary and the operator CLI share this wiring.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/domainwatch/internal/api"
	"github.com/ignite/domainwatch/internal/availability"
	"github.com/ignite/domainwatch/internal/config"
	"github.com/ignite/domainwatch/internal/mailer"
	"github.com/ignite/domainwatch/internal/metrics"
	"github.com/ignite/domainwatch/internal/pkg/distlock"
	"github.com/ignite/domainwatch/internal/pkg/httpretry"
	"github.com/ignite/domainwatch/internal/pkg/logger"
	"github.com/ignite/domainwatch/internal/registration"
	"github.com/ignite/domainwatch/internal/worker"
)

// Lookup sources used as the metrics "source" label.
const (
	SourceRequest = "request"
	SourcePoller  = "poller"
)

// PollLockKey names the lock replicas take around each poll cycle.
const PollLockKey = "domainwatch:poll"

// App holds the long-lived components.
type App struct {
	Config   *config.Config
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Store    registration.Store
	Redis    *redis.Client

	// RequestChecker serves /check and may be cached. PollerChecker is
	// never cached.
	RequestChecker availability.Checker
	PollerChecker  availability.Checker

	Mailer    mailer.Mailer
	Templates *mailer.Templates
	Poller    *worker.NotificationPoller
	Handler   http.Handler
}

// ConfigureLogging applies the log section to the process logger.
func ConfigureLogging(cfg config.LogConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(cfg.Redact())
}

// New builds every component. On error anything already opened is closed.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := registration.Open(ctx, cfg.Storage.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening registration store: %w", err)
	}
	a.Store = store

	base, err := NewChecker(ctx, cfg.Availability)
	if err != nil {
		return nil, err
	}
	a.PollerChecker = availability.Instrument(base, SourcePoller, a.Metrics)

	var requestBase availability.Checker = base
	if cfg.Redis.URL != "" {
		rdb, err := NewRedis(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Warn("redis unavailable; lookup cache disabled", "error", err)
		} else {
			a.Redis = rdb
			requestBase = availability.NewCachedChecker(base, rdb, cfg.Availability.CacheTTL(), a.Metrics)
		}
	}
	a.RequestChecker = availability.Instrument(requestBase, SourceRequest, a.Metrics)

	a.Mailer, err = mailer.New(ctx, cfg.Mail)
	if err != nil {
		return nil, fmt.Errorf("building mailer: %w", err)
	}
	a.Templates, err = mailer.NewTemplates(cfg.Mail.SubjectTemplate, cfg.Mail.BodyTemplate)
	if err != nil {
		return nil, err
	}
	if cfg.Mail.Backend == config.MailBackendSMTP && cfg.Mail.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set; notifications will stay pending until mail is configured")
	}

	a.Poller = worker.NewNotificationPoller(a.Store, a.PollerChecker, a.Mailer, a.Templates, a.Metrics, worker.PollerConfig{
		Interval:       cfg.Polling.Interval(),
		LookupTimeout:  cfg.Availability.Timeout() + 5*time.Second,
		SendTimeout:    cfg.Mail.Timeout() + 15*time.Second,
		RunImmediately: cfg.Polling.RunImmediately,
	})

	var rdb redis.Cmdable
	if a.Redis != nil {
		rdb = a.Redis
	}
	var pg *sql.DB
	if s, isSQL := a.Store.(*registration.SQLStore); isSQL && s.Dialect() == registration.DialectPostgres {
		pg = s.DB()
	}
	if lock := distlock.NewLock(rdb, pg, PollLockKey, 2*cfg.Polling.Interval()); lock != nil {
		a.Poller.SetLock(lock)
	}

	handlers := api.NewHandlers(a.RequestChecker, a.Store, a.Metrics, api.HandlerOptions{
		ServiceName: cfg.Server.ServiceName,
		DefaultMax:  cfg.Suggestions.DefaultMax,
		MaxAllowed:  cfg.Suggestions.MaxAllowed,
		Concurrency: cfg.Suggestions.Concurrency,
	})
	a.Handler = api.SetupRoutes(handlers, api.NewHealthChecker(a.Store, rdb), cfg.Server.AllowedOrigins,
		promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))

	ok = true
	return a, nil
}

// NewChecker returns the configured upstream availability provider.
func NewChecker(ctx context.Context, cfg config.AvailabilityConfig) (availability.Checker, error) {
	switch cfg.Provider {
	case "", config.ProviderWhoisXML:
		var client availability.HTTPDoer
		if cfg.MaxRetries > 0 {
			client = httpretry.NewRetryClient(&http.Client{}, cfg.MaxRetries, 0)
		}
		return availability.NewWhoisXMLChecker(cfg, client), nil
	case config.ProviderRoute53Domains:
		return availability.NewRoute53Checker(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown availability provider %q", cfg.Provider)
	}
}

// NewRedis connects to a redis:// URL, falling back to treating the value
// as a bare host:port, and pings it.
func NewRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if opts, err := redis.ParseURL(redisURL); err == nil {
		client = redis.NewClient(opts)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", redisURL, err)
	}
	return client, nil
}

// Run serves HTTP and runs the poller until SIGINT/SIGTERM or ctx ends,
// then shuts down: poller first, then HTTP (10s grace), then the store.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pollerCtx, cancelPoller := context.WithCancel(ctx)
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		a.Poller.Start(pollerCtx)
	}()

	server := api.NewServer(a.Handler)
	serveErr := make(chan error, 1)
	go func() {
		addr := a.Config.Server.Addr()
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	cancelPoller()
	<-pollerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "error", err)
	}
	for err := range serveErr {
		if runErr == nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	a.Close()
	logger.Info("server stopped")
	return runErr
}

// Close releases the store and Redis connections.
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			logger.Warn("closing registration store", "error", err)
		}
		a.Store = nil
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
		a.Redis = nil
	}
}

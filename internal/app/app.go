package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/todoflow-labs/web-client/internal/cache"
	"github.com/todoflow-labs/web-client/internal/config"
	"github.com/todoflow-labs/web-client/internal/dialog"
	"github.com/todoflow-labs/web-client/internal/events"
	"github.com/todoflow-labs/web-client/internal/handler"
	"github.com/todoflow-labs/web-client/internal/imagefile"
	"github.com/todoflow-labs/web-client/internal/logging"
	"github.com/todoflow-labs/web-client/internal/metrics"
	"github.com/todoflow-labs/web-client/internal/notify"
	"github.com/todoflow-labs/web-client/internal/table"
	"github.com/todoflow-labs/web-client/internal/todoapi"
)

const shutdownTimeout = 10 * time.Second

// App is the wired web client: one cache store, one binding client and the
// page controllers that share them.
type App struct {
	Handler http.Handler
	Metrics *metrics.Metrics

	logger *logging.Logger
	nc     *nats.Conn
}

// New wires every component from cfg. NATS is optional; without NATS_URL no
// mutation events are published.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	a := &App{logger: logger, Metrics: metrics.New()}

	store := cache.New(logger)
	store.OnChange(a.Metrics.ObserveQuery)

	opts := []todoapi.Option{
		todoapi.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		todoapi.WithLogger(logger),
		todoapi.WithObserver(a.Metrics),
	}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, err
		}
		if err := events.EnsureStream(js); err != nil {
			nc.Close()
			return nil, err
		}
		a.nc = nc
		opts = append(opts, todoapi.WithObserver(events.NewPublisher(js, logger)))
	}

	client, err := todoapi.New(cfg.APIBaseURL, store, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	previews := imagefile.NewRegistry()
	toasts := notify.NewQueue(logger)
	dlg := dialog.New(client, previews, toasts, logger)
	tbl := table.New(client, dlg, toasts, logger)
	a.Handler = handler.New(tbl, dlg, previews, toasts, logger).Routes()
	return a, nil
}

func (a *App) Close() {
	if a.nc != nil {
		_ = a.nc.Drain()
	}
}

// Operations lists what a graceful shutdown has to stop. metricsServer may
// be nil when metrics are disabled.
func (a *App) Operations(server, metricsServer *http.Server) map[string]gfshutdown.Operation {
	ops := map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			a.logger.Info().Msg("shutting down HTTP server")
			return server.Shutdown(ctx)
		},
	}
	if metricsServer != nil {
		ops["metrics"] = func(ctx context.Context) error {
			return metricsServer.Shutdown(ctx)
		}
	}
	if a.nc != nil {
		ops["nats"] = func(ctx context.Context) error {
			return a.nc.Drain()
		}
	}
	return ops
}

func Run() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize logger
	base := logging.New(cfg.LogLevel).With().Str("service", "web-client").Logger()
	logger := &base

	a, err := New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize web client")
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = a.Metrics.Serve(cfg.MetricsAddr, logger)
		logger.Info().Msgf("metrics server listening on %s", cfg.MetricsAddr)
	}

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: a.Handler,
	}

	go func() {
		logger.Info().Str("api", cfg.APIBaseURL).Msgf("web-client listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Setup graceful shutdown
	wait := gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout, a.Operations(server, metricsServer))

	exitCode := <-wait
	logger.Info().Int("exit_code", exitCode).Msg("web-client exited")
	os.Exit(exitCode)
}

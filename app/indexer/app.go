package indexer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/canopy-network/ledgerx/pkg/indexer/fetcher"
	"github.com/canopy-network/ledgerx/pkg/indexer/reporter"
	"github.com/canopy-network/ledgerx/pkg/indexer/tailer"
	"github.com/canopy-network/ledgerx/pkg/metrics"
	"github.com/canopy-network/ledgerx/pkg/redis"
	"github.com/canopy-network/ledgerx/pkg/rpc"
	"github.com/streamingfast/shutter"
	"go.uber.org/zap"
)

// App wires the store, the upstream, the tailer and the status surfaces together.
type App struct {
	*shutter.Shutter

	Config   Config
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Store    Backend
	Tailer   *tailer.Tailer
	Reporter *reporter.Reporter
	Redis    *redis.Client

	// Server is the HTTP server that serves the status API.
	Server *http.Server

	closeStore func()
	stopOnce   sync.Once
}

// Initialize builds the App from cfg. m may be nil.
func Initialize(ctx context.Context, cfg Config, logger *zap.Logger, m *metrics.Metrics) (*App, error) {
	if m == nil {
		m = metrics.NopMetrics()
	}

	store, closeStore, err := openBackend(ctx, cfg, logger, m)
	if err != nil {
		return nil, err
	}

	processors, err := buildProcessors(cfg.Processors, store, logger)
	if err != nil {
		closeStore()
		return nil, err
	}

	client := rpc.NewHTTPWithOpts(rpc.Opts{
		Endpoints:       cfg.UpstreamURLs,
		RPS:             cfg.UpstreamRPS,
		Burst:           cfg.UpstreamRPS * 2,
		BreakerFailures: 5,
		BreakerCooldown: 10 * time.Second,
	})
	f := fetcher.New(client, cfg.Fetcher, logger.With(zap.String("component", "fetcher")))
	logger.Info("Upstream configured",
		zap.Strings("endpoints", client.Endpoints()),
		zap.Uint16("page_size", cfg.Fetcher.PageSize),
	)

	app := &App{
		Shutter:    shutter.New(),
		Config:     cfg,
		Logger:     logger,
		Metrics:    m,
		Store:      store,
		Tailer:     tailer.New(cfg.Tailer, f, store, logger.With(zap.String("component", "tailer")), processors...).WithMetrics(m),
		Reporter:   reporter.New(cfg.ReportSpec, processors, m, logger.With(zap.String("component", "reporter"))),
		closeStore: closeStore,
	}

	if cfg.Redis.URL != "" {
		if err := app.setupNotifier(ctx, f); err != nil {
			closeStore()
			return nil, err
		}
	}

	app.SetupServer()
	app.OnTerminating(func(err error) {
		app.Tailer.Shutdown(err)
	})
	return app, nil
}

// setupNotifier publishes committed ranges on the upstream chain's Redis channel.
func (a *App) setupNotifier(ctx context.Context, f fetcher.Fetcher) error {
	client, err := redis.NewClient(ctx, a.Logger, a.Config.Redis)
	if err != nil {
		return err
	}
	info, err := f.LedgerInfo(ctx)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("resolve chain id for notifications: %w", err)
	}

	a.Redis = client
	a.Tailer.WithNotifier(redis.NewNotifier(client, strconv.FormatUint(info.ChainID, 10)))
	return nil
}

// Start serves the status API, schedules the reporter and runs the tailer until ctx is
// done or the App is shut down. It returns the error the tailer stopped with.
func (a *App) Start(ctx context.Context) error {
	go func() {
		a.Logger.Info("Serving status API", zap.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("Status API stopped", zap.Error(err))
		}
	}()

	if err := a.Reporter.Start(ctx); err != nil {
		a.Stop()
		return err
	}

	err := a.Tailer.Run(ctx)
	if err != nil {
		a.Logger.Error("Tailer stopped with error", zap.Error(err))
	}
	a.Shutdown(err)
	a.Stop()
	return err
}

// Stop releases everything Start and Initialize acquired. Only the first call has an effect.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Logger.Warn("Status API shutdown", zap.Error(err))
		}

		a.Reporter.Stop()
		if a.Redis != nil {
			_ = a.Redis.Close()
		}
		a.closeStore()
		a.Logger.Info("さようなら!")
	})
}

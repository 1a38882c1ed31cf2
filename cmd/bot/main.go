// Command bot runs the trading engine: it loads configuration, connects a
// broker (real gateway or in-process fake), and drives trading cycles until
// interrupted, optionally serving a JSON status API alongside.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jbaeza/cyclebot/internal/broker"
	"github.com/jbaeza/cyclebot/internal/config"
	"github.com/jbaeza/cyclebot/internal/engine"
	"github.com/jbaeza/cyclebot/internal/executor"
	"github.com/jbaeza/cyclebot/internal/marketdata"
	"github.com/jbaeza/cyclebot/internal/mock"
	"github.com/jbaeza/cyclebot/internal/models"
	"github.com/jbaeza/cyclebot/internal/registry"
	"github.com/jbaeza/cyclebot/internal/retry"
	"github.com/jbaeza/cyclebot/internal/risk"
	"github.com/jbaeza/cyclebot/internal/status"
	"github.com/jbaeza/cyclebot/internal/storage"
	"github.com/jbaeza/cyclebot/internal/strategy"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		log.SetLevel(level)
	}

	log.WithFields(logrus.Fields{
		"mode": cfg.Environment.Mode, "real_broker": cfg.Broker.UseRealBroker,
	}).Info("starting trading bot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("bot exited with error")
	}
	log.Info("bot stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	b := buildBroker(cfg, log)
	if err := b.Connect(ctx); err != nil {
		return err
	}
	log.Info("broker connection verified")

	store, err := buildStorage(cfg)
	if err != nil {
		return err
	}

	strategies := make([]strategy.Strategy, 0, len(cfg.Strategies))
	for _, sc := range cfg.Strategies {
		s, err := strategy.Build(strategy.Params{
			Name:           sc.Name,
			Kind:           sc.Type,
			Timeframe:      models.Timeframe(sc.Timeframe),
			Size:           sc.LotSize,
			FastPeriod:     sc.FastPeriod,
			SlowPeriod:     sc.SlowPeriod,
			AllowedSymbols: sc.AllowedSymbols,
		})
		if err != nil {
			return err
		}
		strategies = append(strategies, s)
	}

	exec := executor.New(b, log)
	eng, err := engine.New(engine.Config{
		Broker:     b,
		Executor:   exec,
		MarketData: marketdata.NewService(b, buildBarCaps(cfg), log),
		Registry:   registry.New(log),
		Risk:       risk.NewManager(cfg.Risk, log),
		Storage:    store,
		Symbols:    cfg.Symbols,
		Strategies: strategies,
		Log:        log,
	})
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)

	if cfg.Status.Enabled {
		srv := status.NewServer(status.Config{
			Port:      cfg.Status.Port,
			AuthToken: cfg.Status.AuthToken,
		}, store, exec, log)

		group.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	group.Go(func() error {
		switch cfg.Loop.Mode {
		case "candle":
			loop := engine.NewCandleLoop(eng, cfg.Loop.TimeframeMinutes,
				time.Duration(cfg.Loop.WaitAfterCloseSeconds)*time.Second, log)
			return loop.Run(ctx)
		default:
			loop := engine.NewIntervalLoop(eng, time.Duration(cfg.Loop.SleepSeconds)*time.Second, log)
			return loop.Run(ctx)
		}
	})

	return group.Wait()
}

// buildBroker assembles the broker stack: in live mode the bridge client
// wrapped with read-path retries and a circuit breaker, otherwise the
// deterministic fake.
func buildBroker(cfg *config.Config, log *logrus.Logger) broker.Broker {
	if !cfg.Broker.UseRealBroker {
		log.Info("using fake broker, no real orders will be placed")
		return mock.NewFakeBroker()
	}

	bridge := broker.NewBridgeClient(broker.BridgeConfig{
		BaseURL: cfg.Broker.BridgeURL,
		APIKey:  cfg.Broker.APIKey,
		Timeout: cfg.Broker.Timeout(),
	}, log)

	retryCfg := retry.DefaultConfig
	if cfg.Broker.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.Broker.MaxRetries
	}
	if cfg.Broker.RetryDelaySeconds > 0 {
		retryCfg.InitialBackoff = cfg.Broker.RetryDelay()
	}

	return broker.NewCircuitBreakerBroker(retry.NewBroker(bridge, log, retryCfg), log)
}

func buildStorage(cfg *config.Config) (storage.Interface, error) {
	if cfg.Storage.Path == "" {
		return storage.NewMemoryStorage(), nil
	}
	return storage.NewStorage(cfg.Storage.Path)
}

func buildBarCaps(cfg *config.Config) marketdata.BarCaps {
	if len(cfg.Data.BarCaps) == 0 {
		return nil
	}
	caps := marketdata.DefaultBarCaps()
	for tf, limit := range cfg.Data.BarCaps {
		caps[models.Timeframe(tf)] = limit
	}
	return caps
}

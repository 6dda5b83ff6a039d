package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"

	"arthcore/config"
	"arthcore/observability/logging"
	telemetry "arthcore/observability/otel"
	arthconfig "arthcore/services/arthd/config"
	"arthcore/services/arthd/feeder"
	"arthcore/services/arthd/keeper"
	"arthcore/services/arthd/server"
	"arthcore/services/arthd/storage"
	"arthcore/services/arthd/wiring"
	statestore "arthcore/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/arthd/config.yaml", "path to arthd configuration file")
	flag.Parse()

	cfg, err := arthconfig.Load(cfgPath)
	if err != nil {
		slog.Error("arthd: load config", "error", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv("ARTH_ENV"))
	logger := logging.SetupWithOptions("arthd", env, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	if err := run(cfg, env, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("arthd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg arthconfig.Config, env string, logger *slog.Logger) error {
	endpoint := cfg.Telemetry.Endpoint
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	if endpoint != "" {
		headers := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
		for k, v := range cfg.Telemetry.Headers {
			headers[k] = v
		}
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: "arthd",
			Environment: env,
			Endpoint:    endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     headers,
			Metrics:     true,
			Traces:      true,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTelemetry(ctx)
		}()
	}

	params, err := config.LoadParams(cfg.ParamsPath)
	if err != nil {
		return err
	}

	state, err := statestore.NewLevelDB(cfg.StateDir)
	if err != nil {
		return err
	}
	defer state.Close()

	dsn, err := storage.FileDSN(cfg.DatabasePath)
	if err != nil {
		return err
	}
	audit, err := storage.Open(dsn)
	if err != nil {
		return err
	}
	defer audit.Close()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var caller ethereum.ContractCaller
	if feeder.NeedsRPC(cfg.Feeds) {
		client, err := ethclient.DialContext(rootCtx, cfg.RPCURL)
		if err != nil {
			return err
		}
		defer client.Close()
		caller = client
	}

	node, err := wiring.Build(cfg, params, wiring.Options{
		State:  state,
		Logger: logger,
		HTTP:   &http.Client{Timeout: cfg.Feeder.Timeout.Duration},
		Caller: caller,
	})
	if err != nil {
		return err
	}
	logger.Info("arthd core assembled",
		"pools", node.Registry.IDs(),
		"ratio", node.Controller.CurrentRatio(),
		"feeds", len(node.Bindings))

	mgr, err := feeder.New(node.Bindings, node.Aggregator, audit,
		cfg.Feeder.Interval.Duration, cfg.Feeder.MaxAge.Duration,
		feeder.WithLogger(logger), feeder.WithTimeout(cfg.Feeder.Timeout.Duration))
	if err != nil {
		return err
	}
	refresher, err := keeper.NewRefresher(node.Controller, audit, cfg.Keeper.Interval.Duration, logger)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Ratio:   node.Controller,
		Keeper:  refresher,
		Prices:  node.Aggregator,
		Pools:   node.Registry,
		History: audit,
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Logger: logger,
	})
	go srv.Limiter().Sweep(rootCtx)

	go func() {
		if err := mgr.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("feeder exited", "error", err)
			stop()
		}
	}()
	if !cfg.Keeper.Disabled {
		go func() {
			if err := refresher.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("keeper exited", "error", err)
				stop()
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("arthd listening", "addr", cfg.ListenAddress)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

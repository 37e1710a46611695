package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platformbuilds/workcell-kpi/internal/api"
	"github.com/platformbuilds/workcell-kpi/internal/api/handlers"
	"github.com/platformbuilds/workcell-kpi/internal/config"
	"github.com/platformbuilds/workcell-kpi/internal/kpi"
	"github.com/platformbuilds/workcell-kpi/internal/storage/sqlstore"
	"github.com/platformbuilds/workcell-kpi/internal/storage/victoria"
	"github.com/platformbuilds/workcell-kpi/internal/tracing"
	"github.com/platformbuilds/workcell-kpi/pkg/cache"
	"github.com/platformbuilds/workcell-kpi/pkg/logger"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func paramsFrom(k config.KPIConfig) (kpi.Params, error) {
	mode, err := kpi.ParseRateMode(k.LatencyMode)
	if err != nil {
		return kpi.Params{}, err
	}
	return kpi.Params{
		IdealLatencySec: k.IdealLatencySec,
		TargetStepSec:   k.TargetStepSec,
		RecentThreshold: k.RecentThreshold(),
		LatencyMode:     mode,
	}, nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)
	logger.Info("Starting workcell KPI API", "version", version, "environment", cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Monitoring.TracingEnabled {
		tp, err := tracing.NewTracerProvider(ctx, cfg.Monitoring.ServiceName, version, cfg.Monitoring.OTLPEndpoint, cfg.Monitoring.SampleRatio)
		if err != nil {
			logger.Warn("Tracing disabled", "error", err)
		} else {
			defer func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				_ = tp.Shutdown(shutdownCtx)
			}()
		}
	}

	sqlStore, err := sqlstore.Connect(cfg.Database.SQL, logger)
	if err != nil {
		logger.Fatal("Failed to open relational store", "error", err)
	}
	defer sqlStore.Close()

	// The trend endpoint degrades to a retrieval error without a TSDB.
	var trendStore kpi.TrendStore
	health := handlers.HealthDeps{SQL: sqlStore, Version: version}
	if vm, err := victoria.NewClient(cfg.Database.VictoriaMetrics, cfg.Trend, logger); err != nil {
		logger.Warn("VictoriaMetrics client unavailable; trend queries will fail", "error", err)
	} else {
		trendStore = vm
		health.TSDB = vm
	}

	statusStore, err := cache.New(cache.Options{
		Enabled:    cfg.Cache.Enabled,
		Nodes:      cfg.Cache.Nodes,
		DB:         cfg.Cache.DB,
		Password:   cfg.Cache.Password,
		DefaultTTL: time.Duration(cfg.Cache.TTL) * time.Second,
		AutoSwap:   cfg.Cache.AutoSwap,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize device status cache", "error", err)
	}
	if s, ok := statusStore.(interface{ Stop() }); ok {
		defer s.Stop()
	}
	health.Cache = statusStore

	tables := kpi.Tables{
		Line:   sqlstore.LineSpec(cfg.Tables.Line),
		Node:   sqlstore.NodeSpec(cfg.Tables.Node),
		Signal: sqlstore.SignalSpec(cfg.Tables.Signal),
	}
	status := kpi.NewStatusCache(statusStore, sqlStore, tables.Node, kpi.StatusCacheOptions{
		TTL:          cfg.Devices.CacheTTL(),
		StatusWindow: cfg.Devices.StatusWindow(),
		Defaults:     cfg.Devices.StaticDefaultsMap(),
	}, logger)

	params, err := paramsFrom(cfg.KPI)
	if err != nil {
		logger.Fatal("Invalid KPI parameters", "error", err)
	}
	svc, err := kpi.NewService(sqlStore, trendStore, status, kpi.Options{
		Tables:          tables,
		Params:          params,
		DefaultLookback: cfg.KPI.DefaultLookback,
		TrendLookback:   cfg.Trend.DefaultLookback,
		TrendInterval:   cfg.Trend.DefaultInterval,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize KPI engine", "error", err)
	}

	// Derivation constants follow the config file; everything else needs a restart.
	if path := config.ConfigFileUsed(); path != "" {
		watcher := config.NewConfigWatcher(path, cfg, logger)
		watcher.RegisterWatcher(func(next *config.Config) {
			p, err := paramsFrom(next.KPI)
			if err == nil {
				err = svc.UpdateParams(p)
			}
			if err != nil {
				logger.Warn("Ignoring reloaded KPI parameters", "error", err)
			}
		})
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.Warn("Configuration watcher stopped", "error", err)
			}
		}()
	}

	apiServer := api.NewServer(cfg, logger, svc, health)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	if err := apiServer.Start(ctx); err != nil {
		logger.Error("Server failed", "error", err)
		return
	}

	logger.Info("Workcell KPI API shutdown complete")
}

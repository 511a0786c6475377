package main

import (
	"context"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/salawat/internal/config"
	"github.com/hpungsan/salawat/internal/counter"
	"github.com/hpungsan/salawat/internal/db"
	"github.com/hpungsan/salawat/internal/dedup"
	"github.com/hpungsan/salawat/internal/errors"
	"github.com/hpungsan/salawat/internal/logging"
	"github.com/hpungsan/salawat/internal/metrics"
	"github.com/hpungsan/salawat/internal/ops"
)

// runtime is everything a command needs, wired for the configured backend.
type runtime struct {
	baseDir  string
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	engine   *ops.Engine

	closers []func() error
}

// openRuntime loads configuration and opens the store and marker for the configured backend.
func openRuntime(c *cli.Context) (*runtime, error) {
	baseDir := c.String("home")
	if baseDir == "" {
		dir, err := config.DefaultBaseDir()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		baseDir = dir
	}

	cfg, err := config.Load(baseDir)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	if c.IsSet("backend") {
		cfg.Backend = c.String("backend")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	logOpts := []logging.Option{logging.WithLogLevel(cfg.LogLevel)}
	if cfg.LogFile != "" {
		logPath := cfg.LogFile
		if !filepath.IsAbs(logPath) {
			logPath = filepath.Join(baseDir, logPath)
		}
		logOpts = append(logOpts, logging.WithFile(logPath))
	}
	logger, err := logging.NewLogger(logOpts...)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rt := &runtime{
		baseDir:  baseDir,
		cfg:      cfg,
		logger:   logger,
		registry: registry,
	}

	store, marker, err := rt.openBackend(c.Context)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.engine = ops.NewEngine(store, marker, cfg,
		ops.WithLogger(logger),
		ops.WithMetrics(metrics.New(registry)),
	)
	return rt, nil
}

func (rt *runtime) openBackend(ctx context.Context) (counter.Store, dedup.Marker, error) {
	storeOpts := []counter.Option{
		counter.WithLockTimeout(rt.cfg.LockTimeout()),
		counter.WithLogger(rt.logger.With(zap.String("component", "store"), zap.String("backend", rt.cfg.Backend))),
	}

	switch rt.cfg.Backend {
	case config.BackendSQLite:
		database, err := db.Init(rt.baseDir)
		if err != nil {
			return nil, nil, errors.NewPersistenceFailure("open database", err)
		}
		rt.closers = append(rt.closers, database.Close)
		store := counter.NewSQLiteStore(database, storeOpts...)
		marker := dedup.NewSQLiteMarker(database, rt.cfg.DedupTTL(), rt.logger.With(zap.String("component", "dedup")))
		return store, marker, nil

	case config.BackendRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{rt.cfg.RedisAddr},
			DB:    rt.cfg.RedisDB,
		})
		rt.closers = append(rt.closers, client.Close)
		store, err := counter.NewRedisStore(ctx, client, rt.cfg.RedisKey, storeOpts...)
		if err != nil {
			return nil, nil, err
		}
		return store, dedup.NewRedisMarker(client, rt.cfg.DedupTTL()), nil

	default:
		store, err := counter.OpenFile(rt.cfg.StatePath(rt.baseDir), storeOpts...)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, store.Close)
		marker, err := dedup.OpenFileMarker(rt.cfg.EventLogPath(rt.baseDir), rt.cfg.DedupTTL(), rt.cfg.LockTimeout(),
			rt.logger.With(zap.String("component", "dedup")))
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, marker.Close)
		return store, marker, nil
	}
}

// Close releases backend resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = rt.logger.Sync()
}

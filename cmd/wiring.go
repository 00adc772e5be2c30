package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/yashasviy/bank-ledger-api/api"
	"github.com/yashasviy/bank-ledger-api/bank"
	"github.com/yashasviy/bank-ledger-api/config"
	"github.com/yashasviy/bank-ledger-api/db"
	"github.com/yashasviy/bank-ledger-api/lock"
	"github.com/yashasviy/bank-ledger-api/metrics"
	"github.com/yashasviy/bank-ledger-api/notify"
)

// app is the fully wired service and the resources it holds open.
type app struct {
	handler http.Handler
	rdb     *redis.Client
	sqlDB   *sql.DB
}

func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.sqlDB != nil {
		a.sqlDB.Close()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if cfg.RedisEnabled() {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("redis connected", zap.String("addr", cfg.RedisAddr))
	}

	store, err := buildStore(ctx, cfg, a, logger)
	if err != nil {
		return nil, err
	}

	locker, err := buildLocker(cfg, a.rdb, logger)
	if err != nil {
		return nil, err
	}

	dispatcher := buildDispatcher(cfg, a.rdb, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRecorder(reg)

	engine := bank.NewEngine(store, dispatcher,
		bank.WithLocker(locker),
		bank.WithLogger(logger.Named("bank")),
		bank.WithMetrics(recorder),
	)

	a.handler = api.NewRouter(engine, api.RouterConfig{
		Redis:          a.rdb,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Logger:         logger,
		Gatherer:       reg,
	})
	ok = true
	return a, nil
}

func buildStore(ctx context.Context, cfg *config.Config, a *app, logger *zap.Logger) (db.AccountStore, error) {
	var store db.AccountStore
	switch cfg.StoreDriver {
	case config.StorePostgres:
		sqlDB, err := db.Open(ctx, cfg.DBURL)
		if err != nil {
			return nil, err
		}
		a.sqlDB = sqlDB
		if err := db.Initialize(ctx, sqlDB); err != nil {
			return nil, err
		}
		logger.Info("postgres connected")
		store = db.NewPostgresStore(sqlDB)
	default:
		store = db.NewMemoryStore()
	}

	if cfg.CacheTTL > 0 && a.rdb != nil {
		store = db.NewCachedStore(store, a.rdb, cfg.CacheTTL, logger.Named("cache"))
	}
	return store, nil
}

func buildLocker(cfg *config.Config, rdb *redis.Client, logger *zap.Logger) (lock.Locker, error) {
	switch cfg.LockMode {
	case config.LockNone:
		return lock.Noop{}, nil
	case config.LockLocal:
		return lock.NewKeyedMutex(), nil
	case config.LockRedis:
		if rdb == nil {
			return nil, fmt.Errorf("LOCK_MODE=redis needs REDIS_ADDR")
		}
		return lock.NewRedisLocker(rdb, cfg.LockTTL, logger.Named("lock")), nil
	default:
		return nil, fmt.Errorf("unknown LOCK_MODE %q", cfg.LockMode)
	}
}

func buildDispatcher(cfg *config.Config, rdb *redis.Client, logger *zap.Logger) *notify.Dispatcher {
	email := notify.NewEmailChannel(logger)
	if rdb == nil {
		return notify.NewDispatcher(email)
	}

	stream := notify.NewStreamChannel(rdb, cfg.NotifyStream)
	if cfg.NotifyDefault == config.NotifyStream {
		return notify.NewDispatcher(stream, email)
	}
	return notify.NewDispatcher(email, stream)
}

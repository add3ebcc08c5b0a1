package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/iris/config"
	"github.com/Ramsey-B/iris/internal/repositories/contact"
	"github.com/Ramsey-B/iris/pkg/database"
	"github.com/Ramsey-B/iris/pkg/events"
	"github.com/Ramsey-B/iris/pkg/graph"
	"github.com/Ramsey-B/iris/pkg/identity"
	"github.com/Ramsey-B/iris/pkg/kafka"
	"github.com/Ramsey-B/iris/pkg/locking"
	"github.com/Ramsey-B/iris/pkg/routes/health"
	"github.com/Ramsey-B/iris/pkg/startup"
)

const (
	depDatabase = "database"
	depMigrate  = "migrations"
	depRedis    = "redis"
	depKafka    = "kafka"
	depGraph    = "graph"
)

// app holds everything the resolver needs, started in dependency order.
type app struct {
	cfg    *config.Config
	logger ectologger.Logger

	startup *startup.Startup
	health  *health.Checker

	db       database.DB
	rdb      *redis.Client
	producer *kafka.Producer
	graph    *graph.Client

	resolver *identity.Resolver
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
		health:  health.NewChecker(cfg.Version),
	}

	if cfg.StoreDriver == config.StoreDriverPostgres {
		a.startup.AddDependency(startup.Func{
			Name:    depDatabase,
			OnStart: a.connectDatabase,
			OnStop: func(ctx context.Context) error {
				return a.db.Close()
			},
		})
		a.startup.AddDependency(startup.Func{
			Name:     depMigrate,
			Requires: []string{depDatabase},
			OnStart: func(ctx context.Context) error {
				return a.migrate()
			},
		})
	}

	if cfg.LockBackend == config.LockBackendRedis {
		a.startup.AddDependency(startup.Func{
			Name: depRedis,
			OnStart: func(ctx context.Context) error {
				rdb, err := locking.NewRedisClient(ctx, locking.RedisConfig{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, logger)
				if err != nil {
					return err
				}
				a.rdb = rdb
				a.health.AddCheck(depRedis, func(ctx context.Context) error {
					return rdb.Ping(ctx).Err()
				})
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return a.rdb.Close()
			},
		})
	}

	if cfg.KafkaEnabled {
		a.startup.AddDependency(startup.Func{
			Name: depKafka,
			OnStart: func(ctx context.Context) error {
				a.producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokerList(),
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeoutMs) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, logger)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return a.producer.Close()
			},
		})
	}

	if cfg.GraphEnabled {
		a.startup.AddDependency(startup.Func{
			Name: depGraph,
			OnStart: func(ctx context.Context) error {
				client, err := graph.NewClient(graph.Config{
					Host:     cfg.GraphDBHost,
					Port:     cfg.GraphDBPort,
					Username: cfg.GraphDBUser,
					Password: cfg.GraphDBPassword,
				}, logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return fmt.Errorf("failed to reach graph database: %w", err)
				}
				a.graph = client
				a.health.AddCheck(depGraph, client.VerifyConnectivity)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return a.graph.Close(ctx)
			},
		})
	}

	return a
}

// Start brings up every configured dependency and builds the resolver.
func (a *app) Start(ctx context.Context) error {
	if err := a.startup.Start(ctx); err != nil {
		return err
	}

	var store identity.Store
	if a.db != nil {
		store = contact.NewRepository(a.db, a.logger)
	} else {
		a.logger.Warn("Using in-memory contact store; contacts are lost on exit")
		store = contact.NewMemoryStore()
	}

	opts := []identity.Option{identity.WithBatchSize(a.cfg.TraversalBatchSize)}
	switch a.cfg.LockBackend {
	case config.LockBackendLocal:
		opts = append(opts, identity.WithLocker(locking.NewLocal(a.cfg.LockWait), a.cfg.LockMaxAttempts))
	case config.LockBackendRedis:
		locker := locking.NewRedis(a.rdb, a.logger, a.cfg.AppName+":lock:", a.cfg.LockTTL, a.cfg.LockWait)
		opts = append(opts, identity.WithLocker(locker, a.cfg.LockMaxAttempts))
	}
	if a.producer != nil {
		opts = append(opts, identity.WithObservers(events.NewEmitter(a.producer, a.logger)))
	}
	if a.graph != nil {
		opts = append(opts, identity.WithObservers(graph.NewProjector(a.graph, a.logger)))
	}

	a.resolver = identity.NewResolver(store, a.logger, opts...)
	a.health.SetReady(true)
	return nil
}

func (a *app) Stop(ctx context.Context) error {
	a.health.SetReady(false)
	return a.startup.Stop(ctx)
}

func (a *app) connectDatabase(ctx context.Context) error {
	db, err := database.Connect(ctx, database.ConnectionConfig{
		DSN:             a.cfg.DatabaseDSN(),
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}
	a.db = db
	a.health.AddCheck(depDatabase, db.PingContext)
	return nil
}

func (a *app) migrate() error {
	migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             uint(max(a.cfg.DatabaseMigrationVersion, 0)),
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
	return migrations.Migrate(a.cfg.DatabaseName, a.db)
}

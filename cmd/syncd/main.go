package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"shopsync/internal/advisor"
	"shopsync/internal/api"
	"shopsync/internal/config"
	"shopsync/internal/database"
	"shopsync/internal/events"
	"shopsync/internal/gateway"
	"shopsync/internal/identity"
	"shopsync/internal/logging"
	"shopsync/internal/metrics"
	"shopsync/internal/repository"
	"shopsync/internal/syncengine"
	"shopsync/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	metrics.Register()

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info().Str("path", cfg.Database.Path).Msg("database initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	identityService := initIdentity(cfg, redisClient, logger)

	registry := syncengine.NewRegistry()
	gateway.RegisterAll(registry, &http.Client{}, cfg.Gateway.BaseURL, cfg.Gateway.APIKey, logger)

	eventBus := events.NewEventBus()
	subscribeMetrics(eventBus)

	locks := syncengine.NewTenantLocks()
	engine := syncengine.New(db, db, registry, identityService, eventBus, locks, logger, syncengine.Options{
		GatewayTimeout: time.Duration(cfg.Sync.GatewayTimeoutSeconds) * time.Second,
		MaxRetries:     cfg.Sync.MaxRetries,
	})

	drainWorker := worker.NewDrainWorker(db, db, registry, locks, redisClient, eventBus, worker.Config{
		Policy: worker.Policy{
			MaxRetries: cfg.Sync.MaxRetries,
			BaseDelay:  time.Duration(cfg.Sync.BackoffBaseSeconds) * time.Second,
			MaxDelay:   time.Duration(cfg.Sync.BackoffMaxSeconds) * time.Second,
			Factor:     cfg.Sync.BackoffFactor,
		},
		Interval:       time.Duration(cfg.Sync.DrainIntervalSeconds) * time.Second,
		BatchSize:      cfg.Sync.DrainBatchSize,
		GatewayTimeout: time.Duration(cfg.Sync.GatewayTimeoutSeconds) * time.Second,
	}, logger)
	drainWorker.BindEvents(eventBus)
	if tenants := tenantIDs(cfg); len(tenants) > 0 {
		drainWorker.SetTenants(tenants)
	}
	go drainWorker.Start(ctx)

	if cfg.API.Enabled {
		var advisorClient *advisor.Client
		if cfg.Advisor.Enabled {
			advisorClient = advisor.NewClient(cfg.Advisor.BaseURL,
				time.Duration(cfg.Advisor.TimeoutSeconds)*time.Second, logger)
		}

		apiServer := api.NewHTTPServer(cfg.API, engine, db, db, drainWorker, advisorClient,
			cfg.Exports.Path, cfg.Monitoring.PrometheusEnabled, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	client := repository.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, continuing without it")
		return nil
	}
	return client
}

func initIdentity(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) *identity.Service {
	ttl := time.Duration(cfg.Scope.TTLSeconds) * time.Second
	memory := repository.NewMemoryScopeRepository(ttl, cfg.Scope.MaxEntries)

	source := identity.NewStaticSource()
	for _, tenant := range cfg.Tenants {
		for _, writer := range tenant.Writers {
			source.Grant(writer.UserID, tenant.ID, writer.Permissions)
		}
	}

	if redisClient == nil {
		return identity.NewService(memory, source, logger)
	}

	primary := repository.NewRedisScopeRepository(redisClient, ttl)
	scopes := repository.NewFailoverScopeRepository(primary, memory, logger)
	return identity.NewService(scopes, source, logger)
}

func subscribeMetrics(bus *events.EventBus) {
	bus.Subscribe(events.EventRecordSynced, func(event *events.Event) error {
		p, err := events.DecodePayload(event)
		if err == nil {
			metrics.IncSync(p.EntityType, "synced")
		}
		return err
	})
	bus.Subscribe(events.EventRecordQueued, func(event *events.Event) error {
		p, err := events.DecodePayload(event)
		if err == nil {
			metrics.IncSync(p.EntityType, "queued")
		}
		return err
	})
}

func tenantIDs(cfg *config.Config) []string {
	ids := make([]string, 0, len(cfg.Tenants))
	for _, t := range cfg.Tenants {
		ids = append(ids, t.ID)
	}
	return ids
}

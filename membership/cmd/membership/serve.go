package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/cohortlabs/cohort-stack/common/audit"
	"github.com/cohortlabs/cohort-stack/common/database"
	"github.com/cohortlabs/cohort-stack/common/logging"
	"github.com/cohortlabs/cohort-stack/common/messaging"
	natsclient "github.com/cohortlabs/cohort-stack/common/messaging/nats"
	"github.com/cohortlabs/cohort-stack/common/validation"
	"github.com/cohortlabs/cohort-stack/membership/internal/cache"
	"github.com/cohortlabs/cohort-stack/membership/internal/config"
	natshandler "github.com/cohortlabs/cohort-stack/membership/internal/nats"
	"github.com/cohortlabs/cohort-stack/membership/internal/repository"
	"github.com/cohortlabs/cohort-stack/membership/internal/server"
	"github.com/cohortlabs/cohort-stack/membership/internal/service"
	"github.com/cohortlabs/cohort-stack/membership/internal/telemetry"
	"github.com/cohortlabs/cohort-stack/membership/internal/tokens"
	"github.com/cohortlabs/cohort-stack/membership/internal/validator"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the membership service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// broker bundles the request client with the publisher audit events go to.
type broker struct {
	client messaging.Client
	audit  telemetry.MessagePublisher
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("membership"))
	logging.SetDefault(logger)

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	b, err := connectBroker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if b.client != nil {
		defer b.client.Drain()
	}

	sink, err := auditSink(cfg, b)
	if err != nil {
		return err
	}
	emitter := telemetry.NewEmitter(sink, audit.NewSigner(cfg.Telemetry.AuditSecret), logger)

	var store cache.Store
	if cfg.Cache.UserCacheEnabled {
		rdb, err := cache.NewRedisClient(cfg.Redis.URL, cfg.Redis.PoolSize, cfg.Redis.MaxRetries)
		if err != nil {
			return fmt.Errorf("failed to create Redis client: %w", err)
		}
		defer rdb.Close()
		store, err = pingRedis(ctx, rdb)
		if err != nil {
			return err
		}
		logger.Info("user cache invalidation enabled")
	}

	v := validation.New(
		validation.WithLogger(logger),
		validation.WithEmptinessPolicy(validation.ParseEmptinessPolicy(cfg.Validation.EmptinessPolicy)),
	)
	svcCfg := service.Config{
		Repository:       repo,
		Validators:       validator.New(v, logger),
		Emitter:          emitter,
		Cache:            store,
		UserCacheEnabled: cfg.Cache.UserCacheEnabled,
		Logger:           logger,
	}
	membership := service.NewMembershipService(svcCfg)
	groups := service.NewGroupService(svcCfg)

	var handler *natshandler.Handler
	if b.client != nil {
		var verifier natshandler.TokenVerifier
		if cfg.Auth.JWTSecret != "" {
			verifier = tokens.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		}
		handler = natshandler.NewHandler(b.client, membership, groups, verifier, logger)
		if err := handler.Start(ctx); err != nil {
			return err
		}
	} else {
		logger.Warn("NATS disabled; no requests will be served")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(server.NewHandler(repo, b.client, logger)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("membership service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if handler != nil {
		handler.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", logging.Error(err))
	}
	membership.Wait()
	groups.Wait()
	logger.Info("membership service stopped")
	return nil
}

func openRepository(ctx context.Context, cfg *config.Config, logger *logging.Logger) (repository.Repository, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("using in-memory repository; data is lost on restart")
		return repository.NewMemoryRepository(), nil
	}

	connString := cfg.Database.Postgres.ConnString()
	logger.Info("running database migrations", "path", cfg.Database.MigrationsPath)
	if err := repository.Migrate(cfg.Database.MigrationsPath, connString); err != nil {
		return nil, err
	}

	repo, err := repository.NewPostgresRepository(ctx, connString, database.Timeouts{
		Query: cfg.Database.QueryTimeout,
		Write: cfg.Database.WriteTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return repo, nil
}

func connectBroker(ctx context.Context, cfg *config.Config, logger *logging.Logger) (broker, error) {
	if !cfg.NATS.Enabled {
		return broker{}, nil
	}
	natsCfg := natsclient.Config{
		URL:           cfg.NATS.URL,
		Name:          "membership-service",
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		Timeout:       5 * time.Second,
		Token:         cfg.NATS.Token,
		Logger:        logger,
	}

	if !cfg.NATS.JetStream {
		client, err := natsclient.NewClient(natsCfg)
		if err != nil {
			return broker{}, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		return broker{client: client, audit: client}, nil
	}

	js, err := natsclient.NewJetStreamClient(natsCfg)
	if err != nil {
		return broker{}, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if _, err := js.CreateOrUpdateStream(ctx, natsclient.AuditStream); err != nil {
		js.Close()
		return broker{}, err
	}
	logger.Info("audit stream ready", "stream", natsclient.AuditStream.Name)
	return broker{client: js, audit: js.Durable()}, nil
}

func auditSink(cfg *config.Config, b broker) (telemetry.Sink, error) {
	var sinks []telemetry.Sink
	if b.audit != nil {
		sinks = append(sinks, telemetry.NewNATSSink(b.audit))
	}
	if osCfg := cfg.Telemetry.OpenSearch; osCfg.Enabled {
		sink, err := telemetry.NewOpenSearchSink(telemetry.OpenSearchConfig{
			URL:         osCfg.URL,
			Username:    osCfg.Username,
			Password:    osCfg.Password,
			Insecure:    osCfg.Insecure,
			IndexPrefix: osCfg.IndexPrefix,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	return telemetry.NewMultiSink(sinks...), nil
}

func pingRedis(ctx context.Context, rdb *redis.Client) (*cache.RedisStore, error) {
	store := cache.NewRedisStore(rdb)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return store, nil
}

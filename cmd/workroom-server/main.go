// Package main is the entry point for the Workroom server, a multi-user
// project-management and file-handling backend.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/workroom/internal/cache"
	"github.com/prn-tf/workroom/internal/config"
	"github.com/prn-tf/workroom/internal/handler"
	"github.com/prn-tf/workroom/internal/lock"
	"github.com/prn-tf/workroom/internal/metrics"
	"github.com/prn-tf/workroom/internal/namespace"
	"github.com/prn-tf/workroom/internal/pkg/crypto"
	"github.com/prn-tf/workroom/internal/probe"
	"github.com/prn-tf/workroom/internal/repository"
	"github.com/prn-tf/workroom/internal/repository/fsrepo"
	"github.com/prn-tf/workroom/internal/repository/postgres"
	"github.com/prn-tf/workroom/internal/repository/sqlite"
	"github.com/prn-tf/workroom/internal/service"
	"github.com/prn-tf/workroom/internal/token"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	logger := newLogger(cfg.Logging)

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("driver", cfg.Store.Driver).
		Msg("starting workroom server")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	// Credential store
	userRepo, cleanup, err := newUserRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// Namespace (always filesystem-backed)
	store, err := namespace.NewFS(cfg.Store.UsersDir, logger)
	if err != nil {
		return err
	}

	// Token codec
	tokens, err := token.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Algorithm, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	// Optional at-rest encryption of API keys
	var encryptor *crypto.Encryptor
	if key, err := cfg.Auth.GetEncryptionKey(); err != nil {
		return err
	} else if key != nil {
		encryptor, err = crypto.NewEncryptor(key)
		if err != nil {
			return err
		}
		logger.Info().Msg("api key encryption enabled")
	}

	// Project-creation locking
	var locker lock.Locker = lock.NewMemoryLocker()
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr(),
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, hostnameToken())
		logger.Info().Str("addr", cfg.Redis.Addr()).Msg("redis locking enabled")
	}

	// External probe with verdict cache
	verdicts := cache.NewMemory()
	defer verdicts.Stop()
	validator := probe.NewHTTPValidator(cfg.Probe, verdicts, logger)

	// Services
	userService := service.NewUserService(userRepo, store, validator, encryptor, logger)
	projectService := service.NewProjectService(store, locker, logger)
	supervisorService := service.NewSupervisorService(store, validator, logger)

	// HTTP surface
	router := handler.NewRouter(handler.RouterConfig{
		AuthHandler:       handler.NewAuthHandler(userService, tokens, logger),
		ProjectHandler:    handler.NewProjectHandler(projectService, cfg.Server.MaxUploadSize, logger),
		SupervisorHandler: handler.NewSupervisorHandler(supervisorService, logger),
		AuthMiddleware:    handler.NewAuthMiddleware(tokens, userService, logger),
		Metrics:           cfg.Metrics,
		RateLimit:         cfg.RateLimit,
		Logger:            logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info().Msg("stopped")
	return nil
}

// newUserRepository selects the credential record backend from config.
func newUserRepository(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (repository.UserRepository, func(), error) {
	noop := func() {}

	switch cfg.Store.Driver {
	case "fs":
		repo, err := fsrepo.NewUserRepository(cfg.Store.UsersDir, logger)
		if err != nil {
			return nil, noop, err
		}
		return repo, noop, nil

	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqlite.Config{
			Path:            cfg.Store.Path,
			JournalMode:     cfg.Store.JournalMode,
			BusyTimeout:     cfg.Store.BusyTimeout,
			SynchronousMode: cfg.Store.SynchronousMode,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, noop, err
		}
		return sqlite.NewUserRepository(db), func() { db.Close() }, nil

	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Store, logger)
		if err != nil {
			return nil, noop, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, noop, err
		}
		return postgres.NewUserRepository(db), func() { db.Close() }, nil

	default:
		return nil, noop, errors.New("unknown store driver: " + cfg.Store.Driver)
	}
}

// hostnameToken builds a lock ownership token unique enough across
// instances sharing a Redis.
func hostnameToken() string {
	host, err := os.Hostname()
	if err != nil {
		host = "workroom"
	}
	return host + "-" + time.Now().Format("20060102150405")
}

// newLogger configures the process logger from config.
func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: cfg.TimeFormat})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

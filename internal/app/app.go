package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink-relay/internal/archive"
	"github.com/vovakirdan/chatlink-relay/internal/auth"
	"github.com/vovakirdan/chatlink-relay/internal/config"
	"github.com/vovakirdan/chatlink-relay/internal/core"
	"github.com/vovakirdan/chatlink-relay/internal/store"
	"github.com/vovakirdan/chatlink-relay/internal/store/redis"
	"github.com/vovakirdan/chatlink-relay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/chatlink-relay/internal/transport/http"
)

const dialTimeout = 3 * time.Second

// App wires together core, storage and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	nats            *nats.Conn
	redis           *goredis.Client
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{shutdownTimeout: cfg.ShutdownTimeout, log: logger}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.store = st
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	archivers := archive.Multi{archive.NewStoreArchiver(st)}
	if cfg.NATSURL != "" {
		nc, err := archive.Connect(cfg.NATSURL, logger)
		if err != nil {
			a.cleanup()
			return nil, err
		}
		a.nats = nc
		archivers = append(archivers, archive.NewNATSArchiver(nc, cfg.NATSSubjectPrefix))
		logger.Info().Str("url", cfg.NATSURL).Str("prefix", cfg.NATSSubjectPrefix).Msg("nats archive enabled")
	}

	opts := core.Options{
		Logger:           logger,
		Archiver:         archivers,
		MaxContentLength: cfg.MaxContentLength,
		JobQueue:         cfg.JobQueue,
	}
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		rdb, err := redis.Connect(ctx, cfg.RedisAddr)
		cancel()
		if err != nil {
			a.cleanup()
			return nil, err
		}
		a.redis = rdb
		opts.Mirror = redis.NewPresenceMirror(rdb, "", cfg.RedisTTL)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("redis presence mirror enabled")
	}

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	a.hub = core.NewHub(opts)
	a.server = transporthttp.NewServer(a.hub, authService, st, cfg, logger)
	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
// The hub outlives the server so side effects of the last messages still drain.
func (a *App) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		a.hub.Run(hubCtx)
	}()
	defer func() {
		stopHub()
		<-hubDone
		a.cleanup()
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}

// cleanup closes database and broker connections.
func (a *App) cleanup() {
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			a.log.Warn().Err(err).Msg("failed to drain nats")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

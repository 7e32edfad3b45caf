package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pianochat-server/internal/auth"
	"github.com/vovakirdan/pianochat-server/internal/config"
	"github.com/vovakirdan/pianochat-server/internal/core"
	"github.com/vovakirdan/pianochat-server/internal/metrics"
	"github.com/vovakirdan/pianochat-server/internal/store"
	"github.com/vovakirdan/pianochat-server/internal/store/memory"
	"github.com/vovakirdan/pianochat-server/internal/store/redis"
	"github.com/vovakirdan/pianochat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/pianochat-server/internal/transport/http"
)

const (
	tokenIssuer   = "pianochat"
	tokenAudience = "pianochat-clients"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	heartbeat       *core.Heartbeat
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("backend", cfg.ProfileBackend).Msg("profile store initialized")

	tokens, err := tokenConfig(cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := core.DefaultOptions()
	opts.NormalQuota = core.Quota(cfg.QuotaNormal)
	opts.RestrictedQuota = core.Quota(cfg.QuotaRestricted)
	opts.ChatHistory = cfg.ChatHistory
	opts.Tokens = tokens

	hub := core.NewHub(opts, st, m, logger)
	server := transporthttp.NewServer(hub, cfg, reg, m, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		heartbeat:       core.NewHeartbeat(hub, cfg.HeartbeatInterval, logger),
		store:           st,
		log:             logger,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.ProfileBackend {
	case config.BackendSQLite:
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.BackendRedis:
		st, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.BackendMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown profile backend %q", cfg.ProfileBackend)
	}
}

func tokenConfig(cfg *config.Config, logger *zerolog.Logger) (*auth.TokenConfig, error) {
	secret := []byte(cfg.TokenSecret)
	if len(secret) == 0 {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
		secret = []byte(hex.EncodeToString(buf))
		logger.Warn().Msg("token_secret not set, identity tokens will not survive a restart")
	}
	return &auth.TokenConfig{
		Secret:   secret,
		Issuer:   tokenIssuer,
		Audience: tokenAudience,
		TTL:      cfg.TokenTTL,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go a.hub.Run(hubCtx)
	go a.heartbeat.Run(hubCtx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopHub()
		a.cleanup()
		return err
	case <-ctx.Done():
		// Closing the hub first closes every websocket, which Shutdown does
		// not track once connections are hijacked.
		stopHub()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the profile store.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

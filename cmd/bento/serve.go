package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Raforawesome/bento/internal/auth"
	authbolt "github.com/Raforawesome/bento/internal/auth/bolt"
	authmem "github.com/Raforawesome/bento/internal/auth/memory"
	"github.com/Raforawesome/bento/internal/config"
	"github.com/Raforawesome/bento/internal/httpapi"
	"github.com/Raforawesome/bento/internal/logging"
	"github.com/Raforawesome/bento/internal/observability"
	"github.com/Raforawesome/bento/internal/project"
	projbolt "github.com/Raforawesome/bento/internal/project/bolt"
	projmem "github.com/Raforawesome/bento/internal/project/memory"
	"github.com/Raforawesome/bento/internal/secrets"
	"github.com/Raforawesome/bento/internal/xdg"
)

// shutdownTimeout bounds graceful shutdown of the HTTP servers.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	flags := config.Flags()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Bento server",
		Long: `Start the HTTP API server, backed by the configured storage
engine, with metrics and health probes on a separate listener.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, flags)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().AddFlagSet(flags)

	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	logging.SetDefault("bento", version, logging.Options{Format: cfg.LogFormat})
	logger := slog.Default()

	logger.Info("starting bento",
		"listen_addr", cfg.ListenAddr,
		"storage_backend", cfg.Storage.Backend,
		"log_format", cfg.LogFormat,
	)

	// The observability server is built before the stores so its metrics
	// can observe store reaps and login outcomes.
	var (
		obs     *observability.Server
		metrics *observability.Metrics
	)
	if cfg.MetricsAddr != "" {
		obs = observability.NewServer(cfg.MetricsAddr, func() bool { return true })
		metrics = obs.Metrics()
	}

	users, projects, cleanup, err := openStores(cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := bootstrapAdmin(ctx, users, cfg.Admin, logger); err != nil {
		return err
	}

	if err := xdg.EnsureDir(xdg.StateDir()); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	cookieKey, err := secrets.LoadOrCreateCookieKey(filepath.Join(xdg.StateDir(), "cookie.key"))
	if err != nil {
		return fmt.Errorf("load cookie key: %w", err)
	}
	defer cookieKey.Destroy()

	api := httpapi.New(httpapi.Options{
		Users:     users,
		Projects:  projects,
		CookieKey: cookieKey,
		Logger:    logger,
		Metrics:   metrics,
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var obsErrCh <-chan error
	if obs != nil {
		obsErrCh, err = obs.Start()
		if err != nil {
			return fmt.Errorf("start observability server: %w", err)
		}
	}

	apiErrCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", "addr", cfg.ListenAddr)
		if serveErr := httpSrv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			apiErrCh <- serveErr
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-apiErrCh:
		return fmt.Errorf("http api server: %w", err)
	case err := <-obsErrCh:
		if err != nil {
			return fmt.Errorf("observability server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http api shutdown", "error", err)
	}
	if obs != nil {
		if err := obs.Stop(shutdownCtx); err != nil {
			logger.Error("observability shutdown", "error", err)
		}
	}

	logger.Info("bento stopped")
	return nil
}

// openStores builds the auth and project stores for the configured
// backend. The returned cleanup closes whatever was opened.
func openStores(cfg config.Config, logger *slog.Logger, metrics *observability.Metrics) (auth.Store, project.Store, func(), error) {
	storeCfg := auth.StoreConfig{
		MaxSessionsPerUser: cfg.Sessions.MaxPerUser,
		SessionTTL:         cfg.Sessions.TTL,
		Logger:             logger,
	}
	if metrics != nil {
		// Reaped sessions were active until the pass removed them, so the
		// gauge moves down by the same count.
		storeCfg.OnSessionsReaped = func(n int) {
			metrics.SessionsReaped.Add(float64(n))
			metrics.SessionsActive.Sub(float64(n))
		}
	}

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return authmem.New(storeCfg), projmem.New(), func() {}, nil

	case config.BackendBolt:
		dataDir := cfg.Storage.DataDir
		if dataDir == "" {
			dataDir = xdg.DataDir()
		}
		if err := xdg.EnsureDir(dataDir); err != nil {
			return nil, nil, nil, fmt.Errorf("create data directory: %w", err)
		}

		users, err := authbolt.Open(filepath.Join(dataDir, "auth.db"), storeCfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open auth store: %w", err)
		}
		projects, err := projbolt.Open(filepath.Join(dataDir, "projects.db"))
		if err != nil {
			_ = users.Close()
			return nil, nil, nil, fmt.Errorf("open project store: %w", err)
		}

		cleanup := func() {
			if err := projects.Close(); err != nil {
				logger.Error("close project store", "error", err)
			}
			if err := users.Close(); err != nil {
				logger.Error("close auth store", "error", err)
			}
		}
		return users, projects, cleanup, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// bootstrapAdmin creates the configured administrator account on first
// start. An existing account with the same username is left untouched.
func bootstrapAdmin(ctx context.Context, users auth.Store, admin config.Admin, logger *slog.Logger) error {
	if admin.Username == "" {
		return nil
	}

	hash, err := auth.HashPassword(admin.Password)
	if err != nil {
		return fmt.Errorf("hash bootstrap admin password: %w", err)
	}

	user, err := auth.CreateAdmin(ctx, users, admin.Username, hash)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			logger.Info("bootstrap admin already exists", "username", admin.Username)
			return nil
		}
		return fmt.Errorf("create bootstrap admin: %w", err)
	}

	logger.Info("bootstrap admin created", "user_id", user.ID, "username", user.Username)
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	specpkg "github.com/daap14/hafgate/api"
	"github.com/daap14/hafgate/internal/api"
	"github.com/daap14/hafgate/internal/auth"
	"github.com/daap14/hafgate/internal/cache"
	"github.com/daap14/hafgate/internal/config"
	"github.com/daap14/hafgate/internal/credentials"
	"github.com/daap14/hafgate/internal/database"
	"github.com/daap14/hafgate/internal/k8s"
	"github.com/daap14/hafgate/internal/posts"
	"github.com/daap14/hafgate/internal/reconciler"
	"github.com/daap14/hafgate/internal/schemacheck"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authService, err := auth.NewService(cfg.AdminAPIKeyHash)
	if err != nil {
		return fmt.Errorf("initializing admin auth: %w", err)
	}
	if !authService.Enabled() {
		slog.Warn("ADMIN_API_KEY_HASH is not set; credential updates are unauthenticated")
	}

	defaultDB := cfg.DefaultDatabase()

	var checker k8s.HealthChecker
	k8sClient, err := k8s.Connect(cfg.KubeconfigPath)
	if err != nil {
		slog.Warn("kubernetes client initialization failed; health will omit it", "error", err)
	} else {
		checker = k8sClient
		if cfg.CredentialsSecret != "" {
			defaultDB = loadSecretDefault(ctx, k8sClient, cfg, defaultDB)
		}
	}

	var postsOpts []posts.Option
	postsOpts = append(postsOpts, posts.WithMaxDays(cfg.MaxQueryDays))

	var resultCache *cache.RedisCache
	if cfg.RedisAddr != "" {
		resultCache, err = cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Warn("result cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer func() {
				if err := resultCache.Close(); err != nil {
					slog.Error("closing result cache", "error", err)
				}
			}()
			postsOpts = append(postsOpts, posts.WithCache(resultCache, cfg.CacheTTL()))
		}
	}

	mgr := database.NewManager(database.OpenHandle, defaultDB)

	connectTimeout, statementTimeout := cfg.Timeouts()
	slog.Info("connecting to default database",
		"target", defaultDB,
		"connectTimeout", connectTimeout,
		"statementTimeout", statementTimeout,
	)
	if _, err := mgr.Current(ctx); err != nil {
		slog.Error("default database unavailable; will retry on first request", "error", err)
	}

	deps := api.RouterDeps{
		Pools:       mgr,
		Credentials: credentials.NewService(mgr, schemacheck.NewValidator("")),
		Query:       posts.NewService(postsOpts...),
		Auth:        authService,
		Tuning:      cfg.DefaultDatabase(),
		MaxDays:     cfg.MaxQueryDays,
		K8sChecker:  checker,
		Version:     cfg.Version,
		OpenAPISpec: specpkg.OpenAPISpec,
		CORSOrigin:  cfg.CORSAllowedOrigin,
		StaticDir:   cfg.StaticDir,
	}
	if resultCache != nil {
		deps.Cache = resultCache
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if interval := cfg.PoolCheckInterval(); interval > 0 {
		rec := reconciler.New(mgr, interval, connectTimeout, cfg.PoolCheckFailures)
		g.Go(func() error {
			rec.Start(gctx)
			return nil
		})
	}
	g.Go(func() error {
		slog.Info("starting hafgate server", "port", cfg.Port, "version", cfg.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		srvErr := srv.Shutdown(shutdownCtx)
		if srvErr != nil {
			slog.Error("server forced to shutdown", "error", srvErr)
		}
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			slog.Error("closing database pool", "error", err)
		}
		return srvErr
	})

	return g.Wait()
}

// loadSecretDefault overlays the credentials secret on the configured default.
// The configured default is kept when the secret cannot be read.
func loadSecretDefault(ctx context.Context, client *k8s.Client, cfg *config.Config, base database.Config) database.Config {
	src := client.NewSecretSource(cfg.Namespace, cfg.CredentialsSecret)
	loaded, err := src.Load(ctx, base)
	if err != nil {
		slog.Warn("using configured default database",
			"namespace", cfg.Namespace,
			"secret", cfg.CredentialsSecret,
			"error", err,
		)
		return base
	}
	slog.Info("default database loaded from secret", "namespace", cfg.Namespace, "secret", cfg.CredentialsSecret)
	return loaded
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

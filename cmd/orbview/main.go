package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/orbview/orbview/internal/api"
	"github.com/orbview/orbview/internal/auth"
	"github.com/orbview/orbview/internal/catalog"
	"github.com/orbview/orbview/internal/frame"
	"github.com/orbview/orbview/internal/observability"
	"github.com/orbview/orbview/internal/stream"
	"github.com/orbview/orbview/internal/timestate"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("ORBVIEW_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), logger)
	if err != nil {
		logger.Error("tracing init failed", "error", err)
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	cat := catalog.New()
	if path := os.Getenv("ORBVIEW_CATALOG_FILE"); path != "" {
		if err := loadCatalogFile(cat, path, logger); err != nil {
			logger.Error("catalog file load failed", "path", path, "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("no catalog file configured, starting with an empty catalog")
	}

	model := timestate.New(time.Now().UTC())
	builder := frame.NewBuilder(cat, logger)

	cacheCfg := loadCacheConfig(logger)
	fCache := frame.NewCache(cacheCfg, builder, cat, logger)

	streamCfg := loadStreamConfig(logger)
	streamHandler := stream.NewHandler(fCache, cat, streamCfg, logger)

	srv := api.NewServer(addr, api.Deps{
		Catalog: cat,
		Model:   model,
		Builder: builder,
		Cache:   fCache,
		Stream:  streamHandler,
	}, authCfg, logger)

	// Background frame generation over the rolling window.
	go fCache.Start(ctx)

	// Advance the live clock; a no-op while the user is scrubbing.
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				model.Advance(time.Now().UTC())
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server",
			"addr", addr,
			"auth_enabled", authCfg.Enabled,
			"satellites", cat.Len(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// loadCatalogFile seeds the catalog from a JSON array of satellites:
// [{"id":"25544","name":"ISS","line1":"1 ...","line2":"2 ..."}, ...]
func loadCatalogFile(cat *catalog.Catalog, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var sats []catalog.Satellite
	if err := json.Unmarshal(data, &sats); err != nil {
		return err
	}
	if err := cat.Replace(sats); err != nil {
		return err
	}
	logger.Info("catalog loaded", "path", path, "satellites", len(sats))
	return nil
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("ORBVIEW_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("ORBVIEW_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("ORBVIEW_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("ORBVIEW_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadCacheConfig(logger *slog.Logger) frame.CacheConfig {
	cfg := frame.DefaultCacheConfig()

	if v := os.Getenv("ORBVIEW_FRAME_STEP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ORBVIEW_FRAME_STEP value, using default", "value", v, "default", cfg.Step.Seconds())
		} else {
			cfg.Step = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("ORBVIEW_FRAME_HORIZON"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ORBVIEW_FRAME_HORIZON value, using default", "value", v, "default", cfg.Horizon.Seconds())
		} else {
			cfg.Horizon = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("ORBVIEW_FRAME_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ORBVIEW_FRAME_BUFFER value, using default", "value", v, "default", cfg.Buffer.Seconds())
		} else {
			cfg.Buffer = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("ORBVIEW_FRAME_GRACE_PERIOD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			logger.Warn("invalid ORBVIEW_FRAME_GRACE_PERIOD value, using default", "value", v, "default", cfg.GracePeriod.Seconds())
		} else {
			cfg.GracePeriod = time.Duration(n) * time.Second
		}
	}

	logger.Info("frame cache config",
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.Horizon.Seconds(),
		"buffer_seconds", cfg.Buffer.Seconds(),
		"grace_period_seconds", cfg.GracePeriod.Seconds(),
	)

	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
	}

	if v := os.Getenv("ORBVIEW_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ORBVIEW_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("ORBVIEW_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ORBVIEW_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("ORBVIEW_STREAM_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid ORBVIEW_STREAM_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = b
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}

package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sun/sunwatch/internal/api"
	"github.com/sun/sunwatch/internal/auth"
	"github.com/sun/sunwatch/internal/ephemeris"
	"github.com/sun/sunwatch/internal/history"
	"github.com/sun/sunwatch/internal/metrics"
	"github.com/sun/sunwatch/internal/mqtt"
	"github.com/sun/sunwatch/internal/sites"
	"github.com/sun/sunwatch/internal/solartrack"
	"github.com/sun/sunwatch/internal/stream"
	"github.com/sun/sunwatch/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("SUNWATCH_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	calc := loadCalculator(logger)

	sitesCfg := loadSitesConfig(logger)
	store := sites.NewStore()
	siteCache := sites.NewCache(sitesCfg.CacheDir, sitesCfg.MaxFiles, logger)

	bootstrapCatalog(store, siteCache, sitesCfg, logger)

	trackCfg := loadTrackConfig(logger)
	track := solartrack.NewTrackCache(trackCfg, store, logger)

	streamCfg := loadStreamConfig(logger)
	streamHandler := stream.NewHandler(track, store, streamCfg, logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var recorder *history.Recorder
	if dsn := os.Getenv("SUNWATCH_DATABASE_URL"); dsn != "" {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		recorder, err = history.Open(openCtx, dsn, logger)
		cancel()
		if err != nil {
			logger.Error("history connection failed", "error", err)
			os.Exit(1)
		}
		defer recorder.Close()
	} else {
		logger.Info("history disabled, SUNWATCH_DATABASE_URL not set")
	}

	srv := api.NewServer(addr, logger, authCfg, calc, store, track, streamHandler, recorder, http.FileServerFS(web.Content))

	// Start track cache background worker.
	go track.Start(ctx)

	// Periodic catalog refresh when a remote source is configured.
	if sitesCfg.SourceURL != "" {
		go refreshCatalogLoop(ctx, store, siteCache, sitesCfg, logger)
	}

	// Background goroutine to update the catalog age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				age := store.AgeSeconds()
				if age >= 0 {
					metrics.SetCatalogAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Optional MQTT event publishing.
	if mqttCfg := loadMQTTConfig(logger); mqttCfg.BrokerURL != "" {
		publisher, err := mqtt.NewPublisher(mqttCfg, store, calc, logger)
		if err != nil {
			logger.Error("mqtt connection failed", "error", err)
			os.Exit(1)
		}
		go publisher.Run(ctx)
	} else {
		logger.Info("mqtt disabled, SUNWATCH_MQTT_BROKER_URL not set")
	}

	go func() {
		logger.Info("starting server",
			"addr", addr,
			"auth_enabled", authCfg.Enabled,
			"window_hours", calc.Window(),
			"history_enabled", recorder != nil,
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

// sitesConfig holds catalog source configuration.
type sitesConfig struct {
	SourceURL       string
	File            string
	CacheDir        string
	MaxFiles        int
	RefreshInterval time.Duration
}

// bootstrapCatalog loads the site catalog at startup: newest usable disk
// snapshot first, then the configured file, then a built-in single-site
// default so the service always starts with something to serve.
func bootstrapCatalog(store *sites.Store, siteCache *sites.Cache, cfg sitesConfig, logger *slog.Logger) {
	entries, ts, err := siteCache.LoadLatest()
	if err == nil {
		store.Set(&sites.Catalog{Source: "cache", LoadedAt: ts, Sites: entries})
		metrics.SetCatalogSites(len(entries))
		logger.Info("loaded site catalog from cache", "count", len(entries), "cached_at", ts.Format(time.RFC3339))
		return
	}
	logger.Debug("no usable cached site catalog", "error", err)

	if cfg.File != "" {
		data, err := os.ReadFile(cfg.File)
		if err != nil {
			logger.Warn("failed to read sites file", "path", cfg.File, "error", err)
		} else {
			entries, err := sites.Parse(bytes.NewReader(data), logger)
			if err == nil && len(entries) > 0 {
				store.Set(&sites.Catalog{Source: cfg.File, LoadedAt: time.Now(), Sites: entries})
				metrics.SetCatalogSites(len(entries))
				logger.Info("loaded site catalog from file", "path", cfg.File, "count", len(entries))
				return
			}
			logger.Warn("failed to parse sites file", "path", cfg.File, "error", err)
		}
	}

	store.Set(&sites.Catalog{
		Source:   "default",
		LoadedAt: time.Now(),
		Sites: []sites.Site{
			{Slug: "greenwich", Name: "Royal Observatory Greenwich", Latitude: 51.4769, Longitude: -0.0005},
		},
	})
	metrics.SetCatalogSites(1)
	logger.Info("no site catalog configured, using built-in default")
}

// refreshCatalogLoop fetches the remote catalog immediately and then at the
// configured interval, writing each good fetch through to the disk cache.
func refreshCatalogLoop(ctx context.Context, store *sites.Store, siteCache *sites.Cache, cfg sitesConfig, logger *slog.Logger) {
	fetcher := sites.NewFetcher(cfg.SourceURL)

	refresh := func() {
		store.Lock()
		defer store.Unlock()

		fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		data, err := fetcher.Fetch(fetchCtx)
		if err != nil {
			logger.Warn("site catalog fetch failed", "url", cfg.SourceURL, "error", err)
			return
		}

		entries, err := sites.Parse(bytes.NewReader(data), logger)
		if err != nil || len(entries) == 0 {
			logger.Warn("site catalog parse failed", "url", cfg.SourceURL, "error", err)
			return
		}

		now := time.Now()
		store.Set(&sites.Catalog{Source: cfg.SourceURL, LoadedAt: now, Sites: entries})
		metrics.SetCatalogSites(len(entries))
		logger.Info("site catalog refreshed", "count", len(entries))

		if err := siteCache.Write(data, now); err != nil {
			logger.Warn("site catalog cache write failed", "error", err)
		}
	}

	refresh()

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("SUNWATCH_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("SUNWATCH_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("SUNWATCH_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("SUNWATCH_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadCalculator(logger *slog.Logger) ephemeris.Calculator {
	window := ephemeris.DefaultWindow
	if v := os.Getenv("SUNWATCH_WINDOW"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			logger.Warn("invalid SUNWATCH_WINDOW value, using default", "value", v, "default", window)
		} else {
			window = n
		}
	}

	calc, err := ephemeris.NewCalculator(window)
	if err != nil {
		logger.Warn("invalid SUNWATCH_WINDOW value, using default", "value", window, "default", ephemeris.DefaultWindow)
		calc, _ = ephemeris.NewCalculator(ephemeris.DefaultWindow)
	}

	logger.Info("calculator config", "window_hours", calc.Window())
	return calc
}

func loadSitesConfig(logger *slog.Logger) sitesConfig {
	cfg := sitesConfig{
		CacheDir:        "/tmp/sunwatch/sites",
		MaxFiles:        5,
		RefreshInterval: time.Hour,
	}

	cfg.SourceURL = os.Getenv("SUNWATCH_SITES_URL")
	cfg.File = os.Getenv("SUNWATCH_SITES_FILE")

	if v := os.Getenv("SUNWATCH_SITES_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}

	if v := os.Getenv("SUNWATCH_SITES_REFRESH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 60 {
			logger.Warn("invalid SUNWATCH_SITES_REFRESH value, using default", "value", v, "default", 3600)
		} else {
			cfg.RefreshInterval = time.Duration(n) * time.Second
		}
	}

	logger.Info("sites config",
		"source_url", cfg.SourceURL,
		"file", cfg.File,
		"cache_dir", cfg.CacheDir,
		"refresh_interval_seconds", cfg.RefreshInterval.Seconds(),
	)

	return cfg
}

func loadTrackConfig(logger *slog.Logger) solartrack.Config {
	cfg := solartrack.Config{
		Step:        5 * time.Second,
		Horizon:     600 * time.Second,
		GracePeriod: 30 * time.Second,
		Buffer:      60 * time.Second,
	}

	if v := os.Getenv("SUNWATCH_TRACK_STEP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SUNWATCH_TRACK_STEP value, using default", "value", v, "default", 5)
		} else {
			cfg.Step = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("SUNWATCH_TRACK_HORIZON"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SUNWATCH_TRACK_HORIZON value, using default", "value", v, "default", 600)
		} else {
			cfg.Horizon = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("SUNWATCH_TRACK_GRACE_PERIOD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SUNWATCH_TRACK_GRACE_PERIOD value, using default", "value", v, "default", 30)
		} else {
			cfg.GracePeriod = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("SUNWATCH_TRACK_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SUNWATCH_TRACK_BUFFER value, using default", "value", v, "default", 60)
		} else {
			cfg.Buffer = time.Duration(n) * time.Second
		}
	}

	logger.Info("track config",
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.Horizon.Seconds(),
		"grace_period_seconds", cfg.GracePeriod.Seconds(),
		"buffer_seconds", cfg.Buffer.Seconds(),
	)

	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
	}

	if v := os.Getenv("SUNWATCH_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SUNWATCH_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("SUNWATCH_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SUNWATCH_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("SUNWATCH_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid SUNWATCH_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}

func loadMQTTConfig(logger *slog.Logger) mqtt.Config {
	cfg := mqtt.Config{
		BrokerURL: os.Getenv("SUNWATCH_MQTT_BROKER_URL"),
		Username:  os.Getenv("SUNWATCH_MQTT_USERNAME"),
		Password:  os.Getenv("SUNWATCH_MQTT_PASSWORD"),
		ClientID:  "sunwatch",
		Interval:  60 * time.Second,
	}

	if cfg.BrokerURL == "" {
		return cfg
	}

	if v := os.Getenv("SUNWATCH_MQTT_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}

	if v := os.Getenv("SUNWATCH_MQTT_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SUNWATCH_MQTT_INTERVAL value, using default", "value", v, "default", 60)
		} else {
			cfg.Interval = time.Duration(n) * time.Second
		}
	}

	logger.Info("mqtt config",
		"broker", cfg.BrokerURL,
		"client_id", cfg.ClientID,
		"interval_seconds", cfg.Interval.Seconds(),
	)

	return cfg
}

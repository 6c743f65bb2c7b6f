package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	deployconfig "crowdsale/config"
	"crowdsale/core"
	"crowdsale/core/events"
	"crowdsale/core/state"
	"crowdsale/gateway/config"
	"crowdsale/gateway/middleware"
	"crowdsale/gateway/routes"
	"crowdsale/integrations/webhooks"
	"crowdsale/observability"
	"crowdsale/observability/logging"
	telemetry "crowdsale/observability/otel"
	"crowdsale/services/saled/indexer"
	"crowdsale/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("saled exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var cfgPath, exportPath string
	flag.StringVar(&cfgPath, "config", "services/saled/config.yaml", "path to saled configuration")
	flag.StringVar(&exportPath, "export-purchases", "", "write indexed purchases to this file (.parquet, .csv or .jsonl) and exit")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = strings.TrimSpace(os.Getenv("SALE_ENV"))
	}
	logger := logging.Setup("saled", env, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	logger.Info("configuration loaded",
		"listen", cfg.ListenAddress,
		"auth", cfg.Auth.Enabled,
		logging.MaskField("hmacSecret", cfg.Auth.HMACSecret),
		logging.MaskField("indexDSN", cfg.Index.DSN),
		logging.MaskField("webhookSecret", cfg.Webhook.Secret))

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: cfg.Observability.ServiceName,
		Environment: env,
		Endpoint:    cfg.Observability.OTLPEndpoint,
		Insecure:    cfg.Observability.OTLPInsecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Observability.Metrics,
		Traces:      cfg.Observability.Tracing,
		SampleRatio: cfg.Observability.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	var indexDB *gorm.DB
	var lastIndexed uint64
	if dsn := strings.TrimSpace(cfg.Index.DSN); dsn != "" {
		if indexDB, err = indexer.Open(cfg.Index.Driver, dsn); err != nil {
			return err
		}
		if lastIndexed, err = indexer.LastSequence(context.Background(), indexDB); err != nil {
			return fmt.Errorf("read index cursor: %w", err)
		}
	}
	if exportPath != "" {
		if indexDB == nil {
			return errors.New("export requires index.dsn")
		}
		_, err := indexer.New(indexDB, nil, logger).ExportPurchases(context.Background(), exportPath)
		return err
	}

	// Numbering continues after the index so a restart never reuses a
	// sequence the indexer has stored.
	eventLog := events.NewLogAfter(lastIndexed)
	var ix *indexer.Indexer
	if indexDB != nil {
		ix = indexer.New(indexDB, eventLog, logger)
	}

	db, err := openStore(cfg.StoreDriver, cfg.DataDir)
	if err != nil {
		return err
	}
	manager := state.NewManager(db)
	defer func() { _ = manager.Close() }()
	manager.SetEmitter(events.Fanout{eventLog, observability.Events()})

	runtime := core.NewRuntime(manager)
	runtime.SetLogger(logger)
	runtime.SetObserver(observability.Sale())
	if err := loadOrDeploy(runtime, cfg.DeploymentPath, logger); err != nil {
		return err
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if ix != nil {
		go func() {
			if err := ix.Run(rootCtx); err != nil {
				logger.Error("indexer stopped", "error", err)
			}
		}()
	}

	if cfg.Webhook.URL != "" {
		dispatcher, err := webhooks.NewDispatcher(cfg.Webhook.URL, []byte(cfg.Webhook.Secret), webhooks.WithLogger(logger))
		if err != nil {
			return err
		}
		defer dispatcher.Close()
		go dispatcher.Forward(rootCtx, eventLog, cfg.Webhook.Events...)
		logger.Info("webhook forwarding enabled", "url", cfg.Webhook.URL, "events", cfg.Webhook.Events)
	}

	httpMetrics := observability.HTTP()
	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for _, limit := range cfg.RateLimits {
		limits[limit.ID] = middleware.RateLimit{RequestsPerMinute: limit.RequestsPerMinute, Burst: limit.Burst}
	}
	var handler http.Handler = routes.New(routes.Config{
		Runtime: runtime,
		Events:  eventLog,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
		}, logger),
		RateLimiter: middleware.NewRateLimiter(limits, httpMetrics.RecordThrottle),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: cfg.Observability.ServiceName,
			LogRequests: cfg.Observability.LogRequests,
			Enabled:     cfg.Observability.Metrics || cfg.Observability.Tracing,
		}, httpMetrics, logger),
		Streams: httpMetrics,
		Logger:  logger,
	})
	if cfg.Observability.Tracing {
		handler = otelhttp.NewHandler(handler, cfg.Observability.ServiceName)
	}

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	ln, err := newListener(cfg.ListenAddress, cfg.MaxConnections)
	if err != nil {
		return err
	}
	errs := make(chan error, 1)
	go func() {
		logger.Info("saled listening", "addr", ln.Addr().String(), "tls", cfg.TLSEnabled(), "maxConnections", cfg.MaxConnections)
		if cfg.TLSEnabled() {
			errs <- server.ServeTLS(ln, cfg.Security.TLSCertFile, cfg.Security.TLSKeyFile)
			return
		}
		errs <- server.Serve(ln)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func openStore(driver, dir string) (storage.Database, error) {
	db, err := storage.Open(driver, dir)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	return db, nil
}

// loadOrDeploy restores a recorded deployment or performs the first one from
// the manifest.
func loadOrDeploy(runtime *core.Runtime, manifestPath string, logger *slog.Logger) error {
	err := runtime.Load()
	if err == nil {
		d, _ := runtime.Deployment()
		logger.Info("deployment restored", "admin", d.Admin.Hex(), "token", d.Token.Hex())
		return nil
	}
	if !errors.Is(err, core.ErrNotDeployed) {
		return fmt.Errorf("load deployment: %w", err)
	}
	if strings.TrimSpace(manifestPath) == "" {
		return fmt.Errorf("state is empty and no deployment manifest is configured")
	}
	manifest, err := deployconfig.LoadDeployment(manifestPath)
	if err != nil {
		return err
	}
	spec, err := manifest.DeploySpec()
	if err != nil {
		return err
	}
	if err := runtime.Deploy(spec); err != nil {
		return fmt.Errorf("deploy sale: %w", err)
	}
	logger.Info("sale deployed", "admin", spec.Admin.Hex(), "token", spec.Sale.Token.Hex(), "assets", len(spec.Assets))
	return nil
}

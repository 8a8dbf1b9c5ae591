package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/StrathCole/oracle-resolver/pkg/config"
	"github.com/StrathCole/oracle-resolver/pkg/logging"
	"github.com/StrathCole/oracle-resolver/pkg/metrics"
	"github.com/StrathCole/oracle-resolver/pkg/server/api"
	"github.com/StrathCole/oracle-resolver/pkg/server/bootstrap"
	"github.com/StrathCole/oracle-resolver/pkg/version"
)

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	showVer    = flag.Bool("version", false, "Show version and exit")
	checkOnly  = flag.Bool("check", false, "Validate configuration, build providers and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("oracle-resolver version %s\n", version.Version)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting oracle-resolver", "version", version.Version,
		"base_currency", cfg.Oracle.BaseCurrency, "base_decimals", cfg.Oracle.BaseDecimals)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to assemble resolver", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	if *checkOnly {
		logger.Info("Configuration OK", "providers", len(rt.Providers.List()), "assets", len(rt.Aggregator.Assets()))
		return
	}

	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr, cfg.Metrics.Path); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- runServer(ctx, cfg, rt, logger)
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
		cancel()
		select {
		case <-errChan:
		case <-time.After(10 * time.Second):
			logger.Warn("Shutdown timed out")
		}
	case err := <-errChan:
		cancel()
		if err != nil {
			logger.Error("Server failed", "error", err)
			rt.Close()
			os.Exit(1)
		}
	}
	logger.Info("Shutdown complete")
}

func runServer(ctx context.Context, cfg *config.Config, rt *bootstrap.Runtime, logger *logging.Logger) error {
	apiCfg := api.Config{
		Addr:           cfg.Server.HTTP.Addr,
		Tokens:         rt.Tokens,
		AdminRate:      cfg.Server.AdminRateLimit,
		AdminBurst:     cfg.Server.AdminBurst,
		RequestTimeout: cfg.Server.RequestTimeout.ToDuration(),
	}
	if cfg.Server.HTTP.TLS.Enabled {
		apiCfg.CertFile = cfg.Server.HTTP.TLS.Cert
		apiCfg.KeyFile = cfg.Server.HTTP.TLS.Key
	}
	server := api.NewServer(apiCfg, rt.Aggregator, rt.Providers, logger)

	// Start WebSocket server if enabled
	var wsServer *api.WebSocketServer
	if cfg.Server.WebSocket.Enabled {
		wsServer = api.NewWebSocketServer(cfg.Server.WebSocket.Addr, cfg.Oracle.BaseDecimals, logger)
		rt.Aggregator.Subscribe(wsServer)
		if cfg.Server.WebSocket.Addr == "" {
			server.SetWebSocketServer(wsServer)
		} else {
			go func() {
				if err := wsServer.Start(ctx); err != nil {
					logger.Error("WebSocket server error", "error", err)
				}
			}()
		}
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Stop(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown", "error", err)
		}
		if wsServer != nil {
			wsServer.Stop()
		}
	}()

	return server.Start()
}

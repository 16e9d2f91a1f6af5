package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/janusproxy/janus/config"
	"github.com/janusproxy/janus/metrics"
	"github.com/janusproxy/janus/proxy"
)

var (
	configPath string
	listenHost string
	listenPort uint16
	logLevel   string
)

const shutdownTimeout = 30 * time.Second

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	m := metrics.New()
	server, err := proxy.New(cfg, logger, m)
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}

	if cfg.MetricsListen != "" {
		go func() {
			logger.Info("metrics listener started", zap.String("listen", cfg.MetricsListen))
			if err := http.ListenAndServe(cfg.MetricsListen, m.Handler()); err != nil {
				logger.Warn("metrics listener failed", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ctx)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		logger.Info("signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// loadConfig reads the config file when one is given; otherwise the default
// configuration with the listen flags applied.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	cfg := config.Default()
	cfg.ListenHost = listenHost
	cfg.ListenPort = listenPort
	cfg.LogLevel = logLevel
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "warning" {
		level = "warn"
	}
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg.Build()
}

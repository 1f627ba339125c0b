// Command routeflowd wires a router configuration file into a running
// topology and serves it until terminated. Flag/env/default resolution
// and the start -> block-on-signal -> stop sequence follow the
// teacher's cmd/main.go and internal/app.App.Run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ssw/routeflow/internal/admin"
	"github.com/ssw/routeflow/internal/metrics"
	"github.com/ssw/routeflow/internal/routerconfig"
	"github.com/ssw/routeflow/internal/tracing"
	"github.com/ssw/routeflow/pkg/topology"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "Path to router configuration file")
	flag.Parse()

	if configFile == "" {
		if envConfigFile := os.Getenv("ROUTEFLOWD_CONFIG"); envConfigFile != "" {
			configFile = envConfigFile
		} else {
			configFile = "/etc/routeflowd/router.yaml"
		}
	}

	logger := logrus.StandardLogger()
	logger.WithField("config", configFile).Info("loading router configuration")

	if err := run(configFile, logger); err != nil {
		fmt.Fprintf(os.Stderr, "routeflowd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string, logger *logrus.Logger) error {
	doc, err := routerconfig.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	level, err := logrus.ParseLevel(doc.App.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if doc.App.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	graph, components, err := routerconfig.Build(doc, logger)
	if err != nil {
		return fmt.Errorf("building topology: %w", err)
	}

	topo, err := topology.Build(graph, components, doc.EdgeConfig(), logger)
	if err != nil {
		return fmt.Errorf("wiring topology: %w", err)
	}

	tracer, err := tracing.NewManager(doc.Tracing, logger)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	adminServer := admin.NewServer(doc.Admin, topo, logger)
	if err := adminServer.Start(); err != nil {
		return fmt.Errorf("starting admin server: %w", err)
	}

	var metricsServer *metrics.Server
	if doc.Metrics.Enabled {
		metricsServer = metrics.NewServer(doc.Metrics.Addr, logger)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("starting metrics server: %w", err)
		}
	}

	topo.Start(context.Background())
	logger.WithField("sources", len(components.Sources)).
		WithField("sinks", len(components.Sinks)).
		Info("router started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	if !topo.Stop() {
		logger.Warn("topology shutdown deadline exceeded")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.WithError(err).Warn("metrics server shutdown error")
		}
	}
	if err := adminServer.Stop(); err != nil {
		logger.WithError(err).Warn("admin server shutdown error")
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("tracing shutdown error")
	}

	logger.Info("router stopped")
	return nil
}

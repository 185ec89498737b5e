package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"bookfeed/config"
	"bookfeed/internal/failover"
	"bookfeed/internal/metrics"
	"bookfeed/logger"
	"bookfeed/reader"
	"bookfeed/writer"
)

const shutdownGrace = 10 * time.Second

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	symbol := flag.String("symbol", "BTC-USDT-SWAP", "Instrument to stream")
	output := flag.String("output", "latest_orderbook.json", "Path of the shared snapshot file")
	interval := flag.Float64("interval", 0.5, "Minimum seconds between snapshot writes")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	// Explicit flags win over the configuration file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "symbol":
			cfg.Stream.Symbol = *symbol
		case "output":
			cfg.Publisher.OutputFile = *output
		case "interval":
			cfg.Publisher.UpdateInterval = time.Duration(*interval * float64(time.Second))
		}
	})
	if cfg.Publisher.UpdateInterval < 0 {
		log.Error("--interval must not be negative")
		os.Exit(1)
	}

	format := cfg.Logging.Format
	if config.IsProductionLike(config.AppEnvironment()) {
		format = "json"
	}
	if err := log.Configure(cfg.Logging.Level, format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	runID := uuid.NewString()
	log.WithFields(logger.Fields{
		"service":  cfg.App.Name,
		"version":  cfg.App.Version,
		"run_id":   runID,
		"symbol":   cfg.Stream.Symbol,
		"output":   cfg.Publisher.OutputFile,
		"interval": cfg.Publisher.UpdateInterval.String(),
	}).Info("starting bookfeed")

	metrics.Configure(cfg.Metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch, cfg.Storage.S3)
	}

	var mirror *writer.S3Mirror
	if cfg.Storage.S3.Enabled {
		mirror, err = writer.NewS3Mirror(ctx, cfg.Storage.S3)
		if err != nil {
			log.WithError(err).Error("failed to initialize S3 mirror")
			os.Exit(1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			mirror.Run(ctx)
		}()
	} else {
		log.WithComponent("main").Info("S3 storage disabled; snapshot mirror off")
	}

	registry, err := cfg.Stream.Registry()
	if err != nil {
		log.WithError(err).Error("invalid endpoint configuration")
		os.Exit(1)
	}

	latency := metrics.NewLatencyRing(cfg.Metrics.LatencySamples)
	if strings.ToLower(cfg.Logging.Level) == "report" || cfg.Metrics.Enabled {
		reporter := metrics.NewReporter(log, cfg.Metrics.ReportInterval, latency, filepath.Dir(cfg.Publisher.OutputFile))
		reporter.Start(ctx)
	}

	writerOpts := []writer.Option{writer.WithLogger(log)}
	if mirror != nil {
		writerOpts = append(writerOpts, writer.WithMirror(mirror))
	}
	publisher, err := writer.NewFileWriter(cfg.Publisher, writerOpts...)
	if err != nil {
		log.WithError(err).Error("failed to create snapshot writer")
		os.Exit(1)
	}

	sup := reader.NewSupervisor(cfg.Reader, reader.NewDialer(cfg.Reader), publisher, latency)
	client := reader.NewClient(registry, cfg.Stream.Symbol, sup, failover.Policy{
		InitialDelay: cfg.Backoff.InitialDelay,
		MaxDelay:     cfg.Backoff.MaxDelay,
		Multiplier:   cfg.Backoff.Multiplier,
		Jitter:       cfg.Backoff.Jitter,
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := client.Run(ctx); err != nil {
			log.WithError(err).Error("client stopped with error")
		}
	}()

	log.WithFields(logger.Fields{"endpoints": registry.Len()}).Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(shutdownGrace):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("bookfeed stopped")
}

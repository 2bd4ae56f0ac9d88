package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ahmadzakiakmal/carbon-ledger/broker"
	"github.com/ahmadzakiakmal/carbon-ledger/config"
	"github.com/ahmadzakiakmal/carbon-ledger/footprint"
	"github.com/ahmadzakiakmal/carbon-ledger/journal"
	"github.com/ahmadzakiakmal/carbon-ledger/metrics"
	"github.com/ahmadzakiakmal/carbon-ledger/proofing"
	"github.com/ahmadzakiakmal/carbon-ledger/repository"
	"github.com/ahmadzakiakmal/carbon-ledger/sensorclient"
	"github.com/ahmadzakiakmal/carbon-ledger/server"
	"github.com/ahmadzakiakmal/carbon-ledger/signer"
	"github.com/ahmadzakiakmal/carbon-ledger/srvreg"
	"github.com/ahmadzakiakmal/carbon-ledger/verifier"

	cmtflags "github.com/cometbft/cometbft/libs/cli/flags"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/spf13/cobra"
)

var (
	configFile     string
	memoryBroker   bool
	logLevelOption string
)

func main() {
	root := &cobra.Command{
		Use:           "carbon-ledger",
		Short:         "Carbon footprint provenance worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (optional)")
	root.PersistentFlags().StringVar(&logLevelOption, "log-level", "", "Override log_level")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the workflow job API",
		RunE:  runServe,
	}
	serve.Flags().BoolVar(&memoryBroker, "memory-broker", false, "Use an in-process broker instead of Kafka")

	root.AddCommand(serve, verifyReceiptCmd(), summarizeCmd(), benchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, cmtlog.Logger, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevelOption != "" {
		cfg.LogLevel = logLevelOption
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	logger, err = cmtflags.ParseLogLevel(strings.ToLower(cfg.LogLevel), logger, "info")
	if err != nil {
		return nil, nil, fmt.Errorf("parse log level: %w", err)
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Info("===========================================")
	logger.Info("   Carbon Ledger Worker - Starting Up")
	logger.Info("===========================================")
	logger.Info("✓ Configuration loaded", "http_port", cfg.HTTPPort, "database", cfg.Database.Driver,
		"kafka", cfg.Kafka.Brokers, "sensor", cfg.Sensor.BaseURL, "verifier", cfg.Verifier.Address)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Operator store
	logger.Info("📦 Initializing database...")
	repo := repository.NewRepository(logger.With("module", "repository"))
	if err := repo.ConnectDB(ctx, repository.Config{
		Driver:        cfg.Database.Driver,
		DSN:           cfg.GetDSN(),
		MaxAttempts:   10,
		RetryInterval: 2 * time.Second,
	}); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	logger.Info("📒 Opening activity journal...", "path", cfg.Journal.Path)
	j, err := journal.Open(cfg.Journal.Path, logger.With("module", "journal"))
	if err != nil {
		return err
	}
	defer j.Close()

	reg := metrics.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// Broker
	var b broker.Broker
	if memoryBroker {
		logger.Info("🔗 Using in-process broker")
		b = broker.NewMemoryBroker()
	} else {
		logger.Info("🔗 Connecting to Kafka...", "brokers", cfg.Kafka.Brokers)
		b = broker.NewKafkaBroker(broker.KafkaConfig{
			Brokers: cfg.KafkaBrokers(),
		}, logger.With("module", "kafka"))
	}
	defer b.Close()

	// Sensor service
	sensors := sensorclient.NewClient(cfg.Sensor.BaseURL, cfg.Sensor.Timeout, logger.With("module", "sensor"))
	if err := sensors.HealthCheck(ctx); err != nil {
		logger.Info("⚠️  Warning: sensor health check failed", "err", err)
		logger.Info("   Worker will start anyway, but transport jobs will fail until the sensor service is available")
	} else {
		logger.Info("✓ Sensor service reachable")
	}

	// Receipt verifier
	rv, err := verifier.Dial(cfg.Verifier.Address, logger.With("module", "verifier"),
		verifier.WithChunkSize(cfg.Verifier.ChunkSize),
		verifier.WithTimeout(cfg.Verifier.Timeout),
		verifier.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	defer rv.Close()

	proof := proofing.NewService(b, proofing.Config{
		TopicOut: cfg.Kafka.TopicOut,
		TopicIn:  cfg.Kafka.TopicIn,
		Timeout:  cfg.Proofing.Timeout,
	}, logger.With("module", "proofing"), m)

	logger.Info("Setting up service registry...")
	serviceRegistry := srvreg.NewServiceRegistry(srvreg.Dependencies{
		Assembler:            footprint.NewAssembler(cfg.Footprint.SpecVersion, cfg.Footprint.DataSchema),
		Chain:                footprint.NewChainBuilder(footprint.NewSimulatedEmissions(nil)),
		Sensors:              sensors,
		Operators:            repo,
		Signer:               signer.NewSigner(),
		Journal:              j,
		Proofing:             proof,
		Verifier:             rv,
		ReceiptPath:          cfg.Verifier.ReceiptPath,
		ActivitiesOutputPath: cfg.ActivitiesOutputPath,
		JobSequence:          cfg.Workflow.JobSequence,
		Metrics:              m,
	}, logger.With("module", "srvreg"))
	serviceRegistry.RegisterDefaultServices()

	webServer := server.NewWebServer(cfg.HTTPPort, serviceRegistry, reg, logger.With("module", "server"))
	webServer.AddHealthCheck("database", repo.Ping)
	webServer.AddHealthCheck("sensor", sensors.HealthCheck)
	if err := webServer.Start(); err != nil {
		return fmt.Errorf("failed to start web server: %w", err)
	}

	logger.Info("===========================================")
	logger.Info("   Carbon Ledger Worker Ready!", "listening", "http://localhost:"+cfg.HTTPPort)
	logger.Info("===========================================")

	<-ctx.Done()
	logger.Info("🛑 Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := webServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("❌ Error during server shutdown", "err", err)
	}

	logger.Info("✓ Carbon Ledger Worker stopped")
	logger.Info("Goodbye! 👋")
	return nil
}

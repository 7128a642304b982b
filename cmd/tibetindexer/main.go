// Package main provides the tibetindexer daemon - the AMM analytics
// synchronizer.
package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tibetswap/analytics-indexer/internal/config"
	"github.com/tibetswap/analytics-indexer/internal/metadata"
	"github.com/tibetswap/analytics-indexer/internal/orchestrator"
	"github.com/tibetswap/analytics-indexer/internal/priceusd"
	"github.com/tibetswap/analytics-indexer/internal/rpcclient"
	"github.com/tibetswap/analytics-indexer/internal/storage"
	"github.com/tibetswap/analytics-indexer/internal/walker"
	"github.com/tibetswap/analytics-indexer/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	// Parse flags
	var (
		dataDir     = flag.String("data-dir", "~/.tibet-indexer", "Data directory")
		configFile  = flag.String("config", "", "Config file path; only its directory is used, and config.yaml in that directory is loaded (default: <data-dir>/config.yaml)")
		rpcURL      = flag.String("rpc-url", "", "Full node RPC base URL, overrides config")
		testnet     = flag.Bool("testnet", false, "Run on testnet (separate network and data)")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	// Set up logging (initial, may be overridden by config)
	log := logging.New(&logging.Config{
		Level:      *logLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("tibetindexer %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	// Determine data directory (testnet uses subdirectory)
	effectiveDataDir := *dataDir
	if *testnet {
		effectiveDataDir = filepath.Join(*dataDir, "testnet")
	}

	// Load or create config file
	var cfg *config.Config
	var err error

	if *configFile != "" {
		cfg, err = config.LoadConfig(filepath.Dir(*configFile))
	} else {
		cfg, err = config.LoadConfig(effectiveDataDir)
	}
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// Apply CLI overrides (CLI flags take precedence over config file)
	if *rpcURL != "" {
		cfg.RPC.BaseURL = *rpcURL
	}
	cfg.Logging.Level = *logLevel
	cfg.Storage.DataDir = effectiveDataDir

	if *testnet {
		cfg.NetworkType = config.Testnet
	} else {
		cfg.NetworkType = config.Mainnet
	}

	// Update logging with config level and destination
	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
		File:       cfg.Logging.File,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.ConfigPath(effectiveDataDir))

	// Initialize storage
	store, err := storage.New(&storage.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer store.Close()
	log.Info("Storage initialized", "dir", cfg.Storage.DataDir)

	// Full node RPC client
	node, err := rpcclient.New(rpcclient.Config{
		BaseURL: cfg.RPC.BaseURL,
		APIKey:  cfg.RPC.APIKey,
		Timeout: cfg.RPC.Timeout,
	})
	if err != nil {
		log.Fatal("Failed to build full node client", "error", err)
	}
	log.Info("Full node client initialized", "url", cfg.RPC.BaseURL)

	// Walkers and price synchronizer
	meta := metadata.New(metadata.Config{BaseURL: cfg.Metadata.BaseURL, Timeout: cfg.Metadata.Timeout})
	clk := clock.New()

	resolver := walker.NewTimestampResolver(node, clk, cfg.Sync.TimestampRetryInterval)
	routerWalker := walker.NewRouterWalker(node, meta)
	pairWalker := walker.NewPairWalker(node, resolver)

	feed := priceusd.NewClient(priceusd.FeedConfig{BaseURL: cfg.Price.BaseURL, Timeout: cfg.Price.Timeout})
	priceSync := priceusd.NewSynchronizer(store, feed, clk)

	// Orchestrator
	orchCfg := orchestrator.Config{
		IterationInterval:    cfg.Sync.IterationInterval,
		FailureBackoff:       cfg.Sync.FailureBackoff,
		PriceSyncMinInterval: cfg.Sync.PriceSyncMinInterval,
		PriceSyncGracePeriod: cfg.Sync.PriceSyncGracePeriod,
	}
	for _, r := range cfg.Routers {
		if r.LauncherID == "" {
			log.Warn("Skipping router with empty launcher id", "variant", r.Variant)
			continue
		}
		orchCfg.Routers = append(orchCfg.Routers, orchestrator.RouterSeed{
			Variant:    r.Variant,
			LauncherID: r.LauncherID,
		})
	}
	if len(orchCfg.Routers) == 0 {
		log.Fatal("No routers configured; set routers[].launcher_id in " + config.ConfigPath(effectiveDataDir))
	}

	orch := orchestrator.New(store, routerWalker, pairWalker, priceSync, orchCfg, clk)

	log.Info("Starting TibetSwap analytics indexer...")
	if err := orch.Start(); err != nil {
		log.Fatal("Failed to start orchestrator", "error", err)
	}

	printBanner(log, cfg)

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	if err := orch.Stop(); err != nil {
		log.Error("Error during shutdown", "error", err)
	}

	log.Info("Goodbye!")
}

func printBanner(log *logging.Logger, cfg *config.Config) {
	networkLabel := "mainnet"
	if cfg.IsTestnet() {
		networkLabel = "TESTNET"
	}

	log.Info("")
	log.Info("=================================================")
	log.Infof("  TibetSwap Analytics Indexer (%s)", networkLabel)
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  Routers: %d", len(cfg.Routers))
	for _, r := range cfg.Routers {
		log.Infof("    %-10s %s", r.Variant, r.LauncherID)
	}
	log.Info("")
	log.Infof("  Full node: %s", cfg.RPC.BaseURL)
	log.Infof("  Sync interval: %s", cfg.Sync.IterationInterval)
	log.Infof("  Data dir: %s", cfg.Storage.DataDir)
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}

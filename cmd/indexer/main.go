// ====================================
// File: cmd/indexer/main.go
// ====================================
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/hieutrtr/blockchain-practices-sub001/internal/config"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/indexer"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/utils/logger"
)

func main() {
	var (
		configPath string
		blocks     uint64
		watch      bool
		testRun    bool
		migrate    bool
	)
	flags := pflag.NewFlagSet("indexer", pflag.ExitOnError)
	flags.StringVarP(&configPath, "config", "c", "configs/config.json", "path to config file (json, yaml or toml); empty for environment only")
	flags.Uint64VarP(&blocks, "blocks", "n", 0, "number of blocks below and including the head to ingest (default from config)")
	flags.BoolVarP(&watch, "watch", "w", false, "keep ingesting on every watch_interval tick")
	flags.BoolVar(&testRun, "test", false, "run a test ingestion and print statistics")
	flags.BoolVar(&migrate, "migrate", false, "apply database migrations and exit")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	opts := indexer.Options{Mode: indexer.ModeOnce, BlockCount: blocks}
	switch {
	case migrate:
		opts.Mode = indexer.ModeMigrate
	case testRun:
		opts.Mode = indexer.ModeTest
	case watch:
		opts.Mode = indexer.ModeWatch
	}

	if err := run(log.Logger, cfg, opts); err != nil {
		log.Error("Indexer stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.Logger, cfg *config.Config, opts indexer.Options) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("Starting block indexer", zap.String("chain", cfg.Chain), zap.String("storage", cfg.Storage))

	runner := indexer.NewRunner(cfg, log)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := runner.Shutdown(shutdownCtx); err != nil {
			log.Warn("Shutdown finished with errors", zap.Error(err))
		}
	}()

	if err := runner.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return runner.Run(ctx, opts)
}

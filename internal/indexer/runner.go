// internal/indexer/runner.go
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hieutrtr/blockchain-practices-sub001/internal/blockchain"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/blockchain/evm"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/blockchain/rpc"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/blockchain/solbc"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/chainreader"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/config"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/ingestion"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/server"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/storage"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/storage/memory"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/storage/sqlstore"
)

// Mode – режим работы индексатора
type Mode int

const (
	// ModeOnce выполняет один запуск и завершается
	ModeOnce Mode = iota
	// ModeWatch запускает индексацию по таймеру до сигнала остановки
	ModeWatch
	// ModeTest выполняет TestIngestion и печатает статистику
	ModeTest
	// ModeMigrate только применяет миграции
	ModeMigrate
)

// Options – параметры одного вызова Run
type Options struct {
	Mode       Mode
	BlockCount uint64
}

type Runner struct {
	logger       *zap.Logger
	config       *config.Config
	registry     *prometheus.Registry
	provider     blockchain.Provider
	store        storage.Storage
	orchestrator *ingestion.Orchestrator
	shutdown     *ShutdownHandler
}

// NewRunner принимает cfg и logger. Зависимости создаются в Initialize.
func NewRunner(cfg *config.Config, logger *zap.Logger) *Runner {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Runner{
		logger:   logger,
		config:   cfg,
		registry: registry,
		shutdown: NewShutdownHandler(logger.Named("shutdown"), 0),
	}
}

// Initialize подключается к сети и хранилищу и применяет миграции
func (r *Runner) Initialize(ctx context.Context) error {
	if r.store == nil {
		store, err := r.openStorage()
		if err != nil {
			return err
		}
		r.store = store
	}
	r.shutdown.AddFunc("storage", r.store.Close)

	if err := r.store.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	if r.provider == nil {
		provider, err := r.openProvider(ctx)
		if err != nil {
			return err
		}
		r.provider = provider
	}

	reader := chainreader.New(r.provider, r.store, r.logger)
	r.orchestrator = ingestion.NewOrchestrator(reader, r.store, ingestion.NewMetrics(r.registry), r.logger)

	r.logger.Info("Indexer initialized",
		zap.String("chain", r.provider.Name()),
		zap.Int("endpoints", len(r.config.RPCList)),
		zap.String("storage", r.config.Storage))
	return nil
}

func (r *Runner) openStorage() (storage.Storage, error) {
	switch r.config.Storage {
	case config.StorageMemory:
		return memory.NewStorage(), nil
	case config.StorageSQL:
		opts := sqlstore.DefaultOptions()
		opts.LogSQL = r.config.LogSQL
		store, err := sqlstore.NewStorage(r.config.DatabaseURL, opts, r.logger.Named("storage"))
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage %q", r.config.Storage)
	}
}

func (r *Runner) openProvider(ctx context.Context) (blockchain.Provider, error) {
	opts := rpc.Options{
		Retries:        r.config.Retries,
		RetryDelay:     r.config.RetryDelay(),
		RequestTimeout: r.config.Timeout(),
		RateLimit:      r.config.RateLimit,
	}

	switch r.config.Chain {
	case config.ChainEVM:
		client, err := evm.NewClient(ctx, r.config.RPCList, opts, r.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create evm client: %w", err)
		}
		r.shutdown.AddFunc("evm-client", func() error {
			client.Close()
			return nil
		})
		return client, nil
	case config.ChainSolana:
		client, err := solbc.NewClient(r.config.RPCList, opts, r.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create solana client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported chain %q", r.config.Chain)
	}
}

// Run выполняет работу в выбранном режиме. SIGINT/SIGTERM завершают работу
// корректно: текущий блок дописывается, затем запуск останавливается.
func (r *Runner) Run(ctx context.Context, opts Options) error {
	if opts.Mode == ModeMigrate {
		r.logger.Info("Migrations applied, exiting")
		return nil
	}
	if r.orchestrator == nil {
		return errors.New("runner is not initialized")
	}
	if opts.BlockCount == 0 {
		opts.BlockCount = uint64(r.config.BlockCount)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gCtx)
	defer stopServer()

	if r.config.MetricsAddr != "" {
		srv := server.New(r.config.MetricsAddr, r.registry, r.registry, r.healthCheck, r.logger)
		g.Go(func() error {
			return srv.Run(serverCtx)
		})
	}

	g.Go(func() error {
		defer stopServer()
		return r.runJob(gCtx, opts)
	})

	return g.Wait()
}

func (r *Runner) runJob(ctx context.Context, opts Options) error {
	switch opts.Mode {
	case ModeWatch:
		return r.watch(ctx, opts.BlockCount)
	case ModeTest:
		stats, err := r.orchestrator.TestIngestion(ctx, opts.BlockCount)
		if err != nil {
			return ignoreCancel(err)
		}
		r.logger.Info("Test ingestion finished",
			zap.Int64("totalBlocks", stats.TotalBlocks),
			zap.Int64("totalTransactions", stats.TotalTransactions),
			zap.Uint64p("latestBlock", stats.LatestBlock),
			zap.Uint64p("oldestBlock", stats.OldestBlock),
			zap.Int64("averageTransactionsPerBlock", stats.AverageTransactionsPerBlock))
		return nil
	default:
		_, err := r.orchestrator.StartIngestion(ctx, opts.BlockCount)
		return ignoreCancel(err)
	}
}

// watch запускает индексацию сразу и затем на каждом тике таймера
func (r *Runner) watch(ctx context.Context, blockCount uint64) error {
	interval := r.config.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Watching chain head", zap.Duration("interval", interval), zap.Uint64("blocks", blockCount))

	for {
		_, err := r.orchestrator.StartIngestion(ctx, blockCount)
		switch {
		case err == nil:
		case errors.Is(err, ingestion.ErrAlreadyRunning):
			r.logger.Info("Previous run still in progress, tick skipped")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			// Ошибка чтения головы не останавливает наблюдение
			r.logger.Warn("Ingestion run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) healthCheck(ctx context.Context) error {
	_, err := r.store.Summary(ctx)
	return err
}

// Shutdown закрывает клиентов и хранилище
func (r *Runner) Shutdown(ctx context.Context) error {
	r.logger.Info("Indexer shutting down gracefully")
	return r.shutdown.Shutdown(ctx)
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

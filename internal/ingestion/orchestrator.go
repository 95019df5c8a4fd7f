// internal/ingestion/orchestrator.go
package ingestion

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hieutrtr/blockchain-practices-sub001/internal/storage/models"
)

// Orchestrator выполняет обратный проход от головы сети вниз на blockCount блоков.
// Одновременно выполняется не более одного запуска.
type Orchestrator struct {
	reader  ChainReader
	store   Store
	metrics *Metrics
	logger  *zap.Logger
	state   atomic.Int32
	now     func() time.Time
}

// NewOrchestrator создает оркестратор в состоянии Idle
func NewOrchestrator(reader ChainReader, store Store, metrics *Metrics, logger *zap.Logger) *Orchestrator {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Orchestrator{
		reader:  reader,
		store:   store,
		metrics: metrics,
		logger:  logger.Named("ingestion"),
		now:     time.Now,
	}
}

// State возвращает текущее состояние
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// StartIngestion читает голову сети один раз и обрабатывает диапазон
// [max(head-blockCount+1, 0), head] от головы вниз, строго последовательно.
// Ошибки отдельных блоков логируются и не прерывают запуск. Наружу выходят
// только ErrInvalidBlockCount, ErrAlreadyRunning, ошибка чтения головы и
// отмена контекста.
func (o *Orchestrator) StartIngestion(ctx context.Context, blockCount uint64) (*RunSummary, error) {
	if blockCount < 1 {
		return nil, ErrInvalidBlockCount
	}
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, ErrAlreadyRunning
	}
	o.metrics.running.Set(1)
	defer func() {
		o.state.Store(int32(StateIdle))
		o.metrics.running.Set(0)
	}()

	summary := &RunSummary{
		RunID:     uuid.NewString(),
		Chain:     o.reader.Chain(),
		Requested: blockCount,
		StartedAt: o.now(),
	}
	logger := o.logger.With(zap.String("run_id", summary.RunID))

	head, err := o.reader.CurrentHead(ctx)
	if err != nil {
		logger.Error("Failed to read chain head", zap.Error(err))
		o.finish(ctx, logger, summary, models.RunFailed, err)
		return nil, fmt.Errorf("read chain head: %w", err)
	}

	summary.ToBlock = head.Number
	if blockCount <= head.Number {
		summary.FromBlock = head.Number - blockCount + 1
	}
	total := summary.ToBlock - summary.FromBlock + 1

	logger.Info("Ingestion started",
		zap.String("chain", summary.Chain),
		zap.Uint64("head", head.Number),
		zap.Uint64("from", summary.FromBlock),
		zap.Uint64("to", summary.ToBlock))

	for i := uint64(0); i < total; i++ {
		if err := ctx.Err(); err != nil {
			summary.Cancelled = true
			break
		}

		number := summary.ToBlock - i
		txCount, err := o.processBlock(ctx, logger, number)
		summary.Transactions += txCount
		o.metrics.transactions.Add(float64(txCount))
		if err != nil {
			summary.Failed++
			o.metrics.blocks.WithLabelValues("failed").Inc()
			logger.Warn("Block skipped", zap.Uint64("block", number), zap.Error(err))
			continue
		}
		summary.Processed++
		o.metrics.blocks.WithLabelValues("success").Inc()
	}

	if summary.Cancelled {
		err := ctx.Err()
		logger.Warn("Ingestion cancelled",
			zap.Int("processed", summary.Processed),
			zap.Int("failed", summary.Failed))
		o.finish(ctx, logger, summary, models.RunCancelled, err)
		return summary, err
	}

	o.finish(ctx, logger, summary, models.RunCompleted, nil)
	logger.Info("Ingestion completed",
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Int("transactions", summary.Transactions),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

// processBlock читает и сохраняет блок и его транзакции. Первая ошибка на
// этапе транзакций пропускает остаток транзакций этого блока.
// Возвращает число сохраненных транзакций.
func (o *Orchestrator) processBlock(ctx context.Context, logger *zap.Logger, number uint64) (int, error) {
	block, err := o.reader.ReadBlock(ctx, number)
	if err != nil {
		return 0, err
	}
	if err := o.reader.PersistBlock(ctx, block); err != nil {
		return 0, err
	}

	txs, err := o.reader.ReadTransactions(ctx, number)
	if err != nil {
		return 0, err
	}

	saved := 0
	for _, tx := range txs {
		if err := o.reader.PersistTransaction(ctx, tx); err != nil {
			logger.Debug("Transaction not persisted",
				zap.Uint64("block", number),
				zap.String("tx", tx.Hash),
				zap.Int("remaining", len(txs)-saved-1))
			return saved, fmt.Errorf("persist transaction %s: %w", tx.Hash, err)
		}
		saved++
	}

	logger.Debug("Block processed", zap.Uint64("block", number), zap.Int("transactions", saved))
	return saved, nil
}

// finish фиксирует метрики и пишет запись аудита. Ошибка записи аудита не влияет на запуск.
func (o *Orchestrator) finish(ctx context.Context, logger *zap.Logger, summary *RunSummary, status string, runErr error) {
	completed := o.now()
	summary.Duration = completed.Sub(summary.StartedAt)
	o.metrics.runs.WithLabelValues(status).Inc()
	o.metrics.runDuration.Observe(summary.Duration.Seconds())

	started := summary.StartedAt
	run := &models.IngestionRun{
		RunID:        summary.RunID,
		Chain:        summary.Chain,
		Status:       status,
		Requested:    summary.Requested,
		FromBlock:    summary.FromBlock,
		ToBlock:      summary.ToBlock,
		SuccessCount: summary.Processed,
		ErrorCount:   summary.Failed,
		Transactions: summary.Transactions,
		StartedAt:    &started,
		CompletedAt:  &completed,
	}
	if runErr != nil {
		run.ErrorMessage = runErr.Error()
	}

	// После отмены основного контекста аудит пишется с собственным таймаутом
	saveCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	if err := o.store.SaveRun(saveCtx, run); err != nil {
		logger.Warn("Failed to save ingestion run", zap.Error(err))
	}
}

// GetIngestionStatus возвращает флаг выполнения и агрегаты хранилища
func (o *Orchestrator) GetIngestionStatus(ctx context.Context) (*Status, error) {
	summary, err := o.store.Summary(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		IsRunning:          o.State() == StateRunning,
		LastProcessedBlock: summary.LatestBlock,
		TotalBlocks:        summary.TotalBlocks,
		TotalTransactions:  summary.TotalTransactions,
	}, nil
}

// GetIngestionStats возвращает агрегаты и среднее число транзакций на блок,
// округленное до ближайшего целого (половина от нуля). Для пустого хранилища 0.
func (o *Orchestrator) GetIngestionStats(ctx context.Context) (*Stats, error) {
	summary, err := o.store.Summary(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalBlocks:                 summary.TotalBlocks,
		TotalTransactions:           summary.TotalTransactions,
		LatestBlock:                 summary.LatestBlock,
		OldestBlock:                 summary.OldestBlock,
		AverageTransactionsPerBlock: averagePerBlock(summary.TotalTransactions, summary.TotalBlocks),
	}, nil
}

// TestIngestion запускает StartIngestion и возвращает статистику после него
func (o *Orchestrator) TestIngestion(ctx context.Context, blockCount uint64) (*Stats, error) {
	if _, err := o.StartIngestion(ctx, blockCount); err != nil {
		return nil, err
	}
	return o.GetIngestionStats(ctx)
}

func averagePerBlock(transactions, blocks int64) int64 {
	if blocks == 0 {
		return 0
	}
	return decimal.NewFromInt(transactions).
		Div(decimal.NewFromInt(blocks)).
		Round(0).
		IntPart()
}

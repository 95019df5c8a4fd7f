// internal/ingestion/types.go
package ingestion

import (
	"context"
	"time"

	"github.com/hieutrtr/blockchain-practices-sub001/internal/blockchain"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/storage"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/storage/models"
)

// ChainReader – все, что оркестратор использует от сети и хранилища при записи
type ChainReader interface {
	Chain() string
	CurrentHead(ctx context.Context) (*blockchain.Block, error)
	ReadBlock(ctx context.Context, number uint64) (*blockchain.Block, error)
	ReadTransactions(ctx context.Context, number uint64) ([]*blockchain.Transaction, error)
	PersistBlock(ctx context.Context, block *blockchain.Block) error
	PersistTransaction(ctx context.Context, tx *blockchain.Transaction) error
}

// Store – чтение агрегатов и аудит запусков
type Store interface {
	Summary(ctx context.Context) (*storage.Summary, error)
	SaveRun(ctx context.Context, run *models.IngestionRun) error
}

// State – состояние оркестратора
type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Status – ответ GetIngestionStatus
type Status struct {
	IsRunning          bool    `json:"isRunning"`
	LastProcessedBlock *uint64 `json:"lastProcessedBlock"`
	TotalBlocks        int64   `json:"totalBlocks"`
	TotalTransactions  int64   `json:"totalTransactions"`
}

// Stats – ответ GetIngestionStats
type Stats struct {
	TotalBlocks                 int64   `json:"totalBlocks"`
	TotalTransactions           int64   `json:"totalTransactions"`
	LatestBlock                 *uint64 `json:"latestBlock"`
	OldestBlock                 *uint64 `json:"oldestBlock"`
	AverageTransactionsPerBlock int64   `json:"averageTransactionsPerBlock"`
}

// RunSummary – итог одного запуска. Частичные сбои видны только здесь и в логах.
type RunSummary struct {
	RunID        string        `json:"runId"`
	Chain        string        `json:"chain"`
	Requested    uint64        `json:"requested"`
	FromBlock    uint64        `json:"fromBlock"`
	ToBlock      uint64        `json:"toBlock"`
	Processed    int           `json:"processed"`
	Failed       int           `json:"failed"`
	Transactions int           `json:"transactions"`
	Cancelled    bool          `json:"cancelled"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"duration"`
}

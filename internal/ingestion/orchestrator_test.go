package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hieutrtr/blockchain-practices-sub001/internal/blockchain"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/chainreader"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/storage"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/storage/memory"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/storage/models"
)

// MockChainReader мок для ChainReader
type MockChainReader struct {
	mock.Mock
}

func (m *MockChainReader) Chain() string { return "test" }

func (m *MockChainReader) CurrentHead(ctx context.Context) (*blockchain.Block, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).(*blockchain.Block)
	return b, args.Error(1)
}

func (m *MockChainReader) ReadBlock(ctx context.Context, number uint64) (*blockchain.Block, error) {
	args := m.Called(ctx, number)
	if fn, ok := args.Get(0).(func(context.Context, uint64) (*blockchain.Block, error)); ok {
		return fn(ctx, number)
	}
	b, _ := args.Get(0).(*blockchain.Block)
	return b, args.Error(1)
}

func (m *MockChainReader) ReadTransactions(ctx context.Context, number uint64) ([]*blockchain.Transaction, error) {
	args := m.Called(ctx, number)
	if fn, ok := args.Get(0).(func(context.Context, uint64) ([]*blockchain.Transaction, error)); ok {
		return fn(ctx, number)
	}
	txs, _ := args.Get(0).([]*blockchain.Transaction)
	return txs, args.Error(1)
}

func (m *MockChainReader) PersistBlock(ctx context.Context, block *blockchain.Block) error {
	return m.Called(ctx, block).Error(0)
}

func (m *MockChainReader) PersistTransaction(ctx context.Context, tx *blockchain.Transaction) error {
	return m.Called(ctx, tx).Error(0)
}

func testBlock(n uint64) *blockchain.Block {
	return &blockchain.Block{
		Number:     n,
		Hash:       fmt.Sprintf("0x%064x", n),
		ParentHash: fmt.Sprintf("0x%064x", n-1),
		Timestamp:  time.Unix(1700000000+int64(n), 0),
		GasLimit:   30_000_000,
	}
}

func testTx(block uint64, i uint) *blockchain.Transaction {
	return &blockchain.Transaction{
		Hash:        fmt.Sprintf("0x%d-%d", block, i),
		BlockNumber: block,
		Index:       i,
		From:        "0xsender",
		Value:       big.NewInt(1),
		GasPrice:    big.NewInt(1),
		Status:      blockchain.StatusSuccess,
	}
}

// healthyReader настраивает мок сети с головой head и txPerBlock транзакциями в каждом блоке
func healthyReader(head uint64, txPerBlock int) *MockChainReader {
	r := new(MockChainReader)
	r.On("CurrentHead", mock.Anything).Return(testBlock(head), nil)
	r.On("ReadBlock", mock.Anything, mock.Anything).Return(func(_ context.Context, n uint64) (*blockchain.Block, error) {
		return testBlock(n), nil
	}, nil)
	r.On("ReadTransactions", mock.Anything, mock.Anything).Return(func(_ context.Context, n uint64) ([]*blockchain.Transaction, error) {
		txs := make([]*blockchain.Transaction, 0, txPerBlock)
		for i := 0; i < txPerBlock; i++ {
			txs = append(txs, testTx(n, uint(i)))
		}
		return txs, nil
	}, nil)
	r.On("PersistBlock", mock.Anything, mock.Anything).Return(nil)
	r.On("PersistTransaction", mock.Anything, mock.Anything).Return(nil)
	return r
}

func newTestOrchestrator(reader ChainReader, store Store) *Orchestrator {
	return NewOrchestrator(reader, store, NewMetrics(prometheus.NewRegistry()), zap.NewNop())
}

func persistedNumbers(r *MockChainReader) []uint64 {
	var numbers []uint64
	for _, call := range r.Calls {
		if call.Method == "PersistBlock" {
			numbers = append(numbers, call.Arguments.Get(1).(*blockchain.Block).Number)
		}
	}
	return numbers
}

func TestStartIngestionReadsEachBlockOnce(t *testing.T) {
	for _, count := range []uint64{1, 5, 20} {
		t.Run(fmt.Sprintf("count=%d", count), func(t *testing.T) {
			r := healthyReader(1000, 2)
			o := newTestOrchestrator(r, memory.NewStorage())

			summary, err := o.StartIngestion(context.Background(), count)
			require.NoError(t, err)

			r.AssertNumberOfCalls(t, "CurrentHead", 1)
			r.AssertNumberOfCalls(t, "ReadBlock", int(count))
			r.AssertNumberOfCalls(t, "PersistBlock", int(count))
			r.AssertNumberOfCalls(t, "PersistTransaction", int(count)*2)
			assert.Equal(t, int(count), summary.Processed)
			assert.Zero(t, summary.Failed)
			assert.Equal(t, 1000-count+1, summary.FromBlock)
			assert.Equal(t, uint64(1000), summary.ToBlock)
		})
	}
}

func TestStartIngestionOrder(t *testing.T) {
	r := healthyReader(100, 0)
	o := newTestOrchestrator(r, memory.NewStorage())

	_, err := o.StartIngestion(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, []uint64{100, 99, 98}, persistedNumbers(r))
	assert.Equal(t, StateIdle, o.State())
}

func TestStartIngestionClampsAtGenesis(t *testing.T) {
	r := healthyReader(2, 0)
	o := newTestOrchestrator(r, memory.NewStorage())

	summary, err := o.StartIngestion(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, []uint64{2, 1, 0}, persistedNumbers(r))
	assert.Equal(t, uint64(0), summary.FromBlock)
	assert.Equal(t, 3, summary.Processed)
}

func TestStartIngestionInvalidCount(t *testing.T) {
	r := new(MockChainReader)
	o := newTestOrchestrator(r, memory.NewStorage())

	_, err := o.StartIngestion(context.Background(), 0)

	assert.ErrorIs(t, err, ErrInvalidBlockCount)
	r.AssertNotCalled(t, "CurrentHead", mock.Anything)
}

func TestStartIngestionSkipsFailedBlock(t *testing.T) {
	r := new(MockChainReader)
	r.On("CurrentHead", mock.Anything).Return(testBlock(50), nil)
	r.On("ReadBlock", mock.Anything, uint64(49)).Return(nil, blockchain.NewNetworkError(errors.New("timeout"), "http://node", "eth_getBlockByNumber"))
	r.On("ReadBlock", mock.Anything, mock.Anything).Return(func(_ context.Context, n uint64) (*blockchain.Block, error) {
		return testBlock(n), nil
	}, nil)
	r.On("ReadTransactions", mock.Anything, mock.Anything).Return([]*blockchain.Transaction{}, nil)
	r.On("PersistBlock", mock.Anything, mock.Anything).Return(nil)

	o := newTestOrchestrator(r, memory.NewStorage())
	summary, err := o.StartIngestion(context.Background(), 5)

	require.NoError(t, err)
	r.AssertNumberOfCalls(t, "ReadBlock", 5)
	r.AssertNumberOfCalls(t, "PersistBlock", 4)
	assert.Equal(t, []uint64{50, 48, 47, 46}, persistedNumbers(r))
	assert.Equal(t, 4, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
}

func TestStartIngestionAllBlocksFail(t *testing.T) {
	r := new(MockChainReader)
	r.On("CurrentHead", mock.Anything).Return(testBlock(10), nil)
	r.On("ReadBlock", mock.Anything, mock.Anything).Return(nil, &blockchain.NotFoundError{Number: 0})

	o := newTestOrchestrator(r, memory.NewStorage())
	summary, err := o.StartIngestion(context.Background(), 3)

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Failed)
	assert.Equal(t, StateIdle, o.State())
	r.AssertNotCalled(t, "PersistBlock", mock.Anything, mock.Anything)
}

func TestStartIngestionTransactionFailureIsolatedToBlock(t *testing.T) {
	failing := testTx(20, 1)

	r := new(MockChainReader)
	r.On("CurrentHead", mock.Anything).Return(testBlock(20), nil)
	r.On("ReadBlock", mock.Anything, mock.Anything).Return(func(_ context.Context, n uint64) (*blockchain.Block, error) {
		return testBlock(n), nil
	}, nil)
	r.On("PersistBlock", mock.Anything, mock.Anything).Return(nil)
	r.On("ReadTransactions", mock.Anything, uint64(20)).Return([]*blockchain.Transaction{testTx(20, 0), failing, testTx(20, 2)}, nil)
	r.On("ReadTransactions", mock.Anything, uint64(19)).Return([]*blockchain.Transaction{testTx(19, 0)}, nil)
	r.On("PersistTransaction", mock.Anything, failing).Return(storage.Wrap("save_transaction", errors.New("disk full")))
	r.On("PersistTransaction", mock.Anything, mock.Anything).Return(nil)

	o := newTestOrchestrator(r, memory.NewStorage())
	summary, err := o.StartIngestion(context.Background(), 2)

	require.NoError(t, err)
	// 20-0, 20-1 (ошибка), 20-2 пропущена, затем 19-0
	r.AssertNumberOfCalls(t, "PersistTransaction", 3)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Transactions)
}

func TestStartIngestionBlockPhaseFailures(t *testing.T) {
	r := new(MockChainReader)
	r.On("CurrentHead", mock.Anything).Return(testBlock(10), nil)
	r.On("ReadBlock", mock.Anything, mock.Anything).Return(func(_ context.Context, n uint64) (*blockchain.Block, error) {
		return testBlock(n), nil
	}, nil)
	r.On("PersistBlock", mock.Anything, mock.MatchedBy(func(b *blockchain.Block) bool { return b.Number == 10 })).
		Return(storage.Wrap("save_block", errors.New("connection reset")))
	r.On("PersistBlock", mock.Anything, mock.Anything).Return(nil)
	r.On("ReadTransactions", mock.Anything, uint64(9)).
		Return(nil, blockchain.NewNetworkError(errors.New("timeout"), "http://node", "eth_getBlockReceipts"))
	r.On("ReadTransactions", mock.Anything, uint64(8)).Return([]*blockchain.Transaction{testTx(8, 0)}, nil)
	r.On("PersistTransaction", mock.Anything, mock.Anything).Return(nil)

	o := newTestOrchestrator(r, memory.NewStorage())
	summary, err := o.StartIngestion(context.Background(), 3)

	require.NoError(t, err)
	// блок 10 не записан: его транзакции не читаются
	r.AssertNotCalled(t, "ReadTransactions", mock.Anything, uint64(10))
	// блок 9 записан, но чтение транзакций упало: запуск идет дальше, к блоку 8
	r.AssertCalled(t, "ReadTransactions", mock.Anything, uint64(9))
	r.AssertCalled(t, "ReadTransactions", mock.Anything, uint64(8))
	r.AssertNumberOfCalls(t, "PersistBlock", 3)
	r.AssertNumberOfCalls(t, "PersistTransaction", 1)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 1, summary.Transactions)
	assert.Equal(t, StateIdle, o.State())
}

func TestStartIngestionHeadFailure(t *testing.T) {
	store := memory.NewStorage()
	r := new(MockChainReader)
	r.On("CurrentHead", mock.Anything).Return(nil, blockchain.NewNetworkError(errors.New("refused"), "http://node", "getSlot"))

	o := newTestOrchestrator(r, store)
	_, err := o.StartIngestion(context.Background(), 3)

	assert.True(t, blockchain.IsNetworkError(err))
	assert.Equal(t, StateIdle, o.State())

	runs := store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunFailed, runs[0].Status)
}

func TestStartIngestionAlreadyRunning(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	r := new(MockChainReader)
	r.On("CurrentHead", mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(testBlock(100), nil)
	r.On("ReadBlock", mock.Anything, mock.Anything).Return(func(_ context.Context, n uint64) (*blockchain.Block, error) {
		return testBlock(n), nil
	}, nil)
	r.On("ReadTransactions", mock.Anything, mock.Anything).Return([]*blockchain.Transaction{}, nil)
	r.On("PersistBlock", mock.Anything, mock.Anything).Return(nil)

	o := newTestOrchestrator(r, memory.NewStorage())

	var wg sync.WaitGroup
	var firstErr error
	var first *RunSummary
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = o.StartIngestion(context.Background(), 3)
	}()

	<-entered
	assert.Equal(t, StateRunning, o.State())
	_, err := o.StartIngestion(context.Background(), 3)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	status, err := o.GetIngestionStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.IsRunning)

	close(release)
	wg.Wait()

	require.NoError(t, firstErr)
	assert.Equal(t, 3, first.Processed)
	assert.Equal(t, StateIdle, o.State())
	r.AssertNumberOfCalls(t, "CurrentHead", 1)
}

func TestStartIngestionCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := memory.NewStorage()

	r := new(MockChainReader)
	r.On("CurrentHead", mock.Anything).Return(testBlock(100), nil)
	r.On("ReadBlock", mock.Anything, mock.Anything).Return(func(_ context.Context, n uint64) (*blockchain.Block, error) {
		return testBlock(n), nil
	}, nil)
	r.On("ReadTransactions", mock.Anything, mock.Anything).Return([]*blockchain.Transaction{}, nil)
	r.On("PersistBlock", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		cancel()
	}).Return(nil)

	o := newTestOrchestrator(r, store)
	summary, err := o.StartIngestion(ctx, 10)

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 1, summary.Processed)
	r.AssertNumberOfCalls(t, "ReadBlock", 1)

	runs := store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunCancelled, runs[0].Status)
}

func seedStore(t *testing.T, blocks, txPerBlock int) *memory.Storage {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStorage()
	for n := 1; n <= blocks; n++ {
		require.NoError(t, store.SaveBlock(ctx, models.NewBlock(testBlock(uint64(n)))))
		for i := 0; i < txPerBlock; i++ {
			require.NoError(t, store.SaveTransaction(ctx, models.NewTransaction(testTx(uint64(n), uint(i)))))
		}
	}
	return store
}

func TestGetIngestionStatus(t *testing.T) {
	o := newTestOrchestrator(new(MockChainReader), seedStore(t, 10, 5))

	status, err := o.GetIngestionStatus(context.Background())
	require.NoError(t, err)

	assert.False(t, status.IsRunning)
	require.NotNil(t, status.LastProcessedBlock)
	assert.Equal(t, uint64(10), *status.LastProcessedBlock)
	assert.Equal(t, int64(10), status.TotalBlocks)
	assert.Equal(t, int64(50), status.TotalTransactions)
}

func TestGetIngestionStatusEmptyStore(t *testing.T) {
	o := newTestOrchestrator(new(MockChainReader), memory.NewStorage())

	status, err := o.GetIngestionStatus(context.Background())
	require.NoError(t, err)

	assert.Nil(t, status.LastProcessedBlock)
	assert.Zero(t, status.TotalBlocks)
}

func TestGetIngestionStats(t *testing.T) {
	o := newTestOrchestrator(new(MockChainReader), seedStore(t, 10, 5))

	stats, err := o.GetIngestionStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(10), stats.TotalBlocks)
	assert.Equal(t, int64(50), stats.TotalTransactions)
	assert.Equal(t, int64(5), stats.AverageTransactionsPerBlock)
	assert.Equal(t, uint64(10), *stats.LatestBlock)
	assert.Equal(t, uint64(1), *stats.OldestBlock)
}

func TestAveragePerBlock(t *testing.T) {
	tests := []struct {
		txs, blocks, want int64
	}{
		{0, 0, 0},
		{50, 10, 5},
		{7, 2, 4},
		{5, 2, 3},
		{10, 3, 3},
		{11, 3, 4},
		{0, 4, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, averagePerBlock(tt.txs, tt.blocks), "%d/%d", tt.txs, tt.blocks)
	}
}

func TestTestIngestion(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	provider := &fakeProvider{head: 100, txPerBlock: 4}
	o := newTestOrchestrator(chainreader.New(provider, store, zap.NewNop()), store)

	stats, err := o.TestIngestion(ctx, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.TotalBlocks)
	assert.Equal(t, int64(12), stats.TotalTransactions)
	assert.Equal(t, int64(4), stats.AverageTransactionsPerBlock)
	assert.Equal(t, uint64(100), *stats.LatestBlock)
	assert.Equal(t, uint64(98), *stats.OldestBlock)

	// Повторный запуск идемпотентен
	stats, err = o.TestIngestion(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalBlocks)
	assert.Equal(t, int64(12), stats.TotalTransactions)
	assert.Len(t, store.Runs(), 2)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := new(MockChainReader)
	r.On("CurrentHead", mock.Anything).Return(testBlock(10), nil)
	r.On("ReadBlock", mock.Anything, uint64(9)).Return(nil, &blockchain.NotFoundError{Number: 9})
	r.On("ReadBlock", mock.Anything, mock.Anything).Return(func(_ context.Context, n uint64) (*blockchain.Block, error) {
		return testBlock(n), nil
	}, nil)
	r.On("ReadTransactions", mock.Anything, mock.Anything).Return([]*blockchain.Transaction{testTx(0, 0)}, nil)
	r.On("PersistBlock", mock.Anything, mock.Anything).Return(nil)
	r.On("PersistTransaction", mock.Anything, mock.Anything).Return(nil)

	m := NewMetrics(reg)
	o := NewOrchestrator(r, memory.NewStorage(), m, zap.NewNop())
	_, err := o.StartIngestion(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.blocks.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.blocks.WithLabelValues("failed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.transactions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("completed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.running))
}

// fakeProvider – детерминированная сеть для сквозных тестов
type fakeProvider struct {
	head       uint64
	txPerBlock int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Head(context.Context) (*blockchain.Block, error) {
	return testBlock(p.head), nil
}

func (p *fakeProvider) BlockByNumber(_ context.Context, n uint64) (*blockchain.Block, error) {
	if n > p.head {
		return nil, &blockchain.NotFoundError{Number: n}
	}
	return testBlock(n), nil
}

func (p *fakeProvider) TransactionsByNumber(_ context.Context, n uint64) ([]*blockchain.Transaction, error) {
	txs := make([]*blockchain.Transaction, 0, p.txPerBlock)
	for i := 0; i < p.txPerBlock; i++ {
		txs = append(txs, testTx(n, uint(i)))
	}
	return txs, nil
}

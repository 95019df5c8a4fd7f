// internal/chainreader/reader.go
package chainreader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hieutrtr/blockchain-practices-sub001/internal/blockchain"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/storage"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/storage/models"
)

// Reader читает блоки у провайдера и сохраняет их в хранилище.
// Чтения возвращают либо полные данные, либо ошибку, без частичных результатов.
type Reader struct {
	provider blockchain.Provider
	store    storage.Storage
	logger   *zap.Logger
}

// New создает Reader поверх провайдера и хранилища
func New(provider blockchain.Provider, store storage.Storage, logger *zap.Logger) *Reader {
	return &Reader{
		provider: provider,
		store:    store,
		logger:   logger.Named("chain-reader"),
	}
}

// Chain возвращает название сети провайдера
func (r *Reader) Chain() string {
	return r.provider.Name()
}

// CurrentHead возвращает последний блок сети
func (r *Reader) CurrentHead(ctx context.Context) (*blockchain.Block, error) {
	head, err := r.provider.Head(ctx)
	if err != nil {
		return nil, fmt.Errorf("read head: %w", err)
	}
	if head == nil {
		return nil, fmt.Errorf("read head: %w", blockchain.ErrInvalidResponse)
	}
	return head, nil
}

// ReadBlock возвращает сводку блока. Если блока нет, ошибка совпадает с blockchain.ErrNotFound.
func (r *Reader) ReadBlock(ctx context.Context, number uint64) (*blockchain.Block, error) {
	block, err := r.provider.BlockByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("read block %d: %w", number, err)
	}
	if block == nil {
		return nil, fmt.Errorf("read block %d: %w", number, &blockchain.NotFoundError{Number: number})
	}
	return block, nil
}

// ReadTransactions возвращает транзакции блока в порядке индекса, пустой срез для пустого блока
func (r *Reader) ReadTransactions(ctx context.Context, number uint64) ([]*blockchain.Transaction, error) {
	txs, err := r.provider.TransactionsByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("read transactions of block %d: %w", number, err)
	}
	if txs == nil {
		txs = []*blockchain.Transaction{}
	}
	return txs, nil
}

// PersistBlock идемпотентно сохраняет блок
func (r *Reader) PersistBlock(ctx context.Context, block *blockchain.Block) error {
	if err := r.store.SaveBlock(ctx, models.NewBlock(block)); err != nil {
		return err
	}
	r.logger.Debug("Block persisted", zap.Uint64("number", block.Number), zap.String("hash", block.Hash))
	return nil
}

// PersistTransaction идемпотентно сохраняет транзакцию
func (r *Reader) PersistTransaction(ctx context.Context, tx *blockchain.Transaction) error {
	return r.store.SaveTransaction(ctx, models.NewTransaction(tx))
}

// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/hieutrtr/blockchain-practices-sub001/internal/blockchain"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/blockchain/rpc"
)

// maxTransactionVersion – максимальная поддерживаемая версия транзакций (legacy и v0).
var maxTransactionVersion uint64 = 0

// Client – тонкий адаптер для чтения блоков Solana через solana-go.
// Номером блока считается слот.
type Client struct {
	pool   *rpc.Pool[*solanarpc.Client]
	logger *zap.Logger

	// последний полученный блок: ReadBlock и ReadTransactions читают один и тот же слот подряд
	mu        sync.Mutex
	lastSlot  uint64
	lastBlock *solanarpc.GetBlockResult
}

// NewClient создаёт новый клиент, принимая список RPC URL и логгер через dependency injection.
func NewClient(urls []string, opts rpc.Options, logger *zap.Logger) (*Client, error) {
	endpoints := make([]rpc.Endpoint[*solanarpc.Client], 0, len(urls))
	for _, u := range urls {
		endpoints = append(endpoints, rpc.Endpoint[*solanarpc.Client]{URL: u, Client: solanarpc.New(u)})
	}

	pool, err := rpc.NewPool(endpoints, opts, logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		pool:   pool,
		logger: logger.Named("solbc-client"),
	}, nil
}

// Name возвращает название сети
func (c *Client) Name() string {
	return "solana"
}

// Head получает последний финализированный слот и его блок.
func (c *Client) Head(ctx context.Context) (*blockchain.Block, error) {
	var slot uint64
	err := c.pool.Execute(ctx, "getSlot", func(ctx context.Context, client *solanarpc.Client) error {
		var err error
		slot, err = client.GetSlot(ctx, solanarpc.CommitmentFinalized)
		return err
	})
	if err != nil {
		c.logger.Debug("GetSlot error", zap.Error(err))
		return nil, err
	}
	return c.BlockByNumber(ctx, slot)
}

// BlockByNumber получает сводку блока для слота.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*blockchain.Block, error) {
	res, err := c.getBlock(ctx, number)
	if err != nil {
		return nil, err
	}
	return convertBlock(number, res), nil
}

// TransactionsByNumber получает транзакции блока в порядке их следования в блоке.
func (c *Client) TransactionsByNumber(ctx context.Context, number uint64) ([]*blockchain.Transaction, error) {
	res, err := c.getBlock(ctx, number)
	if err != nil {
		return nil, err
	}
	return convertTransactions(number, res)
}

func (c *Client) getBlock(ctx context.Context, slot uint64) (*solanarpc.GetBlockResult, error) {
	c.mu.Lock()
	if c.lastBlock != nil && c.lastSlot == slot {
		res := c.lastBlock
		c.mu.Unlock()
		return res, nil
	}
	c.mu.Unlock()

	rewards := false
	var res *solanarpc.GetBlockResult
	err := c.pool.Execute(ctx, "getBlock", func(ctx context.Context, client *solanarpc.Client) error {
		var err error
		res, err = client.GetBlockWithOpts(ctx, slot, &solanarpc.GetBlockOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     solanarpc.CommitmentFinalized,
			TransactionDetails:             solanarpc.TransactionDetailsFull,
			Rewards:                        &rewards,
			MaxSupportedTransactionVersion: &maxTransactionVersion,
		})
		if err != nil {
			if IsSlotUnavailable(err) {
				return &blockchain.NotFoundError{Number: slot}
			}
			return err
		}
		if res == nil {
			return &blockchain.NotFoundError{Number: slot}
		}
		return nil
	})
	if err != nil {
		c.logger.Debug("GetBlock error", zap.Uint64("slot", slot), zap.Error(err))
		return nil, err
	}

	c.mu.Lock()
	c.lastSlot, c.lastBlock = slot, res
	c.mu.Unlock()
	return res, nil
}

// Гарантируем, что Client реализует интерфейс blockchain.Provider.
var _ blockchain.Provider = (*Client)(nil)

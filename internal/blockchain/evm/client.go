// internal/blockchain/evm/client.go
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/hieutrtr/blockchain-practices-sub001/internal/blockchain"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/blockchain/rpc"
)

// Client – адаптер EVM-совместимого узла поверх go-ethereum ethclient.
type Client struct {
	pool    *rpc.Pool[*ethclient.Client]
	clients []*ethclient.Client
	logger  *zap.Logger

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient подключается ко всем узлам списка. Для HTTP-эндпоинтов соединение
// устанавливается лениво, при первом запросе.
func NewClient(ctx context.Context, urls []string, opts rpc.Options, logger *zap.Logger) (*Client, error) {
	endpoints := make([]rpc.Endpoint[*ethclient.Client], 0, len(urls))
	clients := make([]*ethclient.Client, 0, len(urls))
	for _, u := range urls {
		ec, err := ethclient.DialContext(ctx, u)
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, fmt.Errorf("failed to dial %s: %w", u, err)
		}
		clients = append(clients, ec)
		endpoints = append(endpoints, rpc.Endpoint[*ethclient.Client]{URL: u, Client: ec})
	}

	pool, err := rpc.NewPool(endpoints, opts, logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		pool:    pool,
		clients: clients,
		logger:  logger.Named("evm-client"),
	}, nil
}

// Name возвращает название сети
func (c *Client) Name() string {
	return "evm"
}

// Head получает заголовок последнего блока.
func (c *Client) Head(ctx context.Context) (*blockchain.Block, error) {
	var header *types.Header
	err := c.pool.Execute(ctx, "eth_getBlockByNumber", func(ctx context.Context, ec *ethclient.Client) error {
		var err error
		header, err = ec.HeaderByNumber(ctx, nil)
		return err
	})
	if err != nil {
		c.logger.Debug("Head error", zap.Error(err))
		return nil, err
	}
	return headerToBlock(header), nil
}

// BlockByNumber получает заголовок блока по номеру.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*blockchain.Block, error) {
	var header *types.Header
	err := c.pool.Execute(ctx, "eth_getBlockByNumber", func(ctx context.Context, ec *ethclient.Client) error {
		var err error
		header, err = ec.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		return notFound(err, number)
	})
	if err != nil {
		return nil, err
	}
	return headerToBlock(header), nil
}

// TransactionsByNumber получает тело блока и квитанции, из квитанций берутся
// gasUsed, статус и фактическая цена газа.
func (c *Client) TransactionsByNumber(ctx context.Context, number uint64) ([]*blockchain.Transaction, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	var block *types.Block
	err = c.pool.Execute(ctx, "eth_getBlockByNumber", func(ctx context.Context, ec *ethclient.Client) error {
		var err error
		block, err = ec.BlockByNumber(ctx, new(big.Int).SetUint64(number))
		return notFound(err, number)
	})
	if err != nil {
		return nil, err
	}
	if len(block.Transactions()) == 0 {
		return []*blockchain.Transaction{}, nil
	}

	var receipts []*types.Receipt
	err = c.pool.Execute(ctx, "eth_getBlockReceipts", func(ctx context.Context, ec *ethclient.Client) error {
		var err error
		receipts, err = ec.BlockReceipts(ctx, gethrpc.BlockNumberOrHashWithNumber(gethrpc.BlockNumber(number)))
		return notFound(err, number)
	})
	if err != nil {
		return nil, err
	}

	return convertTransactions(number, block.Transactions(), receipts, types.LatestSignerForChainID(chainID))
}

// ChainID возвращает идентификатор сети, запрашивая его один раз.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chainID != nil {
		return c.chainID, nil
	}

	var id *big.Int
	err := c.pool.Execute(ctx, "eth_chainId", func(ctx context.Context, ec *ethclient.Client) error {
		var err error
		id, err = ec.ChainID(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.chainID = id
	return id, nil
}

// Close закрывает все соединения
func (c *Client) Close() {
	for _, ec := range c.clients {
		ec.Close()
	}
}

func notFound(err error, number uint64) error {
	if errors.Is(err, ethereum.NotFound) {
		return &blockchain.NotFoundError{Number: number}
	}
	return err
}

func headerToBlock(h *types.Header) *blockchain.Block {
	return &blockchain.Block{
		Number:     h.Number.Uint64(),
		Hash:       h.Hash().Hex(),
		ParentHash: h.ParentHash.Hex(),
		Timestamp:  time.Unix(int64(h.Time), 0).UTC(),
		GasUsed:    h.GasUsed,
		GasLimit:   h.GasLimit,
	}
}

func convertTransactions(number uint64, txs types.Transactions, receipts []*types.Receipt, signer types.Signer) ([]*blockchain.Transaction, error) {
	if len(receipts) != len(txs) {
		return nil, fmt.Errorf("%w: block %d has %d transactions and %d receipts",
			blockchain.ErrInvalidResponse, number, len(txs), len(receipts))
	}

	result := make([]*blockchain.Transaction, 0, len(txs))
	for i, tx := range txs {
		receipt := receipts[i]
		if receipt.TxHash != tx.Hash() {
			return nil, fmt.Errorf("%w: receipt %d does not match tx %s",
				blockchain.ErrInvalidResponse, i, tx.Hash().Hex())
		}

		from, err := types.Sender(signer, tx)
		if err != nil {
			return nil, fmt.Errorf("couldn't get tx sender %s: %w", tx.Hash().Hex(), err)
		}

		var to *string
		if tx.To() != nil {
			addr := tx.To().Hex()
			to = &addr
		}

		gasPrice := receipt.EffectiveGasPrice
		if gasPrice == nil {
			gasPrice = tx.GasPrice()
		}

		result = append(result, &blockchain.Transaction{
			Hash:        tx.Hash().Hex(),
			BlockNumber: number,
			Index:       uint(i),
			From:        from.Hex(),
			To:          to,
			Value:       new(big.Int).Set(tx.Value()),
			GasUsed:     receipt.GasUsed,
			GasPrice:    new(big.Int).Set(gasPrice),
			Status:      receipt.Status,
		})
	}
	return result, nil
}

// Гарантируем, что Client реализует интерфейс blockchain.Provider.
var _ blockchain.Provider = (*Client)(nil)

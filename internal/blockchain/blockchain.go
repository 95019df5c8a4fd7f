// internal/blockchain/blockchain.go
package blockchain

import (
	"context"
)

// Provider описывает источник данных блокчейна (архивный узел, публичный RPC, шлюз).
// Любая реализация взаимозаменяема: оркестратору важна только эта семантика.
type Provider interface {
	// Name возвращает название сети провайдера.
	Name() string
	// Head возвращает последний известный блок.
	Head(ctx context.Context) (*Block, error)
	// BlockByNumber возвращает блок по номеру или *NotFoundError.
	BlockByNumber(ctx context.Context, number uint64) (*Block, error)
	// TransactionsByNumber возвращает транзакции блока в порядке их индекса.
	TransactionsByNumber(ctx context.Context, number uint64) ([]*Transaction, error)
}

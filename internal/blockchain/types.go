// internal/blockchain/types.go
package blockchain

import (
	"math/big"
	"time"
)

// Block – сводка блока, которую индексатор сохраняет в хранилище.
type Block struct {
	Number     uint64
	Hash       string
	ParentHash string
	Timestamp  time.Time
	GasUsed    uint64
	GasLimit   uint64
}

// Transaction – транзакция блока. Value и GasPrice могут выходить за пределы
// uint64, поэтому хранятся как *big.Int и никогда не приводятся к float.
type Transaction struct {
	Hash        string
	BlockNumber uint64
	Index       uint
	From        string
	// To равен nil для транзакций создания контракта.
	To       *string
	Value    *big.Int
	GasUsed  uint64
	GasPrice *big.Int
	Status   uint64
}

// Статусы исполнения транзакции.
const (
	StatusFailed  uint64 = 0
	StatusSuccess uint64 = 1
)

// IsContractCreation сообщает, что у транзакции нет получателя.
func (t *Transaction) IsContractCreation() bool {
	return t.To == nil
}

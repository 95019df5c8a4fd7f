// internal/storage/models/transaction.go
package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hieutrtr/blockchain-practices-sub001/internal/blockchain"
)

// Transaction – строка таблицы transactions. Value и GasPrice хранятся как
// decimal(65,0): это предел точности DECIMAL в MySQL, в postgres тот же тип numeric.
type Transaction struct {
	Hash        string          `gorm:"primaryKey;type:varchar(88)"`
	BlockNumber uint64          `gorm:"index;not null"`
	TxIndex     uint            `gorm:"not null"`
	FromAddress string          `gorm:"index;not null;type:varchar(44)"`
	ToAddress   *string         `gorm:"index;type:varchar(44)"`
	Value       decimal.Decimal `gorm:"type:decimal(65,0);not null"`
	GasUsed     uint64          `gorm:"not null"`
	GasPrice    decimal.Decimal `gorm:"type:decimal(65,0);not null"`
	Status      uint64          `gorm:"not null"`
	CreatedAt   time.Time

	Block *Block `gorm:"foreignKey:BlockNumber;references:Number;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// NewTransaction переводит доменную транзакцию в строку таблицы
func NewTransaction(tx *blockchain.Transaction) *Transaction {
	row := &Transaction{
		Hash:        tx.Hash,
		BlockNumber: tx.BlockNumber,
		TxIndex:     tx.Index,
		FromAddress: tx.From,
		ToAddress:   tx.To,
		Value:       decimal.Zero,
		GasUsed:     tx.GasUsed,
		GasPrice:    decimal.Zero,
		Status:      tx.Status,
	}
	if tx.Value != nil {
		row.Value = decimal.NewFromBigInt(tx.Value, 0)
	}
	if tx.GasPrice != nil {
		row.GasPrice = decimal.NewFromBigInt(tx.GasPrice, 0)
	}
	return row
}

// internal/storage/models/block.go
package models

import (
	"time"

	"github.com/hieutrtr/blockchain-practices-sub001/internal/blockchain"
)

// Block – строка таблицы blocks. Номер блока является первичным ключом.
type Block struct {
	Number     uint64    `gorm:"primaryKey;autoIncrement:false"`
	Hash       string    `gorm:"uniqueIndex;not null;type:varchar(88)"`
	ParentHash string    `gorm:"not null;type:varchar(88)"`
	Timestamp  time.Time `gorm:"index;not null"`
	GasUsed    uint64    `gorm:"not null"`
	GasLimit   uint64    `gorm:"not null"`
	CreatedAt  time.Time
}

func (Block) TableName() string {
	return "blocks"
}

// NewBlock переводит доменный блок в строку таблицы
func NewBlock(b *blockchain.Block) *Block {
	return &Block{
		Number:     b.Number,
		Hash:       b.Hash,
		ParentHash: b.ParentHash,
		Timestamp:  b.Timestamp,
		GasUsed:    b.GasUsed,
		GasLimit:   b.GasLimit,
	}
}

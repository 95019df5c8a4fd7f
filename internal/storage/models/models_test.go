package models

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hieutrtr/blockchain-practices-sub001/internal/blockchain"
)

func TestNewTransactionKeepsPrecision(t *testing.T) {
	value, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	assert.True(t, ok)

	row := NewTransaction(&blockchain.Transaction{
		Hash:        "0xabc",
		BlockNumber: 10,
		Index:       3,
		From:        "0xfrom",
		Value:       value,
		GasPrice:    big.NewInt(30_000_000_000),
		GasUsed:     21_000,
		Status:      blockchain.StatusSuccess,
	})

	assert.Equal(t, "123456789012345678901234567890", row.Value.String())
	assert.Equal(t, "30000000000", row.GasPrice.String())
	assert.Nil(t, row.ToAddress)
	assert.Equal(t, uint(3), row.TxIndex)
}

func TestNewTransactionNilAmounts(t *testing.T) {
	row := NewTransaction(&blockchain.Transaction{Hash: "0x1"})
	assert.True(t, row.Value.IsZero())
	assert.True(t, row.GasPrice.IsZero())
}

func TestNewBlock(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0).UTC()
	row := NewBlock(&blockchain.Block{Number: 5, Hash: "0x5", ParentHash: "0x4", Timestamp: ts, GasUsed: 1, GasLimit: 2})

	assert.Equal(t, uint64(5), row.Number)
	assert.Equal(t, "0x5", row.Hash)
	assert.Equal(t, "0x4", row.ParentHash)
	assert.Equal(t, ts, row.Timestamp)
	assert.Equal(t, "blocks", row.TableName())
}

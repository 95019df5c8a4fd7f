// internal/blockchain/solbc/convert.go
package solbc

import (
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/hieutrtr/blockchain-practices-sub001/internal/blockchain"
)

// convertBlock строит сводку блока. gasUsed – сумма вычислительных единиц
// всех транзакций слота.
func convertBlock(slot uint64, res *solanarpc.GetBlockResult) *blockchain.Block {
	var used uint64
	for _, twm := range res.Transactions {
		if twm.Meta != nil && twm.Meta.ComputeUnitsConsumed != nil {
			used += *twm.Meta.ComputeUnitsConsumed
		}
	}

	var ts time.Time
	if res.BlockTime != nil {
		ts = res.BlockTime.Time().UTC()
	}

	return &blockchain.Block{
		Number:     slot,
		Hash:       res.Blockhash.String(),
		ParentHash: res.PreviousBlockhash.String(),
		Timestamp:  ts,
		GasUsed:    used,
		GasLimit:   maxBlockComputeUnits,
	}
}

// convertTransactions декодирует транзакции блока (base64) и переводит их в общую модель.
func convertTransactions(slot uint64, res *solanarpc.GetBlockResult) ([]*blockchain.Transaction, error) {
	result := make([]*blockchain.Transaction, 0, len(res.Transactions))
	for i, twm := range res.Transactions {
		tx, err := twm.GetTransaction()
		if err != nil {
			return nil, fmt.Errorf("failed to decode transaction %d in slot %d: %w", i, slot, err)
		}
		if len(tx.Signatures) == 0 || len(tx.Message.AccountKeys) == 0 {
			return nil, fmt.Errorf("%w: transaction %d in slot %d has no signatures or accounts",
				blockchain.ErrInvalidResponse, i, slot)
		}

		out := &blockchain.Transaction{
			Hash:        tx.Signatures[0].String(),
			BlockNumber: slot,
			Index:       uint(i),
			From:        tx.Message.AccountKeys[0].String(),
			Value:       new(big.Int),
			GasPrice:    new(big.Int),
			Status:      blockchain.StatusSuccess,
		}

		if meta := twm.Meta; meta != nil {
			if meta.Err != nil {
				out.Status = blockchain.StatusFailed
			}
			if meta.ComputeUnitsConsumed != nil {
				out.GasUsed = *meta.ComputeUnitsConsumed
			}
			out.GasPrice.SetUint64(meta.Fee)

			value, recipient := summarizeTransfer(accountKeys(tx.Message.AccountKeys, meta.LoadedAddresses), meta.PreBalances, meta.PostBalances, meta.Fee)
			out.Value.SetUint64(value)
			if recipient != nil {
				to := recipient.String()
				out.To = &to
			}
		}

		result = append(result, out)
	}
	return result, nil
}

// accountKeys возвращает ключи в порядке балансов meta: статические,
// затем загруженные из lookup-таблиц writable и readonly (транзакции v0).
func accountKeys(static []solana.PublicKey, loaded solanarpc.LoadedAddresses) []solana.PublicKey {
	if len(loaded.Writable) == 0 && len(loaded.ReadOnly) == 0 {
		return static
	}
	keys := make([]solana.PublicKey, 0, len(static)+len(loaded.Writable)+len(loaded.ReadOnly))
	keys = append(keys, static...)
	keys = append(keys, loaded.Writable...)
	keys = append(keys, loaded.ReadOnly...)
	return keys
}

// summarizeTransfer считает, сколько лампортов ушло с плательщика комиссии (без самой комиссии),
// и находит аккаунт с наибольшим приростом баланса. Плательщик – всегда первый аккаунт.
func summarizeTransfer(keys []solana.PublicKey, pre, post []uint64, fee uint64) (uint64, *solana.PublicKey) {
	n := len(keys)
	if len(pre) < n {
		n = len(pre)
	}
	if len(post) < n {
		n = len(post)
	}
	if n == 0 {
		return 0, nil
	}

	var value uint64
	if pre[0] > post[0]+fee {
		value = pre[0] - post[0] - fee
	}

	var (
		recipient *solana.PublicKey
		best      uint64
	)
	for i := 1; i < n; i++ {
		if post[i] > pre[i] && post[i]-pre[i] > best {
			best = post[i] - pre[i]
			key := keys[i]
			recipient = &key
		}
	}
	return value, recipient
}

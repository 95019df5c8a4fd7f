// internal/blockchain/solbc/errors.go
package solbc

import (
	"errors"
	"strings"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// Коды ошибок JSON-RPC, которыми узел сообщает об отсутствии блока в слоте.
const (
	codeBlockNotAvailable          = -32004
	codeSlotSkipped                = -32007
	codeLongTermStorageSlotSkipped = -32009
	codeBlockStatusNotAvailable    = -32014
)

// IsSlotUnavailable проверяет, является ли ошибка "блока нет"
// (слот пропущен лидером или ещё не доступен узлу).
func IsSlotUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, solanarpc.ErrNotFound) {
		return true
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case codeBlockNotAvailable, codeSlotSkipped, codeLongTermStorageSlotSkipped, codeBlockStatusNotAvailable:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "was skipped") || strings.Contains(msg, "not available for slot")
}

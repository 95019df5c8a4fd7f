// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/hieutrtr/blockchain-practices-sub001/internal/storage/models"
)

// Storage определяет интерфейс для работы с хранилищем.
// Все записи идемпотентны: повторная запись блока с тем же номером или
// транзакции с тем же хэшем ничего не меняет и не является ошибкой.
type Storage interface {
	// Блоки и транзакции
	SaveBlock(ctx context.Context, block *models.Block) error
	SaveTransaction(ctx context.Context, tx *models.Transaction) error

	// Статистика
	Summary(ctx context.Context) (*Summary, error)

	// История запусков
	SaveRun(ctx context.Context, run *models.IngestionRun) error

	RunMigrations(ctx context.Context) error
	Close() error
}

// Summary – агрегаты по хранилищу. LatestBlock и OldestBlock равны nil, пока блоков нет.
type Summary struct {
	TotalBlocks       int64
	TotalTransactions int64
	LatestBlock       *uint64
	OldestBlock       *uint64
}

// internal/storage/memory/memory.go
package memory

import (
	"context"
	"sync"

	"github.com/hieutrtr/blockchain-practices-sub001/internal/storage"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/storage/models"
)

// Storage хранит данные в памяти процесса. Используется для пробных
// запусков без базы данных и в тестах; семантика записи та же, что у sqlstore.
type Storage struct {
	mu           sync.RWMutex
	blocks       map[uint64]*models.Block
	blockHashes  map[string]uint64
	transactions map[string]*models.Transaction
	runs         []*models.IngestionRun
}

// NewStorage создает пустое хранилище
func NewStorage() *Storage {
	return &Storage{
		blocks:       make(map[uint64]*models.Block),
		blockHashes:  make(map[string]uint64),
		transactions: make(map[string]*models.Transaction),
	}
}

// SaveBlock сохраняет блок, повтор по номеру или хэшу игнорируется
func (m *Storage) SaveBlock(_ context.Context, block *models.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blocks[block.Number]; ok {
		return nil
	}
	// второй уникальный ключ: блок с тем же хэшем под другим номером тоже игнорируется
	if _, ok := m.blockHashes[block.Hash]; ok {
		return nil
	}

	row := *block
	m.blocks[block.Number] = &row
	m.blockHashes[block.Hash] = block.Number
	return nil
}

// SaveTransaction сохраняет транзакцию, блок должен уже быть в хранилище
func (m *Storage) SaveTransaction(_ context.Context, tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blocks[tx.BlockNumber]; !ok {
		return storage.Wrap("save_transaction", storage.ErrUnknownBlock)
	}
	if _, ok := m.transactions[tx.Hash]; ok {
		return nil
	}

	row := *tx
	m.transactions[tx.Hash] = &row
	return nil
}

// Summary считает блоки и транзакции и границы диапазона номеров
func (m *Storage) Summary(_ context.Context) (*storage.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := &storage.Summary{
		TotalBlocks:       int64(len(m.blocks)),
		TotalTransactions: int64(len(m.transactions)),
	}
	for number := range m.blocks {
		n := number
		if s.LatestBlock == nil || n > *s.LatestBlock {
			s.LatestBlock = &n
		}
		if s.OldestBlock == nil || n < *s.OldestBlock {
			s.OldestBlock = &n
		}
	}
	return s, nil
}

// SaveRun добавляет запись аудита о запуске
func (m *Storage) SaveRun(_ context.Context, run *models.IngestionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := *run
	m.runs = append(m.runs, &row)
	return nil
}

// Runs возвращает копию истории запусков
func (m *Storage) Runs() []models.IngestionRun {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.IngestionRun, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, *r)
	}
	return out
}

// Block возвращает сохранённый блок по номеру
func (m *Storage) Block(number uint64) (*models.Block, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.blocks[number]
	if !ok {
		return nil, false
	}
	row := *b
	return &row, true
}

// RunMigrations ничего не делает: схемы нет
func (m *Storage) RunMigrations(_ context.Context) error {
	return nil
}

// Close ничего не делает
func (m *Storage) Close() error {
	return nil
}

var _ storage.Storage = (*Storage)(nil)

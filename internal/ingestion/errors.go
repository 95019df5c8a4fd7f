// internal/ingestion/errors.go
package ingestion

import "errors"

var (
	// ErrAlreadyRunning возвращается, если запуск уже выполняется. Очереди нет.
	ErrAlreadyRunning = errors.New("ingestion is already running")

	// ErrInvalidBlockCount возвращается при blockCount < 1
	ErrInvalidBlockCount = errors.New("block count must be at least 1")
)

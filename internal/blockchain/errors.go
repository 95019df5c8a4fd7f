// internal/blockchain/errors.go
package blockchain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound возникает, когда провайдер ещё не знает о запрошенном блоке
	ErrNotFound = errors.New("block not found")

	// ErrInvalidResponse возникает при получении некорректного ответа
	ErrInvalidResponse = errors.New("invalid RPC response")
)

// NetworkError представляет ошибку провайдера с дополнительным контекстом
type NetworkError struct {
	Err      error
	Endpoint string
	Method   string
}

// Error реализует интерфейс error
func (e *NetworkError) Error() string {
	return fmt.Sprintf("RPC error [%s] at %s: %v", e.Method, e.Endpoint, e.Err)
}

// Unwrap возвращает оригинальную ошибку
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError создает новую сетевую ошибку
func NewNetworkError(err error, endpoint, method string) error {
	return &NetworkError{
		Err:      err,
		Endpoint: endpoint,
		Method:   method,
	}
}

// NotFoundError сообщает, что блока с таким номером у провайдера нет.
type NotFoundError struct {
	Number uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("block %d not found", e.Number)
}

// Is позволяет проверять ошибку через errors.Is(err, ErrNotFound).
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound проверяет, является ли ошибка "not found"
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNetworkError проверяет, пришла ли ошибка от провайдера
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// internal/storage/errors.go
package storage

import (
	"errors"
	"fmt"
)

// ErrUnknownBlock возникает при попытке сохранить транзакцию для блока, которого нет в хранилище
var ErrUnknownBlock = errors.New("transaction references unknown block")

// StorageError – ошибка записи или чтения хранилища
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Wrap оборачивает ошибку в *StorageError, nil остаётся nil
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError проверяет, пришла ли ошибка из хранилища
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

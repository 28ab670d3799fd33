package repo

import "errors"

// Ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate — нарушение уникальности (например, повторный
	// idempotency key).
	ErrDuplicate = errors.New("duplicate record")
)

package entity

import "errors"

// Ошибки entity host.
var (
	// ErrUnknownEntity — нет handler'а для данного имени entity.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrUnknownOperation — entity не поддерживает операцию.
	ErrUnknownOperation = errors.New("unknown entity operation")

	// ErrInvalidInput — вход операции имеет неожиданный тип.
	ErrInvalidInput = errors.New("invalid entity operation input")
)

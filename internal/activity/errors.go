package activity

import "errors"

// Ошибки реестра activities.
var (
	// ErrUnknownActivity — процессор с таким именем не зарегистрирован.
	ErrUnknownActivity = errors.New("unknown activity")

	// ErrMissingInput — во входе задачи нет обязательного поля.
	ErrMissingInput = errors.New("missing activity input field")
)

// Типы managed-ошибок.
const (
	ErrTypeFetchFailed     = "fetch_failed"
	ErrTypeMalformedOutput = "malformed_llm_output"
	ErrTypeEmptyDiff       = "empty_diff"
	ErrTypeSnapshotMissing = "snapshot_missing"
)

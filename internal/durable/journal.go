package durable

import (
	"fmt"
	"time"
)

// EntryKind — вид suspension point в журнале.
type EntryKind string

// Виды записей журнала.
const (
	EntryEntity   EntryKind = "entity"
	EntryActivity EntryKind = "activity"
	EntryTimer    EntryKind = "timer"
	EntryEvent    EntryKind = "event"
	EntryTime     EntryKind = "time"
)

// Entry — мемоизированный результат одного suspension point.
//
// Журнал — упорядоченный список Entry; при replay записи потребляются
// строго в порядке программы. Value сериализуется в JSON при
// персистентном хранении, поэтому читается через типизированные
// хелперы, терпимые к JSON round-trip.
type Entry struct {
	// Kind — вид suspension point.
	Kind EntryKind `json:"kind"`

	// Name — имя эффекта: "entity/key/op", имя activity, имя события.
	Name string `json:"name"`

	// Value — мемоизированный результат (bool, map, RFC3339-строка).
	Value any `json:"value,omitempty"`

	// Failed + Err — зафиксированная ошибка activity.
	Failed bool   `json:"failed,omitempty"`
	Err    string `json:"err,omitempty"`
}

// timeValue читает time.Time из Value с учётом JSON round-trip
// (после перезагрузки журнала time.Time становится строкой).
func (e *Entry) timeValue() (time.Time, error) {
	switch v := e.Value.(type) {
	case time.Time:
		return v, nil
	case string:
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("journal time entry: %w", err)
		}
		return ts, nil
	default:
		return time.Time{}, fmt.Errorf("journal time entry: unexpected type %T", e.Value)
	}
}

// mapValue читает map[string]any из Value.
func (e *Entry) mapValue() map[string]any {
	if m, ok := e.Value.(map[string]any); ok {
		return m
	}
	return nil
}

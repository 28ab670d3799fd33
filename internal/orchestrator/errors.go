package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shaiso/Covenant/internal/domain"
)

// ErrResetNotConfirmed — RESET выполнен, но GET_STATUS так и не
// подтвердил закрытие breaker за отведённые попытки.
var ErrResetNotConfirmed = errors.New("circuit reset not confirmed")

// Типы ошибок оркестратора. Managed-ошибки несут собственный
// error_type из ответа activity.
const (
	ErrTypeUnmanaged    = "unmanaged_exception"
	ErrTypeInvalidInput = "invalid_input"
)

// Error — финальная ошибка упавшего orchestration instance.
//
// Error() сериализует её в JSON с конденсированным стеком
// (file:line:function, без абсолютных путей): сообщение переживает
// обёртки хоста и журнала без потери деталей.
type Error struct {
	ErrorType    string   `json:"error_type"`
	Message      string   `json:"message"`
	WorkflowType string   `json:"workflow_type"`
	TaskID       string   `json:"task_id"`
	Stack        []string `json:"stack,omitempty"`
}

// Error возвращает JSON-представление.
func (e *Error) Error() string {
	b, err := json.Marshal(e)
	if err != nil {
		return e.Message
	}
	return string(b)
}

// newError строит Error с текущим конденсированным стеком.
func newError(errType, message string, data domain.OrchData) *Error {
	return &Error{
		ErrorType:    errType,
		Message:      message,
		WorkflowType: string(data.WorkflowType),
		TaskID:       data.TaskID.String(),
		Stack:        condensedStack(2),
	}
}

// condensedStack собирает стек вызовов в кортежи file:line:function.
// Пути и пакеты обрезаются до базовых имён.
func condensedStack(skip int) []string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	out := make([]string, 0, n)
	for {
		f, more := frames.Next()
		if f.Function == "" {
			break
		}
		if strings.HasPrefix(f.Function, "runtime.") {
			break
		}
		out = append(out, fmt.Sprintf("%s:%d:%s", filepath.Base(f.File), f.Line, funcBase(f.Function)))
		if !more || len(out) >= 8 {
			break
		}
	}
	return out
}

// funcBase обрезает имя функции до "Type.Method" / "Func".
func funcBase(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		fn = fn[i+1:]
	}
	if i := strings.Index(fn, "."); i >= 0 {
		fn = fn[i+1:]
	}
	return fn
}

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrchData — неизменяемый вход одного orchestration instance.
//
// Сериализуется в плоский map[string]string для передачи через
// durable runtime и activity boundary. Неизвестные ключи при
// десериализации игнорируются (forward-compatible).
type OrchData struct {
	// TaskID — идентификатор задачи, породившей instance.
	TaskID uuid.UUID

	// WorkflowType — класс задачи.
	WorkflowType WorkflowType

	// Company — компания, чей документ обрабатывается (опционально).
	Company string

	// Policy — тип документа: "terms", "privacy" и т.п. (опционально).
	Policy string

	// Timestamp — момент создания задачи (опционально).
	Timestamp time.Time
}

// Ключи сериализации OrchData.
const (
	keyTaskID       = "task_id"
	keyWorkflowType = "workflow_type"
	keyCompany      = "company"
	keyPolicy       = "policy"
	keyTimestamp    = "timestamp"
)

// ToMap сериализует OrchData в плоский mapping.
// Пустые опциональные поля опускаются.
func (d OrchData) ToMap() map[string]string {
	m := map[string]string{
		keyTaskID:       d.TaskID.String(),
		keyWorkflowType: string(d.WorkflowType),
	}
	if d.Company != "" {
		m[keyCompany] = d.Company
	}
	if d.Policy != "" {
		m[keyPolicy] = d.Policy
	}
	if !d.Timestamp.IsZero() {
		m[keyTimestamp] = d.Timestamp.UTC().Format(time.RFC3339)
	}
	return m
}

// OrchDataFromMap десериализует OrchData из mapping.
// Неизвестные ключи игнорируются; обязательны только task_id и workflow_type.
func OrchDataFromMap(m map[string]string) (OrchData, error) {
	var d OrchData

	rawID, ok := m[keyTaskID]
	if !ok {
		return d, fmt.Errorf("orch data: missing %s", keyTaskID)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return d, fmt.Errorf("orch data: parse %s: %w", keyTaskID, err)
	}
	d.TaskID = id

	rawType, ok := m[keyWorkflowType]
	if !ok {
		return d, fmt.Errorf("orch data: missing %s", keyWorkflowType)
	}
	wt, err := ParseWorkflowType(rawType)
	if err != nil {
		return d, fmt.Errorf("orch data: %w", err)
	}
	d.WorkflowType = wt

	d.Company = m[keyCompany]
	d.Policy = m[keyPolicy]

	if raw := m[keyTimestamp]; raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return d, fmt.Errorf("orch data: parse %s: %w", keyTimestamp, err)
		}
		d.Timestamp = ts
	}

	return d, nil
}

// ActivityInput возвращает вход для activity-процессора.
// Activity получает те же поля, что и orchestrator, но как map[string]any.
func (d OrchData) ActivityInput() map[string]any {
	input := make(map[string]any, 5)
	for k, v := range d.ToMap() {
		input[k] = v
	}
	return input
}

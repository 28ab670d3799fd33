package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestOrchData_RoundTrip(t *testing.T) {
	original := OrchData{
		TaskID:       uuid.New(),
		WorkflowType: WorkflowSummarizer,
		Company:      "acme",
		Policy:       "privacy",
		Timestamp:    time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC),
	}

	restored, err := OrchDataFromMap(original.ToMap())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if restored.TaskID != original.TaskID {
		t.Errorf("task id = %v, want %v", restored.TaskID, original.TaskID)
	}
	if restored.WorkflowType != original.WorkflowType {
		t.Errorf("workflow type = %v, want %v", restored.WorkflowType, original.WorkflowType)
	}
	if restored.Company != "acme" || restored.Policy != "privacy" {
		t.Errorf("document = %s/%s", restored.Company, restored.Policy)
	}
	if !restored.Timestamp.Equal(original.Timestamp) {
		t.Errorf("timestamp = %v, want %v", restored.Timestamp, original.Timestamp)
	}
}

func TestOrchData_OptionalFieldsOmitted(t *testing.T) {
	data := OrchData{TaskID: uuid.New(), WorkflowType: WorkflowMeta}
	m := data.ToMap()

	if len(m) != 2 {
		t.Errorf("map = %v, empty optional fields should be omitted", m)
	}

	restored, err := OrchDataFromMap(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if restored.Company != "" || restored.Policy != "" || !restored.Timestamp.IsZero() {
		t.Errorf("restored = %+v, want empty optionals", restored)
	}
}

func TestOrchDataFromMap_UnknownKeysIgnored(t *testing.T) {
	id := uuid.New()
	m := map[string]string{
		"task_id":       id.String(),
		"workflow_type": "judge",
		"shard":         "7",
		"trace_id":      "abc123",
	}

	restored, err := OrchDataFromMap(m)
	if err != nil {
		t.Fatalf("unknown keys must be ignored: %v", err)
	}
	if restored.TaskID != id || restored.WorkflowType != WorkflowJudge {
		t.Errorf("restored = %+v", restored)
	}
}

func TestOrchDataFromMap_MissingRequired(t *testing.T) {
	cases := []struct {
		name string
		m    map[string]string
	}{
		{"missing task id", map[string]string{"workflow_type": "meta"}},
		{"missing workflow type", map[string]string{"task_id": uuid.New().String()}},
		{"bad task id", map[string]string{"task_id": "not-a-uuid", "workflow_type": "meta"}},
		{"unknown workflow type", map[string]string{"task_id": uuid.New().String(), "workflow_type": "mystery"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := OrchDataFromMap(tc.m); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestTask_OrchDataCarriesTaskFields(t *testing.T) {
	task := &Task{
		ID:           uuid.New(),
		WorkflowType: WorkflowWebScraper,
		Company:      "acme",
		Policy:       "terms",
		CreatedAt:    time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
	}

	data := task.OrchData()
	if data.TaskID != task.ID {
		t.Errorf("task id = %v, want %v", data.TaskID, task.ID)
	}
	if data.WorkflowType != WorkflowWebScraper {
		t.Errorf("workflow type = %v", data.WorkflowType)
	}
	if !data.Timestamp.Equal(task.CreatedAt) {
		t.Errorf("timestamp = %v, want creation time", data.Timestamp)
	}
}

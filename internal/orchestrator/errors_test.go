package orchestrator

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Covenant/internal/domain"
)

func TestError_JSONShape(t *testing.T) {
	data := domain.OrchData{TaskID: uuid.New(), WorkflowType: domain.WorkflowJudge}
	err := newError("empty_diff", "no change detected", data)

	var decoded map[string]any
	if uerr := json.Unmarshal([]byte(err.Error()), &decoded); uerr != nil {
		t.Fatalf("Error() is not valid JSON: %v", uerr)
	}

	if decoded["error_type"] != "empty_diff" {
		t.Errorf("error_type = %v, want empty_diff", decoded["error_type"])
	}
	if decoded["message"] != "no change detected" {
		t.Errorf("message = %v", decoded["message"])
	}
	if decoded["workflow_type"] != "judge" {
		t.Errorf("workflow_type = %v, want judge", decoded["workflow_type"])
	}
	if decoded["task_id"] != data.TaskID.String() {
		t.Errorf("task_id = %v, want %s", decoded["task_id"], data.TaskID)
	}

	stack, ok := decoded["stack"].([]any)
	if !ok || len(stack) == 0 {
		t.Fatalf("stack = %v, want non-empty list", decoded["stack"])
	}

	// Frames are condensed file:line:function tuples without absolute paths.
	frame, _ := stack[0].(string)
	parts := strings.Split(frame, ":")
	if len(parts) != 3 {
		t.Errorf("frame = %q, want file:line:function", frame)
	}
	if strings.Contains(frame, "/") {
		t.Errorf("frame = %q, paths should be trimmed to base names", frame)
	}
}

func TestError_RoundTrip(t *testing.T) {
	data := domain.OrchData{TaskID: uuid.New(), WorkflowType: domain.WorkflowMeta}
	original := newError(ErrTypeUnmanaged, "connection refused", data)

	var restored Error
	if err := json.Unmarshal([]byte(original.Error()), &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if restored.ErrorType != ErrTypeUnmanaged || restored.Message != "connection refused" {
		t.Errorf("restored = %+v", restored)
	}
}

func TestManagedError_Detection(t *testing.T) {
	cases := []struct {
		name    string
		output  map[string]any
		managed bool
	}{
		{"success output", map[string]any{"summary": "changed"}, false},
		{"empty error type", map[string]any{"error_type": ""}, false},
		{"managed", map[string]any{"error_type": "fetch_failed", "message": "HTTP 503"}, true},
		{"managed without message", map[string]any{"error_type": "empty_diff"}, true},
		{"non-string error type", map[string]any{"error_type": 42}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errType, msg, managed := managedError(tc.output)
			if managed != tc.managed {
				t.Fatalf("managed = %v, want %v", managed, tc.managed)
			}
			if managed && errType == "" {
				t.Error("managed error must carry a type")
			}
			_ = msg
		})
	}
}

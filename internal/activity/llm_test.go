package activity

import (
	"context"
	"errors"
	"testing"
)

// scriptedCompleter returns canned responses in order.
type scriptedCompleter struct {
	responses []string
	err       error
	prompts   []string
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	if len(c.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func llmInput() map[string]any {
	return map[string]any{"company": "acme", "policy": "privacy"}
}

func TestSummarizePolicy_HappyPath(t *testing.T) {
	blobs := NewMemoryBlobStore()
	blobs.Put(context.Background(), "diffs/acme/privacy/2026-08-02.diff",
		[]byte("+ We may share data with partners.\n"))

	completer := &scriptedCompleter{responses: []string{
		`{"summary": "Data sharing with partners added", "categories": ["data-sharing"]}`,
	}}

	llm := NewLLM(completer, blobs)
	out, err := llm.SummarizePolicy(context.Background(), llmInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if et, _ := out["error_type"].(string); et != "" {
		t.Fatalf("unexpected managed error: %v", out)
	}
	if out["summary"] != "Data sharing with partners added" {
		t.Errorf("summary = %v", out["summary"])
	}

	// The summary is stored for the judge stage.
	key, _ := out["summary_key"].(string)
	if key == "" {
		t.Fatal("summary_key missing")
	}
	if _, err := blobs.Get(context.Background(), key); err != nil {
		t.Errorf("stored summary unreadable: %v", err)
	}
}

func TestSummarizePolicy_StripsMarkdownFences(t *testing.T) {
	blobs := NewMemoryBlobStore()
	blobs.Put(context.Background(), "diffs/acme/privacy/d.diff", []byte("+ x\n"))

	completer := &scriptedCompleter{responses: []string{
		"```json\n{\"summary\": \"fenced\", \"categories\": []}\n```",
	}}

	llm := NewLLM(completer, blobs)
	out, err := llm.SummarizePolicy(context.Background(), llmInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["summary"] != "fenced" {
		t.Errorf("summary = %v, fenced JSON should be accepted", out["summary"])
	}
}

func TestSummarizePolicy_MalformedOutput(t *testing.T) {
	blobs := NewMemoryBlobStore()
	blobs.Put(context.Background(), "diffs/acme/privacy/d.diff", []byte("+ x\n"))

	completer := &scriptedCompleter{responses: []string{"Sure! Here is the summary you asked for."}}

	llm := NewLLM(completer, blobs)
	out, err := llm.SummarizePolicy(context.Background(), llmInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Schema violations are managed: a retry may produce valid JSON.
	if out["error_type"] != ErrTypeMalformedOutput {
		t.Errorf("error_type = %v, want %s", out["error_type"], ErrTypeMalformedOutput)
	}
}

func TestSummarizePolicy_NoDiff(t *testing.T) {
	llm := NewLLM(&scriptedCompleter{}, NewMemoryBlobStore())

	out, err := llm.SummarizePolicy(context.Background(), llmInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["error_type"] != ErrTypeSnapshotMissing {
		t.Errorf("error_type = %v, want %s", out["error_type"], ErrTypeSnapshotMissing)
	}
}

func TestSummarizePolicy_CompleterFailure(t *testing.T) {
	blobs := NewMemoryBlobStore()
	blobs.Put(context.Background(), "diffs/acme/privacy/d.diff", []byte("+ x\n"))

	llm := NewLLM(&scriptedCompleter{err: errors.New("rate limited by provider")}, blobs)

	// Provider failure is unmanaged: it surfaces as a Go error.
	_, err := llm.SummarizePolicy(context.Background(), llmInput())
	if err == nil {
		t.Fatal("expected error when the completer fails")
	}
}

func TestJudgeChange_Verdict(t *testing.T) {
	blobs := NewMemoryBlobStore()
	blobs.Put(context.Background(), "summaries/acme/privacy/s.json",
		[]byte(`{"summary": "Data sharing with partners added", "categories": ["data-sharing"]}`))

	completer := &scriptedCompleter{responses: []string{
		`{"substantive": true, "reasoning": "New third-party data sharing affects users directly."}`,
	}}

	llm := NewLLM(completer, blobs)
	out, err := llm.JudgeChange(context.Background(), llmInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out["substantive"] != true {
		t.Errorf("substantive = %v, want true", out["substantive"])
	}
	if out["summary_key"] != "summaries/acme/privacy/s.json" {
		t.Errorf("summary_key = %v", out["summary_key"])
	}
}

func TestJudgeChange_EmptyReasoning(t *testing.T) {
	blobs := NewMemoryBlobStore()
	blobs.Put(context.Background(), "summaries/acme/privacy/s.json", []byte(`{"summary": "x"}`))

	completer := &scriptedCompleter{responses: []string{`{"substantive": false, "reasoning": ""}`}}

	llm := NewLLM(completer, blobs)
	out, err := llm.JudgeChange(context.Background(), llmInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["error_type"] != ErrTypeMalformedOutput {
		t.Errorf("error_type = %v, want %s", out["error_type"], ErrTypeMalformedOutput)
	}
}

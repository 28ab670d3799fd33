package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Completer — адаптер LLM-провайдера.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLM — activities с языковой моделью: summarize_policy и judge_change.
type LLM struct {
	completer Completer
	blobs     BlobStore
}

// NewLLM создаёт LLM-activities.
func NewLLM(completer Completer, blobs BlobStore) *LLM {
	return &LLM{completer: completer, blobs: blobs}
}

// summaryOutput — ожидаемая схема ответа суммаризатора.
type summaryOutput struct {
	Summary    string   `json:"summary"`
	Categories []string `json:"categories"`
}

// verdictOutput — ожидаемая схема ответа судьи.
type verdictOutput struct {
	Substantive bool   `json:"substantive"`
	Reasoning   string `json:"reasoning"`
}

// SummarizePolicy суммаризирует последний diff документа.
// Ответ модели, не проходящий схему — managed-ошибка: повторный
// вызов модели обычно даёт валидный ответ.
func (l *LLM) SummarizePolicy(ctx context.Context, input map[string]any) (map[string]any, error) {
	company, policy, err := companyPolicy(input)
	if err != nil {
		return nil, err
	}

	diff, diffKey, err := l.latestBlob(ctx, fmt.Sprintf("diffs/%s/%s/", company, policy))
	if err != nil {
		return nil, err
	}
	if diff == nil {
		return ManagedError(ErrTypeSnapshotMissing,
			fmt.Sprintf("no diff for %s/%s", company, policy)), nil
	}

	prompt := fmt.Sprintf(
		"Summarize the following change to the %s document of %s.\n"+
			"Respond with JSON: {\"summary\": string, \"categories\": [string]}.\n\n%s",
		policy, company, diff,
	)

	raw, err := l.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("summarizer completion: %w", err)
	}

	var out summaryOutput
	if err := decodeModelJSON(raw, &out); err != nil {
		return ManagedError(ErrTypeMalformedOutput, err.Error()), nil
	}
	if out.Summary == "" {
		return ManagedError(ErrTypeMalformedOutput, "summarizer returned empty summary"), nil
	}

	summaryKey := fmt.Sprintf("summaries/%s/%s/%s.json", company, policy,
		time.Now().UTC().Format(time.RFC3339))
	stored, _ := json.Marshal(out)
	if err := l.blobs.Put(ctx, summaryKey, stored); err != nil {
		return nil, fmt.Errorf("store summary: %w", err)
	}

	return map[string]any{
		"summary_key": summaryKey,
		"summary":     out.Summary,
		"categories":  out.Categories,
		"diff_key":    diffKey,
	}, nil
}

// JudgeChange выносит вердикт по последнему саммари: существенно ли
// изменение для конечного пользователя.
func (l *LLM) JudgeChange(ctx context.Context, input map[string]any) (map[string]any, error) {
	company, policy, err := companyPolicy(input)
	if err != nil {
		return nil, err
	}

	summary, summaryKey, err := l.latestBlob(ctx, fmt.Sprintf("summaries/%s/%s/", company, policy))
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return ManagedError(ErrTypeSnapshotMissing,
			fmt.Sprintf("no summary for %s/%s", company, policy)), nil
	}

	prompt := fmt.Sprintf(
		"Given this summary of a change to the %s document of %s, decide whether "+
			"the change is practically substantive to end users.\n"+
			"Respond with JSON: {\"substantive\": bool, \"reasoning\": string}.\n\n%s",
		policy, company, summary,
	)

	raw, err := l.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("judge completion: %w", err)
	}

	var out verdictOutput
	if err := decodeModelJSON(raw, &out); err != nil {
		return ManagedError(ErrTypeMalformedOutput, err.Error()), nil
	}
	if out.Reasoning == "" {
		return ManagedError(ErrTypeMalformedOutput, "judge returned empty reasoning"), nil
	}

	return map[string]any{
		"substantive": out.Substantive,
		"reasoning":   out.Reasoning,
		"summary_key": summaryKey,
	}, nil
}

// latestBlob возвращает последний blob с данным префиксом
// или (nil, "", nil), если префикс пуст.
func (l *LLM) latestBlob(ctx context.Context, prefix string) ([]byte, string, error) {
	keys, err := l.blobs.List(ctx, prefix)
	if err != nil {
		return nil, "", fmt.Errorf("list %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil, "", nil
	}

	key := keys[len(keys)-1]
	data, err := l.blobs.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return data, key, nil
}

// decodeModelJSON парсит JSON из ответа модели, срезая обрамление
// вроде markdown-ограждений.
func decodeModelJSON(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("model output is not valid JSON: %w", err)
	}
	return nil
}

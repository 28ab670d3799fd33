package activity

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Differ — activity diff_snapshots: построчное сравнение двух
// последних снапшотов документа.
type Differ struct {
	blobs BlobStore
}

// NewDiffer создаёт Differ.
func NewDiffer(blobs BlobStore) *Differ {
	return &Differ{blobs: blobs}
}

// DiffSnapshots сравнивает два последних снапшота (company, policy).
// Меньше двух снапшотов или пустой diff — managed-ошибки: состояние
// может измениться к следующей попытке.
func (d *Differ) DiffSnapshots(ctx context.Context, input map[string]any) (map[string]any, error) {
	company, policy, err := companyPolicy(input)
	if err != nil {
		return nil, err
	}

	prefix := fmt.Sprintf("snapshots/%s/%s/", company, policy)
	keys, err := d.blobs.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	if len(keys) < 2 {
		return ManagedError(ErrTypeSnapshotMissing,
			fmt.Sprintf("need 2 snapshots under %s, have %d", prefix, len(keys))), nil
	}

	prevKey, currKey := keys[len(keys)-2], keys[len(keys)-1]

	prev, err := d.blobs.Get(ctx, prevKey)
	if err != nil {
		return nil, err
	}
	curr, err := d.blobs.Get(ctx, currKey)
	if err != nil {
		return nil, err
	}

	added, removed := lineDiff(string(prev), string(curr))
	if len(added) == 0 && len(removed) == 0 {
		return ManagedError(ErrTypeEmptyDiff,
			fmt.Sprintf("%s and %s are identical", prevKey, currKey)), nil
	}

	diffKey := fmt.Sprintf("diffs/%s/%s/%s.diff", company, policy,
		time.Now().UTC().Format(time.RFC3339))
	if err := d.blobs.Put(ctx, diffKey, renderDiff(added, removed)); err != nil {
		return nil, fmt.Errorf("store diff: %w", err)
	}

	return map[string]any{
		"diff_key":      diffKey,
		"prev_snapshot": prevKey,
		"curr_snapshot": currKey,
		"added_lines":   len(added),
		"removed_lines": len(removed),
	}, nil
}

// lineDiff возвращает строки, добавленные и удалённые между версиями.
// Сравнение мультимножеств строк, без привязки к позиции: для
// policy-документов важен сам факт изменения формулировок.
func lineDiff(prev, curr string) (added, removed []string) {
	prevCount := lineCounts(prev)
	currCount := lineCounts(curr)

	for line, n := range currCount {
		if extra := n - prevCount[line]; extra > 0 {
			for i := 0; i < extra; i++ {
				added = append(added, line)
			}
		}
	}
	for line, n := range prevCount {
		if missing := n - currCount[line]; missing > 0 {
			for i := 0; i < missing; i++ {
				removed = append(removed, line)
			}
		}
	}
	return added, removed
}

// lineCounts считает вхождения непустых строк.
func lineCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			counts[line]++
		}
	}
	return counts
}

// renderDiff сериализует diff в unified-подобный текст.
func renderDiff(added, removed []string) []byte {
	var b strings.Builder
	for _, line := range removed {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	for _, line := range added {
		b.WriteString("+ ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

package activity

import (
	"context"
	"testing"
)

func diffInput() map[string]any {
	return map[string]any{"company": "acme", "policy": "privacy"}
}

func putSnapshot(t *testing.T, blobs BlobStore, name, body string) {
	t.Helper()
	if err := blobs.Put(context.Background(), "snapshots/acme/privacy/"+name, []byte(body)); err != nil {
		t.Fatalf("put snapshot: %v", err)
	}
}

func TestDiffSnapshots_DetectsChange(t *testing.T) {
	blobs := NewMemoryBlobStore()
	putSnapshot(t, blobs, "2026-08-01.html", "We collect your email.\nWe never sell data.\n")
	putSnapshot(t, blobs, "2026-08-02.html", "We collect your email.\nWe may share data with partners.\n")

	d := NewDiffer(blobs)
	out, err := d.DiffSnapshots(context.Background(), diffInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if et, _ := out["error_type"].(string); et != "" {
		t.Fatalf("unexpected managed error: %v", out)
	}
	if out["added_lines"] != 1 || out["removed_lines"] != 1 {
		t.Errorf("added=%v removed=%v, want 1/1", out["added_lines"], out["removed_lines"])
	}

	// The rendered diff is persisted for the summarizer.
	diffKey, _ := out["diff_key"].(string)
	if diffKey == "" {
		t.Fatal("diff_key missing")
	}
	data, err := blobs.Get(context.Background(), diffKey)
	if err != nil {
		t.Fatalf("stored diff unreadable: %v", err)
	}
	text := string(data)
	if text != "- We never sell data.\n+ We may share data with partners.\n" {
		t.Errorf("rendered diff = %q", text)
	}
}

func TestDiffSnapshots_UsesLastTwoSnapshots(t *testing.T) {
	blobs := NewMemoryBlobStore()
	putSnapshot(t, blobs, "2026-08-01.html", "version one\n")
	putSnapshot(t, blobs, "2026-08-02.html", "version two\n")
	putSnapshot(t, blobs, "2026-08-03.html", "version three\n")

	d := NewDiffer(blobs)
	out, err := d.DiffSnapshots(context.Background(), diffInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out["prev_snapshot"] != "snapshots/acme/privacy/2026-08-02.html" {
		t.Errorf("prev = %v, want the second-to-last snapshot", out["prev_snapshot"])
	}
	if out["curr_snapshot"] != "snapshots/acme/privacy/2026-08-03.html" {
		t.Errorf("curr = %v, want the last snapshot", out["curr_snapshot"])
	}
}

func TestDiffSnapshots_MissingSnapshots(t *testing.T) {
	blobs := NewMemoryBlobStore()
	putSnapshot(t, blobs, "2026-08-01.html", "only one version\n")

	d := NewDiffer(blobs)
	out, err := d.DiffSnapshots(context.Background(), diffInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// One snapshot is a transient condition, reported as a managed error.
	if out["error_type"] != ErrTypeSnapshotMissing {
		t.Errorf("error_type = %v, want %s", out["error_type"], ErrTypeSnapshotMissing)
	}
}

func TestDiffSnapshots_IdenticalSnapshots(t *testing.T) {
	blobs := NewMemoryBlobStore()
	putSnapshot(t, blobs, "2026-08-01.html", "same text\n")
	putSnapshot(t, blobs, "2026-08-02.html", "same text\n")

	d := NewDiffer(blobs)
	out, err := d.DiffSnapshots(context.Background(), diffInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out["error_type"] != ErrTypeEmptyDiff {
		t.Errorf("error_type = %v, want %s", out["error_type"], ErrTypeEmptyDiff)
	}
}

func TestDiffSnapshots_MissingInput(t *testing.T) {
	d := NewDiffer(NewMemoryBlobStore())

	// Absent company/policy is a caller bug, not a managed error.
	_, err := d.DiffSnapshots(context.Background(), map[string]any{"company": "acme"})
	if err == nil {
		t.Fatal("expected error for missing policy")
	}
}

func TestLineDiff_IgnoresWhitespaceAndOrder(t *testing.T) {
	added, removed := lineDiff(
		"alpha\nbeta\n\n  gamma  \n",
		"gamma\nalpha\nbeta\ndelta\n",
	)

	if len(added) != 1 || added[0] != "delta" {
		t.Errorf("added = %v, want [delta]", added)
	}
	if len(removed) != 0 {
		t.Errorf("removed = %v, reordering must not count as change", removed)
	}
}

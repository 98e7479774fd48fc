package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/awase/internal/align"
	"github.com/hyperjump/awase/internal/m2"
	"github.com/hyperjump/awase/internal/models"
)

// countingAligner wraps DiffAligner and counts batch calls.
type countingAligner struct {
	align.Aligner
	calls atomic.Int64
}

func (a *countingAligner) AlignBatch(ctx context.Context, sources, hypotheses []string) ([][]models.Edit, error) {
	a.calls.Add(1)
	return a.Aligner.AlignBatch(ctx, sources, hypotheses)
}

func TestGetOrCompute_hitSkipsAligner(t *testing.T) {
	aligner := &countingAligner{Aligner: align.NewDiffAligner()}
	c := New(NewMemoryStore())
	src := []string{"He go to school .", "I likes dogs ."}
	hyp := []string{"He goes to school .", "I like dogs ."}

	first, err := c.GetOrCompute(context.Background(), "sysA", src, hyp, aligner)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(first))
	}
	if len(first[0].Edits) != 1 || first[0].Edits[0].Replacement != "goes" {
		t.Errorf("unexpected first entry edits: %+v", first[0].Edits)
	}

	second, err := c.GetOrCompute(context.Background(), "sysA", src, hyp, aligner)
	if err != nil {
		t.Fatal(err)
	}
	if got := aligner.calls.Load(); got != 1 {
		t.Errorf("aligner invoked %d times, want 1", got)
	}
	if len(second) != len(first) {
		t.Errorf("hit returned %d entries, want %d", len(second), len(first))
	}
}

func TestInvalidate_forcesRealignment(t *testing.T) {
	aligner := &countingAligner{Aligner: align.NewDiffAligner()}
	c := New(NewMemoryStore())
	ctx := context.Background()
	src := []string{"He go to school ."}
	hyp := []string{"He goes to school ."}

	if _, err := c.GetOrCompute(ctx, "sysA", src, hyp, aligner); err != nil {
		t.Fatal(err)
	}
	if err := c.Invalidate(ctx, "sysA", src, hyp); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetOrCompute(ctx, "sysA", src, hyp, aligner); err != nil {
		t.Fatal(err)
	}
	if got := aligner.calls.Load(); got != 2 {
		t.Errorf("aligner invoked %d times after invalidation, want 2", got)
	}
}

func TestGetOrCompute_concurrentSingleAlignment(t *testing.T) {
	aligner := &countingAligner{Aligner: align.NewDiffAligner()}
	c := New(NewMemoryStore())
	src := []string{"She like cats ."}
	hyp := []string{"She likes cats ."}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetOrCompute(context.Background(), "sysA", src, hyp, aligner); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	if got := aligner.calls.Load(); got != 1 {
		t.Errorf("concurrent callers caused %d alignments, want 1", got)
	}
}

func TestGetOrCompute_alignerFailure(t *testing.T) {
	c := New(NewMemoryStore())
	failing := &failingAligner{}
	_, err := c.GetOrCompute(context.Background(), "sysA", []string{"a"}, []string{"b"}, failing)
	if err == nil {
		t.Fatal("expected aligner failure to surface")
	}
}

type failingAligner struct{}

func (a *failingAligner) Align(ctx context.Context, source, hypothesis string) ([]models.Edit, error) {
	return nil, errors.New("tool unavailable")
}

func (a *failingAligner) AlignBatch(ctx context.Context, sources, hypotheses []string) ([][]models.Edit, error) {
	return nil, errors.New("tool unavailable")
}

func (a *failingAligner) Close() error { return nil }

func TestSidecarStore_roundTripAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSidecarStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	entries := []m2.Entry{{Source: "a b", Edits: []models.Edit{{Start: 0, End: 1, Type: "R:OTHER", Replacement: "A"}}}}
	key := store.Key("sysA", nil, nil)
	if key != "sysA" {
		t.Errorf("sidecar key should be the system name, got %q", key)
	}
	if err := store.Put(ctx, key, entries); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sysA.m2")); err != nil {
		t.Fatalf("sidecar file not written: %v", err)
	}
	got, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got[0].Source != "a b" {
		t.Errorf("unexpected entry %+v", got[0])
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(ctx, key); ok {
		t.Error("entry should be gone after delete")
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("deleting a missing sidecar should not error: %v", err)
	}
}

func TestSidecarStore_malformedRegenerated(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSidecarStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	// Write garbage where the sidecar should be.
	if err := os.WriteFile(filepath.Join(dir, "sysA.m2"), []byte("not an annotation file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Get(context.Background(), "sysA"); err == nil {
		t.Fatal("malformed sidecar should error from Get")
	}

	// The cache treats that error as a miss and regenerates.
	c := New(store)
	aligner := &countingAligner{Aligner: align.NewDiffAligner()}
	src := []string{"He go ."}
	hyp := []string{"He goes ."}
	entries, err := c.GetOrCompute(context.Background(), "sysA", src, hyp, aligner)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || len(entries[0].Edits) != 1 {
		t.Errorf("unexpected regenerated entries: %+v", entries)
	}
	if got := aligner.calls.Load(); got != 1 {
		t.Errorf("aligner invoked %d times, want 1", got)
	}
	// The regenerated sidecar must now parse cleanly.
	if _, ok, err := store.Get(context.Background(), "sysA"); err != nil || !ok {
		t.Errorf("regenerated sidecar should be a clean hit: ok=%v err=%v", ok, err)
	}
}

func TestContentKey(t *testing.T) {
	a := ContentKey([]string{"x", "y"}, []string{"z"})
	b := ContentKey([]string{"x", "y"}, []string{"z"})
	if a != b {
		t.Error("same content must produce the same key")
	}
	if a == ContentKey([]string{"x"}, []string{"y", "z"}) {
		t.Error("different line splits must not collide")
	}
	if a == ContentKey([]string{"z"}, []string{"x", "y"}) {
		t.Error("swapping source and hypothesis must change the key")
	}
}

func TestSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	src := []string{"He go ."}
	hyp := []string{"He goes ."}
	key := store.Key("anything", src, hyp)
	if key != ContentKey(src, hyp) {
		t.Error("sqlite key should be content-derived")
	}

	entries := []m2.Entry{{Source: "He go .", Edits: []models.Edit{{Start: 1, End: 2, Type: "R:OTHER", Replacement: "goes"}}}}
	if err := store.Put(ctx, key, entries); err != nil {
		t.Fatal(err)
	}
	// Second write of the same key is ignored, not an error.
	if err := store.Put(ctx, key, entries); err != nil {
		t.Fatal(err)
	}
	got, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got[0].Edits[0].Replacement != "goes" {
		t.Errorf("unexpected entry %+v", got[0])
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(ctx, key); ok {
		t.Error("entry should be gone after delete")
	}
}

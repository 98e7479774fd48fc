package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/awase/internal/align"
	"github.com/hyperjump/awase/internal/cache"
	"github.com/hyperjump/awase/internal/combiner"
	"github.com/hyperjump/awase/internal/dataset"
	"github.com/hyperjump/awase/internal/decode"
	"github.com/hyperjump/awase/internal/feature"
	"github.com/hyperjump/awase/internal/models"
	"github.com/hyperjump/awase/internal/vocab"
)

// acceptAllModel scores every candidate above threshold regardless of features.
func acceptAllModel(dim int) *combiner.Model {
	m := combiner.New(dim)
	m.Bias = 5
	return m
}

// agreementModel only trusts candidates at least two systems agree on: the
// agreement count feature sits right after the membership block.
func agreementModel(v *vocab.Vocabulary) *combiner.Model {
	m := combiner.New(v.FeatureDim())
	m.Weights[len(v.Systems)*len(v.Types)] = 4
	m.Bias = -6
	return m
}

func testDataset() *dataset.Dataset {
	return &dataset.Dataset{
		Source:  []string{"He go to school .", "It rain ."},
		Target:  []string{"He goes to school .", "It rains ."},
		Systems: []string{"sysA", "sysB"},
		Hypotheses: map[string][]string{
			"sysA": {"He goes to school .", "It rain ."},
			"sysB": {"He goes to school .", "It rains ."},
		},
	}
}

func testVocab() *vocab.Vocabulary {
	return vocab.Build(
		[]string{"sysA", "sysB"},
		[]string{align.TypeMissing, align.TypeUnnecessary, align.TypeReplacement},
	)
}

func newTestPipeline(t *testing.T, m *combiner.Model, opts ...Option) *Pipeline {
	t.Helper()
	c := cache.New(cache.NewMemoryStore())
	t.Cleanup(func() { c.Close() })
	return New(
		align.NewDiffAligner(),
		c,
		feature.NewBuilder(testVocab()),
		m,
		decode.NewSelector(0.5),
		opts...,
	)
}

func TestCombine(t *testing.T) {
	v := testVocab()
	p := newTestPipeline(t, agreementModel(v), WithWorkers(2))
	d := testDataset()

	selections, err := p.Combine(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if len(selections) != 2 {
		t.Fatalf("got %d selections", len(selections))
	}
	// Both systems propose goes; only sysB proposes rains.
	if selections[0].Output != "He goes to school ." {
		t.Errorf("sentence 0 = %q", selections[0].Output)
	}
	if selections[1].Output != "It rain ." {
		t.Errorf("single-system edit should not pass the agreement model: %q", selections[1].Output)
	}
	for i, sel := range selections {
		if sel.Index != i {
			t.Errorf("selection %d has index %d", i, sel.Index)
		}
		if sel.Fallback {
			t.Errorf("sentence %d unexpectedly fell back", i)
		}
	}
}

func TestCombine_deterministic(t *testing.T) {
	v := testVocab()
	run := func() []string {
		p := newTestPipeline(t, agreementModel(v), WithWorkers(4))
		selections, err := p.Combine(context.Background(), testDataset())
		if err != nil {
			t.Fatal(err)
		}
		out := make([]string, len(selections))
		for i, s := range selections {
			out[i] = s.Output
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("sentence %d differs across runs: %q vs %q", i, a[i], b[i])
		}
	}
}

func TestCombine_identicalHypothesesPassThrough(t *testing.T) {
	p := newTestPipeline(t, acceptAllModel(testVocab().FeatureDim()))
	d := &dataset.Dataset{
		Source:  []string{"Nothing to fix here ."},
		Systems: []string{"sysA", "sysB"},
		Hypotheses: map[string][]string{
			"sysA": {"Nothing to fix here ."},
			"sysB": {"Nothing to fix here ."},
		},
	}
	selections, err := p.Combine(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if selections[0].Output != d.Source[0] {
		t.Errorf("no edits should reproduce the source: %q", selections[0].Output)
	}
}

type brokenAligner struct{}

func (brokenAligner) Align(ctx context.Context, source, hypothesis string) ([]models.Edit, error) {
	return nil, errors.New("aligner unavailable")
}

func (brokenAligner) AlignBatch(ctx context.Context, sources, hypotheses []string) ([][]models.Edit, error) {
	return nil, errors.New("aligner unavailable")
}

func (brokenAligner) Close() error { return nil }

func TestCombine_allSystemsFailed(t *testing.T) {
	c := cache.New(cache.NewMemoryStore())
	defer c.Close()
	v := testVocab()
	p := New(brokenAligner{}, c, feature.NewBuilder(v), acceptAllModel(v.FeatureDim()), decode.NewSelector(0.5))
	if _, err := p.Combine(context.Background(), testDataset()); err == nil {
		t.Fatal("expected error when no system can be aligned")
	}
}

func TestCorrectOne(t *testing.T) {
	v := testVocab()
	p := newTestPipeline(t, agreementModel(v))
	sel, err := p.CorrectOne(context.Background(), []string{"sysA", "sysB"}, "He go to school .", map[string]string{
		"sysA": "He goes to school .",
		"sysB": "He goes to school .",
	})
	if err != nil {
		t.Fatal(err)
	}
	if sel.Output != "He goes to school ." {
		t.Errorf("output = %q", sel.Output)
	}
}

func TestCorrectOne_noUsableHypotheses(t *testing.T) {
	c := cache.New(cache.NewMemoryStore())
	defer c.Close()
	v := testVocab()
	p := New(brokenAligner{}, c, feature.NewBuilder(v), acceptAllModel(v.FeatureDim()), decode.NewSelector(0.5))
	sel, err := p.CorrectOne(context.Background(), []string{"sysA"}, "He go .", map[string]string{"sysA": "He goes ."})
	if err != nil {
		t.Fatal(err)
	}
	if !sel.Fallback || sel.Output != "He go ." {
		t.Errorf("expected source passthrough fallback, got %+v", sel)
	}
}

func TestCombine_withoutModel(t *testing.T) {
	c := cache.New(cache.NewMemoryStore())
	defer c.Close()
	p := New(align.NewDiffAligner(), c, feature.NewBuilder(testVocab()), nil, nil)
	if _, err := p.Combine(context.Background(), testDataset()); err == nil {
		t.Error("expected error for model-less pipeline")
	}
}

func TestBuildTrainingExamples(t *testing.T) {
	p := newTestPipeline(t, nil)
	examples, types, err := p.BuildTrainingExamples(context.Background(), testDataset())
	if err != nil {
		t.Fatal(err)
	}
	if len(examples) != 2 {
		t.Fatalf("expected 2 candidates (goes, rains), got %d", len(examples))
	}
	for _, ex := range examples {
		if ex.Label != 1 {
			t.Errorf("candidates matching the reference must be positive: %+v", ex)
		}
		if len(ex.Features) != testVocab().FeatureDim() {
			t.Errorf("feature dimension %d", len(ex.Features))
		}
	}
	if len(types) == 0 {
		t.Error("reference alignment should yield error types")
	}
}

func TestBuildTrainingExamples_negativeLabels(t *testing.T) {
	p := newTestPipeline(t, nil)
	d := testDataset()
	// sysA now proposes a wrong fix for sentence 1.
	d.Hypotheses["sysA"][1] = "It raining ."
	examples, _, err := p.BuildTrainingExamples(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	var negatives int
	for _, ex := range examples {
		if ex.Label == 0 {
			negatives++
		}
	}
	if negatives != 1 {
		t.Errorf("the wrong fix should be a negative example: %d negatives", negatives)
	}
}

func TestBuildTrainingExamples_requiresTarget(t *testing.T) {
	p := newTestPipeline(t, nil)
	d := testDataset()
	d.Target = nil
	if _, _, err := p.BuildTrainingExamples(context.Background(), d); err == nil {
		t.Error("expected error without a reference file")
	}
}

func TestWriteOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "out.txt")
	selections := []*models.Selection{
		{Output: "He goes to school ."},
		{Output: "It rains ."},
	}
	if err := WriteOutput(path, selections); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "He goes to school .\nIt rains .\n" {
		t.Errorf("file content %q", data)
	}

	// No stray temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("unexpected leftovers in output dir: %v", entries)
	}
}

func TestCollectSystemTypes(t *testing.T) {
	edits := [][][]models.Edit{
		{{{Start: 0, End: 1, Type: "R:VERB", Replacement: "goes"}}},
		{{{Start: 0, End: 1, Type: "R:VERB", Replacement: "goes"}, {Start: 2, End: 2, Type: "M:DET", Replacement: "the"}}},
	}
	types := CollectSystemTypes(edits)
	if len(types) != 2 || !strings.Contains(strings.Join(types, ","), "M:DET") {
		t.Errorf("types = %v", types)
	}
}

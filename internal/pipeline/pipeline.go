// Package pipeline runs the end-to-end combination flow: align every base
// system's output against the source, collate the edits into scored
// candidates, and resolve conflicts into one corrected sentence per input
// sentence. It also builds the labeled examples the trainer consumes.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/awase/internal/align"
	"github.com/hyperjump/awase/internal/cache"
	"github.com/hyperjump/awase/internal/combiner"
	"github.com/hyperjump/awase/internal/dataset"
	"github.com/hyperjump/awase/internal/decode"
	"github.com/hyperjump/awase/internal/feature"
	"github.com/hyperjump/awase/internal/m2"
	"github.com/hyperjump/awase/internal/models"
	"github.com/hyperjump/awase/internal/train"
	"github.com/hyperjump/awase/pkg/utils"
)

// Pipeline combines base system outputs into corrected sentences.
type Pipeline struct {
	aligner  align.Aligner
	cache    *cache.Cache
	builder  *feature.Builder
	model    *combiner.Model
	selector *decode.Selector
	workers  int
	fallback string // system whose output replaces a sentence when alignment fails; empty means source passthrough
	runID    string
	logger   *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a logger for progress and fallback reporting.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithWorkers bounds the number of concurrent sentence decoders and aligner
// calls. Values below 1 are treated as 1.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n < 1 {
			n = 1
		}
		p.workers = n
	}
}

// WithFallbackSystem names the base system whose hypothesis stands in for a
// sentence whose alignment failed. Without it, the source passes through.
func WithFallbackSystem(system string) Option {
	return func(p *Pipeline) { p.fallback = system }
}

// New creates a pipeline. The model and selector are only needed for
// combination; a training-only pipeline may pass a nil model.
func New(aligner align.Aligner, c *cache.Cache, builder *feature.Builder, model *combiner.Model, selector *decode.Selector, opts ...Option) *Pipeline {
	p := &Pipeline{
		aligner:  aligner,
		cache:    c,
		builder:  builder,
		model:    model,
		selector: selector,
		workers:  4,
		runID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunID identifies this pipeline instance in logs and checkpoints.
func (p *Pipeline) RunID() string {
	return p.runID
}

// alignSystems aligns every system's hypotheses against the source through
// the cache, concurrently across systems. The result is indexed
// [systemIndex][sentence]. A system whose alignment fails outright is
// reported in failed and contributes no edits; alignment only degrades the
// run when every system fails.
func (p *Pipeline) alignSystems(ctx context.Context, d *dataset.Dataset) (edits [][][]models.Edit, failed []string, err error) {
	edits = make([][][]models.Edit, len(d.Systems))
	failures := make([]bool, len(d.Systems))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, sys := range d.Systems {
		i, sys := i, sys
		g.Go(func() error {
			entries, err := p.cache.GetOrCompute(gctx, sys, d.Source, d.Hypotheses[sys], p.aligner)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if p.logger != nil {
					p.logger.Warn("system alignment failed, excluding its votes",
						zap.String("system", sys), zap.Error(err))
				}
				failures[i] = true
				return nil
			}
			perSentence := make([][]models.Edit, len(entries))
			for s, e := range entries {
				perSentence[s] = e.Edits
			}
			edits[i] = perSentence
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	for i, f := range failures {
		if f {
			failed = append(failed, d.Systems[i])
		}
	}
	return edits, failed, nil
}

// Combine corrects every sentence in d and returns one selection per input
// sentence, in input order. Sentences whose candidates cannot be resolved
// fall back rather than aborting the run.
func (p *Pipeline) Combine(ctx context.Context, d *dataset.Dataset) ([]*models.Selection, error) {
	if p.model == nil || p.selector == nil {
		return nil, fmt.Errorf("pipeline has no model; combination requires a trained checkpoint")
	}
	editsBySystem, failed, err := p.alignSystems(ctx, d)
	if err != nil {
		return nil, err
	}
	if len(failed) == len(d.Systems) {
		return nil, fmt.Errorf("alignment failed for all %d systems", len(d.Systems))
	}
	if p.logger != nil {
		p.logger.Info("alignment complete",
			zap.String("run_id", p.runID),
			zap.Int("sentences", d.Len()),
			zap.Int("systems", len(d.Systems)),
			zap.Strings("failed_systems", failed))
	}

	// Featurize everything first so the model can score one flat batch.
	sentences := make([]*feature.Sentence, d.Len())
	var vectors [][]float64
	for s := 0; s < d.Len(); s++ {
		perSystem := make([][]models.Edit, len(d.Systems))
		for i := range d.Systems {
			if editsBySystem[i] != nil {
				perSystem[i] = editsBySystem[i][s]
			}
		}
		sent := p.builder.BuildSentence(perSystem, utils.TokenCount(d.Source[s]), nil)
		sentences[s] = sent
		vectors = append(vectors, sent.Vectors...)
	}
	scores := p.model.ScoreBatch(vectors)
	pos := 0
	for _, sent := range sentences {
		for _, c := range sent.Candidates {
			c.Score = scores[pos]
			pos++
		}
	}

	selections := make([]*models.Selection, d.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for s := 0; s < d.Len(); s++ {
		s := s
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			source := utils.Tokens(d.Source[s])
			sel, err := p.selector.Decode(source, sentences[s].Clusters)
			if err != nil {
				if p.logger != nil {
					p.logger.Error("decoding failed, falling back",
						zap.Int("sentence", s), zap.Error(err))
				}
				sel = p.fallbackSelection(d, s)
			}
			sel.Index = s
			selections[s] = sel
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return selections, nil
}

// fallbackSelection produces the degraded result for one sentence: the
// fallback system's hypothesis when configured and available, otherwise the
// source unchanged.
func (p *Pipeline) fallbackSelection(d *dataset.Dataset, s int) *models.Selection {
	output := d.Source[s]
	if p.fallback != "" {
		if hyp, ok := d.Hypotheses[p.fallback]; ok {
			output = hyp[s]
		}
	}
	return &models.Selection{Source: d.Source[s], Output: output, Fallback: true}
}

// CorrectOne combines the hypotheses for a single sentence, aligning them
// directly without touching the cache. Used by the HTTP service.
func (p *Pipeline) CorrectOne(ctx context.Context, systems []string, source string, hypotheses map[string]string) (*models.Selection, error) {
	if p.model == nil || p.selector == nil {
		return nil, fmt.Errorf("pipeline has no model; combination requires a trained checkpoint")
	}
	perSystem := make([][]models.Edit, len(systems))
	var aligned int
	for i, sys := range systems {
		hyp, ok := hypotheses[sys]
		if !ok {
			continue
		}
		edits, err := p.aligner.Align(ctx, source, hyp)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if p.logger != nil {
				p.logger.Warn("hypothesis alignment failed, excluding it",
					zap.String("system", sys), zap.Error(err))
			}
			continue
		}
		perSystem[i] = edits
		aligned++
	}
	if aligned == 0 {
		return &models.Selection{Source: source, Output: source, Fallback: true}, nil
	}

	sent := p.builder.BuildSentence(perSystem, utils.TokenCount(source), nil)
	scores := p.model.ScoreBatch(sent.Vectors)
	for i, c := range sent.Candidates {
		c.Score = scores[i]
	}
	sel, err := p.selector.Decode(utils.Tokens(source), sent.Clusters)
	if err != nil {
		return nil, err
	}
	return sel, nil
}

// BuildTrainingExamples aligns the systems and the reference against the
// source and labels every collated candidate against the reference edits.
// The reference alignment also yields the error type inventory, returned in
// first-seen order for the caller to build the vocabulary from.
func (p *Pipeline) BuildTrainingExamples(ctx context.Context, d *dataset.Dataset) ([]train.Example, []string, error) {
	if d.Target == nil {
		return nil, nil, fmt.Errorf("training requires a reference file")
	}
	editsBySystem, failed, err := p.alignSystems(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	if len(failed) > 0 {
		return nil, nil, fmt.Errorf("training requires every system aligned; failed: %s", strings.Join(failed, ", "))
	}

	gold, err := p.cache.GetOrCompute(ctx, "__reference__", d.Source, d.Target, p.aligner)
	if err != nil {
		return nil, nil, fmt.Errorf("reference alignment failed: %w", err)
	}
	types := collectTypes(gold)

	var examples []train.Example
	for s := 0; s < d.Len(); s++ {
		perSystem := make([][]models.Edit, len(d.Systems))
		for i := range d.Systems {
			perSystem[i] = editsBySystem[i][s]
		}
		sent := p.builder.BuildSentence(perSystem, utils.TokenCount(d.Source[s]), gold[s].Edits)
		for i, c := range sent.Candidates {
			examples = append(examples, train.Example{
				Features: sent.Vectors[i],
				Label:    float64(c.Label),
			})
		}
	}
	if len(examples) == 0 {
		return nil, nil, fmt.Errorf("no candidates collated; check that system outputs differ from the source")
	}
	if p.logger != nil {
		p.logger.Info("training examples built",
			zap.String("run_id", p.runID),
			zap.Int("examples", len(examples)),
			zap.Int("types", len(types)))
	}
	return examples, types, nil
}

// CollectSystemTypes aligns the systems and returns every error type any of
// them produced. Vocabulary building unions these with the reference types.
func CollectSystemTypes(edits [][][]models.Edit) []string {
	seen := make(map[string]struct{})
	var types []string
	for _, perSystem := range edits {
		for _, sentence := range perSystem {
			for _, e := range sentence {
				if _, ok := seen[e.Type]; !ok {
					seen[e.Type] = struct{}{}
					types = append(types, e.Type)
				}
			}
		}
	}
	return types
}

// AlignSystems exposes the cached per-system alignment for callers that need
// the raw edits, such as vocabulary construction.
func (p *Pipeline) AlignSystems(ctx context.Context, d *dataset.Dataset) ([][][]models.Edit, []string, error) {
	return p.alignSystems(ctx, d)
}

func collectTypes(entries []m2.Entry) []string {
	seen := make(map[string]struct{})
	var types []string
	for _, entry := range entries {
		for _, e := range entry.Edits {
			if _, ok := seen[e.Type]; !ok {
				seen[e.Type] = struct{}{}
				types = append(types, e.Type)
			}
		}
	}
	return types
}

// WriteOutput writes one corrected sentence per line. The file appears
// atomically: content goes to a temp file in the same directory first.
func WriteOutput(path string, selections []*models.Selection) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	var b strings.Builder
	for _, sel := range selections {
		b.WriteString(sel.Output)
		b.WriteByte('\n')
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".out-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

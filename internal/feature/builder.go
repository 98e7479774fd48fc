// Package feature turns per-system edit lists into conflict clusters and
// numeric feature vectors for the combiner model. The vector layout is a
// pure function of the vocabulary, which is what keeps training and
// inference consistent.
package feature

import (
	"sort"

	"github.com/hyperjump/awase/internal/models"
	"github.com/hyperjump/awase/internal/vocab"
)

// Builder builds feature vectors against a fixed vocabulary.
type Builder struct {
	vocab *vocab.Vocabulary
}

// NewBuilder creates a builder over v.
func NewBuilder(v *vocab.Vocabulary) *Builder {
	return &Builder{vocab: v}
}

// Vocabulary returns the vocabulary the builder was created with.
func (b *Builder) Vocabulary() *vocab.Vocabulary {
	return b.vocab
}

// Collate merges the edit lists of all systems for one sentence into
// candidates keyed by (start, end, replacement). Systems proposing exactly
// the same span and replacement collapse into one candidate carrying all
// their votes; the per-system error types are preserved in the votes.
// perSystem is indexed by the vocabulary's system index. The result is in
// deterministic (start, end, replacement) order.
func Collate(perSystem [][]models.Edit) []*models.Candidate {
	type key struct {
		start, end  int
		replacement string
	}
	byKey := make(map[key]*models.Candidate)
	for sysIdx, edits := range perSystem {
		for _, e := range edits {
			k := key{e.Start, e.End, e.Replacement}
			c, ok := byKey[k]
			if !ok {
				c = &models.Candidate{Start: e.Start, End: e.End, Replacement: e.Replacement, Label: -1}
				byKey[k] = c
			}
			c.Votes = append(c.Votes, models.Vote{System: sysIdx, Type: e.Type})
		}
	}
	out := make([]*models.Candidate, 0, len(byKey))
	for _, c := range byKey {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		if out[i].End != out[j].End {
			return out[i].End < out[j].End
		}
		return out[i].Replacement < out[j].Replacement
	})
	return out
}

// ClusterOverlapping groups candidates into maximal conflict clusters: two
// candidates land in the same cluster iff they are connected through a chain
// of span overlaps. Candidates must be in (start, end, ...) order, as
// returned by Collate. The sweep runs on the scaled grid so insertion
// conflicts are plain interval intersection.
func ClusterOverlapping(candidates []*models.Candidate) []*models.Cluster {
	var clusters []*models.Cluster
	var current *models.Cluster
	maxEnd := 0
	for _, c := range candidates {
		s, e := models.ScaledSpan(c.Start, c.End)
		if current == nil || s >= maxEnd {
			current = &models.Cluster{}
			clusters = append(clusters, current)
			maxEnd = e
		} else if e > maxEnd {
			maxEnd = e
		}
		current.Candidates = append(current.Candidates, c)
	}
	return clusters
}

// Vector builds the feature vector for one candidate. Layout: a K×T
// membership block with a slot per (system, type) pair, then the global
// features: agreeing-system count, span length, relative position in the
// sentence, and replacement token count. Votes from systems or types outside
// the vocabulary contribute nothing; this only happens at inference time
// when a system invents a type unseen in training.
func (b *Builder) Vector(c *models.Candidate, sentenceLen int) []float64 {
	numTypes := len(b.vocab.Types)
	vec := make([]float64, b.vocab.FeatureDim())
	for _, v := range c.Votes {
		if v.System < 0 || v.System >= len(b.vocab.Systems) {
			continue
		}
		if ti := b.vocab.TypeIndex(v.Type); ti >= 0 {
			vec[v.System*numTypes+ti] = 1
		}
	}
	base := len(b.vocab.Systems) * numTypes
	vec[base] = float64(c.SystemCount())
	vec[base+1] = float64(c.End - c.Start)
	if sentenceLen > 0 {
		vec[base+2] = float64(c.Start) / float64(sentenceLen)
	}
	vec[base+3] = float64(len(c.ReplacementTokens()))
	return vec
}

// LabelCandidates sets Label to 1 on candidates whose (span, replacement)
// exactly matches a gold edit, and 0 otherwise. Candidates absent from the
// gold alignment are labeled 0, never dropped.
func LabelCandidates(candidates []*models.Candidate, gold []models.Edit) {
	type key struct {
		start, end  int
		replacement string
	}
	goldSet := make(map[key]struct{}, len(gold))
	for _, e := range gold {
		goldSet[key{e.Start, e.End, e.Replacement}] = struct{}{}
	}
	for _, c := range candidates {
		if _, ok := goldSet[key{c.Start, c.End, c.Replacement}]; ok {
			c.Label = 1
		} else {
			c.Label = 0
		}
	}
}

// Sentence is the featurized form of one sentence: its conflict clusters and
// the feature vectors of every candidate, in cluster order.
type Sentence struct {
	Clusters   []*models.Cluster
	Candidates []*models.Candidate
	Vectors    [][]float64
}

// BuildSentence collates, clusters, and featurizes one sentence's edits.
// When gold is non-nil the candidates are labeled against it.
func (b *Builder) BuildSentence(perSystem [][]models.Edit, sentenceLen int, gold []models.Edit) *Sentence {
	candidates := Collate(perSystem)
	if gold != nil {
		LabelCandidates(candidates, gold)
	}
	clusters := ClusterOverlapping(candidates)
	vectors := make([][]float64, len(candidates))
	for i, c := range candidates {
		vectors[i] = b.Vector(c, sentenceLen)
	}
	return &Sentence{Clusters: clusters, Candidates: candidates, Vectors: vectors}
}

// Package decode resolves scored, possibly conflicting edit candidates into
// one consistent edit set per sentence and renders the corrected sentence.
// Conflict resolution is exact weighted interval scheduling over the
// sentence's token axis, so the chosen subset's total weight is provably
// maximal among all non-overlapping subsets.
package decode

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/awase/internal/models"
	"github.com/hyperjump/awase/pkg/utils"
)

// ErrOverlap reports that the optimizer produced overlapping edits, which
// violates its own invariant and indicates a bug, not bad input.
var ErrOverlap = errors.New("selected edits overlap")

// DefaultThreshold is the score below which accepting an edit is never
// beneficial.
const DefaultThreshold = 0.5

// Selector chooses the maximum-weight non-overlapping candidate subset.
type Selector struct {
	threshold float64
}

// NewSelector creates a selector. Candidates scoring at or below threshold
// are pruned before solving; a non-positive threshold falls back to the default.
func NewSelector(threshold float64) *Selector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Selector{threshold: threshold}
}

// Threshold returns the pruning threshold.
func (s *Selector) Threshold() float64 {
	return s.threshold
}

// interval is a candidate lifted onto the scaled coordinate grid.
type interval struct {
	start, end int
	weight     float64
	cand       *models.Candidate
}

// Select returns the maximum-weight set of pairwise non-overlapping
// candidates drawn from clusters, ordered by span start. Weight is the
// log-odds of the score, so scores near 1 dominate and "accept nothing in a
// cluster" (total weight 0) beats any subset of sub-threshold candidates.
// On equal totals the subset retaining the earlier-starting candidate wins.
func (s *Selector) Select(clusters []*models.Cluster) ([]*models.Candidate, error) {
	var iv []interval
	for _, cl := range clusters {
		for _, c := range cl.Candidates {
			if c.Score <= s.threshold {
				continue
			}
			st, en := models.ScaledSpan(c.Start, c.End)
			iv = append(iv, interval{start: st, end: en, weight: utils.LogOdds(c.Score), cand: c})
		}
	}
	if len(iv) == 0 {
		return nil, nil
	}
	sort.Slice(iv, func(i, j int) bool {
		if iv[i].end != iv[j].end {
			return iv[i].end < iv[j].end
		}
		if iv[i].start != iv[j].start {
			return iv[i].start < iv[j].start
		}
		return iv[i].cand.Replacement < iv[j].cand.Replacement
	})

	n := len(iv)
	// prev[i]: index of the last interval ending at or before iv[i] starts, or -1.
	prev := make([]int, n)
	for i := range iv {
		prev[i] = -1
		lo, hi := 0, i-1
		for lo <= hi {
			mid := (lo + hi) / 2
			if iv[mid].end <= iv[i].start {
				prev[i] = mid
				lo = mid + 1
			} else {
				hi = mid - 1
			}
		}
	}

	best := make([]float64, n+1)
	take := make([]bool, n+1)
	for i := 1; i <= n; i++ {
		with := iv[i-1].weight
		if prev[i-1] >= 0 {
			with += best[prev[i-1]+1]
		}
		// Ties prefer taking: with end-sorted intervals this keeps the
		// earlier-starting edit among equal-weight alternatives.
		if with >= best[i-1] {
			best[i] = with
			take[i] = true
		} else {
			best[i] = best[i-1]
		}
	}

	var chosen []*models.Candidate
	for i := n; i > 0; {
		if take[i] {
			chosen = append(chosen, iv[i-1].cand)
			i = prev[i-1] + 1
		} else {
			i--
		}
	}
	// A zero-width insertion sorts before a span starting at the same point,
	// so Apply renders the inserted tokens ahead of the replaced span.
	sort.SliceStable(chosen, func(i, j int) bool {
		if chosen[i].Start != chosen[j].Start {
			return chosen[i].Start < chosen[j].Start
		}
		return chosen[i].End < chosen[j].End
	})

	for i := 1; i < len(chosen); i++ {
		if chosen[i-1].Overlaps(chosen[i]) {
			return nil, fmt.Errorf("%w: [%d,%d) and [%d,%d)", ErrOverlap,
				chosen[i-1].Start, chosen[i-1].End, chosen[i].Start, chosen[i].End)
		}
	}
	return chosen, nil
}

// Apply renders the corrected sentence by replacing each selected span with
// its replacement, left to right. Spans are the stored source-token offsets;
// since selected spans are disjoint, the running offset accounts for length
// changes without renumbering.
func Apply(source []string, selected []*models.Candidate) (string, error) {
	out := make([]string, 0, len(source))
	pos := 0
	for _, c := range selected {
		if c.Start < pos || c.End > len(source) || c.Start > c.End {
			return "", fmt.Errorf("edit span [%d,%d) is out of order or out of bounds for %d tokens", c.Start, c.End, len(source))
		}
		out = append(out, source[pos:c.Start]...)
		out = append(out, c.ReplacementTokens()...)
		pos = c.End
	}
	out = append(out, source[pos:]...)
	return strings.Join(out, " "), nil
}

// Decode selects and applies in one step, producing the per-sentence result.
func (s *Selector) Decode(source []string, clusters []*models.Cluster) (*models.Selection, error) {
	chosen, err := s.Select(clusters)
	if err != nil {
		return nil, err
	}
	output, err := Apply(source, chosen)
	if err != nil {
		return nil, err
	}
	return &models.Selection{
		Source:  strings.Join(source, " "),
		Applied: chosen,
		Output:  output,
	}, nil
}

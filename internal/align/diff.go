package align

import (
	"context"
	"strings"

	"github.com/hyperjump/awase/internal/models"
)

// Edit types emitted by the diff aligner, matching the coarse categories of
// the external tool: missing (insertion), unnecessary (deletion), replacement.
const (
	TypeMissing     = "M:OTHER"
	TypeUnnecessary = "U:OTHER"
	TypeReplacement = "R:OTHER"
)

// DiffAligner is a deterministic built-in aligner based on a token-level
// longest common subsequence. It assigns only coarse edit types, so it is
// weaker than a linguistic aligner, but it needs no external tool: it serves
// as a fallback and as the deterministic aligner used in tests.
type DiffAligner struct{}

// NewDiffAligner returns the built-in token-diff aligner.
func NewDiffAligner() *DiffAligner {
	return &DiffAligner{}
}

// Align computes edits by diffing the token sequences of source and hypothesis.
// Adjacent non-matching runs collapse into a single edit, so the result is
// span-disjoint and ordered by span start.
func (a *DiffAligner) Align(ctx context.Context, source, hypothesis string) ([]models.Edit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := strings.Fields(source)
	hyp := strings.Fields(hypothesis)

	// LCS table over (src, hyp).
	n, m := len(src), len(hyp)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if src[i] == hyp[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var edits []models.Edit
	i, j := 0, 0
	for i < n || j < m {
		if i < n && j < m && src[i] == hyp[j] {
			i++
			j++
			continue
		}
		// Collect the maximal non-matching run starting here.
		iStart, jStart := i, j
		for i < n || j < m {
			if i < n && j < m && src[i] == hyp[j] {
				break
			}
			if i < n && (j >= m || lcs[i+1][j] >= lcs[i][j+1]) {
				i++
			} else {
				j++
			}
		}
		edits = append(edits, models.Edit{
			Start:       iStart,
			End:         i,
			Type:        diffType(i-iStart, j-jStart),
			Replacement: strings.Join(hyp[jStart:j], " "),
		})
	}
	return edits, nil
}

func diffType(deleted, inserted int) string {
	switch {
	case deleted == 0:
		return TypeMissing
	case inserted == 0:
		return TypeUnnecessary
	default:
		return TypeReplacement
	}
}

// AlignBatch aligns each pair in turn.
func (a *DiffAligner) AlignBatch(ctx context.Context, sources, hypotheses []string) ([][]models.Edit, error) {
	return batchAlign(ctx, a, sources, hypotheses)
}

// Close is a no-op for DiffAligner.
func (a *DiffAligner) Close() error {
	return nil
}

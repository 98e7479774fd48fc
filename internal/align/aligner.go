// Package align provides the aligner port: computing edits between a source
// sentence and a hypothesis sentence. The combination pipeline depends only
// on the Aligner contract, so the linguistic tool behind it is swappable.
package align

import (
	"context"
	"fmt"

	"github.com/hyperjump/awase/internal/models"
)

// Aligner computes the ordered edits that transform a source sentence into a
// hypothesis sentence. Edits from one call are span-disjoint and ordered by
// span start. The context bounds the call; callers set a hard per-call
// timeout and treat expiry as a recoverable per-sentence failure.
type Aligner interface {
	Align(ctx context.Context, source, hypothesis string) ([]models.Edit, error)
	AlignBatch(ctx context.Context, sources, hypotheses []string) ([][]models.Edit, error)
	Close() error
}

// batchAlign implements AlignBatch by looping Align; used by aligners with no
// native batch mode.
func batchAlign(ctx context.Context, a Aligner, sources, hypotheses []string) ([][]models.Edit, error) {
	if len(sources) != len(hypotheses) {
		return nil, fmt.Errorf("source count %d does not match hypothesis count %d", len(sources), len(hypotheses))
	}
	out := make([][]models.Edit, len(sources))
	for i := range sources {
		edits, err := a.Align(ctx, sources[i], hypotheses[i])
		if err != nil {
			return nil, fmt.Errorf("sentence %d: %w", i, err)
		}
		out[i] = edits
	}
	return out, nil
}

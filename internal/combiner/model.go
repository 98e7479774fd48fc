// Package combiner provides the learned scorer: a logistic model mapping an
// edit's feature vector to the probability that the edit should be applied.
package combiner

import (
	"fmt"

	"github.com/hyperjump/awase/pkg/utils"
)

// Model is a logistic scorer over fixed-dimension feature vectors.
// Scoring is a pure function of the parameters and the input.
type Model struct {
	Weights []float64
	Bias    float64
}

// New creates a zero-initialized model for dim-dimensional features.
func New(dim int) *Model {
	return &Model{Weights: make([]float64, dim)}
}

// Dim returns the feature dimension the model was built for.
func (m *Model) Dim() int {
	return len(m.Weights)
}

// Score returns the probability in [0,1] that the edit described by vec
// should be applied.
func (m *Model) Score(vec []float64) float64 {
	return utils.Sigmoid(m.Raw(vec))
}

// Raw returns the pre-sigmoid activation w·x + b.
func (m *Model) Raw(vec []float64) float64 {
	z := m.Bias
	for i, w := range m.Weights {
		z += w * vec[i]
	}
	return z
}

// ScoreBatch scores every vector in one pass.
func (m *Model) ScoreBatch(vecs [][]float64) []float64 {
	out := make([]float64, len(vecs))
	for i, v := range vecs {
		out[i] = m.Score(v)
	}
	return out
}

// CheckDim returns an error when vec does not match the model dimension.
// A mismatch means features were built against a different vocabulary.
func (m *Model) CheckDim(vec []float64) error {
	if len(vec) != len(m.Weights) {
		return fmt.Errorf("feature vector has dimension %d but model expects %d", len(vec), len(m.Weights))
	}
	return nil
}

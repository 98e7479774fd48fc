// Package train fits the combiner model from labeled edit candidates using
// minibatch gradient descent on a binary cross-entropy loss. Training is
// reproducible: the same data, vocabulary, and seed always produce the same
// parameters.
package train

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/awase/internal/combiner"
	"github.com/hyperjump/awase/internal/config"
)

// Example is one training instance: a feature vector and its binary label.
type Example struct {
	Features []float64
	Label    float64
}

// Metrics summarizes classifier quality on a labeled set. FHalf weighs
// precision over recall, mirroring the external scorer's emphasis.
type Metrics struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	FHalf     float64
}

// Trainer fits combiner models according to the configured hyperparameters.
type Trainer struct {
	cfg    *config.TrainConfig
	logger *zap.Logger // optional; when set, logs per-epoch progress
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets a logger for training progress output.
func WithLogger(l *zap.Logger) Option {
	return func(t *Trainer) { t.logger = l }
}

// New creates a trainer with the given hyperparameters.
func New(cfg *config.TrainConfig, opts ...Option) *Trainer {
	t := &Trainer{cfg: cfg}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Fit runs epochs of minibatch SGD over examples, updating model in place.
// Shuffling draws from rng, so a fixed seed fixes the visit order. Returns
// the mean loss of the final epoch.
func (t *Trainer) Fit(model *combiner.Model, examples []Example, epochs int, rng *rand.Rand) float64 {
	lr := t.cfg.LearningRate
	wd := t.cfg.WeightDecay
	batchSize := t.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}

	dim := model.Dim()
	grad := make([]float64, dim)
	var lastLoss float64

	for epoch := 0; epoch < epochs; epoch++ {
		order := rng.Perm(len(examples))
		var epochLoss float64
		var batches int
		for lo := 0; lo < len(order); lo += batchSize {
			hi := lo + batchSize
			if hi > len(order) {
				hi = len(order)
			}
			for i := range grad {
				grad[i] = 0
			}
			var biasGrad, batchLoss float64
			for _, idx := range order[lo:hi] {
				ex := examples[idx]
				p := model.Score(ex.Features)
				batchLoss += bceLoss(p, ex.Label)
				// d(loss)/d(activation) for sigmoid + cross-entropy.
				delta := p - ex.Label
				for i, x := range ex.Features {
					grad[i] += delta * x
				}
				biasGrad += delta
			}
			n := float64(hi - lo)
			for i := range model.Weights {
				model.Weights[i] -= lr * (grad[i]/n + wd*model.Weights[i])
			}
			model.Bias -= lr * biasGrad / n
			epochLoss += batchLoss / n
			batches++
		}
		if batches > 0 {
			lastLoss = epochLoss / float64(batches)
		}
		if t.logger != nil {
			t.logger.Debug("epoch finished", zap.Int("epoch", epoch), zap.Float64("loss", lastLoss))
		}
	}
	return lastLoss
}

func bceLoss(p, y float64) float64 {
	const eps = 1e-12
	if p < eps {
		p = eps
	}
	if p > 1-eps {
		p = 1 - eps
	}
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}

// FitSelect trains a model for dim-dimensional features. It holds out one
// fold of the data, trains up to the configured epoch budget while tracking
// F0.5 on the held-out fold to find the best epoch, then retrains from
// scratch on the full (upsampled) data for exactly that many epochs. Returns
// the final model and the selected epoch count.
func (t *Trainer) FitSelect(dim int, examples []Example) (*combiner.Model, int, error) {
	if len(examples) == 0 {
		return nil, 0, fmt.Errorf("no training examples")
	}
	for _, ex := range examples {
		if len(ex.Features) != dim {
			return nil, 0, fmt.Errorf("example has dimension %d, want %d", len(ex.Features), dim)
		}
	}

	folds := t.cfg.Folds
	if folds < 2 {
		folds = 2
	}
	rng := rand.New(rand.NewSource(t.cfg.Seed))
	trainSet, heldOut := split(examples, folds, rng)
	if len(heldOut) == 0 || len(trainSet) == 0 {
		// Too little data to hold anything out; train the full budget.
		trainSet, heldOut = examples, examples
	}

	trainSet, err := Upsample(trainSet, t.cfg.Upsample, rng)
	if err != nil {
		return nil, 0, err
	}

	model := combiner.New(dim)
	bestEpoch := 0
	bestScore := -1.0
	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		t.Fit(model, trainSet, 1, rng)
		m := Evaluate(model, heldOut)
		if t.logger != nil {
			t.logger.Debug("validation",
				zap.Int("epoch", epoch),
				zap.Float64("accuracy", m.Accuracy),
				zap.Float64("f0.5", m.FHalf))
		}
		if m.FHalf > bestScore {
			bestScore = m.FHalf
			bestEpoch = epoch
		}
	}
	if t.logger != nil {
		t.logger.Info("best epoch selected",
			zap.Int("epoch", bestEpoch),
			zap.Float64("f0.5", bestScore))
	}

	// Full retrain with a fresh generator from the same seed, so the final
	// parameters depend only on (data, seed, bestEpoch).
	rng = rand.New(rand.NewSource(t.cfg.Seed))
	full, err := Upsample(examples, t.cfg.Upsample, rng)
	if err != nil {
		return nil, 0, err
	}
	final := combiner.New(dim)
	t.Fit(final, full, bestEpoch+1, rng)
	return final, bestEpoch, nil
}

// split shuffles examples and holds out roughly 1/folds of them.
func split(examples []Example, folds int, rng *rand.Rand) (trainSet, heldOut []Example) {
	order := rng.Perm(len(examples))
	holdN := len(examples) / folds
	for i, idx := range order {
		if i < holdN {
			heldOut = append(heldOut, examples[idx])
		} else {
			trainSet = append(trainSet, examples[idx])
		}
	}
	return trainSet, heldOut
}

// Evaluate scores examples at the 0.5 decision point and returns accuracy,
// precision, recall, and F0.5. By convention precision is 1 when nothing is
// predicted positive and recall is 1 when nothing is positive.
func Evaluate(m *combiner.Model, examples []Example) Metrics {
	var tp, tn, predPos, truePos float64
	for _, ex := range examples {
		pred := 0.0
		if m.Score(ex.Features) >= 0.5 {
			pred = 1
		}
		predPos += pred
		truePos += ex.Label
		if pred == 1 && ex.Label == 1 {
			tp++
		}
		if pred == 0 && ex.Label == 0 {
			tn++
		}
	}
	precision := 1.0
	if predPos > 0 {
		precision = tp / predPos
	}
	recall := 1.0
	if truePos > 0 {
		recall = tp / truePos
	}
	fhalf := 0.0
	if precision+recall > 0 {
		fhalf = (1 + 0.25) * precision * recall / (0.25*precision + recall)
	}
	accuracy := 0.0
	if len(examples) > 0 {
		accuracy = (tp + tn) / float64(len(examples))
	}
	return Metrics{Accuracy: accuracy, Precision: precision, Recall: recall, FHalf: fhalf}
}

// Upsample duplicates examples per class according to a "<class0>:<class1>"
// ratio, e.g. "1:2" doubles the positive class. Ratios are normalized so the
// smaller side stays at 1. An empty ratio returns the input unchanged.
func Upsample(examples []Example, ratio string, rng *rand.Rand) ([]Example, error) {
	if ratio == "" {
		return examples, nil
	}
	parts := strings.Split(ratio, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("upsample ratio %q must have the form class0:class1, e.g. 1:2", ratio)
	}
	r0, err0 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	r1, err1 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err0 != nil || err1 != nil || r0 <= 0 || r1 <= 0 {
		return nil, fmt.Errorf("upsample ratio %q must contain two positive numbers", ratio)
	}
	minR := math.Min(r0, r1)
	ratios := []float64{r0 / minR, r1 / minR}

	out := append([]Example(nil), examples...)
	for class, r := range ratios {
		add := r - 1
		if add <= 0 {
			continue
		}
		var classIdx []int
		for i, ex := range examples {
			if int(ex.Label) == class {
				classIdx = append(classIdx, i)
			}
		}
		if len(classIdx) == 0 {
			continue
		}
		// Whole duplicates first, then a sampled remainder.
		whole := int(add)
		for c := 0; c < whole; c++ {
			for _, i := range classIdx {
				out = append(out, examples[i])
			}
		}
		rem := int(math.Round((add - float64(whole)) * float64(len(classIdx))))
		for _, j := range rng.Perm(len(classIdx))[:rem] {
			out = append(out, examples[classIdx[j]])
		}
	}
	return out, nil
}

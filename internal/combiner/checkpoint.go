package combiner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/hyperjump/awase/internal/vocab"
)

// checkpointVersion is bumped when the serialized layout changes.
const checkpointVersion = 1

// Checkpoint is the persisted form of a trained model, versioned against the
// vocabulary it was trained with. A model is meaningless against a
// differently sized or ordered vocabulary, so loading validates both the
// dimension and the vocabulary checksum.
type Checkpoint struct {
	Version       int       `json:"version"`
	RunID         string    `json:"run_id,omitempty"`
	TrainedAt     time.Time `json:"trained_at"`
	Systems       int       `json:"systems"`
	Types         int       `json:"types"`
	Dim           int       `json:"dim"`
	VocabChecksum string    `json:"vocab_checksum"`
	BestEpoch     int       `json:"best_epoch"`
	Weights       []float64 `json:"weights"`
	Bias          float64   `json:"bias"`
}

// NewCheckpoint captures model parameters together with the vocabulary they
// are coupled to.
func NewCheckpoint(m *Model, v *vocab.Vocabulary, runID string, bestEpoch int) *Checkpoint {
	return &Checkpoint{
		Version:       checkpointVersion,
		RunID:         runID,
		TrainedAt:     time.Now().UTC(),
		Systems:       len(v.Systems),
		Types:         len(v.Types),
		Dim:           m.Dim(),
		VocabChecksum: v.Checksum(),
		BestEpoch:     bestEpoch,
		Weights:       m.Weights,
		Bias:          m.Bias,
	}
}

// Model returns the scorer held by the checkpoint.
func (ck *Checkpoint) Model() *Model {
	return &Model{Weights: ck.Weights, Bias: ck.Bias}
}

// Validate returns an error when the checkpoint does not belong to v.
func (ck *Checkpoint) Validate(v *vocab.Vocabulary) error {
	if ck.VocabChecksum != v.Checksum() {
		return fmt.Errorf("model was trained against a different vocabulary (checksum %s, current %s)",
			ck.VocabChecksum, v.Checksum())
	}
	if ck.Dim != v.FeatureDim() {
		return fmt.Errorf("model dimension %d does not match vocabulary feature dimension %d", ck.Dim, v.FeatureDim())
	}
	return nil
}

// SaveCheckpoint writes the checkpoint as gzip-compressed JSON, atomically.
func SaveCheckpoint(path string, ck *Checkpoint) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create model directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	zw := gzip.NewWriter(tmp)
	if err := json.NewEncoder(zw).Encode(ck); err != nil {
		zw.Close()
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// LoadCheckpoint reads a checkpoint written by SaveCheckpoint. Any decoding
// failure or internal inconsistency means the file is corrupted, which
// callers treat as fatal.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("corrupted model file %s: %w", path, err)
	}
	defer zr.Close()
	var ck Checkpoint
	if err := json.NewDecoder(zr).Decode(&ck); err != nil {
		return nil, fmt.Errorf("corrupted model file %s: %w", path, err)
	}
	if ck.Version != checkpointVersion {
		return nil, fmt.Errorf("model file %s has version %d, want %d", path, ck.Version, checkpointVersion)
	}
	if len(ck.Weights) != ck.Dim {
		return nil, fmt.Errorf("corrupted model file %s: %d weights for dimension %d", path, len(ck.Weights), ck.Dim)
	}
	return &ck, nil
}

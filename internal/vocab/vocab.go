// Package vocab provides the stable ordered index over base systems and
// error types that couples training to inference. The index assignment is
// derived from a canonical ordering, never from filesystem-scan order, and
// any mismatch between a persisted vocabulary and the current run's system
// set is a fatal configuration error.
package vocab

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// GlobalFeatures is the number of feature slots appended after the
// per-system membership block: agreeing-system count, span length,
// relative position, replacement token count.
const GlobalFeatures = 4

// Vocabulary maps base-system identifiers and error types to stable indices.
// Index is implied by position; both lists are in canonical (lexical) order.
type Vocabulary struct {
	Systems []string
	Types   []string

	systemIdx map[string]int
	typeIdx   map[string]int
}

// Build creates a vocabulary from system identifiers and error types.
// Input order is irrelevant: both lists are deduplicated and sorted
// lexically, so the same sets always produce the same index assignment.
func Build(systems, types []string) *Vocabulary {
	v := &Vocabulary{
		Systems: canonical(systems),
		Types:   canonical(types),
	}
	v.index()
	return v
}

func canonical(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (v *Vocabulary) index() {
	v.systemIdx = make(map[string]int, len(v.Systems))
	for i, s := range v.Systems {
		v.systemIdx[s] = i
	}
	v.typeIdx = make(map[string]int, len(v.Types))
	for i, t := range v.Types {
		v.typeIdx[t] = i
	}
}

// SystemIndex returns the index of the system identifier, or -1 if absent.
func (v *Vocabulary) SystemIndex(id string) int {
	if i, ok := v.systemIdx[id]; ok {
		return i
	}
	return -1
}

// TypeIndex returns the index of the error type, or -1 if absent.
func (v *Vocabulary) TypeIndex(t string) int {
	if i, ok := v.typeIdx[t]; ok {
		return i
	}
	return -1
}

// FeatureDim returns the feature-vector dimensionality implied by the
// vocabulary: one membership slot per (system, type) pair plus the fixed
// global features. This must match between training and inference.
func (v *Vocabulary) FeatureDim() int {
	return len(v.Systems)*len(v.Types) + GlobalFeatures
}

// Matches reports whether systems, as a set, equals the vocabulary's system set.
func (v *Vocabulary) Matches(systems []string) bool {
	return v.Validate(systems) == nil
}

// Validate returns a descriptive error when systems does not match the
// vocabulary's system set exactly. A mismatch means the persisted vocabulary
// was built from a different system manifest, so features would be
// misaligned; callers must treat this as fatal.
func (v *Vocabulary) Validate(systems []string) error {
	current := canonical(systems)
	if len(current) != len(v.Systems) {
		return fmt.Errorf("vocabulary has %d systems %v but current run has %d systems %v",
			len(v.Systems), v.Systems, len(current), current)
	}
	for i := range current {
		if current[i] != v.Systems[i] {
			return fmt.Errorf("vocabulary system %d is %q but current run has %q", i, v.Systems[i], current[i])
		}
	}
	return nil
}

// Checksum returns a stable digest over the ordered system and type lists,
// persisted into model checkpoints so a model cannot be loaded against a
// vocabulary it was not trained with.
func (v *Vocabulary) Checksum() string {
	h := sha256.New()
	for _, s := range v.Systems {
		h.Write([]byte("S:" + s + "\n"))
	}
	for _, t := range v.Types {
		h.Write([]byte("T:" + t + "\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Save persists the vocabulary: the system list at systemsPath and the type
// list at typesPath, one identifier per line, index implied by line number.
func Save(v *Vocabulary, systemsPath, typesPath string) error {
	if err := writeList(systemsPath, v.Systems); err != nil {
		return fmt.Errorf("failed to write system vocabulary: %w", err)
	}
	if err := writeList(typesPath, v.Types); err != nil {
		return fmt.Errorf("failed to write type vocabulary: %w", err)
	}
	return nil
}

// Load reads a vocabulary persisted by Save. The lists are reloaded verbatim:
// if the file order is not canonical the file was tampered with, which is an error.
func Load(systemsPath, typesPath string) (*Vocabulary, error) {
	systems, err := readList(systemsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read system vocabulary: %w", err)
	}
	types, err := readList(typesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read type vocabulary: %w", err)
	}
	if !sort.StringsAreSorted(systems) || !sort.StringsAreSorted(types) {
		return nil, fmt.Errorf("vocabulary files %s, %s are not in canonical order", systemsPath, typesPath)
	}
	v := &Vocabulary{Systems: systems, Types: types}
	v.index()
	return v, nil
}

func writeList(path string, items []string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	for _, item := range items {
		if _, err := tmp.WriteString(item + "\n"); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func readList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			items = append(items, line)
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s contains no identifiers", path)
	}
	return items, nil
}

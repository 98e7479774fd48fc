// Package dataset loads the parallel text files a run operates on: one
// source file, optionally one reference file, and one corrected output file
// per base system, all line-aligned.
package dataset

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Dataset holds the line-aligned inputs for a run. Hypotheses is keyed by
// system name; every slice has the same length as Source.
type Dataset struct {
	Source     []string
	Target     []string // nil when no reference file is present
	Systems    []string // lexical order; index is the system id used in votes
	Hypotheses map[string][]string
}

// Len returns the number of sentences.
func (d *Dataset) Len() int {
	return len(d.Source)
}

// ReadLines reads a text file into one string per line. A trailing newline
// does not produce an empty final element.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}

// ListSystems derives the system manifest from a data directory: every
// regular file except the source and target files is one system, named by
// its file name, in lexical order.
func ListSystems(dir, sourceName, targetName string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing data dir: %w", err)
	}
	var systems []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == sourceName || name == targetName || strings.HasPrefix(name, ".") {
			continue
		}
		systems = append(systems, name)
	}
	sort.Strings(systems)
	if len(systems) == 0 {
		return nil, fmt.Errorf("no system output files in %s", dir)
	}
	return systems, nil
}

// Load reads the source file, the system output files, and, when withTarget
// is set, the reference file from dir. Any line-count mismatch against the
// source is a hard error naming the offending file and both counts.
func Load(dir, sourceName, targetName string, systems []string, withTarget bool) (*Dataset, error) {
	source, err := ReadLines(filepath.Join(dir, sourceName))
	if err != nil {
		return nil, fmt.Errorf("loading source: %w", err)
	}
	if len(source) == 0 {
		return nil, fmt.Errorf("source file %s is empty", filepath.Join(dir, sourceName))
	}

	d := &Dataset{
		Source:     source,
		Systems:    append([]string(nil), systems...),
		Hypotheses: make(map[string][]string, len(systems)),
	}
	sort.Strings(d.Systems)

	for _, sys := range d.Systems {
		path := filepath.Join(dir, sys)
		lines, err := ReadLines(path)
		if err != nil {
			return nil, fmt.Errorf("loading system %s: %w", sys, err)
		}
		if len(lines) != len(source) {
			return nil, fmt.Errorf("system file %s has %d lines, source has %d", path, len(lines), len(source))
		}
		d.Hypotheses[sys] = lines
	}

	if withTarget {
		path := filepath.Join(dir, targetName)
		target, err := ReadLines(path)
		if err != nil {
			return nil, fmt.Errorf("loading target: %w", err)
		}
		if len(target) != len(source) {
			return nil, fmt.Errorf("target file %s has %d lines, source has %d", path, len(target), len(source))
		}
		d.Target = target
	}
	return d, nil
}

// Package m2 reads and writes the line-oriented edit-annotation format used
// as the persisted form of the edit cache: per sentence one "S <source>"
// header line followed by zero or more "A ..." edit lines, entries separated
// by a blank line.
package m2

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hyperjump/awase/internal/models"
)

// Entry holds the source sentence and the edits aligning one hypothesis to it.
type Entry struct {
	Source string
	Edits  []models.Edit
}

// ignoredTypes are pseudo-edits emitted by aligners that carry no correction.
var ignoredTypes = map[string]struct{}{
	"noop": {},
	"UNK":  {},
	"Um":   {},
}

// Ignored reports whether editType is a pseudo-type that parsing drops.
func Ignored(editType string) bool {
	_, ok := ignoredTypes[editType]
	return ok
}

// Parse reads entries from r. Malformed edit lines are an error so that a
// corrupted sidecar is detected and treated as a cache miss by callers.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []Entry
	var current *Entry
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		switch {
		case strings.HasPrefix(text, "S "), text == "S":
			entries = append(entries, Entry{Source: strings.TrimPrefix(strings.TrimPrefix(text, "S"), " ")})
			current = &entries[len(entries)-1]
		case strings.HasPrefix(text, "A "):
			if current == nil {
				return nil, fmt.Errorf("line %d: edit line before any source line", line)
			}
			edit, skip, err := parseEditLine(text)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			if !skip {
				current.Edits = append(current.Edits, edit)
			}
		case strings.TrimSpace(text) == "":
			current = nil
		default:
			return nil, fmt.Errorf("line %d: %q is not an edit-annotation line", line, text)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseEditLine(text string) (models.Edit, bool, error) {
	fields := strings.Split(text[2:], "|||")
	if len(fields) < 3 {
		return models.Edit{}, false, fmt.Errorf("%q has %d fields, want at least 3", text, len(fields))
	}
	span := strings.Fields(fields[0])
	if len(span) != 2 {
		return models.Edit{}, false, fmt.Errorf("%q has a malformed span", text)
	}
	start, err := strconv.Atoi(span[0])
	if err != nil {
		return models.Edit{}, false, fmt.Errorf("bad span start %q", span[0])
	}
	end, err := strconv.Atoi(span[1])
	if err != nil {
		return models.Edit{}, false, fmt.Errorf("bad span end %q", span[1])
	}
	editType := strings.TrimSpace(fields[1])
	if Ignored(editType) {
		return models.Edit{}, true, nil
	}
	return models.Edit{Start: start, End: end, Type: editType, Replacement: fields[2]}, false, nil
}

// ParseFile reads and parses the file at path.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// Format renders entries back to the annotation format.
func Format(entries []Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("S ")
		b.WriteString(e.Source)
		b.WriteString("\n")
		for _, edit := range e.Edits {
			fmt.Fprintf(&b, "A %d %d|||%s|||%s|||REQUIRED|||-NONE-|||0\n",
				edit.Start, edit.End, edit.Type, edit.Replacement)
		}
	}
	return b.String()
}

// WriteFile writes entries to path atomically: the content lands in a temp
// file first and is renamed into place, so readers never observe a partial
// sidecar. Parent directories are created if they do not exist.
func WriteFile(path string, entries []Entry) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create sidecar directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(Format(entries)); err != nil {
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

// Package cli provides CLI utilities for Awase.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hyperjump/awase/internal/models"
	"github.com/hyperjump/awase/internal/vocab"
)

// SelectionOutputFormat is the format for per-sentence explanation output.
type SelectionOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SelectionOutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SelectionOutputFormat = "json"
)

// WriteSelections writes the per-sentence selections to w in the given
// format. Use OutputJSON for parseable output consumable by other apps.
func WriteSelections(w io.Writer, selections []*models.Selection, v *vocab.Vocabulary, format SelectionOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(selections)
	default:
		writeSelectionsText(w, selections, v)
		return nil
	}
}

func writeSelectionsText(w io.Writer, selections []*models.Selection, v *vocab.Vocabulary) {
	for _, sel := range selections {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Sentence %d\n", sel.Index)
		fmt.Fprintf(w, "Source: %s\n", sel.Source)
		fmt.Fprintf(w, "Output: %s\n", sel.Output)
		if sel.Fallback {
			fmt.Fprintln(w, "Fallback: alignment failed, no edits considered")
			continue
		}
		for _, c := range sel.Applied {
			fmt.Fprintf(w, "  [%d,%d) -> %q  score=%.4f  votes=%s\n",
				c.Start, c.End, c.Replacement, c.Score, formatVotes(c.Votes, v))
		}
	}
}

func formatVotes(votes []models.Vote, v *vocab.Vocabulary) string {
	out := ""
	for i, vote := range votes {
		if i > 0 {
			out += ","
		}
		name := fmt.Sprintf("#%d", vote.System)
		if v != nil && vote.System >= 0 && vote.System < len(v.Systems) {
			name = v.Systems[vote.System]
		}
		out += name + ":" + vote.Type
	}
	return out
}

// PrintSelections prints selections to stdout in text format.
func PrintSelections(selections []*models.Selection, v *vocab.Vocabulary) {
	_ = WriteSelections(os.Stdout, selections, v, OutputText)
}

// Package models defines core data structures for edits, candidates, clusters, and selections.
package models

import "strings"

// Edit is a single aligned correction: replace source tokens [Start,End) with
// Replacement. Produced by an aligner, never hand-constructed. A zero-width
// span (Start == End) is an insertion before token Start.
type Edit struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Type        string `json:"type"`
	Replacement string `json:"replacement"`
}

// Vote records that one base system proposed a candidate, together with the
// error type that system assigned to it. Systems may agree on a span and
// replacement while disagreeing on the type.
type Vote struct {
	System int    `json:"system"`
	Type   string `json:"type"`
}

// Candidate is a distinct (span, replacement) proposal collated across all
// base systems for one sentence. Score is filled by the combiner model;
// Label is 1/0 during training and -1 when unlabeled.
type Candidate struct {
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Replacement string  `json:"replacement"`
	Votes       []Vote  `json:"votes"`
	Score       float64 `json:"score"`
	Label       int     `json:"label"`
}

// SystemCount returns the number of distinct systems voting for the candidate.
func (c *Candidate) SystemCount() int {
	seen := make(map[int]struct{}, len(c.Votes))
	for _, v := range c.Votes {
		seen[v.System] = struct{}{}
	}
	return len(seen)
}

// ReplacementTokens returns the replacement split into tokens; empty for a deletion.
func (c *Candidate) ReplacementTokens() []string {
	if c.Replacement == "" {
		return nil
	}
	return strings.Fields(c.Replacement)
}

// Overlaps reports whether the spans of c and o intersect. Two zero-width
// insertions conflict only at the same token point; an insertion touching
// either boundary of a span does not conflict with it, only a strictly
// interior one does.
func (c *Candidate) Overlaps(o *Candidate) bool {
	return SpansOverlap(c.Start, c.End, o.Start, o.End)
}

// SpansOverlap reports span intersection for two half-open token intervals,
// with insertion (zero-width) semantics: [i,i) intersects [s,e) iff s < i < e,
// and two insertions intersect iff they share the same point.
func SpansOverlap(aStart, aEnd, bStart, bEnd int) bool {
	as, ae := ScaledSpan(aStart, aEnd)
	bs, be := ScaledSpan(bStart, bEnd)
	return as < be && bs < ae
}

// ScaledSpan maps a token span onto a doubled coordinate grid: a zero-width
// insertion at point p occupies the half-open slot [2p, 2p+1), a non-empty
// span [s,e) occupies [2s+1, 2e). Both of a span's boundary slots fall
// outside it, so an insertion conflicts with a span only when strictly
// interior, and the conflict rules reduce to ordinary interval intersection,
// which is what the clustering sweep and the selection DP operate on.
func ScaledSpan(start, end int) (int, int) {
	if start == end {
		return 2 * start, 2*start + 1
	}
	return 2*start + 1, 2 * end
}

// Cluster is a maximal group of mutually conflicting candidates within one
// sentence: every candidate overlaps at least one other member, and no
// candidate outside the cluster overlaps any member.
type Cluster struct {
	Candidates []*Candidate `json:"candidates"`
}

// Selection is the per-sentence outcome: the accepted non-overlapping
// candidates and the rendered corrected sentence.
type Selection struct {
	Index    int          `json:"index"`
	Source   string       `json:"source"`
	Applied  []*Candidate `json:"applied"`
	Output   string       `json:"output"`
	Fallback bool         `json:"fallback,omitempty"` // true when alignment failed and the sentence passed through
}

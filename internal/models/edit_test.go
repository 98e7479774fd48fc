package models

import "testing"

func TestSpansOverlap(t *testing.T) {
	tests := []struct {
		name         string
		aStart, aEnd int
		bStart, bEnd int
		want         bool
	}{
		{"identical spans", 1, 3, 1, 3, true},
		{"partial overlap", 0, 2, 1, 3, true},
		{"nested spans", 1, 4, 2, 3, true},
		{"adjacent spans", 0, 2, 2, 4, false},
		{"disjoint spans", 0, 1, 3, 4, false},
		{"insertion inside span", 2, 2, 1, 3, true},
		{"insertion at span start", 2, 2, 2, 4, false},
		{"insertion at span end", 2, 2, 0, 2, false},
		{"insertions at same point", 2, 2, 2, 2, true},
		{"insertions at different points", 2, 2, 3, 3, false},
		{"insertion before span", 0, 0, 1, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SpansOverlap(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd); got != tt.want {
				t.Errorf("SpansOverlap([%d,%d), [%d,%d)) = %v, want %v",
					tt.aStart, tt.aEnd, tt.bStart, tt.bEnd, got, tt.want)
			}
			// Intersection is symmetric.
			if got := SpansOverlap(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd); got != tt.want {
				t.Errorf("SpansOverlap is not symmetric for [%d,%d), [%d,%d)",
					tt.aStart, tt.aEnd, tt.bStart, tt.bEnd)
			}
		})
	}
}

func TestScaledSpan_preservesOrder(t *testing.T) {
	// An insertion at p sits between the span ending at p and the span
	// starting at p on the scaled grid.
	insStart, insEnd := ScaledSpan(2, 2)
	_, leftEnd := ScaledSpan(0, 2)
	rightStart, _ := ScaledSpan(2, 4)
	if insStart < leftEnd {
		t.Errorf("insertion slot [%d,%d) intrudes into the span ending at its point (end %d)", insStart, insEnd, leftEnd)
	}
	if insEnd > rightStart {
		t.Errorf("insertion slot [%d,%d) intrudes into the span starting at its point (start %d)", insStart, insEnd, rightStart)
	}
}

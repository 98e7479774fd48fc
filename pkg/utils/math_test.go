package utils

import (
	"math"
	"testing"
)

func TestSigmoid(t *testing.T) {
	if got := Sigmoid(0); got != 0.5 {
		t.Errorf("Sigmoid(0) = %v, want 0.5", got)
	}
	if got := Sigmoid(10); got <= 0.99 {
		t.Errorf("Sigmoid(10) = %v, want near 1", got)
	}
	if got := Sigmoid(-10); got >= 0.01 {
		t.Errorf("Sigmoid(-10) = %v, want near 0", got)
	}
}

func TestLogOdds(t *testing.T) {
	if got := LogOdds(0.5); math.Abs(got) > 1e-12 {
		t.Errorf("LogOdds(0.5) = %v, want 0", got)
	}
	if got := LogOdds(0.9); got <= 0 {
		t.Errorf("LogOdds(0.9) = %v, want positive", got)
	}
	if got := LogOdds(0.1); got >= 0 {
		t.Errorf("LogOdds(0.1) = %v, want negative", got)
	}
	for _, p := range []float64{0, 1, -0.5, 2} {
		if got := LogOdds(p); math.IsInf(got, 0) || math.IsNaN(got) {
			t.Errorf("LogOdds(%v) = %v, want finite", p, got)
		}
	}
}

func TestSigmoidLogOddsInverse(t *testing.T) {
	for _, p := range []float64{0.01, 0.3, 0.5, 0.7, 0.99} {
		if got := Sigmoid(LogOdds(p)); math.Abs(got-p) > 1e-9 {
			t.Errorf("Sigmoid(LogOdds(%v)) = %v", p, got)
		}
	}
}

package models

import "fmt"

// CorrectRequest is the input for a single-sentence correction over HTTP.
// Hypotheses maps base-system identifier to that system's corrected sentence.
type CorrectRequest struct {
	Source     string            `json:"source"`
	Hypotheses map[string]string `json:"hypotheses"`
}

// Validate ensures the request has a source sentence and at least one hypothesis.
func (r *CorrectRequest) Validate() error {
	if r.Source == "" {
		return fmt.Errorf("source cannot be empty")
	}
	if len(r.Hypotheses) == 0 {
		return fmt.Errorf("at least one hypothesis is required")
	}
	return nil
}

// CorrectResponse is the combined correction for one sentence.
type CorrectResponse struct {
	Output  string       `json:"output"`
	Applied []*Candidate `json:"applied"`
}

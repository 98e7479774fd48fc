package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/awase/internal/models"
	"github.com/hyperjump/awase/internal/vocab"
)

func testSelections() []*models.Selection {
	return []*models.Selection{
		{
			Index:  0,
			Source: "He go to school .",
			Output: "He goes to school .",
			Applied: []*models.Candidate{
				{
					Start:       1,
					End:         2,
					Replacement: "goes",
					Score:       0.91,
					Votes: []models.Vote{
						{System: 0, Type: "R:VERB:SVA"},
						{System: 1, Type: "R:VERB"},
					},
				},
			},
		},
		{
			Index:    1,
			Source:   "It rain .",
			Output:   "It rain .",
			Fallback: true,
		},
	}
}

func TestWriteSelections_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSelections(&buf, testSelections(), nil, OutputJSON); err != nil {
		t.Fatalf("WriteSelections(json): %v", err)
	}
	var decoded []*models.Selection
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d selections", len(decoded))
	}
	if decoded[0].Applied[0].Replacement != "goes" {
		t.Errorf("applied edit lost in round trip: %+v", decoded[0].Applied)
	}
	if !decoded[1].Fallback {
		t.Error("fallback flag lost in round trip")
	}
}

func TestWriteSelections_Text(t *testing.T) {
	v := vocab.Build([]string{"sysA", "sysB"}, []string{"R:VERB", "R:VERB:SVA"})
	var buf bytes.Buffer
	if err := WriteSelections(&buf, testSelections(), v, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"He goes to school .",
		"score=0.91",
		"sysA:R:VERB:SVA",
		"Fallback",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSelections_UnknownSystemIndex(t *testing.T) {
	sel := testSelections()
	sel[0].Applied[0].Votes[0].System = 9
	var buf bytes.Buffer
	if err := WriteSelections(&buf, sel, vocab.Build([]string{"sysA"}, []string{"R:VERB"}), OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "#9") {
		t.Errorf("out-of-range system should fall back to its index:\n%s", buf.String())
	}
}

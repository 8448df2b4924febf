package report

import (
	"encoding/json"
	"io"

	"github.com/Use-Tusk/checkout-conformance/internal/category"
	"github.com/Use-Tusk/checkout-conformance/internal/results"
)

// CategorySummary is one row of the per-category counters.
type CategorySummary struct {
	Name    category.Category `json:"name"`
	Passed  int               `json:"passed"`
	Failed  int               `json:"failed"`
	Skipped int               `json:"skipped"`
	Total   int               `json:"total"`
}

// JSONReport is the artifact plus per-category counters.
type JSONReport struct {
	Artifact
	Categories []CategorySummary `json:"categories"`
}

// WriteJSON writes the machine-readable report for s.
func WriteJSON(w io.Writer, s results.Snapshot) error {
	r := JSONReport{Artifact: BuildArtifact(s), Categories: []CategorySummary{}}
	for _, c := range s.CategoryOrder() {
		st := s.Categories[c]
		r.Categories = append(r.Categories, CategorySummary{
			Name:    c,
			Passed:  st.Passed,
			Failed:  st.Failed,
			Skipped: st.Skipped,
			Total:   st.Total,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

package runner

import (
	"context"

	"github.com/Use-Tusk/checkout-conformance/internal/category"
)

// Scenario is one conformance test. Name and File together identify it;
// File groups scenarios into suites in reports.
type Scenario struct {
	Name        string `json:"name"`
	File        string `json:"file"`
	Description string `json:"description"`
	// Operations lists the protocol calls the scenario makes, for display.
	Operations []string `json:"operations"`

	Run func(ctx context.Context, t *T) `json:"-"`
}

// Category classifies the scenario by its name and suite.
func (s Scenario) Category() category.Category {
	return category.Categorize(s.Name, s.File)
}

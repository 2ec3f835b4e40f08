package ai

import "strings"

// Categories is the closed vocabulary the classifier may answer with.
var Categories = []string{
	"clothing",
	"documents",
	"electronics",
	"food",
	"furniture",
	"household",
	"cosmetics",
	"medicine",
	"vehicle_parts",
	"other",
}

// Classification captures the structured output from the model.
type Classification struct {
	// Category is expected to be one of Categories.
	Category string `json:"category"`

	// Fragile is set when the description suggests careful handling.
	Fragile bool `json:"fragile"`

	// Reason is a short justification, kept for logs only.
	Reason string `json:"reason,omitempty"`
}

// normalizeCategory maps a model answer onto Categories, falling back to "other".
func normalizeCategory(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.ReplaceAll(v, " ", "_")
	for _, c := range Categories {
		if c == v {
			return c
		}
	}
	return "other"
}

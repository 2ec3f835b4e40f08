package ai

import (
	"context"
)

// ItemClassifier suggests a cargo category for a parcel description.
// Implementations may call a remote model; callers treat failures as "unknown".
type ItemClassifier interface {
	// Classify returns one of Categories for the given free-text description.
	Classify(ctx context.Context, description string) (string, error)
}

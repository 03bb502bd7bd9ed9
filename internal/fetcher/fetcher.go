package fetcher

import (
	"context"

	"streak-alerts/internal/normalize"
)

// Query identifies what to fetch.
type Query struct {
	Symbol       string
	LookbackDays int
	// MinPoints is how many observations the caller needs; 0 means no preference.
	MinPoints int
}

// Adapter retrieves provider-native data for one upstream provider.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, q Query) (normalize.RawResponse, error)
}

// Package resolver tries data sources in priority order and returns the first
// canonical series any of them produces.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"streak-alerts/internal/fetcher"
	"streak-alerts/internal/normalize"
	"streak-alerts/internal/series"
)

// Source pairs an adapter with the normalizer that understands its payloads.
type Source struct {
	Adapter    fetcher.Adapter
	Normalizer normalize.Normalizer
}

// Label is the adapter's name.
func (s Source) Label() string { return s.Adapter.Name() }

// Failure records why one source did not yield a series.
type Failure struct {
	Source string
	Err    error
}

// String prefixes the source label unless the error already starts with it.
func (f Failure) String() string {
	msg := fmt.Sprint(f.Err)
	if strings.HasPrefix(msg, f.Source+": ") {
		return msg
	}
	return f.Source + ": " + msg
}

// Outcome is a successful resolution together with the failures that preceded it.
type Outcome struct {
	Series   series.Series
	Source   string
	Failures []Failure
}

// AllSourcesExhaustedError is returned when no source produced a series.
type AllSourcesExhaustedError struct {
	Failures []Failure
}

func (e *AllSourcesExhaustedError) Error() string {
	if len(e.Failures) == 0 {
		return "all sources exhausted: no sources configured"
	}
	lines := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		lines = append(lines, f.String())
	}
	return "all sources exhausted:\n" + strings.Join(lines, "\n")
}

// Resolver walks its sources strictly sequentially; each adapter bounds its own calls.
type Resolver struct {
	sources []Source
	logger  zerolog.Logger
}

// New constructs a resolver over sources in priority order.
func New(sources []Source, logger zerolog.Logger) *Resolver {
	return &Resolver{sources: sources, logger: logger.With().Str("component", "resolver").Logger()}
}

// Sources returns the labels in attempt order.
func (r *Resolver) Sources() []string {
	out := make([]string, len(r.sources))
	for i, s := range r.sources {
		out[i] = s.Label()
	}
	return out
}

// Resolve returns the first non-empty series. Adapter and normalizer errors never
// escape individually; they are carried in the Outcome or the exhaustion error.
func (r *Resolver) Resolve(ctx context.Context, q fetcher.Query) (Outcome, error) {
	var failures []Failure
	for i, src := range r.sources {
		label := src.Label()
		logger := r.logger.With().Str("source", label).Int("attempt", i+1).Logger()

		started := time.Now()
		s, err := attempt(ctx, src, q)
		if err != nil {
			logger.Warn().Err(err).Dur("elapsed", time.Since(started)).Msg("source failed; trying next")
			failures = append(failures, Failure{Source: label, Err: err})
			continue
		}

		last, _ := s.Last()
		logger.Info().Int("points", s.Len()).Str("last_date", last.Date.String()).
			Str("last_value", last.Value.String()).Msg("source resolved")
		return Outcome{Series: s, Source: label, Failures: failures}, nil
	}
	return Outcome{}, &AllSourcesExhaustedError{Failures: failures}
}

func attempt(ctx context.Context, src Source, q fetcher.Query) (series.Series, error) {
	raw, err := src.Adapter.Fetch(ctx, q)
	if err != nil {
		return series.Series{}, err
	}
	if raw.Source == "" {
		raw.Source = src.Label()
	}
	s, err := src.Normalizer.Normalize(raw)
	if err != nil {
		return series.Series{}, err
	}
	if s.IsEmpty() {
		return series.Series{}, &normalize.SchemaMismatchError{
			Source: raw.Source,
			Reason: "normalizer returned an empty series",
			Seen:   normalize.ObservedNames(raw.Payload),
		}
	}
	return s, nil
}

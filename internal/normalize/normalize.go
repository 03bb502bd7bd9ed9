// Package normalize turns provider-native payloads into a canonical series.
//
// Each Variant understands one payload layout. A Chain tries its variants in a
// fixed priority order and applies the same post-processing to whichever one
// matched: rows without a parseable value or date are dropped, dates are reduced
// to calendar dates, duplicates keep the last occurrence and the result is sorted.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"streak-alerts/internal/series"
)

// ErrNotApplicable is returned by a variant that does not handle the payload's shape.
var ErrNotApplicable = errors.New("normalize: payload shape not handled by variant")

// SchemaMismatchError reports a payload whose expected fields could not be located.
type SchemaMismatchError struct {
	Source string
	Shape  string
	Reason string
	// Seen lists the column or field names actually present, for operator debugging.
	Seen []string
}

func (e *SchemaMismatchError) Error() string {
	msg := fmt.Sprintf("schema mismatch (%s): %s", e.Shape, e.Reason)
	if len(e.Seen) > 0 {
		msg += fmt.Sprintf("; seen %s", strings.Join(e.Seen, ", "))
	}
	return msg
}

// Normalizer maps a RawResponse to a non-empty canonical series or fails.
type Normalizer interface {
	Normalize(raw RawResponse) (series.Series, error)
}

// Variant extracts candidate rows from one payload layout.
type Variant interface {
	Name() string
	Extract(raw RawResponse) ([]Row, error)
}

// Row is a candidate observation before post-processing.
type Row struct {
	Date     series.Date
	RawDate  string
	RawValue string
	Imputed  bool
}

// Chain tries variants in order and returns the first non-empty series.
type Chain struct {
	variants []Variant
	logger   zerolog.Logger
}

// NewChain builds a normalizer from variants in priority order.
func NewChain(logger zerolog.Logger, variants ...Variant) *Chain {
	return &Chain{
		variants: variants,
		logger:   logger.With().Str("component", "normalizer").Logger(),
	}
}

// Normalize implements Normalizer.
func (c *Chain) Normalize(raw RawResponse) (series.Series, error) {
	var mismatches []*SchemaMismatchError
	for _, v := range c.variants {
		rows, err := v.Extract(raw)
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		if err != nil {
			mismatch := asMismatch(raw, v.Name(), err)
			c.logger.Warn().Str("source", raw.Source).Str("variant", v.Name()).
				Strs("seen", mismatch.Seen).Msg(mismatch.Reason)
			mismatches = append(mismatches, mismatch)
			continue
		}

		out, dropped := finalize(rows)
		if out.IsEmpty() {
			mismatch := &SchemaMismatchError{
				Source: raw.Source,
				Shape:  v.Name(),
				Reason: fmt.Sprintf("no usable rows (%d candidates, %d unparseable)", len(rows), dropped),
				Seen:   ObservedNames(raw.Payload),
			}
			c.logger.Warn().Str("source", raw.Source).Str("variant", v.Name()).
				Strs("seen", mismatch.Seen).Msg(mismatch.Reason)
			mismatches = append(mismatches, mismatch)
			continue
		}

		if dropped > 0 {
			c.logger.Debug().Str("source", raw.Source).Int("dropped", dropped).Msg("dropped unparseable rows")
		}
		if n := out.ImputedCount(); n > 0 {
			c.logger.Warn().Str("source", raw.Source).Int("imputed_points", n).
				Msg("upstream records carried no parseable date; defaulted to today")
		}
		return out, nil
	}

	return series.Series{}, combine(raw, mismatches)
}

func asMismatch(raw RawResponse, variant string, err error) *SchemaMismatchError {
	var mismatch *SchemaMismatchError
	if errors.As(err, &mismatch) {
		if mismatch.Source == "" {
			mismatch.Source = raw.Source
		}
		if mismatch.Shape == "" {
			mismatch.Shape = variant
		}
		return mismatch
	}
	return &SchemaMismatchError{Source: raw.Source, Shape: variant, Reason: err.Error(), Seen: ObservedNames(raw.Payload)}
}

func combine(raw RawResponse, mismatches []*SchemaMismatchError) error {
	switch len(mismatches) {
	case 0:
		shape := "nil payload"
		if raw.Payload != nil {
			shape = string(raw.Payload.Shape())
		}
		return &SchemaMismatchError{
			Source: raw.Source,
			Shape:  shape,
			Reason: "no normalizer variant handles this payload",
			Seen:   ObservedNames(raw.Payload),
		}
	case 1:
		return mismatches[0]
	}

	shapes := lo.Map(mismatches, func(m *SchemaMismatchError, _ int) string { return m.Shape })
	reasons := lo.Map(mismatches, func(m *SchemaMismatchError, _ int) string { return m.Shape + ": " + m.Reason })
	seen := lo.Uniq(lo.FlatMap(mismatches, func(m *SchemaMismatchError, _ int) []string { return m.Seen }))
	return &SchemaMismatchError{
		Source: raw.Source,
		Shape:  strings.Join(shapes, ", "),
		Reason: strings.Join(reasons, "; "),
		Seen:   seen,
	}
}

func finalize(rows []Row) (series.Series, int) {
	points := make([]series.Point, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		value, ok := ParseValue(r.RawValue)
		if !ok {
			dropped++
			continue
		}
		date := r.Date
		if date.IsZero() {
			parsed, err := series.ParseDateOrEpoch(r.RawDate)
			if err != nil {
				dropped++
				continue
			}
			date = parsed
		}
		points = append(points, series.Point{Date: date, Value: value, Imputed: r.Imputed})
	}
	return series.Canonicalize(points), dropped
}

var valueCleaner = strings.NewReplacer("%", "", ",", "", "$", "", " ", "", "\u00a0", "")

// ParseValue parses an upstream numeric cell, tolerating percent signs and thousands separators.
func ParseValue(raw string) (decimal.Decimal, bool) {
	s := valueCleaner.Replace(strings.TrimSpace(raw))
	switch strings.ToLower(s) {
	case "", "null", "nan", "none", "-", "--", "n/a":
		return decimal.Decimal{}, false
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v, true
}

// ObservedNames lists the column or field names present in a payload.
func ObservedNames(p Payload) []string {
	switch v := p.(type) {
	case Table:
		return append([]string(nil), v.Columns...)
	case MultiTable:
		return lo.Map(v.Columns, func(k ColumnKey, _ int) string { return k.String() })
	case ScrapedTables:
		return lo.Uniq(lo.FlatMap([]Table(v), func(t Table, _ int) []string { return t.Columns }))
	case JSONDocument:
		return jsonKeys(v)
	case DelimitedRecords:
		if len(v.Records) == 0 {
			return nil
		}
		return []string{fmt.Sprintf("%d fields", len(strings.Split(v.Records[0], delimiterOf(v))))}
	}
	return nil
}

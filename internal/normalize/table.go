package normalize

import (
	"fmt"
	"strings"
)

const (
	closeLabel    = "Close"
	adjCloseLabel = "Adj Close"
)

// ohlcFields are the field labels a price table uses on its field axis.
var ohlcFields = map[string]struct{}{
	"open": {}, "high": {}, "low": {}, "close": {}, "adj close": {}, "volume": {},
}

func isOHLCField(label string) bool {
	_, ok := ohlcFields[strings.ToLower(strings.TrimSpace(label))]
	return ok
}

func sameLabel(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), b)
}

// SingleLevelTable reads the "Close" column of a flat table, falling back to "Adj Close".
type SingleLevelTable struct{}

func (SingleLevelTable) Name() string { return string(ShapeTable) }

// Extract implements Variant. A scraped page is searched table by table.
func (v SingleLevelTable) Extract(raw RawResponse) ([]Row, error) {
	switch p := raw.Payload.(type) {
	case Table:
		return v.fromTable(p)
	case ScrapedTables:
		var lastErr error = &SchemaMismatchError{Reason: "page contains no tables"}
		for _, t := range p {
			rows, err := v.fromTable(t)
			if err == nil {
				return rows, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
	return nil, ErrNotApplicable
}

func (SingleLevelTable) fromTable(t Table) ([]Row, error) {
	col := -1
	for _, want := range []string{closeLabel, adjCloseLabel} {
		for i, c := range t.Columns {
			if sameLabel(c, want) {
				col = i
				break
			}
		}
		if col >= 0 {
			break
		}
	}
	if col < 0 {
		return nil, &SchemaMismatchError{
			Reason: fmt.Sprintf("no %q or %q column", closeLabel, adjCloseLabel),
			Seen:   append([]string(nil), t.Columns...),
		}
	}

	labels, err := rowLabels(t)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(t.Rows))
	for i := range t.Rows {
		rows = append(rows, Row{RawDate: labels[i], RawValue: t.cell(i, col)})
	}
	return rows, nil
}

// rowLabels returns the row index, or the "Date" column when the table has no index.
func rowLabels(t Table) ([]string, error) {
	if len(t.Index) > 0 {
		labels := make([]string, len(t.Rows))
		for i := range t.Rows {
			labels[i] = t.rowLabel(i)
		}
		return labels, nil
	}
	for ci, c := range t.Columns {
		if sameLabel(c, "Date") {
			labels := make([]string, len(t.Rows))
			for i := range t.Rows {
				labels[i] = t.cell(i, ci)
			}
			return labels, nil
		}
	}
	return nil, &SchemaMismatchError{
		Reason: "table has neither a row index nor a Date column",
		Seen:   append([]string(nil), t.Columns...),
	}
}

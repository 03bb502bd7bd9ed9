package normalize

import (
	"strings"
)

var (
	dateLikeHeaders  = []string{"date", "日期", "时间"}
	closeLikeHeaders = []string{"close", "price", "收盘", "last"}
)

func headerMatches(header string, needles []string) bool {
	h := strings.ToLower(strings.TrimSpace(header))
	for _, n := range needles {
		if strings.Contains(h, n) {
			return true
		}
	}
	return false
}

func firstHeader(columns []string, needles []string) int {
	for i, c := range columns {
		if headerMatches(c, needles) {
			return i
		}
	}
	return -1
}

// LooseTable is the last-resort heuristic for scraped pages: it prefers a table with
// a date-like and a close-like header, otherwise it takes the largest table.
type LooseTable struct{}

func (LooseTable) Name() string { return "loose table" }

// Extract implements Variant.
func (LooseTable) Extract(raw RawResponse) ([]Row, error) {
	var tables []Table
	switch p := raw.Payload.(type) {
	case Table:
		tables = []Table{p}
	case ScrapedTables:
		tables = p
	default:
		return nil, ErrNotApplicable
	}
	if len(tables) == 0 {
		return nil, &SchemaMismatchError{Reason: "page contains no tables"}
	}

	t, ok := pickTable(tables)
	if !ok {
		return nil, &SchemaMismatchError{Reason: "every table is empty"}
	}

	dateCol := firstHeader(t.Columns, dateLikeHeaders)
	valueCol := firstHeader(t.Columns, closeLikeHeaders)
	if valueCol < 0 {
		valueCol = len(t.Columns) - 1
	}
	useIndex := dateCol < 0 && len(t.Index) > 0
	if dateCol < 0 && !useIndex {
		dateCol = 0
	}
	if valueCol < 0 || valueCol == dateCol {
		return nil, &SchemaMismatchError{Reason: "cannot tell the value column from the date column", Seen: t.Columns}
	}

	rows := make([]Row, 0, len(t.Rows))
	for i := range t.Rows {
		var label string
		if useIndex {
			label = t.rowLabel(i)
		} else {
			label = t.cell(i, dateCol)
		}
		rows = append(rows, Row{RawDate: label, RawValue: t.cell(i, valueCol)})
	}
	return rows, nil
}

func pickTable(tables []Table) (Table, bool) {
	for _, t := range tables {
		if len(t.Rows) > 0 && firstHeader(t.Columns, dateLikeHeaders) >= 0 && firstHeader(t.Columns, closeLikeHeaders) >= 0 {
			return t, true
		}
	}
	best, bestSize := -1, 0
	for i, t := range tables {
		size := len(t.Rows) * len(t.Columns)
		if size > bestSize {
			best, bestSize = i, size
		}
	}
	if best < 0 {
		return Table{}, false
	}
	return tables[best], true
}

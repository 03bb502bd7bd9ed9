package normalize

import "encoding/json"

// Shape tags the layout of a provider payload.
type Shape string

const (
	ShapeTable      Shape = "single-level table"
	ShapeMultiTable Shape = "two-level table"
	ShapeJSON       Shape = "nested json"
	ShapeDelimited  Shape = "delimited record"
	ShapeScraped    Shape = "scraped tables"
)

// Payload is the provider-native body carried by a RawResponse.
type Payload interface {
	Shape() Shape
}

// RawResponse is what an adapter hands to its normalizer.
type RawResponse struct {
	Source  string
	Payload Payload
}

// Table is a single-level labelled table. Index holds the row labels (dates).
type Table struct {
	Index   []string
	Columns []string
	Rows    [][]string
}

func (Table) Shape() Shape { return ShapeTable }

// ColumnKey addresses a column of a two-level table.
type ColumnKey struct {
	Outer string
	Inner string
}

func (k ColumnKey) String() string { return "(" + k.Outer + ", " + k.Inner + ")" }

// MultiTable is a table whose columns are labelled on two axes, for example
// (field, instrument) or (instrument, field).
type MultiTable struct {
	Index   []string
	Columns []ColumnKey
	Rows    [][]string
}

func (MultiTable) Shape() Shape { return ShapeMultiTable }

// JSONDocument is an arbitrary JSON body.
type JSONDocument json.RawMessage

func (JSONDocument) Shape() Shape { return ShapeJSON }

// DelimitedRecords holds compact "date,open,close,high,low,volume" style records.
type DelimitedRecords struct {
	Records   []string
	Delimiter string
}

func (DelimitedRecords) Shape() Shape { return ShapeDelimited }

// ScrapedTables is every table found on a scraped page, headers as they appeared.
type ScrapedTables []Table

func (ScrapedTables) Shape() Shape { return ShapeScraped }

func (t Table) cell(row, col int) string {
	if row >= len(t.Rows) || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

func (t Table) rowLabel(row int) string {
	if row >= len(t.Index) {
		return ""
	}
	return t.Index[row]
}

func (t Table) columnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

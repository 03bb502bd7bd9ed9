package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"streak-alerts/internal/series"
)

// Field names probed, in priority order, case-insensitively.
var (
	jsonValueKeys = []string{"yield", "close", "last", "value", "latestvalue", "price"}
	jsonDateKeys  = []string{"date", "datetime", "timestamp"}
)

const maxJSONDepth = 8

// NestedJSON finds records anywhere inside a JSON object or array.
// A record without a parseable date is dated today and flagged as imputed.
type NestedJSON struct {
	// Now supplies "today" for undated records; defaults to time.Now.
	Now func() time.Time
}

func (NestedJSON) Name() string { return string(ShapeJSON) }

// Extract implements Variant.
func (v NestedJSON) Extract(raw RawResponse) ([]Row, error) {
	doc, ok := raw.Payload.(JSONDocument)
	if !ok {
		return nil, ErrNotApplicable
	}

	root, err := decodeJSON(doc)
	if err != nil {
		return nil, &SchemaMismatchError{Reason: fmt.Sprintf("decode json: %v", err)}
	}

	var records []map[string]any
	collectRecords(root, 0, &records)
	if len(records) == 0 {
		return nil, &SchemaMismatchError{
			Reason: fmt.Sprintf("no record carries any of %s", strings.Join(jsonValueKeys, "/")),
			Seen:   jsonKeys(doc),
		}
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	today := series.DateOf(now())

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		row := Row{RawValue: firstParseableValue(rec)}
		if d, ok := firstParseableDate(rec); ok {
			row.Date = d
		} else {
			row.Date = today
			row.Imputed = true
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeJSON(doc JSONDocument) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, err
	}
	return root, nil
}

func collectRecords(node any, depth int, out *[]map[string]any) {
	if depth > maxJSONDepth {
		return
	}
	switch n := node.(type) {
	case []any:
		for _, item := range n {
			collectRecords(item, depth+1, out)
		}
	case map[string]any:
		if lookup(n, jsonValueKeys) {
			*out = append(*out, n)
			return
		}
		for _, k := range sortedKeys(n) {
			collectRecords(n[k], depth+1, out)
		}
	}
}

func lookup(rec map[string]any, keys []string) bool {
	for k := range rec {
		for _, want := range keys {
			if strings.EqualFold(k, want) {
				return true
			}
		}
	}
	return false
}

// fieldsByPriority returns the record's values for keys in priority order.
func fieldsByPriority(rec map[string]any, keys []string) []any {
	names := sortedKeys(rec)
	var out []any
	for _, want := range keys {
		for _, k := range names {
			if strings.EqualFold(k, want) {
				out = append(out, rec[k])
			}
		}
	}
	return out
}

func firstParseableValue(rec map[string]any) string {
	for _, raw := range fieldsByPriority(rec, jsonValueKeys) {
		s := scalarString(raw)
		if _, ok := ParseValue(s); ok {
			return s
		}
	}
	return ""
}

func firstParseableDate(rec map[string]any) (series.Date, bool) {
	for _, raw := range fieldsByPriority(rec, jsonDateKeys) {
		switch val := raw.(type) {
		case json.Number:
			if n, err := val.Int64(); err == nil {
				return series.DateFromEpoch(n), true
			}
		case string:
			if d, err := series.ParseDateOrEpoch(val); err == nil {
				return d, true
			}
		}
	}
	return series.Date{}, false
}

func scalarString(v any) string {
	switch val := v.(type) {
	case json.Number:
		return val.String()
	case string:
		return val
	}
	return ""
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// jsonKeys lists every object key found in the document, for diagnostics.
func jsonKeys(doc JSONDocument) []string {
	root, err := decodeJSON(doc)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var walk func(node any, depth int)
	walk = func(node any, depth int) {
		if depth > maxJSONDepth {
			return
		}
		switch n := node.(type) {
		case []any:
			for _, item := range n {
				walk(item, depth+1)
			}
		case map[string]any:
			for k, child := range n {
				seen[k] = struct{}{}
				walk(child, depth+1)
			}
		}
	}
	walk(root, 0)

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

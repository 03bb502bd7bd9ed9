package normalize

import (
	"fmt"

	"github.com/samber/lo"
)

// TwoLevelTable reads the close column of a table labelled on a field axis and an
// instrument axis, in either nesting order.
type TwoLevelTable struct {
	Instrument string
}

func (TwoLevelTable) Name() string { return string(ShapeMultiTable) }

// Extract implements Variant.
func (v TwoLevelTable) Extract(raw RawResponse) ([]Row, error) {
	t, ok := raw.Payload.(MultiTable)
	if !ok {
		return nil, ErrNotApplicable
	}

	col, err := v.locate(t)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(t.Rows))
	for i, r := range t.Rows {
		label := ""
		if i < len(t.Index) {
			label = t.Index[i]
		}
		value := ""
		if col < len(r) {
			value = r[col]
		}
		rows = append(rows, Row{RawDate: label, RawValue: value})
	}
	return rows, nil
}

func (v TwoLevelTable) locate(t MultiTable) (int, error) {
	seen := lo.Map(t.Columns, func(k ColumnKey, _ int) string { return k.String() })
	if len(t.Columns) == 0 {
		return -1, &SchemaMismatchError{Reason: "table has no columns"}
	}

	fieldFirst := lo.EveryBy(t.Columns, func(k ColumnKey) bool { return isOHLCField(k.Outer) })
	instrumentFirst := lo.EveryBy(t.Columns, func(k ColumnKey) bool { return isOHLCField(k.Inner) })

	find := func(match func(k ColumnKey, field string) bool) int {
		for _, field := range []string{closeLabel, adjCloseLabel} {
			for i, k := range t.Columns {
				if match(k, field) {
					return i
				}
			}
		}
		return -1
	}

	switch {
	case fieldFirst:
		if col := find(func(k ColumnKey, field string) bool {
			return sameLabel(k.Outer, field) && k.Inner == v.Instrument
		}); col >= 0 {
			return col, nil
		}
		return -1, &SchemaMismatchError{
			Reason: fmt.Sprintf("field-first table has no (Close|Adj Close, %s) column", v.Instrument),
			Seen:   seen,
		}
	case instrumentFirst:
		if col := find(func(k ColumnKey, field string) bool {
			return k.Outer == v.Instrument && sameLabel(k.Inner, field)
		}); col >= 0 {
			return col, nil
		}
		return -1, &SchemaMismatchError{
			Reason: fmt.Sprintf("instrument-first table has no (%s, Close|Adj Close) column", v.Instrument),
			Seen:   seen,
		}
	}

	// Neither axis is cleanly a field axis; take the first close-labelled column on either level.
	for _, level := range []func(ColumnKey) string{
		func(k ColumnKey) string { return k.Outer },
		func(k ColumnKey) string { return k.Inner },
	} {
		for _, field := range []string{closeLabel, adjCloseLabel} {
			if _, idx, ok := lo.FindIndexOf(t.Columns, func(k ColumnKey) bool { return sameLabel(level(k), field) }); ok {
				return idx, nil
			}
		}
	}
	return -1, &SchemaMismatchError{Reason: "no Close or Adj Close label on either column axis", Seen: seen}
}

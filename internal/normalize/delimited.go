package normalize

import (
	"strings"
)

// DelimitedRecord reads "YYYY-MM-DD,open,close,high,low,volume" records: field 0 is
// the date and field 2 the close, or field 1 when the record is shorter.
type DelimitedRecord struct{}

func (DelimitedRecord) Name() string { return string(ShapeDelimited) }

// Extract implements Variant.
func (DelimitedRecord) Extract(raw RawResponse) ([]Row, error) {
	p, ok := raw.Payload.(DelimitedRecords)
	if !ok {
		return nil, ErrNotApplicable
	}
	if len(p.Records) == 0 {
		return nil, &SchemaMismatchError{Reason: "no records"}
	}

	sep := delimiterOf(p)
	rows := make([]Row, 0, len(p.Records))
	for _, rec := range p.Records {
		fields := strings.Split(rec, sep)
		if len(fields) < 2 {
			continue
		}
		value := ""
		if len(fields) > 2 {
			value = strings.TrimSpace(fields[2])
		}
		if value == "" {
			value = strings.TrimSpace(fields[1])
		}
		rows = append(rows, Row{RawDate: strings.TrimSpace(fields[0]), RawValue: value})
	}
	if len(rows) == 0 {
		return nil, &SchemaMismatchError{Reason: "no record has at least a date and one value field"}
	}
	return rows, nil
}

func delimiterOf(p DelimitedRecords) string {
	if p.Delimiter == "" {
		return ","
	}
	return p.Delimiter
}

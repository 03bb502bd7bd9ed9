package series

// BusinessDays lists every Monday-Friday date in [from, to] inclusive.
func BusinessDays(from, to Date) []Date {
	if to.Before(from) {
		return nil
	}
	out := make([]Date, 0)
	for d := from; !d.After(to); d = d.AddDays(1) {
		if d.IsBusinessDay() {
			out = append(out, d)
		}
	}
	return out
}

// IsContiguousBusinessDayRun reports whether dates are exactly the business days
// between the first and last entries. Public holidays count as gaps.
func IsContiguousBusinessDayRun(dates []Date) bool {
	if len(dates) <= 1 {
		return true
	}
	expected := BusinessDays(dates[0], dates[len(dates)-1])
	if len(expected) != len(dates) {
		return false
	}
	for i := range dates {
		if dates[i] != expected[i] {
			return false
		}
	}
	return true
}

package series

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Point is one daily observation of the monitored indicator.
type Point struct {
	Date  Date
	Value decimal.Decimal
	// Imputed marks a point whose date was missing upstream and defaulted to today.
	Imputed bool
}

// Series is a canonical, strictly ascending, one-point-per-date sequence.
// Values are only ever built through Canonicalize.
type Series struct {
	points []Point
}

// Canonicalize drops undated points, keeps the last occurrence per date and sorts ascending.
func Canonicalize(points []Point) Series {
	byDate := make(map[Date]int, len(points))
	kept := make([]Point, 0, len(points))
	for _, p := range points {
		if p.Date.IsZero() {
			continue
		}
		if idx, ok := byDate[p.Date]; ok {
			kept[idx] = p
			continue
		}
		byDate[p.Date] = len(kept)
		kept = append(kept, p)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Date.Before(kept[j].Date) })
	return Series{points: kept}
}

// Len returns the number of points.
func (s Series) Len() int { return len(s.points) }

// IsEmpty reports whether the series has no points.
func (s Series) IsEmpty() bool { return len(s.points) == 0 }

// Points returns a copy of the underlying points.
func (s Series) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// At returns the i-th point.
func (s Series) At(i int) Point { return s.points[i] }

// Last returns the most recent point; ok is false when the series is empty.
func (s Series) Last() (Point, bool) {
	if len(s.points) == 0 {
		return Point{}, false
	}
	return s.points[len(s.points)-1], true
}

// Tail returns the last n points (all of them when n exceeds the length).
func (s Series) Tail(n int) Series {
	if n <= 0 {
		return Series{}
	}
	if n >= len(s.points) {
		return s
	}
	return Series{points: s.points[len(s.points)-n:]}
}

// Dates returns the dates in order.
func (s Series) Dates() []Date {
	out := make([]Date, len(s.points))
	for i, p := range s.points {
		out[i] = p.Date
	}
	return out
}

// ImputedCount counts points whose date was defaulted.
func (s Series) ImputedCount() int {
	n := 0
	for _, p := range s.points {
		if p.Imputed {
			n++
		}
	}
	return n
}

// Equal compares dates, values and the imputed flag point by point.
func (s Series) Equal(o Series) bool {
	if len(s.points) != len(o.points) {
		return false
	}
	for i := range s.points {
		a, b := s.points[i], o.points[i]
		if a.Date != b.Date || !a.Value.Equal(b.Value) || a.Imputed != b.Imputed {
			return false
		}
	}
	return true
}

package alerting

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"streak-alerts/internal/detector"
	"streak-alerts/internal/series"
)

// Unit controls how values are rendered.
type Unit string

const (
	UnitUSD     Unit = "usd"
	UnitPercent Unit = "percent"
	UnitPlain   Unit = "plain"
)

// ParseUnit accepts usd, percent (or %) and plain.
func ParseUnit(raw string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "usd", "$":
		return UnitUSD, nil
	case "percent", "%", "pct":
		return UnitPercent, nil
	case "plain", "none":
		return UnitPlain, nil
	}
	return "", fmt.Errorf("unknown unit %q", raw)
}

// FormatValue renders one value: usd as $1,234.56, percent as 1.850%, plain with grouping.
func (u Unit) FormatValue(v decimal.Decimal) string {
	f := v.InexactFloat64()
	switch u {
	case UnitPercent:
		return v.StringFixed(3) + "%"
	case UnitPlain:
		return humanize.FormatFloat("#,###.####", f)
	default:
		if v.IsNegative() {
			return "-$" + humanize.FormatFloat("#,###.##", -f)
		}
		return "$" + humanize.FormatFloat("#,###.##", f)
	}
}

// FormatThreshold uses two decimals for percent thresholds.
func (u Unit) FormatThreshold(v decimal.Decimal) string {
	if u == UnitPercent {
		return v.StringFixed(2) + "%"
	}
	return u.FormatValue(v)
}

// Alert is everything the message needs. Format never looks elsewhere.
type Alert struct {
	Title      string
	Symbol     string
	Source     string
	Window     series.Series
	Threshold  decimal.Decimal
	RunLength  int
	Comparison detector.Comparison
	Unit       Unit
}

// Format renders a Telegram Markdown message. Same input, same bytes.
func Format(a Alert) string {
	var b strings.Builder

	title := a.Title
	if title == "" {
		title = a.Symbol
	}
	if strings.ContainsAny(title, markdownMarkers) {
		// legacy Markdown cannot escape inside an entity, so drop the bold
		fmt.Fprintf(&b, "%s\n", escapeMarkdown(title))
	} else {
		fmt.Fprintf(&b, "*%s*\n", title)
	}

	points := a.Window.Points()
	var span string
	if len(points) > 0 {
		span = fmt.Sprintf("（%s → %s）", points[0].Date, points[len(points)-1].Date)
	}
	fmt.Fprintf(&b, "连续 *%d* 个交易日收盘 %s *%s*%s：\n",
		a.RunLength, a.Comparison.Symbol(), a.Unit.FormatThreshold(a.Threshold), span)

	for _, p := range points {
		fmt.Fprintf(&b, "- %s: %s", p.Date, a.Unit.FormatValue(p.Value))
		if p.Imputed {
			b.WriteString(" (日期按当天推定)")
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "\n标的：`%s`（`%s`）", codeSpan(a.Symbol), codeSpan(a.Source))
	return b.String()
}

// Telegram legacy Markdown entity characters.
const markdownMarkers = "_*`["

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }

// codeSpan content is literal except for the closing backtick.
func codeSpan(s string) string { return strings.ReplaceAll(s, "`", "'") }

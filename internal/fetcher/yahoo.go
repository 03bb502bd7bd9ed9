package fetcher

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"streak-alerts/internal/normalize"
	"streak-alerts/internal/series"
)

const (
	yahooBaseURL = "https://query1.finance.yahoo.com"

	YahooChartName    = "yahoo_chart"
	YahooDownloadName = "yahoo_download"
)

// Wider windows tried when a short window comes back empty (60 days, then roughly 3 months).
var yahooFallbackWindows = []int{60, 92}

// YahooOptions parameterise both Yahoo Finance adapters.
type YahooOptions struct {
	HTTPOptions
	// Now anchors the lookback window; defaults to time.Now.
	Now func() time.Time
}

func (o YahooOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func yahooPeriod(now time.Time, days int) (string, string) {
	return strconv.FormatInt(now.AddDate(0, 0, -days).Unix(), 10), strconv.FormatInt(now.Unix(), 10)
}

// YahooChart reads the v8 chart API and presents it as a single-level table.
type YahooChart struct {
	httpSource
	opts YahooOptions
}

// NewYahooChart constructs the chart adapter.
func NewYahooChart(opts YahooOptions, logger zerolog.Logger) *YahooChart {
	return &YahooChart{httpSource: newHTTPSource(YahooChartName, opts.HTTPOptions, yahooBaseURL, logger), opts: opts}
}

func (y *YahooChart) Name() string { return YahooChartName }

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				GMTOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch implements Adapter.
func (y *YahooChart) Fetch(ctx context.Context, q Query) (normalize.RawResponse, error) {
	for _, days := range lookbackWindows(q.LookbackDays, yahooFallbackWindows...) {
		p1, p2 := yahooPeriod(y.opts.now(), days)
		endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&includeAdjustedClose=true&period1=%s&period2=%s",
			y.baseURL, url.PathEscape(q.Symbol), p1, p2)

		body, err := y.get(ctx, endpoint, map[string]string{"Accept": "application/json"})
		if err != nil {
			return normalize.RawResponse{}, err
		}

		var chart yahooChartResponse
		if err := json.Unmarshal(body, &chart); err != nil {
			return normalize.RawResponse{}, &TransportError{Source: y.name, URL: endpoint, Err: fmt.Errorf("decode chart: %w", err)}
		}
		if chart.Chart.Error != nil {
			return normalize.RawResponse{}, &TransportError{
				Source: y.name,
				URL:    endpoint,
				Err:    fmt.Errorf("yahoo api error %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description),
			}
		}

		table, ok := chartTable(chart)
		if ok {
			return normalize.RawResponse{Source: y.name, Payload: table}, nil
		}
		y.logger.Warn().Int("window_days", days).Msg("empty chart window; widening")
	}
	return normalize.RawResponse{}, &EmptyResponseError{Source: y.name, Detail: "every lookback window returned no bars"}
}

func chartTable(chart yahooChartResponse) (normalize.Table, bool) {
	if len(chart.Chart.Result) == 0 {
		return normalize.Table{}, false
	}
	res := chart.Chart.Result[0]
	if len(res.Timestamp) == 0 || len(res.Indicators.Quote) == 0 {
		return normalize.Table{}, false
	}
	quote := res.Indicators.Quote[0]
	var adj []*float64
	if len(res.Indicators.AdjClose) > 0 {
		adj = res.Indicators.AdjClose[0].AdjClose
	}

	table := normalize.Table{Columns: []string{"Open", "High", "Low", "Close", "Adj Close", "Volume"}}
	anyClose := false
	for i, ts := range res.Timestamp {
		// bars are stamped at the session open; shift into exchange-local time before taking the date
		day := series.DateOf(time.Unix(ts+res.Meta.GMTOffset, 0).UTC())
		row := []string{
			floatCell(quote.Open, i),
			floatCell(quote.High, i),
			floatCell(quote.Low, i),
			floatCell(quote.Close, i),
			floatCell(adj, i),
			floatCell(quote.Volume, i),
		}
		if row[3] != "" || row[4] != "" {
			anyClose = true
		}
		table.Index = append(table.Index, day.String())
		table.Rows = append(table.Rows, row)
	}
	return table, anyClose
}

func floatCell(values []*float64, i int) string {
	if i >= len(values) || values[i] == nil {
		return ""
	}
	return strconv.FormatFloat(*values[i], 'f', -1, 64)
}

// YahooDownload reads the CSV download endpoint and presents it as a two-level
// (field, instrument) table, the layout a grouped multi-ticker download produces.
type YahooDownload struct {
	httpSource
	opts YahooOptions
}

// NewYahooDownload constructs the CSV adapter.
func NewYahooDownload(opts YahooOptions, logger zerolog.Logger) *YahooDownload {
	return &YahooDownload{httpSource: newHTTPSource(YahooDownloadName, opts.HTTPOptions, yahooBaseURL, logger), opts: opts}
}

func (y *YahooDownload) Name() string { return YahooDownloadName }

// Fetch implements Adapter.
func (y *YahooDownload) Fetch(ctx context.Context, q Query) (normalize.RawResponse, error) {
	for _, days := range lookbackWindows(q.LookbackDays, yahooFallbackWindows...) {
		p1, p2 := yahooPeriod(y.opts.now(), days)
		endpoint := fmt.Sprintf("%s/v7/finance/download/%s?interval=1d&events=history&includeAdjustedClose=true&period1=%s&period2=%s",
			y.baseURL, url.PathEscape(q.Symbol), p1, p2)

		body, err := y.get(ctx, endpoint, map[string]string{"Accept": "text/csv"})
		if err != nil {
			return normalize.RawResponse{}, err
		}

		table, err := csvMultiTable(body, q.Symbol)
		if err != nil {
			return normalize.RawResponse{}, &TransportError{Source: y.name, URL: endpoint, Err: err}
		}
		if len(table.Rows) > 0 {
			return normalize.RawResponse{Source: y.name, Payload: table}, nil
		}
		y.logger.Warn().Int("window_days", days).Msg("empty download window; widening")
	}
	return normalize.RawResponse{}, &EmptyResponseError{Source: y.name, Detail: "every lookback window returned no rows"}
}

func csvMultiTable(body []byte, symbol string) (normalize.MultiTable, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return normalize.MultiTable{}, nil
	}
	if err != nil {
		return normalize.MultiTable{}, fmt.Errorf("read csv header: %w", err)
	}

	dateCol := -1
	var table normalize.MultiTable
	var fieldCols []int
	for i, h := range header {
		h = strings.TrimSpace(h)
		if strings.EqualFold(h, "Date") {
			dateCol = i
			continue
		}
		fieldCols = append(fieldCols, i)
		table.Columns = append(table.Columns, normalize.ColumnKey{Outer: h, Inner: symbol})
	}
	if dateCol < 0 {
		return normalize.MultiTable{}, fmt.Errorf("csv has no Date column: %s", strings.Join(header, ","))
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return normalize.MultiTable{}, fmt.Errorf("read csv: %w", err)
		}
		if dateCol >= len(rec) {
			continue
		}
		row := make([]string, len(fieldCols))
		for j, c := range fieldCols {
			if c < len(rec) {
				row[j] = rec[c]
			}
		}
		table.Index = append(table.Index, rec[dateCol])
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

var (
	_ Adapter = (*YahooChart)(nil)
	_ Adapter = (*YahooDownload)(nil)
)

package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streak-alerts/internal/normalize"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

var fixedNow = func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) }

func TestYahooChartSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v8/finance/chart/BZ=F") {
			t.Errorf("路径不正确: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{"symbol":"BZ=F","gmtoffset":-18000},
			"timestamp":[1704189600,1704276000],
			"indicators":{"quote":[{"open":[1,2],"high":[1,2],"low":[1,2],"close":[76.24,null],"volume":[10,20]}],
			"adjclose":[{"adjclose":[76.24,75.89]}]}}],"error":null}}`)
	}))
	defer srv.Close()

	y := NewYahooChart(YahooOptions{HTTPOptions: HTTPOptions{BaseURL: srv.URL, Timeout: time.Second}, Now: fixedNow}, noopLogger())
	raw, err := y.Fetch(context.Background(), Query{Symbol: "BZ=F", LookbackDays: 40})
	require.NoError(t, err)
	assert.Equal(t, YahooChartName, raw.Source)

	table, ok := raw.Payload.(normalize.Table)
	require.True(t, ok)
	assert.Equal(t, []string{"2024-01-02", "2024-01-03"}, table.Index)
	assert.Equal(t, "76.24", table.Rows[0][3])
	assert.Equal(t, "", table.Rows[1][3])
	assert.Equal(t, "75.89", table.Rows[1][4])
}

func TestYahooChartWidensEmptyWindow(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			fmt.Fprint(w, `{"chart":{"result":[{"meta":{},"timestamp":[],"indicators":{"quote":[{}]}}]}}`)
			return
		}
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{},"timestamp":[1704189600],"indicators":{"quote":[{"close":[70.5]}]}}]}}`)
	}))
	defer srv.Close()

	y := NewYahooChart(YahooOptions{HTTPOptions: HTTPOptions{BaseURL: srv.URL}, Now: fixedNow}, noopLogger())
	raw, err := y.Fetch(context.Background(), Query{Symbol: "BZ=F", LookbackDays: 40})
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load(), "应依次尝试 40/60/92 天窗口")
	assert.Len(t, raw.Payload.(normalize.Table).Rows, 1)
}

func TestYahooChartAllWindowsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[]}}`)
	}))
	defer srv.Close()

	y := NewYahooChart(YahooOptions{HTTPOptions: HTTPOptions{BaseURL: srv.URL}, Now: fixedNow}, noopLogger())
	_, err := y.Fetch(context.Background(), Query{Symbol: "BZ=F", LookbackDays: 40})
	var empty *EmptyResponseError
	require.True(t, errors.As(err, &empty))
}

func TestYahooChartHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	}))
	defer srv.Close()

	y := NewYahooChart(YahooOptions{HTTPOptions: HTTPOptions{BaseURL: srv.URL}, Now: fixedNow}, noopLogger())
	_, err := y.Fetch(context.Background(), Query{Symbol: "XX", LookbackDays: 40})
	var transport *TransportError
	require.True(t, errors.As(err, &transport))
	assert.Equal(t, http.StatusNotFound, transport.Status)
	assert.Contains(t, err.Error(), "No data found")
}

func TestYahooDownloadBuildsTwoLevelTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Date,Open,High,Low,Close,Adj Close,Volume\n2024-01-02,1,2,0.5,70.1,70.1,100\n2024-01-03,1,2,0.5,null,null,0\n")
	}))
	defer srv.Close()

	y := NewYahooDownload(YahooOptions{HTTPOptions: HTTPOptions{BaseURL: srv.URL}, Now: fixedNow}, noopLogger())
	raw, err := y.Fetch(context.Background(), Query{Symbol: "BZ=F", LookbackDays: 40})
	require.NoError(t, err)

	table, ok := raw.Payload.(normalize.MultiTable)
	require.True(t, ok)
	assert.Contains(t, table.Columns, normalize.ColumnKey{Outer: "Close", Inner: "BZ=F"})
	assert.Equal(t, []string{"2024-01-02", "2024-01-03"}, table.Index)
}

func TestTradingEconomicsFallsThroughEndpoints(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Query().Get("c") != "guest:guest" {
			t.Errorf("未配置 key 时应使用 guest 凭据")
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/markets/bond/"):
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, "forbidden")
		case strings.HasPrefix(r.URL.Path, "/historical/country/"):
			fmt.Fprint(w, "[]")
		default:
			fmt.Fprint(w, `[{"Date":"2024-01-09T00:00:00","Close":1.85}]`)
		}
	}))
	defer srv.Close()

	te := NewTradingEconomics(TradingEconomicsOptions{
		HTTPOptions: HTTPOptions{BaseURL: srv.URL},
		Country:     "china",
		Indicator:   "Government Bond 10Y",
		Now:         fixedNow,
	}, noopLogger())
	raw, err := te.Fetch(context.Background(), Query{Symbol: "china:10y", LookbackDays: 30})
	require.NoError(t, err)
	assert.Len(t, paths, 3)
	_, ok := raw.Payload.(normalize.JSONDocument)
	assert.True(t, ok)
}

func TestTradingEconomicsPrefersHistoryForMultiDayRuns(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.HasPrefix(r.URL.Path, "/markets/bond/") {
			fmt.Fprint(w, `[{"Symbol":"CO1:COM","Last":75.2}]`)
			return
		}
		fmt.Fprint(w, `[{"Date":"2024-01-08T00:00:00","Close":74.1},{"Date":"2024-01-09T00:00:00","Close":75.2}]`)
	}))
	defer srv.Close()

	te := NewTradingEconomics(TradingEconomicsOptions{HTTPOptions: HTTPOptions{BaseURL: srv.URL}, Now: fixedNow}, noopLogger())
	_, err := te.Fetch(context.Background(), Query{Symbol: "CO1:COM", LookbackDays: 40, MinPoints: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"/historical/markets/bond/CO1:COM"}, paths, "多日规则不应先取单条快照")

	urls := te.endpoints(Query{Symbol: "CO1:COM", LookbackDays: 40, MinPoints: 5})
	assert.Contains(t, urls[len(urls)-1], "/markets/bond/CO1:COM?", "快照作为最后的兜底")

	urls = te.endpoints(Query{Symbol: "CO1:COM", LookbackDays: 40, MinPoints: 1})
	assert.Contains(t, urls[0], "/markets/bond/CO1:COM?")
}

func TestTradingEconomicsAllFailRedactsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	te := NewTradingEconomics(TradingEconomicsOptions{HTTPOptions: HTTPOptions{BaseURL: srv.URL}, Key: "me:secret"}, noopLogger())
	_, err := te.Fetch(context.Background(), Query{Symbol: "china:10y", LookbackDays: 30})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
	var transport *TransportError
	assert.True(t, errors.As(err, &transport))
}

func TestEastmoneyKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "171.CN10Y", r.URL.Query().Get("secid"))
		fmt.Fprint(w, `{"rc":0,"data":{"code":"CN10Y","klines":["2024-01-02,2.56,2.55,2.57,2.54,0"]}}`)
	}))
	defer srv.Close()

	em := NewEastmoney(EastmoneyOptions{HTTPOptions: HTTPOptions{BaseURL: srv.URL}, SecID: "171.CN10Y"}, noopLogger())
	raw, err := em.Fetch(context.Background(), Query{Symbol: "ignored", LookbackDays: 30})
	require.NoError(t, err)
	recs, ok := raw.Payload.(normalize.DelimitedRecords)
	require.True(t, ok)
	assert.Len(t, recs.Records, 1)
}

func TestEastmoneyNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"rc":102,"data":null}`)
	}))
	defer srv.Close()

	em := NewEastmoney(EastmoneyOptions{HTTPOptions: HTTPOptions{BaseURL: srv.URL}}, noopLogger())
	_, err := em.Fetch(context.Background(), Query{Symbol: "171.CN10Y", LookbackDays: 30})
	var empty *EmptyResponseError
	require.True(t, errors.As(err, &empty))
}

func TestInvestingScrapesTables(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<table><thead><tr><th>日期</th><th>收盘</th></tr></thead>
			<tbody><tr><td>2024年01月03日</td><td>2.512</td></tr><tr><td>2024年01月02日</td><td>2.498</td></tr></tbody></table>
		</body></html>`)
	}))
	defer srv.Close()

	inv := NewInvesting(InvestingOptions{HTTPOptions: HTTPOptions{BaseURL: srv.URL}}, noopLogger())
	raw, err := inv.Fetch(context.Background(), Query{})
	require.NoError(t, err)
	tables, ok := raw.Payload.(normalize.ScrapedTables)
	require.True(t, ok)
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"日期", "收盘"}, tables[0].Columns)
	assert.Equal(t, [][]string{{"2024年01月03日", "2.512"}, {"2024年01月02日", "2.498"}}, tables[0].Rows)
}

func TestEndpointSubstitutesSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BZ=F", r.URL.Query().Get("s"))
		fmt.Fprint(w, `{"value":70}`)
	}))
	defer srv.Close()

	ep := NewEndpoint(srv.URL+"/q?s={symbol}&n={lookback}", HTTPOptions{}, noopLogger())
	raw, err := ep.Fetch(context.Background(), Query{Symbol: "BZ=F", LookbackDays: 5})
	require.NoError(t, err)
	assert.Equal(t, EndpointName, raw.Source)
}

func TestLookbackWindows(t *testing.T) {
	assert.Equal(t, []int{40, 60, 92}, lookbackWindows(40, 60, 92))
	assert.Equal(t, []int{60, 92}, lookbackWindows(60, 60, 92))
	assert.Equal(t, []int{70, 92}, lookbackWindows(70, 60, 92))
}

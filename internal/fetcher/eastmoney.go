package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"streak-alerts/internal/normalize"
)

const (
	EastmoneyName = "eastmoney"

	eastmoneyBaseURL = "https://push2his.eastmoney.com"
)

// EastmoneyOptions parameterise the kline adapter.
type EastmoneyOptions struct {
	HTTPOptions
	// SecID is the market-qualified instrument id, e.g. "171.CN10Y"; the query symbol is used when empty.
	SecID string
}

// Eastmoney reads daily klines, which arrive as "date,open,close,high,low,volume" strings.
type Eastmoney struct {
	httpSource
	opts EastmoneyOptions
}

// NewEastmoney constructs the adapter.
func NewEastmoney(opts EastmoneyOptions, logger zerolog.Logger) *Eastmoney {
	return &Eastmoney{httpSource: newHTTPSource(EastmoneyName, opts.HTTPOptions, eastmoneyBaseURL, logger), opts: opts}
}

func (e *Eastmoney) Name() string { return EastmoneyName }

type eastmoneyResponse struct {
	RC   int `json:"rc"`
	Data *struct {
		Code   string   `json:"code"`
		Name   string   `json:"name"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

// Fetch implements Adapter.
func (e *Eastmoney) Fetch(ctx context.Context, q Query) (normalize.RawResponse, error) {
	secid := e.opts.SecID
	if secid == "" {
		secid = q.Symbol
	}

	params := url.Values{}
	params.Set("secid", secid)
	params.Set("fields1", "f1,f2,f3,f4,f5,f6")
	params.Set("fields2", "f51,f52,f53,f54,f55,f56")
	params.Set("klt", "101")
	params.Set("fqt", "0")
	params.Set("end", "20500101")
	params.Set("lmt", strconv.Itoa(max(q.LookbackDays, 1)))
	endpoint := fmt.Sprintf("%s/api/qt/stock/kline/get?%s", e.baseURL, params.Encode())

	body, err := e.get(ctx, endpoint, map[string]string{"Accept": "application/json"})
	if err != nil {
		return normalize.RawResponse{}, err
	}

	var resp eastmoneyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return normalize.RawResponse{}, &TransportError{Source: e.name, URL: endpoint, Err: fmt.Errorf("decode kline: %w", err)}
	}
	if resp.Data == nil || len(resp.Data.Klines) == 0 {
		return normalize.RawResponse{}, &EmptyResponseError{Source: e.name, Detail: fmt.Sprintf("no klines for %s (rc=%d)", secid, resp.RC)}
	}

	return normalize.RawResponse{
		Source:  e.name,
		Payload: normalize.DelimitedRecords{Records: resp.Data.Klines, Delimiter: ","},
	}, nil
}

var _ Adapter = (*Eastmoney)(nil)

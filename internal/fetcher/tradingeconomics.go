package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"streak-alerts/internal/normalize"
)

const (
	TradingEconomicsName = "tradingeconomics"

	tradingEconomicsBaseURL = "https://api.tradingeconomics.com"
	tradingEconomicsGuest   = "guest:guest"
)

// TradingEconomicsOptions parameterise the TradingEconomics adapter.
type TradingEconomicsOptions struct {
	HTTPOptions
	// Key is "client:secret"; guest credentials are used when empty.
	Key string
	// MarketSymbol overrides the query symbol, e.g. "china:10y".
	MarketSymbol string
	Country      string
	Indicator    string
	Now          func() time.Time
}

// TradingEconomics tries several endpoints in order and returns the first non-empty JSON body.
type TradingEconomics struct {
	httpSource
	opts TradingEconomicsOptions
}

// NewTradingEconomics constructs the adapter.
func NewTradingEconomics(opts TradingEconomicsOptions, logger zerolog.Logger) *TradingEconomics {
	return &TradingEconomics{
		httpSource: newHTTPSource(TradingEconomicsName, opts.HTTPOptions, tradingEconomicsBaseURL, logger),
		opts:       opts,
	}
}

func (t *TradingEconomics) Name() string { return TradingEconomicsName }

func (t *TradingEconomics) endpoints(q Query) []string {
	cred := strings.TrimSpace(t.opts.Key)
	if cred == "" {
		cred = tradingEconomicsGuest
	}
	symbol := t.opts.MarketSymbol
	if symbol == "" {
		symbol = q.Symbol
	}
	now := time.Now
	if t.opts.Now != nil {
		now = t.opts.Now
	}
	from := now().AddDate(0, 0, -max(q.LookbackDays, 1)).Format("2006-01-02")

	common := url.Values{}
	common.Set("c", cred)
	common.Set("format", "json")

	withStart := url.Values{}
	for k, v := range common {
		withStart[k] = v
	}
	withStart.Set("d1", from)

	snapshot := fmt.Sprintf("%s/markets/bond/%s?%s", t.baseURL, url.PathEscape(symbol), common.Encode())

	var out []string
	if q.MinPoints <= 1 {
		out = append(out, snapshot)
	}
	if t.opts.Country != "" && t.opts.Indicator != "" {
		byIndicator := url.Values{}
		for k, v := range withStart {
			byIndicator[k] = v
		}
		byIndicator.Set("indicator", t.opts.Indicator)
		out = append(out, fmt.Sprintf("%s/historical/country/%s?%s", t.baseURL, url.PathEscape(t.opts.Country), byIndicator.Encode()))
	}
	out = append(out, fmt.Sprintf("%s/historical/markets/bond/%s?%s", t.baseURL, url.PathEscape(symbol), withStart.Encode()))
	// the snapshot carries a single record, useless for a multi-day run unless history fails
	if q.MinPoints > 1 {
		out = append(out, snapshot)
	}
	return out
}

// Fetch implements Adapter.
func (t *TradingEconomics) Fetch(ctx context.Context, q Query) (normalize.RawResponse, error) {
	var errs []error
	allEmpty := true
	for _, endpoint := range t.endpoints(q) {
		body, err := t.get(ctx, endpoint, map[string]string{"Accept": "application/json"})
		if err != nil {
			t.logger.Warn().Err(err).Msg("endpoint failed")
			errs = append(errs, err)
			allEmpty = false
			continue
		}
		if isBlankJSON(body) {
			errs = append(errs, fmt.Errorf("%s: empty json", redactURL(endpoint)))
			continue
		}
		return normalize.RawResponse{Source: t.name, Payload: normalize.JSONDocument(body)}, nil
	}

	if allEmpty {
		return normalize.RawResponse{}, &EmptyResponseError{Source: t.name, Detail: errors.Join(errs...).Error()}
	}
	return normalize.RawResponse{}, &TransportError{Source: t.name, Err: errors.Join(errs...)}
}

var _ Adapter = (*TradingEconomics)(nil)

package fetcher

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"streak-alerts/internal/normalize"
)

// EndpointName labels the single explicit override source.
const EndpointName = "endpoint"

// Endpoint GETs one operator-supplied URL returning JSON. "{symbol}" and
// "{lookback}" in the URL are substituted from the query.
type Endpoint struct {
	httpSource
	template string
}

// NewEndpoint constructs the override adapter.
func NewEndpoint(rawURL string, opts HTTPOptions, logger zerolog.Logger) *Endpoint {
	return &Endpoint{
		httpSource: newHTTPSource(EndpointName, opts, "", logger),
		template:   rawURL,
	}
}

func (e *Endpoint) Name() string { return EndpointName }

// Fetch implements Adapter.
func (e *Endpoint) Fetch(ctx context.Context, q Query) (normalize.RawResponse, error) {
	endpoint := strings.NewReplacer(
		"{symbol}", url.QueryEscape(q.Symbol),
		"{lookback}", strconv.Itoa(q.LookbackDays),
	).Replace(e.template)

	body, err := e.get(ctx, endpoint, map[string]string{"Accept": "application/json"})
	if err != nil {
		return normalize.RawResponse{}, err
	}
	if isBlankJSON(body) {
		return normalize.RawResponse{}, &EmptyResponseError{Source: e.name, Detail: redactURL(endpoint)}
	}
	return normalize.RawResponse{Source: e.name, Payload: normalize.JSONDocument(body)}, nil
}

var _ Adapter = (*Endpoint)(nil)

package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"streak-alerts/internal/normalize"
)

const (
	InvestingName = "investing"

	investingDefaultPage = "https://cn.investing.com/rates-bonds/china-10-year-bond-yield-historical-data"
	investingTimeout     = 25 * time.Second
)

// InvestingOptions parameterise the scrape adapter. BaseURL is the full page URL.
type InvestingOptions struct {
	HTTPOptions
}

// Investing scrapes every table of a historical-data page.
type Investing struct {
	httpSource
}

// NewInvesting constructs the adapter.
func NewInvesting(opts InvestingOptions, logger zerolog.Logger) *Investing {
	httpOpts := opts.HTTPOptions
	if httpOpts.Timeout <= 0 {
		httpOpts.Timeout = investingTimeout
	}
	return &Investing{httpSource: newHTTPSource(InvestingName, httpOpts, investingDefaultPage, logger)}
}

func (i *Investing) Name() string { return InvestingName }

// Fetch implements Adapter. The page is fixed by configuration; the query only
// contributes logging context.
func (i *Investing) Fetch(ctx context.Context, q Query) (normalize.RawResponse, error) {
	body, err := i.get(ctx, i.baseURL, map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
	})
	if err != nil {
		return normalize.RawResponse{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return normalize.RawResponse{}, &TransportError{Source: i.name, URL: i.baseURL, Err: fmt.Errorf("parse html: %w", err)}
	}

	tables := scrapeTables(doc)
	if len(tables) == 0 {
		return normalize.RawResponse{}, &EmptyResponseError{Source: i.name, Detail: "page has no data tables"}
	}
	i.logger.Debug().Str("symbol", q.Symbol).Int("tables", len(tables)).Msg("scraped page")
	return normalize.RawResponse{Source: i.name, Payload: normalize.ScrapedTables(tables)}, nil
}

func scrapeTables(doc *goquery.Document) []normalize.Table {
	var tables []normalize.Table
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		var t normalize.Table
		sel.Find("thead th").Each(func(_ int, th *goquery.Selection) {
			t.Columns = append(t.Columns, cleanText(th.Text()))
		})

		rows := sel.Find("tbody tr")
		if rows.Length() == 0 {
			rows = sel.Find("tr")
		}
		rows.Each(func(_ int, tr *goquery.Selection) {
			if len(t.Columns) == 0 && tr.Find("th").Length() > 0 {
				tr.Find("th").Each(func(_ int, th *goquery.Selection) {
					t.Columns = append(t.Columns, cleanText(th.Text()))
				})
				return
			}
			var cells []string
			tr.Find("td").Each(func(_ int, td *goquery.Selection) {
				cells = append(cells, cleanText(td.Text()))
			})
			if len(cells) > 0 {
				t.Rows = append(t.Rows, cells)
			}
		})

		if len(t.Rows) > 0 {
			tables = append(tables, t)
		}
	})
	return tables
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var _ Adapter = (*Investing)(nil)

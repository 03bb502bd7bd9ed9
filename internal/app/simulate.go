package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"streak-alerts/internal/fetcher"
	"streak-alerts/internal/normalize"
	"streak-alerts/internal/resolver"
	"streak-alerts/internal/series"
	"streak-alerts/internal/service"
)

// SimulateOptions 描述一次模拟: 按交易日排列的收盘价, 最后一个值落在 End。
type SimulateOptions struct {
	Values []decimal.Decimal
	End    series.Date
	DryRun bool
}

// SimulateAlert 使用给定的收盘价序列走一遍完整的判定与推送流程。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) (service.Report, error) {
	if len(opts.Values) == 0 {
		return service.Report{}, errors.New("至少需要一个收盘价")
	}
	end := opts.End
	if end.IsZero() {
		end = series.DateOf(time.Now())
	}

	static := &staticAdapter{table: syntheticTable(opts.Values, end)}
	sources := []resolver.Source{{
		Adapter:    static,
		Normalizer: normalize.NewChain(a.Logger, normalize.SingleLevelTable{}),
	}}

	svc, err := a.newService(sources, nil, a.newNotifier())
	if err != nil {
		return service.Report{}, err
	}
	return svc.Check(ctx, service.CheckOptions{DryRun: opts.DryRun, Preview: a.Out})
}

// syntheticTable lays values on consecutive business days ending at end (or the
// business day before it when end falls on a weekend).
func syntheticTable(values []decimal.Decimal, end series.Date) normalize.Table {
	for !end.IsBusinessDay() {
		end = end.AddDays(-1)
	}

	dates := make([]string, len(values))
	d := end
	for i := len(values) - 1; i >= 0; i-- {
		dates[i] = d.String()
		d = d.AddDays(-1)
		for !d.IsBusinessDay() {
			d = d.AddDays(-1)
		}
	}

	rows := make([][]string, len(values))
	for i, v := range values {
		rows[i] = []string{v.String()}
	}
	return normalize.Table{Index: dates, Columns: []string{"Close"}, Rows: rows}
}

const simulatedName = "simulated"

type staticAdapter struct {
	table normalize.Table
}

func (s *staticAdapter) Name() string { return simulatedName }

func (s *staticAdapter) Fetch(context.Context, fetcher.Query) (normalize.RawResponse, error) {
	return normalize.RawResponse{Source: simulatedName, Payload: s.table}, nil
}

var _ fetcher.Adapter = (*staticAdapter)(nil)

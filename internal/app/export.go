package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"streak-alerts/internal/alerting"
	"streak-alerts/internal/storage"
)

// Export renders stored observations as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	return a.export(ctx, store, opts)
}

func (a *App) export(ctx context.Context, store storage.ObservationStore, opts ExportOptions) error {
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC().AddDate(0, 0, 1)
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.AddDate(-1, 0, 0)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	obs, err := store.ListObservationsBetween(ctx, a.Config.Monitor.Symbol, from, to, opts.MaxPoints*4)
	if err != nil {
		return err
	}
	if len(obs) == 0 {
		a.Logger.Info().Msg("no observations found for export window")
		return nil
	}

	downsampled := downsample(obs, opts.MaxPoints)
	a.Logger.Info().Int("total", len(obs)).Int("exported", len(downsampled)).Msg("exporting observations")

	if opts.CSVPath != "" {
		if err := a.writeObservationsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := a.writeObservationsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsample(obs []storage.Observation, max int) []storage.Observation {
	if max <= 0 || len(obs) <= max {
		return obs
	}
	if max == 1 {
		return obs[len(obs)-1:]
	}

	result := make([]storage.Observation, 0, max)
	step := float64(len(obs)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(obs) {
			idx = len(obs) - 1
		}
		result = append(result, obs[idx])
	}
	return result
}

// writeObservationsCSV adds a "holds" column: whether the value meets the monitor rule.
func (a *App) writeObservationsCSV(path string, obs []storage.Observation) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	cmp, err := a.Config.Comparison()
	if err != nil {
		return err
	}
	threshold := a.Config.Monitor.Threshold

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "symbol", "value", "holds", "source", "imputed", "fetched_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, o := range obs {
		record := []string{
			o.Date.Format(time.DateOnly),
			o.Symbol,
			o.Value.String(),
			strconv.FormatBool(cmp.Holds(o.Value, threshold)),
			o.Source,
			strconv.FormatBool(o.Imputed),
			o.FetchedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func (a *App) writeObservationsPNG(path string, obs []storage.Observation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	unit, err := a.Config.Unit()
	if err != nil {
		return err
	}
	threshold := a.Config.Monitor.Threshold.InexactFloat64()

	x := make([]time.Time, len(obs))
	values := make([]float64, len(obs))
	limit := make([]float64, len(obs))
	for i, o := range obs {
		x[i] = o.Date
		values[i] = o.Value.InexactFloat64()
		limit[i] = threshold
	}

	valueFormatter := func(v interface{}) string {
		if unit == alerting.UnitPercent {
			return chart.FloatValueFormatterWithFormat(v, "%.3f%%")
		}
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  a.Config.Monitor.Title,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           a.Config.Monitor.Symbol,
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Close",
				XValues: x,
				YValues: values,
			},
			chart.TimeSeries{
				Name:    "Threshold",
				XValues: x,
				YValues: limit,
				Style: chart.Style{
					StrokeDashArray: []float64{5.0, 5.0},
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

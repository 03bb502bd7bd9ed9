package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"streak-alerts/internal/storage"
)

// Show prints recent observations, or recent check runs with opts.Runs.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	defer closeStore()

	if opts.Runs {
		return a.showRuns(ctx, store, opts.Limit)
	}
	return a.showObservations(ctx, store, opts.Limit)
}

func (a *App) showObservations(ctx context.Context, store storage.ObservationStore, limit int) error {
	unit, err := a.Config.Unit()
	if err != nil {
		return err
	}

	obs, err := store.ListRecentObservations(ctx, a.Config.Monitor.Symbol, limit)
	if err != nil {
		return err
	}
	if len(obs) == 0 {
		fmt.Fprintln(a.Out, "no observations found")
		return nil
	}

	threshold := a.Config.Monitor.Threshold
	cmp, _ := a.Config.Comparison()

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Date\tValue\t%s %s\tSource\tImputed\tFetched\n", cmp.Symbol(), unit.FormatThreshold(threshold))
	for _, o := range obs {
		mark := ""
		if cmp.Holds(o.Value, threshold) {
			mark = "✔"
		}
		imputed := ""
		if o.Imputed {
			imputed = "yes"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.Date.Format(time.DateOnly),
			unit.FormatValue(o.Value),
			mark,
			o.Source,
			imputed,
			humanize.Time(o.FetchedAt),
		)
	}
	return writer.Flush()
}

func (a *App) showRuns(ctx context.Context, store storage.RunStore, limit int) error {
	runs, err := store.ListRecentRuns(ctx, a.Config.Monitor.Symbol, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.Out, "no check runs found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tRun\tDecision\tSource\tWindow\tNotified\tFailures\tReason/Error")
	for _, run := range runs {
		window := ""
		if run.WindowStart != nil && run.WindowEnd != nil {
			window = run.WindowStart.Format(time.DateOnly) + "→" + run.WindowEnd.Format(time.DateOnly)
		}
		detail := run.Reason
		if run.Error != nil {
			detail = sanitizeInline(*run.Error)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%t\t%d\t%s\n",
			run.CreatedAt.UTC().Format(time.RFC3339),
			run.RunID.String()[:8],
			run.Decision,
			run.Source,
			window,
			run.Notified,
			len(run.Failures),
			detail,
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

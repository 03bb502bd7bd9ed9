package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"streak-alerts/internal/alerting"
	"streak-alerts/internal/detector"
	"streak-alerts/internal/fetcher"
	"streak-alerts/internal/resolver"
	"streak-alerts/internal/scheduler"
	"streak-alerts/internal/series"
	"streak-alerts/internal/storage"
)

// SeriesResolver yields the first canonical series any configured source produces.
type SeriesResolver interface {
	Resolve(ctx context.Context, q fetcher.Query) (resolver.Outcome, error)
}

// Options carry the monitored instrument and its rule.
type Options struct {
	Symbol       string
	Title        string
	Rule         detector.Rule
	LookbackDays int
	Unit         alerting.Unit
	LockKey      int64
	RunRetention time.Duration
}

// Deps are the collaborators of a Service. Stores and locker are optional.
type Deps struct {
	Resolver     SeriesResolver
	Notifier     alerting.Notifier
	Observations storage.ObservationStore
	Runs         storage.RunStore
	Locker       storage.AdvisoryLocker
	Now          func() time.Time
}

// CheckOptions vary a single run.
type CheckOptions struct {
	// DryRun writes the message to Preview instead of notifying.
	DryRun  bool
	Preview io.Writer
}

// Report summarises one check.
type Report struct {
	RunID    uuid.UUID
	Source   string
	Series   series.Series
	Decision detector.Decision
	Failures []resolver.Failure
	Message  string
	Notified bool
}

// Service orchestrates resolving, evaluating, alerting and auditing.
type Service struct {
	opts   Options
	deps   Deps
	logger zerolog.Logger
}

// New constructs the monitoring service.
func New(opts Options, deps Deps, logger zerolog.Logger) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		opts:   opts,
		deps:   deps,
		logger: logger.With().Str("component", "service").Str("symbol", opts.Symbol).Logger(),
	}
}

// Run executes Check on every scheduler tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context, sched *scheduler.Scheduler) error {
	if sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return sched.Run(ctx, func(ctx context.Context, at time.Time) error {
		unlock, proceed, err := s.acquireLock(ctx)
		if err != nil {
			return err
		}
		if !proceed {
			s.logger.Info().Time("at", at).Msg("skip run because advisory lock held elsewhere")
			return nil
		}
		if unlock != nil {
			defer unlock()
		}
		_, err = s.Check(ctx, CheckOptions{})
		s.pruneRuns(ctx)
		return err
	})
}

// Check performs one resolve-evaluate-notify pass. Only source exhaustion and
// notifier errors are returned; storage problems are logged.
func (s *Service) Check(ctx context.Context, opts CheckOptions) (Report, error) {
	report := Report{RunID: uuid.New()}
	logger := s.logger.With().Str("run_id", report.RunID.String()).Logger()

	logger.Info().Int("lookback_days", s.opts.LookbackDays).Msg("获取日线数据")
	outcome, err := s.deps.Resolver.Resolve(ctx, fetcher.Query{
		Symbol:       s.opts.Symbol,
		LookbackDays: s.opts.LookbackDays,
		MinPoints:    s.opts.Rule.RunLength,
	})
	if err != nil {
		var exhausted *resolver.AllSourcesExhaustedError
		if errors.As(err, &exhausted) {
			report.Failures = exhausted.Failures
		}
		s.recordRun(ctx, logger, report, storage.DecisionFailed, err)
		return report, err
	}
	report.Source = outcome.Source
	report.Series = outcome.Series
	report.Failures = outcome.Failures

	s.recordObservations(ctx, logger, outcome)

	decision := detector.Evaluate(outcome.Series, s.opts.Rule)
	report.Decision = decision
	logTail(logger, decision.Window)

	if !decision.ShouldAlert {
		last, _ := outcome.Series.Last()
		logger.Info().
			Str("reason", decision.Reason).
			Str("last_date", last.Date.String()).
			Str("last_close", s.opts.Unit.FormatValue(last.Value)).
			Str("threshold", s.opts.Unit.FormatThreshold(s.opts.Rule.Threshold)).
			Msg("暂不触发")
		s.recordRun(ctx, logger, report, storage.DecisionNoAlert, nil)
		return report, nil
	}

	report.Message = alerting.Format(alerting.Alert{
		Title:      s.opts.Title,
		Symbol:     s.opts.Symbol,
		Source:     outcome.Source,
		Window:     decision.Window,
		Threshold:  s.opts.Rule.Threshold,
		RunLength:  s.opts.Rule.RunLength,
		Comparison: s.opts.Rule.Comparison,
		Unit:       s.opts.Unit,
	})

	if opts.DryRun {
		out := opts.Preview
		if out == nil {
			out = io.Discard
		}
		if err := (alerting.WriterNotifier{Out: out}).Notify(ctx, report.Message); err != nil {
			return report, fmt.Errorf("write preview: %w", err)
		}
		logger.Info().Str("reason", decision.Reason).Msg("dry run: alert rendered, not sent")
		s.recordRun(ctx, logger, report, storage.DecisionAlert, nil)
		return report, nil
	}

	if err := s.deps.Notifier.Notify(ctx, report.Message); err != nil {
		logger.Error().Err(err).Msg("failed to dispatch alert")
		s.recordRun(ctx, logger, report, storage.DecisionAlert, err)
		return report, err
	}
	report.Notified = true
	logger.Info().Str("reason", decision.Reason).Str("source", outcome.Source).Msg("alert dispatched")
	s.recordRun(ctx, logger, report, storage.DecisionAlert, nil)
	return report, nil
}

func logTail(logger zerolog.Logger, window series.Series) {
	e := logger.Debug()
	if !e.Enabled() {
		return
	}
	arr := zerolog.Arr()
	for _, p := range window.Points() {
		arr = arr.Str(p.Date.String() + "=" + p.Value.String())
	}
	e.Array("tail", arr).Msg("最近收盘（尾部）")
}

func (s *Service) recordObservations(ctx context.Context, logger zerolog.Logger, outcome resolver.Outcome) {
	if s.deps.Observations == nil {
		return
	}
	fetchedAt := s.deps.Now().UTC()
	obs := lo.Map(outcome.Series.Points(), func(p series.Point, _ int) storage.Observation {
		return storage.Observation{
			Symbol:    s.opts.Symbol,
			Date:      p.Date.Time(),
			Value:     p.Value,
			Source:    outcome.Source,
			Imputed:   p.Imputed,
			FetchedAt: fetchedAt,
		}
	})
	if err := s.deps.Observations.UpsertObservations(ctx, obs); err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		logger.Error().Err(err).Int("points", len(obs)).Msg("failed to persist observations")
	}
}

func (s *Service) recordRun(ctx context.Context, logger zerolog.Logger, report Report, decision string, runErr error) {
	if s.deps.Runs == nil {
		return
	}
	run := storage.CheckRun{
		RunID:    report.RunID,
		Symbol:   s.opts.Symbol,
		Source:   report.Source,
		Decision: decision,
		Reason:   report.Decision.Reason,
		Failures: lo.Map(report.Failures, func(f resolver.Failure, _ int) string { return f.String() }),
		Notified: report.Notified,
	}
	points := report.Decision.Window.Points()
	if len(points) > 0 {
		start, end := points[0].Date.Time(), points[len(points)-1].Date.Time()
		run.WindowStart, run.WindowEnd = &start, &end
	}
	if runErr != nil {
		msg := runErr.Error()
		run.Error = &msg
	}
	if _, err := s.deps.Runs.InsertCheckRun(ctx, run); err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		logger.Error().Err(err).Msg("failed to persist check run")
	}
}

func (s *Service) pruneRuns(ctx context.Context) {
	if s.opts.RunRetention <= 0 || s.deps.Runs == nil {
		return
	}
	cutoff := s.deps.Now().UTC().Add(-s.opts.RunRetention)
	if err := s.deps.Runs.DeleteRunsBefore(ctx, cutoff); err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		s.logger.Warn().Err(err).Time("cutoff", cutoff).Msg("failed to prune check runs")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if errors.Is(err, storage.ErrNotConfigured) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

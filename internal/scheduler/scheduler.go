package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TickFunc is invoked on every scheduled fire time.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	// Cron is a standard five-field expression, e.g. "30 22 * * 1-5".
	Cron       string
	Location   *time.Location
	RunOnStart bool
}

// Scheduler drives cron-triggered checks. Overlapping ticks are skipped.
type Scheduler struct {
	opts     Options
	schedule cron.Schedule
	logger   zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	schedule, err := cron.ParseStandard(opts.Cron)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", opts.Cron, err)
	}
	// without a CRON_TZ= prefix the parser defaults to time.Local
	if spec, ok := schedule.(*cron.SpecSchedule); ok && !strings.HasPrefix(opts.Cron, "CRON_TZ=") && !strings.HasPrefix(opts.Cron, "TZ=") {
		spec.Location = opts.Location
	}
	return &Scheduler{
		opts:     opts,
		schedule: schedule,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Next reports the first fire time after now.
func (s *Scheduler) Next(now time.Time) time.Time {
	return s.schedule.Next(now.In(s.opts.Location))
}

// Run blocks, invoking tick on every fire time until ctx is cancelled. Tick
// errors are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	c := cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithLogger(cronLogger{s.logger}),
		cron.WithChain(cron.Recover(cronLogger{s.logger}), cron.SkipIfStillRunning(cronLogger{s.logger})),
	)

	run := func() {
		at := time.Now().In(s.opts.Location)
		s.logger.Info().Time("at", at).Msg("executing scheduled check")
		if err := tick(ctx, at); err != nil {
			s.logger.Error().Err(err).Time("at", at).Msg("scheduled check failed")
		}
		s.logger.Info().Time("next", s.Next(time.Now())).Msg("waiting for next run")
	}
	c.Schedule(s.schedule, cron.FuncJob(run))

	if s.opts.RunOnStart {
		run()
	}

	c.Start()
	s.logger.Info().Str("cron", s.opts.Cron).Str("tz", s.opts.Location.String()).
		Time("next", s.Next(time.Now())).Msg("scheduler started")

	<-ctx.Done()
	// wait for an in-flight check to finish
	<-c.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
	return ctx.Err()
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

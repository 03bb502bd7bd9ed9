package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streak-alerts/internal/alerting"
	"streak-alerts/internal/detector"
	"streak-alerts/internal/fetcher"
	"streak-alerts/internal/resolver"
	"streak-alerts/internal/series"
	"streak-alerts/internal/storage"
)

type stubResolver struct {
	outcome resolver.Outcome
	err     error
	queries []fetcher.Query
}

func (r *stubResolver) Resolve(_ context.Context, q fetcher.Query) (resolver.Outcome, error) {
	r.queries = append(r.queries, q)
	return r.outcome, r.err
}

type recordingNotifier struct {
	sent []string
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, text)
	return nil
}

type memoryStore struct {
	observations []storage.Observation
	runs         []storage.CheckRun
	upsertErr    error
	prunedBefore time.Time
}

func (m *memoryStore) UpsertObservations(_ context.Context, obs []storage.Observation) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.observations = append(m.observations, obs...)
	return nil
}

func (m *memoryStore) ListObservationsBetween(context.Context, string, time.Time, time.Time, int) ([]storage.Observation, error) {
	return m.observations, nil
}

func (m *memoryStore) ListRecentObservations(context.Context, string, int) ([]storage.Observation, error) {
	return m.observations, nil
}

func (m *memoryStore) InsertCheckRun(_ context.Context, run storage.CheckRun) (storage.CheckRun, error) {
	m.runs = append(m.runs, run)
	return run, nil
}

func (m *memoryStore) ListRecentRuns(context.Context, string, int) ([]storage.CheckRun, error) {
	return m.runs, nil
}

func (m *memoryStore) DeleteRunsBefore(_ context.Context, olderThan time.Time) error {
	m.prunedBefore = olderThan
	return nil
}

func businessSeries(values ...int64) series.Series {
	d := series.NewDate(2024, 1, 2)
	points := make([]series.Point, 0, len(values))
	for _, v := range values {
		for !d.IsBusinessDay() {
			d = d.AddDays(1)
		}
		points = append(points, series.Point{Date: d, Value: decimal.NewFromInt(v)})
		d = d.AddDays(1)
	}
	return series.Canonicalize(points)
}

func newService(res SeriesResolver, notifier alerting.Notifier, store *memoryStore) *Service {
	deps := Deps{Resolver: res, Notifier: notifier}
	if store != nil {
		deps.Observations, deps.Runs = store, store
	}
	return New(Options{
		Symbol:       "BZ=F",
		Title:        "Brent Watcher",
		Rule:         detector.Rule{Threshold: decimal.NewFromInt(70), RunLength: 5, Comparison: detector.GreaterThan},
		LookbackDays: 40,
		Unit:         alerting.UnitUSD,
	}, deps, zerolog.Nop())
}

func TestCheckAlertsOnNewStreak(t *testing.T) {
	res := &stubResolver{outcome: resolver.Outcome{
		Series:   businessSeries(69, 71, 72, 73, 74, 75),
		Source:   "yahoo_download",
		Failures: []resolver.Failure{{Source: "yahoo_chart", Err: errors.New("http 429")}},
	}}
	notifier := &recordingNotifier{}
	store := &memoryStore{}

	report, err := newService(res, notifier, store).Check(context.Background(), CheckOptions{})
	require.NoError(t, err)

	assert.True(t, report.Decision.ShouldAlert)
	assert.True(t, report.Notified)
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0], "$75.00")
	assert.Contains(t, notifier.sent[0], "yahoo_download")
	assert.Equal(t, fetcher.Query{Symbol: "BZ=F", LookbackDays: 40, MinPoints: 5}, res.queries[0])

	assert.Len(t, store.observations, 6)
	require.Len(t, store.runs, 1)
	run := store.runs[0]
	assert.Equal(t, storage.DecisionAlert, run.Decision)
	assert.Equal(t, report.RunID, run.RunID)
	assert.True(t, run.Notified)
	assert.Equal(t, []string{"yahoo_chart: http 429"}, run.Failures)
	require.NotNil(t, run.WindowStart)
	assert.Equal(t, "2024-01-03", run.WindowStart.Format(time.DateOnly))
}

func TestCheckDebouncedRunSendsNothing(t *testing.T) {
	res := &stubResolver{outcome: resolver.Outcome{Series: businessSeries(69, 71, 72, 73, 74, 75, 76), Source: "yahoo_chart"}}
	notifier := &recordingNotifier{}
	store := &memoryStore{}

	report, err := newService(res, notifier, store).Check(context.Background(), CheckOptions{})
	require.NoError(t, err)
	assert.False(t, report.Decision.ShouldAlert)
	assert.Empty(t, notifier.sent)
	assert.Equal(t, storage.DecisionNoAlert, store.runs[0].Decision)
}

func TestCheckWithoutCredentialsSucceedsWhenNoAlert(t *testing.T) {
	res := &stubResolver{outcome: resolver.Outcome{Series: businessSeries(60, 61), Source: "yahoo_chart"}}
	unconfigured := alerting.NewTelegramNotifier(alerting.TelegramOptions{}, zerolog.Nop())

	_, err := newService(res, unconfigured, nil).Check(context.Background(), CheckOptions{})
	assert.NoError(t, err, "无需推送时不应校验 Telegram 凭据")
}

func TestCheckMissingCredentialsFailsWhenAlerting(t *testing.T) {
	res := &stubResolver{outcome: resolver.Outcome{Series: businessSeries(69, 71, 72, 73, 74, 75), Source: "yahoo_chart"}}
	unconfigured := alerting.NewTelegramNotifier(alerting.TelegramOptions{}, zerolog.Nop())
	store := &memoryStore{}

	report, err := newService(res, unconfigured, store).Check(context.Background(), CheckOptions{})
	var cfgErr *alerting.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.False(t, report.Notified)
	require.NotNil(t, store.runs[0].Error)
}

func TestCheckDryRunPrintsMessage(t *testing.T) {
	res := &stubResolver{outcome: resolver.Outcome{Series: businessSeries(69, 71, 72, 73, 74, 75), Source: "yahoo_chart"}}
	notifier := &recordingNotifier{}
	var out bytes.Buffer

	report, err := newService(res, notifier, nil).Check(context.Background(), CheckOptions{DryRun: true, Preview: &out})
	require.NoError(t, err)
	assert.Empty(t, notifier.sent)
	assert.False(t, report.Notified)
	assert.Equal(t, report.Message+"\n", out.String())
}

func TestCheckExhaustionIsReturned(t *testing.T) {
	exhausted := &resolver.AllSourcesExhaustedError{Failures: []resolver.Failure{{Source: "yahoo_chart", Err: errors.New("boom")}}}
	store := &memoryStore{}

	_, err := newService(&stubResolver{err: exhausted}, &recordingNotifier{}, store).Check(context.Background(), CheckOptions{})
	assert.ErrorIs(t, err, exhausted)
	require.Len(t, store.runs, 1)
	assert.Equal(t, storage.DecisionFailed, store.runs[0].Decision)
	assert.Equal(t, []string{"yahoo_chart: boom"}, store.runs[0].Failures)
}

func TestStorageFailureIsNotFatal(t *testing.T) {
	res := &stubResolver{outcome: resolver.Outcome{Series: businessSeries(69, 71, 72, 73, 74, 75), Source: "yahoo_chart"}}
	store := &memoryStore{upsertErr: errors.New("connection refused")}
	notifier := &recordingNotifier{}

	_, err := newService(res, notifier, store).Check(context.Background(), CheckOptions{})
	require.NoError(t, err)
	assert.Len(t, notifier.sent, 1)
}

func TestDeliveryErrorSurfaces(t *testing.T) {
	res := &stubResolver{outcome: resolver.Outcome{Series: businessSeries(69, 71, 72, 73, 74, 75), Source: "yahoo_chart"}}
	notifier := &recordingNotifier{err: &alerting.NotificationDeliveryError{Status: 400, Body: "bad request"}}

	_, err := newService(res, notifier, nil).Check(context.Background(), CheckOptions{})
	var delivery *alerting.NotificationDeliveryError
	require.True(t, errors.As(err, &delivery))
	assert.Equal(t, 400, delivery.Status)
}

func TestPruneRunsUsesRetention(t *testing.T) {
	store := &memoryStore{}
	svc := newService(&stubResolver{}, &recordingNotifier{}, store)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.deps.Now = func() time.Time { return now }

	svc.pruneRuns(context.Background())
	assert.True(t, store.prunedBefore.IsZero(), "未设置保留时长时不应清理")

	svc.opts.RunRetention = 48 * time.Hour
	svc.pruneRuns(context.Background())
	assert.Equal(t, now.Add(-48*time.Hour), store.prunedBefore)
}

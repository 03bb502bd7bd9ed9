package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertObservationSQL = `INSERT INTO observations (
        symbol,
        obs_date,
        value,
        source,
        imputed,
        fetched_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (symbol, obs_date) DO UPDATE
    SET
        value      = EXCLUDED.value,
        source     = EXCLUDED.source,
        imputed    = EXCLUDED.imputed,
        fetched_at = EXCLUDED.fetched_at;`

	listObservationsBetweenSQL = `SELECT
        symbol,
        obs_date,
        value,
        source,
        imputed,
        fetched_at
    FROM observations
    WHERE symbol = $1
      AND obs_date >= $2
      AND obs_date < $3
    ORDER BY obs_date DESC
    LIMIT $4;`

	listRecentObservationsSQL = `SELECT
        symbol,
        obs_date,
        value,
        source,
        imputed,
        fetched_at
    FROM observations
    WHERE symbol = $1
    ORDER BY obs_date DESC
    LIMIT $2;`

	insertCheckRunSQL = `INSERT INTO check_runs (
        run_id,
        symbol,
        source,
        decision,
        reason,
        window_start,
        window_end,
        failures,
        notified,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    RETURNING created_at;`

	listRecentRunsSQL = `SELECT
        run_id,
        symbol,
        source,
        decision,
        reason,
        window_start,
        window_end,
        failures,
        notified,
        error,
        created_at
    FROM check_runs
    WHERE symbol = $1
    ORDER BY created_at DESC
    LIMIT $2;`

	deleteRunsBeforeSQL = `DELETE FROM check_runs WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ObservationStore defines operations for observation persistence.
type ObservationStore interface {
	UpsertObservations(ctx context.Context, obs []Observation) error
	ListObservationsBetween(ctx context.Context, symbol string, from, to time.Time, limit int) ([]Observation, error)
	ListRecentObservations(ctx context.Context, symbol string, limit int) ([]Observation, error)
}

// RunStore defines operations for check run auditing.
type RunStore interface {
	InsertCheckRun(ctx context.Context, run CheckRun) (CheckRun, error)
	ListRecentRuns(ctx context.Context, symbol string, limit int) ([]CheckRun, error)
	DeleteRunsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to observations and check runs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Configured reports whether a pool is attached.
func (s *Store) Configured() bool {
	return s != nil && s.pool != nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the session lock also dies with the connection
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertObservations persists a batch of observations in one round trip.
func (s *Store) UpsertObservations(ctx context.Context, obs []Observation) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(obs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, o := range obs {
		batch.Queue(upsertObservationSQL,
			o.Symbol,
			o.Date,
			o.Value.String(),
			o.Source,
			o.Imputed,
			o.FetchedAt,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := range obs {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("upsert observation %s %s: %w", obs[i].Symbol, obs[i].Date.Format(time.DateOnly), execErr)
		}
	}
	return nil
}

// ListObservationsBetween lists observations within [from, to), oldest first.
// When limit truncates the window the newest rows are kept.
func (s *Store) ListObservationsBetween(ctx context.Context, symbol string, from, to time.Time, limit int) ([]Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsBetweenSQL, symbol, from, to, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations between: %w", queryErr)
	}
	obs, err := collectObservations(rows)
	if err != nil {
		return nil, err
	}
	return oldestFirst(obs), nil
}

// oldestFirst flips a newest-first result in place.
func oldestFirst(obs []Observation) []Observation {
	return lo.Reverse(obs)
}

// ListRecentObservations lists the newest observations first.
func (s *Store) ListRecentObservations(ctx context.Context, symbol string, limit int) ([]Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentObservationsSQL, symbol, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent observations: %w", queryErr)
	}
	return collectObservations(rows)
}

func collectObservations(rows pgx.Rows) ([]Observation, error) {
	defer rows.Close()

	out := make([]Observation, 0)
	for rows.Next() {
		var (
			o        Observation
			valueStr string
		)
		if err := rows.Scan(&o.Symbol, &o.Date, &valueStr, &o.Source, &o.Imputed, &o.FetchedAt); err != nil {
			return nil, err
		}
		value, err := decimal.NewFromString(valueStr)
		if err != nil {
			return nil, fmt.Errorf("parse observation value: %w", err)
		}
		o.Value = value
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// InsertCheckRun persists one run record. A zero RunID is replaced with a fresh one.
func (s *Store) InsertCheckRun(ctx context.Context, run CheckRun) (CheckRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return CheckRun{}, err
	}
	if run.RunID == uuid.Nil {
		run.RunID = uuid.New()
	}
	if run.Failures == nil {
		run.Failures = []string{}
	}

	var errMsg interface{}
	if run.Error != nil {
		errMsg = *run.Error
	}

	row := pool.QueryRow(ctx, insertCheckRunSQL,
		run.RunID,
		run.Symbol,
		run.Source,
		run.Decision,
		run.Reason,
		run.WindowStart,
		run.WindowEnd,
		run.Failures,
		run.Notified,
		errMsg,
	)
	if scanErr := row.Scan(&run.CreatedAt); scanErr != nil {
		return CheckRun{}, fmt.Errorf("insert check run: %w", scanErr)
	}
	return run, nil
}

// ListRecentRuns lists most recent runs.
func (s *Store) ListRecentRuns(ctx context.Context, symbol string, limit int) ([]CheckRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, symbol, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]CheckRun, 0, limit)
	for rows.Next() {
		var (
			run    CheckRun
			errMsg sql.NullString
		)
		if err := rows.Scan(
			&run.RunID,
			&run.Symbol,
			&run.Source,
			&run.Decision,
			&run.Reason,
			&run.WindowStart,
			&run.WindowEnd,
			&run.Failures,
			&run.Notified,
			&errMsg,
			&run.CreatedAt,
		); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			msg := errMsg.String
			run.Error = &msg
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// DeleteRunsBefore deletes historical runs.
func (s *Store) DeleteRunsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteRunsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete runs before: %w", execErr)
	}
	return nil
}

var (
	_ ObservationStore = (*Store)(nil)
	_ RunStore         = (*Store)(nil)
	_ AdvisoryLocker   = (*Store)(nil)
)

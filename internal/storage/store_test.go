package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streak-alerts/internal/config"
)

func TestUnconfiguredStore(t *testing.T) {
	var s *Store
	ctx := context.Background()

	assert.False(t, s.Configured())
	s.Close()

	err := s.UpsertObservations(ctx, []Observation{{Symbol: "BZ=F"}})
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, err = NewStore(nil).ListRecentRuns(ctx, "BZ=F", 5)
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, _, err = NewStore(nil).TryAdvisoryLock(ctx, 1)
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, err = NewStore(nil).Migrate(ctx, "migrations")
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestNewPoolRequiresDSN(t *testing.T) {
	_, err := NewPool(context.Background(), config.DatabaseConfig{})
	require.Error(t, err)

	_, err = NewPool(context.Background(), config.DatabaseConfig{DSN: "://bad", ConnMaxLifetime: time.Minute})
	require.Error(t, err)
}

func TestListObservationsBetweenKeepsNewest(t *testing.T) {
	assert.True(t, strings.Contains(listObservationsBetweenSQL, "ORDER BY obs_date DESC"), "截断时应保留最新的数据")

	day := func(d int) Observation {
		return Observation{Symbol: "BZ=F", Date: time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)}
	}
	got := oldestFirst([]Observation{day(9), day(8), day(5)})
	require.Len(t, got, 3)
	assert.Equal(t, 5, got[0].Date.Day())
	assert.Equal(t, 9, got[2].Date.Day())
}

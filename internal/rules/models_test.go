package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presenza/pkg/domain"
	"presenza/pkg/platform/sentinel"
)

var testDay = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func TestBreakWindowInterval(t *testing.T) {
	t.Run("resolves against the owning day", func(t *testing.T) {
		b := BreakWindow{Label: "lunch", Start: "12:00", End: "13:00"}
		start, end, err := b.Interval(testDay)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC), start)
		assert.Equal(t, time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC), end)
	})

	t.Run("keeps the day's location", func(t *testing.T) {
		loc := time.FixedZone("venue", 2*60*60)
		day := time.Date(2026, 3, 14, 0, 0, 0, 0, loc)
		b := BreakWindow{Label: "coffee", Start: "10:30", End: "10:45"}
		start, _, err := b.Interval(day)
		require.NoError(t, err)
		assert.Equal(t, loc, start.Location())
		assert.Equal(t, 10, start.Hour())
	})

	t.Run("rejects malformed clock", func(t *testing.T) {
		b := BreakWindow{Label: "bad", Start: "25:99", End: "13:00"}
		_, _, err := b.Interval(testDay)
		assert.Error(t, err)
	})
}

func TestEffectiveGoal(t *testing.T) {
	day := DailyRule{GlobalGoalMinutes: 240}

	t.Run("zone override wins when set", func(t *testing.T) {
		assert.Equal(t, 120, day.EffectiveGoal(ZoneRule{GoalMinutes: 120}))
	})

	t.Run("zero inherits the global goal", func(t *testing.T) {
		assert.Equal(t, 240, day.EffectiveGoal(ZoneRule{GoalMinutes: 0}))
	})
}

func TestWithinOperating(t *testing.T) {
	zone := ZoneRule{ID: "hall-a", OperatingStart: "09:00", OperatingEnd: "18:00"}

	assert.True(t, zone.WithinOperating(testDay, testDay.Add(12*time.Hour)))
	assert.False(t, zone.WithinOperating(testDay, testDay.Add(8*time.Hour)))
	assert.False(t, zone.WithinOperating(testDay, testDay.Add(19*time.Hour)))

	t.Run("empty window counts as open", func(t *testing.T) {
		open := ZoneRule{ID: "lobby"}
		assert.True(t, open.WithinOperating(testDay, testDay.Add(3*time.Hour)))
	})
}

func TestInMemoryStore(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	conf := domain.NewConferenceID()

	t.Run("missing date returns not found", func(t *testing.T) {
		_, err := store.FindByDate(ctx, conf, testDay)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("save then find round-trips", func(t *testing.T) {
		rule := DailyRule{
			ConferenceID:      conf,
			Date:              testDay,
			GlobalGoalMinutes: 240,
			Zones: []ZoneRule{
				{ID: "hall-a", Name: "Main Hall", Breaks: []BreakWindow{{Label: "lunch", Start: "12:00", End: "13:00"}}},
			},
		}
		require.NoError(t, store.Save(ctx, rule))

		got, err := store.FindByDate(ctx, conf, testDay)
		require.NoError(t, err)
		assert.Equal(t, 240, got.GlobalGoalMinutes)

		zone, ok := got.Zone("hall-a")
		require.True(t, ok)
		assert.Equal(t, "Main Hall", zone.Name)

		_, ok = got.Zone("hall-z")
		assert.False(t, ok)
	})

	t.Run("lookups are keyed by calendar date, not instant", func(t *testing.T) {
		got, err := store.FindByDate(ctx, conf, testDay.Add(14*time.Hour+30*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, conf, got.ConferenceID)
	})
}

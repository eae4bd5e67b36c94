package projector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"presenza/internal/attendance"
	"presenza/internal/rules"
	"presenza/pkg/domain"
)

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func testRule(conf domain.ConferenceID) *rules.DailyRule {
	return &rules.DailyRule{
		ConferenceID:      conf,
		Date:              day,
		GlobalGoalMinutes: 240,
		Zones: []rules.ZoneRule{
			{ID: "hall-a", Name: "Main Hall", Breaks: []rules.BreakWindow{
				{Label: "lunch", Start: "12:00", End: "13:00"},
			}},
		},
	}
}

func insideRecord(conf domain.ConferenceID, zone domain.ZoneID, checkedInAt time.Time, total int) attendance.Record {
	rec := attendance.NewRecord(conf, domain.NewParticipantID())
	rec.Status = attendance.StatusInside
	rec.CurrentZoneID = zone
	rec.LastCheckInAt = &checkedInAt
	rec.TotalMinutes = total
	return rec
}

func TestProject(t *testing.T) {
	conf := domain.NewConferenceID()
	rule := testRule(conf)

	t.Run("outside participant shows the settled balance", func(t *testing.T) {
		rec := attendance.NewRecord(conf, domain.NewParticipantID())
		rec.TotalMinutes = 90

		view := Project(rec, rule, day.Add(10*time.Hour))
		assert.Equal(t, 90, view.TotalMinutes)
		assert.Equal(t, 90, view.LiveMinutes)
		assert.False(t, view.Degraded)
	})

	t.Run("open interval projects through the lunch break", func(t *testing.T) {
		rec := insideRecord(conf, "hall-a", day.Add(9*time.Hour), 30)

		view := Project(rec, rule, day.Add(14*time.Hour))
		assert.Equal(t, 30, view.TotalMinutes, "settled balance is untouched")
		assert.Equal(t, 30+240, view.LiveMinutes, "09:00 to 14:00 minus lunch")
		assert.Equal(t, "Main Hall", view.ZoneName)
		assert.True(t, view.ProjectedCompleted)
		assert.False(t, view.Completed, "completion only flips at settlement")
	})

	t.Run("projection matches what settlement would recognize", func(t *testing.T) {
		rec := insideRecord(conf, "hall-a", day.Add(9*time.Hour), 0)

		// At 11:30 no break has started yet.
		view := Project(rec, rule, day.Add(11*time.Hour+30*time.Minute))
		assert.Equal(t, 150, view.LiveMinutes)
		assert.False(t, view.ProjectedCompleted)
	})

	t.Run("missing rule degrades to the settled balance", func(t *testing.T) {
		rec := insideRecord(conf, "hall-a", day.Add(9*time.Hour), 45)

		view := Project(rec, nil, day.Add(14*time.Hour))
		assert.True(t, view.Degraded)
		assert.Equal(t, 45, view.LiveMinutes)
	})

	t.Run("zone missing from the rule degrades", func(t *testing.T) {
		rec := insideRecord(conf, "hall-gone", day.Add(9*time.Hour), 45)

		view := Project(rec, rule, day.Add(14*time.Hour))
		assert.True(t, view.Degraded)
		assert.Equal(t, 45, view.LiveMinutes)
	})
}

func TestProjectAll(t *testing.T) {
	conf := domain.NewConferenceID()
	rule := testRule(conf)

	recs := []attendance.Record{
		insideRecord(conf, "hall-a", day.Add(9*time.Hour), 0),
		attendance.NewRecord(conf, domain.NewParticipantID()),
	}
	views := ProjectAll(recs, rule, day.Add(10*time.Hour))
	assert.Len(t, views, 2)
	assert.Equal(t, 60, views[0].LiveMinutes)
	assert.Equal(t, 0, views[1].LiveMinutes)
}

// Package rules holds the per-day zone configuration. Rules are created
// and edited by the external config UI; this service only reads them and
// treats them as immutable during a live event day.
package rules

import (
	"fmt"
	"time"

	"presenza/pkg/domain"
)

// BreakWindow is a scheduled break excluded from recognized time.
// Start and End are wall-clock "HH:MM" strings interpreted against the
// owning day's date. Windows are expected non-overlapping by
// configuration contract; overlaps are not de-duplicated downstream.
type BreakWindow struct {
	Label string `json:"label"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Interval resolves the window to concrete instants on the given day.
// The day's location carries through so events and breaks compare in
// the venue's timezone.
func (b BreakWindow) Interval(day time.Time) (start, end time.Time, err error) {
	start, err = atClock(day, b.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("break %q start: %w", b.Label, err)
	}
	end, err = atClock(day, b.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("break %q end: %w", b.Label, err)
	}
	return start, end, nil
}

// ZoneRule configures one physical zone for one event day.
// GoalMinutes of 0 means the zone inherits the day's global goal.
type ZoneRule struct {
	ID             domain.ZoneID `json:"id"`
	Name           string        `json:"name"`
	OperatingStart string        `json:"operating_start"`
	OperatingEnd   string        `json:"operating_end"`
	GoalMinutes    int           `json:"goal_minutes"`
	AutoCheckout   bool          `json:"auto_checkout"`
	Breaks         []BreakWindow `json:"breaks"`
	Points         int           `json:"points"`
}

// WithinOperating reports whether now falls inside the zone's operating
// window on the given day. Operating windows are display/config data:
// check-in is deliberately NOT gated on them, but adapters may use this
// to warn operators. Unparseable or empty windows count as open.
func (z ZoneRule) WithinOperating(day, now time.Time) bool {
	if z.OperatingStart == "" || z.OperatingEnd == "" {
		return true
	}
	start, err := atClock(day, z.OperatingStart)
	if err != nil {
		return true
	}
	end, err := atClock(day, z.OperatingEnd)
	if err != nil {
		return true
	}
	return !now.Before(start) && !now.After(end)
}

// DailyRule is the full zone configuration for one conference day.
type DailyRule struct {
	ConferenceID      domain.ConferenceID `json:"conference_id"`
	Date              time.Time           `json:"date"`
	GlobalGoalMinutes int                 `json:"global_goal_minutes"`
	Zones             []ZoneRule          `json:"zones"`
}

// Zone finds a zone rule by ID.
func (r DailyRule) Zone(id domain.ZoneID) (ZoneRule, bool) {
	for _, z := range r.Zones {
		if z.ID == id {
			return z, true
		}
	}
	return ZoneRule{}, false
}

// EffectiveGoal is the zone goal if set, else the day's global goal.
// Re-evaluated at every settlement, per the completion contract.
func (r DailyRule) EffectiveGoal(zone ZoneRule) int {
	if zone.GoalMinutes > 0 {
		return zone.GoalMinutes
	}
	return r.GlobalGoalMinutes
}

// DateKey normalizes a timestamp to its calendar-date store key.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func atClock(day time.Time, clock string) (time.Time, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock time %q: %w", clock, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, day.Location()), nil
}

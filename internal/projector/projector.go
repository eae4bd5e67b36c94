// Package projector derives read-only live views from attendance
// records. Projections never write back: the projected open interval is
// recomputed from the record and the day's rule on every read, so the
// live table and the eventual settlement always agree.
package projector

import (
	"time"

	"presenza/internal/attendance"
	"presenza/internal/rules"
	"presenza/internal/settlement"
	"presenza/pkg/domain"
)

// View is one row of the live attendance table.
type View struct {
	ParticipantID domain.ParticipantID `json:"participant_id"`
	ConferenceID  domain.ConferenceID  `json:"conference_id"`
	Status        attendance.Status    `json:"status"`
	CurrentZoneID domain.ZoneID        `json:"current_zone_id,omitempty"`
	ZoneName      string               `json:"zone_name,omitempty"`

	// TotalMinutes is the settled balance; LiveMinutes adds the
	// projection of the open interval for participants inside a zone.
	TotalMinutes int  `json:"total_minutes"`
	LiveMinutes  int  `json:"live_minutes"`
	Completed    bool `json:"completed"`

	// ProjectedCompleted anticipates the completion flip the next
	// settlement would produce. Display-only; the record's Completed
	// flag changes only at settlement.
	ProjectedCompleted bool `json:"projected_completed"`

	// Degraded marks rows whose open interval could not be projected
	// because the day's rule or the zone is missing. LiveMinutes then
	// equals TotalMinutes.
	Degraded bool `json:"degraded,omitempty"`
}

// Project computes the live view for one record. rule may be nil when
// no daily rule exists for the date; the view then degrades to the
// settled balance.
func Project(rec attendance.Record, rule *rules.DailyRule, now time.Time) View {
	view := View{
		ParticipantID:      rec.ParticipantID,
		ConferenceID:       rec.ConferenceID,
		Status:             rec.Status,
		CurrentZoneID:      rec.CurrentZoneID,
		TotalMinutes:       rec.TotalMinutes,
		LiveMinutes:        rec.TotalMinutes,
		Completed:          rec.Completed,
		ProjectedCompleted: rec.Completed,
	}

	if !rec.Inside() {
		return view
	}

	if rule == nil {
		view.Degraded = true
		return view
	}
	zone, ok := rule.Zone(rec.CurrentZoneID)
	if !ok {
		view.Degraded = true
		return view
	}

	view.ZoneName = zone.Name
	projected := settlement.Settle(*rec.LastCheckInAt, now, zone.Breaks, rule.Date)
	view.LiveMinutes = rec.TotalMinutes + projected.RecognizedMinutes
	if view.LiveMinutes >= rule.EffectiveGoal(zone) {
		view.ProjectedCompleted = true
	}
	return view
}

// ProjectAll maps Project over records sharing one daily rule. Order
// follows the input; callers sort for display.
func ProjectAll(recs []attendance.Record, rule *rules.DailyRule, now time.Time) []View {
	views := make([]View, 0, len(recs))
	for _, rec := range recs {
		views = append(views, Project(rec, rule, now))
	}
	return views
}

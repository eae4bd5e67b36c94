// Package attendance defines the per-participant presence record and
// its append-only transition log. The state machine in service/ is the
// only sanctioned writer; adapters never touch fields directly.
package attendance

import (
	"time"

	"github.com/google/uuid"

	"presenza/internal/settlement"
	"presenza/pkg/domain"
	dErrors "presenza/pkg/domain-errors"
)

// Status is the participant's presence state. OUTSIDE is initial.
type Status string

const (
	StatusInside  Status = "inside"
	StatusOutside Status = "outside"
)

// Method records which entry point caused a transition.
type Method string

const (
	MethodManual Method = "manual"
	MethodKiosk  Method = "kiosk"
)

// EntryType classifies a log entry. Enter and exit are the two
// transition entries; reset is the separately-audited marker written by
// an administrative minutes reset.
type EntryType string

const (
	EntryEnter EntryType = "enter"
	EntryExit  EntryType = "exit"
	EntryReset EntryType = "reset"
)

// Record is one participant's presence state for one conference.
//
// Invariants (enforced by the state machine, checkable via Consistent):
//   - Status == inside ⟺ CurrentZoneID set ⟺ LastCheckInAt set
//   - TotalMinutes never decreases except through ResetMinutes
//   - Completed ⟺ TotalMinutes >= effective goal at last settlement
type Record struct {
	ParticipantID  domain.ParticipantID `json:"participant_id"`
	ConferenceID   domain.ConferenceID  `json:"conference_id"`
	Status         Status               `json:"status"`
	CurrentZoneID  domain.ZoneID        `json:"current_zone_id,omitempty"`
	LastCheckInAt  *time.Time           `json:"last_check_in_at,omitempty"`
	TotalMinutes   int                  `json:"total_minutes"`
	Completed      bool                 `json:"completed"`
	LastCheckOutAt *time.Time           `json:"last_check_out_at,omitempty"`
}

// NewRecord returns the initial OUTSIDE record for a participant.
func NewRecord(conferenceID domain.ConferenceID, participantID domain.ParticipantID) Record {
	return Record{
		ParticipantID: participantID,
		ConferenceID:  conferenceID,
		Status:        StatusOutside,
	}
}

// Inside reports whether the participant is currently in a zone.
func (r Record) Inside() bool { return r.Status == StatusInside }

// Consistent verifies the three-way presence invariant. Used by tests
// and the postgres store's read path as a corruption tripwire.
func (r Record) Consistent() bool {
	inside := r.Status == StatusInside
	return inside == !r.CurrentZoneID.IsNil() && inside == (r.LastCheckInAt != nil)
}

// LogEntry is one immutable transition record. Exit entries always
// carry the settlement triple; enter entries never do.
type LogEntry struct {
	ID            uuid.UUID            `json:"id"`
	ParticipantID domain.ParticipantID `json:"participant_id"`
	ConferenceID  domain.ConferenceID  `json:"conference_id"`
	Type          EntryType            `json:"type"`
	ZoneID        domain.ZoneID        `json:"zone_id,omitempty"`
	Timestamp     time.Time            `json:"timestamp"`
	Method        Method               `json:"method"`
	Settlement    *settlement.Result   `json:"settlement,omitempty"`
	Actor         string               `json:"actor,omitempty"`
}

// Typed domain failures. These are expected user-facing outcomes, never
// retried automatically; adapters render them on the operator or kiosk
// display.
var (
	ErrAlreadyInsideSameZone = dErrors.New(dErrors.CodeInvariantViolation, "already inside this zone")
	ErrNotInside             = dErrors.New(dErrors.CodeInvariantViolation, "not inside any zone")
	ErrZoneSwitchRequired    = dErrors.New(dErrors.CodeInvariantViolation, "inside another zone; use zone switch")
	ErrResetWhileInside      = dErrors.New(dErrors.CodeInvariantViolation, "cannot reset minutes while inside a zone")
	ErrZoneNotFound          = dErrors.New(dErrors.CodeNotFound, "zone not found in the day's rule")
	ErrRuleNotFoundForDate   = dErrors.New(dErrors.CodeNotFound, "no daily rule configured for this date")
)

// Package kiosk adapts the attendance state machine for unattended
// scanner devices. A kiosk is dumb by design: it sends scanned badge
// codes and renders whatever outcome comes back.
package kiosk

import (
	"time"

	"presenza/internal/attendance"
	"presenza/internal/settlement"
	"presenza/pkg/domain"
	dErrors "presenza/pkg/domain-errors"
)

// Mode is the scan policy configured per device.
type Mode string

const (
	// ModeEnterOnly always attempts a check-in; a participant inside
	// another zone is switched.
	ModeEnterOnly Mode = "ENTER_ONLY"
	// ModeExitOnly always attempts a check-out.
	ModeExitOnly Mode = "EXIT_ONLY"
	// ModeAuto toggles: out of the scanned zone enters, inside it
	// exits, inside another zone switches.
	ModeAuto Mode = "AUTO"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeEnterOnly, ModeExitOnly, ModeAuto:
		return Mode(s), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown kiosk mode: "+s)
	}
}

// Action names what a scan actually did.
type Action string

const (
	ActionCheckedIn  Action = "checked_in"
	ActionCheckedOut Action = "checked_out"
	ActionSwitched   Action = "switched"
	ActionDenied     Action = "denied"
)

// ScanResult is what the kiosk overlay renders for one scan. Denied
// scans carry the reason; settled exits carry the settlement triple.
type ScanResult struct {
	Action        Action               `json:"action"`
	ParticipantID domain.ParticipantID `json:"participant_id,omitempty"`
	Record        *attendance.Record   `json:"record,omitempty"`
	Settlement    *settlement.Result   `json:"settlement,omitempty"`
	Reason        string               `json:"reason,omitempty"`
	At            time.Time            `json:"at"`
}

// Device is one registered scanner, bound to a conference, a zone, and
// a mode. KeyHash is a bcrypt hash of the device key; the plaintext is
// shown once at registration.
type Device struct {
	ID           domain.DeviceID     `json:"id"`
	ConferenceID domain.ConferenceID `json:"conference_id"`
	ZoneID       domain.ZoneID       `json:"zone_id"`
	Mode         Mode                `json:"mode"`
	Name         string              `json:"name"`
	KeyHash      string              `json:"-"`
	CreatedAt    time.Time           `json:"created_at"`
}

var (
	ErrScanInProgress = dErrors.New(dErrors.CodeConflict, "a scan is already being processed")
	ErrUnknownBadge   = dErrors.New(dErrors.CodeNotFound, "badge code not recognized")
	ErrDeviceAuth     = dErrors.New(dErrors.CodeUnauthorized, "unknown device or invalid key")
)

// Package domain holds shared identifier primitives. IDs are typed at
// parse time so services cannot mix a participant with a device by
// accident.
package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ParticipantID identifies a registered participant within a conference.
type ParticipantID uuid.UUID

// ConferenceID identifies one conference (the tenant boundary).
type ConferenceID uuid.UUID

// DeviceID identifies a registered kiosk device.
type DeviceID uuid.UUID

// NewParticipantID returns a fresh random participant ID.
func NewParticipantID() ParticipantID { return ParticipantID(uuid.New()) }

// NewConferenceID returns a fresh random conference ID.
func NewConferenceID() ConferenceID { return ConferenceID(uuid.New()) }

// NewDeviceID returns a fresh random device ID.
func NewDeviceID() DeviceID { return DeviceID(uuid.New()) }

// ParseParticipantID validates and returns a ParticipantID.
func ParseParticipantID(s string) (ParticipantID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ParticipantID{}, fmt.Errorf("invalid participant id: %w", err)
	}
	return ParticipantID(u), nil
}

// ParseConferenceID validates and returns a ConferenceID.
func ParseConferenceID(s string) (ConferenceID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ConferenceID{}, fmt.Errorf("invalid conference id: %w", err)
	}
	return ConferenceID(u), nil
}

// ParseDeviceID validates and returns a DeviceID.
func ParseDeviceID(s string) (DeviceID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return DeviceID{}, fmt.Errorf("invalid device id: %w", err)
	}
	return DeviceID(u), nil
}

func (id ParticipantID) String() string { return uuid.UUID(id).String() }
func (id ConferenceID) String() string  { return uuid.UUID(id).String() }
func (id DeviceID) String() string      { return uuid.UUID(id).String() }

func (id ParticipantID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ConferenceID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id DeviceID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// IDs serialize as their canonical string form in JSON and text.

func (id ParticipantID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ConferenceID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id DeviceID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }

func (id *ParticipantID) UnmarshalText(text []byte) error {
	parsed, err := ParseParticipantID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ConferenceID) UnmarshalText(text []byte) error {
	parsed, err := ParseConferenceID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *DeviceID) UnmarshalText(text []byte) error {
	parsed, err := ParseDeviceID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ZoneID is a configuration-assigned slug for a physical zone ("hall-a").
// Zones come from the external config UI, not from this service, so the
// primitive only enforces shape, not existence.
type ZoneID string

// ParseZoneID validates a zone slug: non-empty, lowercase, no spaces.
func ParseZoneID(s string) (ZoneID, error) {
	if s == "" {
		return "", fmt.Errorf("zone id cannot be empty")
	}
	if strings.ContainsAny(s, " \t\n") {
		return "", fmt.Errorf("zone id cannot contain whitespace: %q", s)
	}
	if s != strings.ToLower(s) {
		return "", fmt.Errorf("zone id must be lowercase: %q", s)
	}
	return ZoneID(s), nil
}

func (z ZoneID) String() string { return string(z) }
func (z ZoneID) IsNil() bool    { return z == "" }

package kiosk

import (
	"context"
	"sync"

	"presenza/pkg/domain"
)

// Lookup resolves a scanned badge code to a participant. Badge issuance
// lives in the registration platform; this service only needs the
// resolution direction.
type Lookup interface {
	Resolve(ctx context.Context, conferenceID domain.ConferenceID, code string) (domain.ParticipantID, error)
}

// InMemoryLookup is a code table for tests and development.
type InMemoryLookup struct {
	mu    sync.RWMutex
	codes map[string]domain.ParticipantID
}

func NewInMemoryLookup() *InMemoryLookup {
	return &InMemoryLookup{codes: make(map[string]domain.ParticipantID)}
}

func (l *InMemoryLookup) Bind(conferenceID domain.ConferenceID, code string, participantID domain.ParticipantID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.codes[lookupKey(conferenceID, code)] = participantID
}

func (l *InMemoryLookup) Resolve(_ context.Context, conferenceID domain.ConferenceID, code string) (domain.ParticipantID, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if pid, ok := l.codes[lookupKey(conferenceID, code)]; ok {
		return pid, nil
	}
	return domain.ParticipantID{}, ErrUnknownBadge
}

func lookupKey(conferenceID domain.ConferenceID, code string) string {
	return conferenceID.String() + "/" + code
}

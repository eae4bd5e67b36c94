// Package ports defines shared interfaces for the attendance module.
// Interfaces live here when consumed by more than one package to avoid
// duplication.
package ports

import (
	"context"

	"presenza/internal/attendance"
	"presenza/pkg/domain"
)

// RecordStore is the durable home of attendance records. Find returns
// sentinel.ErrNotFound for participants with no record yet; the state
// machine starts them from the initial OUTSIDE record.
type RecordStore interface {
	Find(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) (attendance.Record, error)
	Save(ctx context.Context, record attendance.Record) error

	// ListByConference backs the admin live table.
	ListByConference(ctx context.Context, conferenceID domain.ConferenceID) ([]attendance.Record, error)

	// ListInside returns all currently-inside records across
	// conferences for the projection refresher.
	ListInside(ctx context.Context) ([]attendance.Record, error)
}

// LogStore appends immutable transition entries and reads them back
// newest-first for the audit viewer.
type LogStore interface {
	Append(ctx context.Context, entry attendance.LogEntry) error
	ListByParticipant(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) ([]attendance.LogEntry, error)
}

// TxRunner serializes read-modify-write sequences per participant.
// Implementations return sentinel.ErrConflict when the transaction must
// be retried with fresh state; the state machine retries once.
type TxRunner interface {
	RunInTx(ctx context.Context, participantID domain.ParticipantID, fn func(ctx context.Context) error) error
}

// JournalPublisher fans transition entries out to downstream consumers
// (kafka topic, change feed). Publishing is best-effort after commit;
// the LogStore append inside the transaction is authoritative.
type JournalPublisher interface {
	Publish(ctx context.Context, entry attendance.LogEntry) error
}

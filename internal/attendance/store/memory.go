// Package store provides the attendance record and log stores. The
// in-memory variant backs unit tests and single-node development; the
// postgres variant is the production store.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"presenza/internal/attendance"
	"presenza/pkg/domain"
	dErrors "presenza/pkg/domain-errors"
	"presenza/pkg/platform/sentinel"
)

// Operations on one participant are serialized with sharded mutexes
// rather than a single global lock, so concurrent kiosk and admin
// traffic for different participants does not contend.
const numShards = 128

// defaultTxTimeout bounds a read-modify-write sequence.
const defaultTxTimeout = 5 * time.Second

// InMemoryStore implements ports.RecordStore, ports.LogStore, and
// ports.TxRunner for tests and development.
type InMemoryStore struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration

	mu      sync.RWMutex
	records map[string]attendance.Record
	logs    map[string][]attendance.LogEntry
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		timeout: defaultTxTimeout,
		records: make(map[string]attendance.Record),
		logs:    make(map[string][]attendance.LogEntry),
	}
}

// RunInTx serializes the sequence for one participant and rolls the
// participant's record and log back when fn fails, matching the
// postgres runner's all-or-nothing contract. The in-memory lock cannot
// actually conflict, so fn's sentinel.ErrConflict (from tests injecting
// conflicts) is the only conflict source.
func (s *InMemoryStore) RunInTx(ctx context.Context, participantID domain.ParticipantID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	shard := shardFor(participantID)
	s.shards[shard].Lock()
	defer s.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	snap := s.snapshot(participantID)
	if err := fn(ctx); err != nil {
		s.restore(participantID, snap)
		return err
	}
	return nil
}

// txSnapshot captures one participant's rows across all conferences. A
// nil record marks a key that did not exist before the transaction.
type txSnapshot struct {
	records map[string]*attendance.Record
	logs    map[string][]attendance.LogEntry
}

func (s *InMemoryStore) snapshot(participantID domain.ParticipantID) txSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := txSnapshot{
		records: make(map[string]*attendance.Record),
		logs:    make(map[string][]attendance.LogEntry),
	}
	suffix := "/" + participantID.String()
	for key, rec := range s.records {
		if strings.HasSuffix(key, suffix) {
			r := rec
			snap.records[key] = &r
		}
	}
	for key, entries := range s.logs {
		if strings.HasSuffix(key, suffix) {
			snap.logs[key] = append([]attendance.LogEntry{}, entries...)
		}
	}
	return snap
}

func (s *InMemoryStore) restore(participantID domain.ParticipantID, snap txSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	suffix := "/" + participantID.String()
	for key := range s.records {
		if strings.HasSuffix(key, suffix) && snap.records[key] == nil {
			delete(s.records, key)
		}
	}
	for key, rec := range snap.records {
		s.records[key] = *rec
	}
	for key := range s.logs {
		if strings.HasSuffix(key, suffix) {
			delete(s.logs, key)
		}
	}
	for key, entries := range snap.logs {
		s.logs[key] = entries
	}
}

func (s *InMemoryStore) Find(_ context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) (attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[recordKey(conferenceID, participantID)]; ok {
		return rec, nil
	}
	return attendance.Record{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Save(_ context.Context, record attendance.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey(record.ConferenceID, record.ParticipantID)] = record
	return nil
}

func (s *InMemoryStore) ListByConference(_ context.Context, conferenceID domain.ConferenceID) ([]attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []attendance.Record
	for _, rec := range s.records {
		if rec.ConferenceID == conferenceID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ParticipantID.String() < out[j].ParticipantID.String()
	})
	return out, nil
}

func (s *InMemoryStore) ListInside(_ context.Context) ([]attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []attendance.Record
	for _, rec := range s.records {
		if rec.Inside() {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Append(_ context.Context, entry attendance.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey(entry.ConferenceID, entry.ParticipantID)
	s.logs[key] = append(s.logs[key], entry)
	return nil
}

// ListByParticipant returns entries newest-first for audit display.
func (s *InMemoryStore) ListByParticipant(_ context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) ([]attendance.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.logs[recordKey(conferenceID, participantID)]
	out := append([]attendance.LogEntry{}, entries...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func recordKey(conferenceID domain.ConferenceID, participantID domain.ParticipantID) string {
	return conferenceID.String() + "/" + participantID.String()
}

func shardFor(participantID domain.ParticipantID) int {
	return int(fnv32(participantID.String()) % numShards)
}

// fnv32 is FNV-1a for even shard distribution.
func fnv32(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}

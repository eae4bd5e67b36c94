package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"presenza/internal/attendance"
	"presenza/internal/platform/kafka"
)

// KafkaSink writes entries to the attendance topic as JSON, keyed by
// participant so one participant's transitions stay ordered within a
// partition.
type KafkaSink struct {
	client *kafka.Client
}

func NewKafkaSink(client *kafka.Client) *KafkaSink {
	return &KafkaSink{client: client}
}

func (s *KafkaSink) Write(ctx context.Context, entry attendance.LogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	return s.client.Produce(ctx, entry.ParticipantID.String(), payload)
}

// MemorySink collects entries for tests and development.
type MemorySink struct {
	mu      sync.Mutex
	entries []attendance.LogEntry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(_ context.Context, entry attendance.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Entries returns a copy of everything written so far.
func (s *MemorySink) Entries() []attendance.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]attendance.LogEntry{}, s.entries...)
}

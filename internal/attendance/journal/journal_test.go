package journal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presenza/internal/attendance"
	"presenza/pkg/domain"
)

func entry() attendance.LogEntry {
	return attendance.LogEntry{
		ID:            uuid.New(),
		ParticipantID: domain.NewParticipantID(),
		ConferenceID:  domain.NewConferenceID(),
		Type:          attendance.EntryEnter,
		ZoneID:        "hall-a",
		Timestamp:     time.Now(),
		Method:        attendance.MethodKiosk,
	}
}

func TestPublisher_SyncMode(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink)
	defer pub.Close()

	require.NoError(t, pub.Publish(context.Background(), entry()))
	assert.Len(t, sink.Entries(), 1)
}

func TestPublisher_AsyncMode(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink, WithAsyncBuffer(10))
	defer pub.Close()

	require.NoError(t, pub.Publish(context.Background(), entry()))

	assert.Eventually(t, func() bool {
		return len(sink.Entries()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink, WithAsyncBuffer(100))

	for range 10 {
		require.NoError(t, pub.Publish(context.Background(), entry()))
	}

	pub.Close()
	assert.Len(t, sink.Entries(), 10, "all buffered entries should be drained on close")
}

func TestPublisher_CloseIsIdempotent(t *testing.T) {
	pub := NewPublisher(NewMemorySink(), WithAsyncBuffer(1))
	pub.Close()
	pub.Close()
}

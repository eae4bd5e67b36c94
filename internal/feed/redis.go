package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	platformredis "presenza/internal/platform/redis"
	"presenza/pkg/domain"
)

const channelPrefix = "presenza:feed:"

func channelFor(conferenceID domain.ConferenceID) string {
	return channelPrefix + conferenceID.String()
}

// RedisBridge mirrors snapshots over redis pub/sub so display clients
// connected to other nodes see the same feed.
type RedisBridge struct {
	client *platformredis.Client
	logger *slog.Logger
}

func NewRedisBridge(client *platformredis.Client, logger *slog.Logger) *RedisBridge {
	return &RedisBridge{client: client, logger: logger}
}

// Publish sends the snapshot to the conference channel. Best-effort:
// errors are returned for the caller to log, never fatal.
func (b *RedisBridge) Publish(ctx context.Context, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := b.client.Publish(ctx, channelFor(snap.ConferenceID), payload).Err(); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// Relay subscribes to a conference channel and re-publishes incoming
// snapshots into the local broadcaster. Runs until ctx is cancelled.
func (b *RedisBridge) Relay(ctx context.Context, conferenceID domain.ConferenceID, local *Broadcaster) {
	sub := b.client.Subscribe(ctx, channelFor(conferenceID))
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var snap Snapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				b.logger.WarnContext(ctx, "malformed feed snapshot on redis channel",
					"channel", msg.Channel,
					"error", err.Error(),
				)
				continue
			}
			local.Publish(snap)
		}
	}
}

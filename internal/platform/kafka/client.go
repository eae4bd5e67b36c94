package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"presenza/internal/platform/config"
)

// Client wraps a franz-go producer for the attendance journal topic.
// Returns nil if no brokers are configured (journal stays local-only).
type Client struct {
	kgo   *kgo.Client
	topic string
}

// New connects to the brokers and ensures the journal topic exists.
func New(ctx context.Context, cfg config.KafkaConfig) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	cl, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopic(ctx, cl, cfg.Topic); err != nil {
		cl.Close()
		return nil, err
	}

	return &Client{kgo: cl, topic: cfg.Topic}, nil
}

func ensureTopic(ctx context.Context, cl *kgo.Client, topic string) error {
	adm := kadm.NewClient(cl)
	resp, err := adm.CreateTopic(ctx, 3, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}

// Produce sends one record keyed by participant so per-participant
// ordering is preserved within a partition.
func (c *Client) Produce(ctx context.Context, key string, value []byte) error {
	rec := &kgo.Record{Topic: c.topic, Key: []byte(key), Value: value}
	return c.kgo.ProduceSync(ctx, rec).FirstErr()
}

// Close flushes buffered records and releases the client.
func (c *Client) Close() {
	c.kgo.Close()
}

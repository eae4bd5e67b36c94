// Package journal fans attendance transitions out to external
// consumers. The transactional log in the store is authoritative; the
// journal is a best-effort feed for analytics and downstream systems.
package journal

import (
	"context"
	"log/slog"
	"sync"

	"presenza/internal/attendance"
)

// Sink receives journal entries. Implementations: Kafka, in-memory.
type Sink interface {
	Write(ctx context.Context, entry attendance.LogEntry) error
}

// Publisher implements ports.JournalPublisher over a Sink. By default
// it writes synchronously; WithAsyncBuffer switches to a buffered
// worker that drops entries when the buffer is full and drains on
// Close.
type Publisher struct {
	sink   Sink
	logger *slog.Logger

	ch     chan attendance.LogEntry
	done   chan struct{}
	closed sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous publishing with the given
// buffer size. A full buffer drops the entry rather than blocking the
// check-in path.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.ch = make(chan attendance.LogEntry, size)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sink:   sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.ch != nil {
		p.done = make(chan struct{})
		go p.worker()
	}
	return p
}

// Publish hands the entry to the sink. In async mode a full buffer
// drops the entry; the transition itself is already committed.
func (p *Publisher) Publish(ctx context.Context, entry attendance.LogEntry) error {
	if p.ch == nil {
		return p.sink.Write(ctx, entry)
	}
	select {
	case p.ch <- entry:
	default:
		p.logger.Warn("journal buffer full, dropping entry",
			"entry_id", entry.ID.String(),
			"type", string(entry.Type),
		)
	}
	return nil
}

// Close drains buffered entries and stops the worker. Safe to call
// more than once.
func (p *Publisher) Close() {
	p.closed.Do(func() {
		if p.ch != nil {
			close(p.ch)
			<-p.done
		}
	})
}

func (p *Publisher) worker() {
	defer close(p.done)
	for entry := range p.ch {
		if err := p.sink.Write(context.Background(), entry); err != nil {
			p.logger.Warn("journal sink write failed",
				"entry_id", entry.ID.String(),
				"error", err.Error(),
			)
		}
	}
}

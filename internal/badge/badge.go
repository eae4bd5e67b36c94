// Package badge tracks one-time badge usage (the printed badge being
// claimed at the venue). It shares the attendance module's reset
// contract: administrative resets clear the flag and its audit fields
// but never delete the row, and never touch attendance minutes.
package badge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"presenza/pkg/domain"
	dErrors "presenza/pkg/domain-errors"
	"presenza/pkg/platform/sentinel"
)

// Badge is one participant's badge usage state.
type Badge struct {
	ParticipantID domain.ParticipantID `json:"participant_id"`
	ConferenceID  domain.ConferenceID  `json:"conference_id"`
	Used          bool                 `json:"used"`
	UsedAt        *time.Time           `json:"used_at,omitempty"`
	UsedBy        string               `json:"used_by,omitempty"`
}

var ErrAlreadyUsed = dErrors.New(dErrors.CodeInvariantViolation, "badge already used")

// Store persists badge state keyed by conference and participant.
type Store interface {
	Find(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) (Badge, error)
	Save(ctx context.Context, badge Badge) error
}

// Service applies badge usage transitions.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, logger *slog.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("badge store is required")
	}
	svc := &Service{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// MarkUsed flags the badge as claimed, recording when and by whom. A
// second claim is refused so a badge cannot be handed out twice.
func (s *Service) MarkUsed(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID, actor string) (Badge, error) {
	b, err := s.load(ctx, conferenceID, participantID)
	if err != nil {
		return Badge{}, err
	}
	if b.Used {
		return Badge{}, ErrAlreadyUsed
	}

	now := s.now()
	b.Used = true
	b.UsedAt = &now
	b.UsedBy = actor
	if err := s.store.Save(ctx, b); err != nil {
		return Badge{}, dErrors.Wrap(err, dErrors.CodeInternal, "save badge")
	}
	return b, nil
}

// ResetUsage clears the used flag and its audit fields. The row stays;
// attendance minutes are a different module and are never touched here.
func (s *Service) ResetUsage(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID, actor string) (Badge, error) {
	b, err := s.load(ctx, conferenceID, participantID)
	if err != nil {
		return Badge{}, err
	}

	b.Used = false
	b.UsedAt = nil
	b.UsedBy = ""
	if err := s.store.Save(ctx, b); err != nil {
		return Badge{}, dErrors.Wrap(err, dErrors.CodeInternal, "save badge")
	}

	s.logger.InfoContext(ctx, "badge usage reset",
		"participant_id", participantID.String(),
		"actor", actor,
	)
	return b, nil
}

// Get returns the badge state, unused if never seen.
func (s *Service) Get(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) (Badge, error) {
	return s.load(ctx, conferenceID, participantID)
}

func (s *Service) load(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) (Badge, error) {
	b, err := s.store.Find(ctx, conferenceID, participantID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Badge{ParticipantID: participantID, ConferenceID: conferenceID}, nil
	}
	if err != nil {
		return Badge{}, dErrors.Wrap(err, dErrors.CodeInternal, "load badge")
	}
	return b, nil
}

// InMemoryStore backs tests and single-node development.
type InMemoryStore struct {
	mu     sync.RWMutex
	badges map[string]Badge
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{badges: make(map[string]Badge)}
}

func (s *InMemoryStore) Find(_ context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) (Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.badges[badgeKey(conferenceID, participantID)]; ok {
		return b, nil
	}
	return Badge{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Save(_ context.Context, badge Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badges[badgeKey(badge.ConferenceID, badge.ParticipantID)] = badge
	return nil
}

func badgeKey(conferenceID domain.ConferenceID, participantID domain.ParticipantID) string {
	return conferenceID.String() + "/" + participantID.String()
}

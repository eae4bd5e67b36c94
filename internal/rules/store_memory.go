package rules

import (
	"context"
	"sync"
	"time"

	"presenza/pkg/domain"
	"presenza/pkg/platform/sentinel"
)

// InMemoryStore keeps rules in a map keyed by conference and date. It
// favors clarity over performance and backs unit tests and single-node
// development.
type InMemoryStore struct {
	mu    sync.RWMutex
	rules map[string]DailyRule
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rules: make(map[string]DailyRule)}
}

func (s *InMemoryStore) FindByDate(_ context.Context, conferenceID domain.ConferenceID, date time.Time) (DailyRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rule, ok := s.rules[memKey(conferenceID, date)]; ok {
		return rule, nil
	}
	return DailyRule{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Save(_ context.Context, rule DailyRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[memKey(rule.ConferenceID, rule.Date)] = rule
	return nil
}

func memKey(conferenceID domain.ConferenceID, date time.Time) string {
	return conferenceID.String() + "/" + DateKey(date)
}

package rules

import (
	"context"
	"encoding/json"
	"time"

	"presenza/internal/platform/config"
	platformredis "presenza/internal/platform/redis"
	"presenza/pkg/domain"
)

const cacheKeyPrefix = "rules:daily:"

// CachedStore is a Redis read-through cache in front of another Store.
// Rules change only through the external config UI, so a short TTL
// bounds staleness without a write-invalidation channel. Cache failures
// fall through to the inner store; a rule lookup must never fail because
// the cache is down.
type CachedStore struct {
	inner Store
	redis *platformredis.Client
	ttl   time.Duration
}

func NewCached(inner Store, redis *platformredis.Client) *CachedStore {
	return &CachedStore{inner: inner, redis: redis, ttl: config.RuleCacheTTL}
}

func (s *CachedStore) FindByDate(ctx context.Context, conferenceID domain.ConferenceID, date time.Time) (DailyRule, error) {
	key := cacheKeyPrefix + conferenceID.String() + ":" + DateKey(date)

	if raw, err := s.redis.Get(ctx, key).Bytes(); err == nil {
		var rule DailyRule
		if err := json.Unmarshal(raw, &rule); err == nil {
			return rule, nil
		}
	}

	// A dead context means the cache miss above was a cancellation, not
	// a miss; do not hit the inner store with it.
	if err := ctx.Err(); err != nil {
		return DailyRule{}, err
	}

	rule, err := s.inner.FindByDate(ctx, conferenceID, date)
	if err != nil {
		return DailyRule{}, err
	}

	if raw, err := json.Marshal(rule); err == nil {
		// Best effort; staleness is bounded by the TTL either way.
		_ = s.redis.Set(ctx, key, raw, s.ttl).Err()
	}
	return rule, nil
}

func (s *CachedStore) Save(ctx context.Context, rule DailyRule) error {
	if err := s.inner.Save(ctx, rule); err != nil {
		return err
	}
	key := cacheKeyPrefix + rule.ConferenceID.String() + ":" + DateKey(rule.Date)
	_ = s.redis.Del(ctx, key).Err()
	return nil
}

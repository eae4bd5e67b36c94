package rules

import (
	"context"
	"time"

	"presenza/pkg/domain"
)

// Store is the read path for daily rules. Writes happen through the
// external config UI against the same backing store; Save exists for
// that UI's backend and for test seeding.
//
// Stores are interface-driven so the in-memory, Postgres, and cached
// variants are interchangeable without rewiring business code.
type Store interface {
	FindByDate(ctx context.Context, conferenceID domain.ConferenceID, date time.Time) (DailyRule, error)
	Save(ctx context.Context, rule DailyRule) error
}

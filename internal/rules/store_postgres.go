package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"presenza/pkg/domain"
	"presenza/pkg/platform/sentinel"
)

// PostgresStore persists each daily rule as one JSONB document, matching
// how the external config UI writes them: whole-document reads and
// upserts keyed by conference and calendar date.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByDate(ctx context.Context, conferenceID domain.ConferenceID, date time.Time) (DailyRule, error) {
	query := `
		SELECT doc FROM daily_rules
		WHERE conference_id = $1 AND rule_date = $2
	`
	var doc []byte
	err := s.db.QueryRowContext(ctx, query, conferenceID.String(), DateKey(date)).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return DailyRule{}, sentinel.ErrNotFound
	}
	if err != nil {
		return DailyRule{}, fmt.Errorf("query daily rule: %w", err)
	}

	var rule DailyRule
	if err := json.Unmarshal(doc, &rule); err != nil {
		return DailyRule{}, fmt.Errorf("decode daily rule: %w", err)
	}
	return rule, nil
}

func (s *PostgresStore) Save(ctx context.Context, rule DailyRule) error {
	doc, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("encode daily rule: %w", err)
	}

	query := `
		INSERT INTO daily_rules (conference_id, rule_date, doc, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conference_id, rule_date)
		DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		rule.ConferenceID.String(),
		DateKey(rule.Date),
		doc,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upsert daily rule: %w", err)
	}
	return nil
}

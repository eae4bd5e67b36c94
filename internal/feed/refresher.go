package feed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"presenza/internal/attendance"
	"presenza/internal/attendance/ports"
	"presenza/internal/feed/metrics"
	"presenza/internal/projector"
	"presenza/internal/rules"
	"presenza/pkg/domain"
	"presenza/pkg/platform/sentinel"
)

// Refresher periodically projects every inside participant and
// publishes per-conference snapshots. A missing daily rule degrades the
// affected rows to their settled balance instead of skipping them.
type Refresher struct {
	records  ports.RecordStore
	rules    rules.Store
	local    *Broadcaster
	bridge   *RedisBridge
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

type RefresherOption func(*Refresher)

// WithBridge mirrors snapshots over redis in addition to the local
// broadcaster.
func WithBridge(bridge *RedisBridge) RefresherOption {
	return func(r *Refresher) { r.bridge = bridge }
}

func WithRefresherClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) { r.now = now }
}

func WithRefresherMetrics(m *metrics.Metrics) RefresherOption {
	return func(r *Refresher) { r.metrics = m }
}

func NewRefresher(records ports.RecordStore, ruleStore rules.Store, local *Broadcaster, interval time.Duration, logger *slog.Logger, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		records:  records,
		rules:    ruleStore,
		local:    local,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run refreshes on the configured interval until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}

// Refresh projects all inside participants once and publishes the
// resulting snapshots. Exposed so handlers can force a refresh after a
// transition instead of waiting out the interval.
func (r *Refresher) Refresh(ctx context.Context) {
	if r.metrics != nil {
		start := time.Now()
		defer func() { r.metrics.RefreshDuration.Observe(time.Since(start).Seconds()) }()
	}

	recs, err := r.records.ListInside(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "live refresh: list inside records", "error", err.Error())
		return
	}

	now := r.now()
	byConference := make(map[domain.ConferenceID][]attendance.Record)
	for _, rec := range recs {
		byConference[rec.ConferenceID] = append(byConference[rec.ConferenceID], rec)
	}

	for conferenceID, group := range byConference {
		var rulePtr *rules.DailyRule
		rule, err := r.rules.FindByDate(ctx, conferenceID, now)
		switch {
		case err == nil:
			rulePtr = &rule
		case errors.Is(err, sentinel.ErrNotFound):
			// Degraded projection, rows fall back to settled minutes.
		default:
			r.logger.WarnContext(ctx, "live refresh: load daily rule",
				"conference_id", conferenceID.String(),
				"error", err.Error(),
			)
		}

		snap := Snapshot{
			ConferenceID: conferenceID,
			At:           now,
			Rows:         projector.ProjectAll(group, rulePtr, now),
		}
		r.local.Publish(snap)
		if r.metrics != nil {
			r.metrics.SnapshotsPublished.Inc()
		}
		if r.bridge != nil {
			if err := r.bridge.Publish(ctx, snap); err != nil {
				r.logger.WarnContext(ctx, "live refresh: redis publish",
					"conference_id", conferenceID.String(),
					"error", err.Error(),
				)
			}
		}
	}
}

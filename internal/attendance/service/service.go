// Package service implements the attendance state machine. It is the
// only writer of attendance records; every operation is a single
// read-modify-write serialized per participant by the store's
// transaction runner.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"presenza/internal/attendance"
	"presenza/internal/attendance/metrics"
	"presenza/internal/attendance/ports"
	"presenza/internal/rules"
	"presenza/internal/settlement"
	"presenza/pkg/domain"
	dErrors "presenza/pkg/domain-errors"
	"presenza/pkg/platform/sentinel"
)

type Service struct {
	records ports.RecordStore
	logs    ports.LogStore
	txr     ports.TxRunner
	journal ports.JournalPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithJournal(journal ports.JournalPublisher) Option {
	return func(s *Service) { s.journal = journal }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source. Tests use this to pin
// settlement arithmetic to known instants.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(records ports.RecordStore, logs ports.LogStore, txr ports.TxRunner, opts ...Option) (*Service, error) {
	if records == nil {
		return nil, errors.New("record store is required")
	}
	if logs == nil {
		return nil, errors.New("log store is required")
	}
	if txr == nil {
		return nil, errors.New("transaction runner is required")
	}

	svc := &Service{
		records: records,
		logs:    logs,
		txr:     txr,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CheckIn moves an OUTSIDE participant into a zone. A participant
// already inside the same zone gets ErrAlreadyInsideSameZone; one
// inside a different zone gets ErrZoneSwitchRequired so accrued time
// can never be silently discarded (callers must use SwitchZone).
func (s *Service) CheckIn(ctx context.Context, rule rules.DailyRule, participantID domain.ParticipantID, zoneID domain.ZoneID, method attendance.Method) (attendance.Record, error) {
	var (
		rec     attendance.Record
		entries []attendance.LogEntry
	)
	err := s.inTx(ctx, participantID, func(ctx context.Context) error {
		var err error
		rec, entries, err = s.checkInLocked(ctx, rule, participantID, zoneID, method)
		return err
	})
	if err != nil {
		return attendance.Record{}, err
	}

	s.afterCommit(ctx, entries)
	if s.metrics != nil {
		s.metrics.CheckIns.WithLabelValues(string(method)).Inc()
	}
	return rec, nil
}

// CheckOut settles the open interval and moves the participant OUTSIDE.
// TotalMinutes grows by the recognized minutes and completion is
// re-evaluated against the effective goal of the settled zone.
func (s *Service) CheckOut(ctx context.Context, rule rules.DailyRule, participantID domain.ParticipantID, method attendance.Method) (attendance.Record, settlement.Result, error) {
	var (
		rec     attendance.Record
		result  settlement.Result
		entries []attendance.LogEntry
	)
	err := s.inTx(ctx, participantID, func(ctx context.Context) error {
		var err error
		rec, result, entries, err = s.checkOutLocked(ctx, rule, participantID, method)
		return err
	})
	if err != nil {
		return attendance.Record{}, settlement.Result{}, err
	}

	s.afterCommit(ctx, entries)
	if s.metrics != nil {
		s.metrics.CheckOuts.WithLabelValues(string(method)).Inc()
		s.metrics.RecognizedMinutes.Add(float64(result.RecognizedMinutes))
	}
	return rec, result, nil
}

// SwitchZone is the composite transition: check-out of the current zone
// followed by check-in to the new one, inside ONE transaction but
// producing the two log entries of its constituent steps. A participant
// who is OUTSIDE is simply checked in.
func (s *Service) SwitchZone(ctx context.Context, rule rules.DailyRule, participantID domain.ParticipantID, newZoneID domain.ZoneID, method attendance.Method) (attendance.Record, error) {
	var (
		rec      attendance.Record
		entries  []attendance.LogEntry
		settled  settlement.Result
		switched bool
	)
	err := s.inTx(ctx, participantID, func(ctx context.Context) error {
		entries = entries[:0]
		switched = false

		// The target zone must be valid before the exit settles, so a
		// refused switch leaves the record exactly as it was.
		if _, ok := rule.Zone(newZoneID); !ok {
			return attendance.ErrZoneNotFound
		}

		current, err := s.loadOrInit(ctx, rule.ConferenceID, participantID)
		if err != nil {
			return err
		}

		if current.Inside() {
			if current.CurrentZoneID == newZoneID {
				return attendance.ErrAlreadyInsideSameZone
			}
			var exitEntries []attendance.LogEntry
			_, settled, exitEntries, err = s.checkOutLocked(ctx, rule, participantID, method)
			if err != nil {
				return err
			}
			entries = append(entries, exitEntries...)
			switched = true
		}

		var enterEntries []attendance.LogEntry
		rec, enterEntries, err = s.checkInLocked(ctx, rule, participantID, newZoneID, method)
		if err != nil {
			return err
		}
		entries = append(entries, enterEntries...)
		return nil
	})
	if err != nil {
		return attendance.Record{}, err
	}

	s.afterCommit(ctx, entries)
	if s.metrics != nil {
		if switched {
			s.metrics.ZoneSwitches.WithLabelValues(string(method)).Inc()
			s.metrics.RecognizedMinutes.Add(float64(settled.RecognizedMinutes))
		} else {
			s.metrics.CheckIns.WithLabelValues(string(method)).Inc()
		}
	}
	return rec, nil
}

// ResetMinutes is the explicit administrative reset: the only operation
// allowed to lower TotalMinutes. It clears completion, writes a
// separately-audited reset marker, and refuses to run while the
// participant is inside a zone (the open interval would be ambiguous).
func (s *Service) ResetMinutes(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID, actor string) (attendance.Record, error) {
	var (
		rec     attendance.Record
		entries []attendance.LogEntry
	)
	err := s.inTx(ctx, participantID, func(ctx context.Context) error {
		current, err := s.loadOrInit(ctx, conferenceID, participantID)
		if err != nil {
			return err
		}
		if current.Inside() {
			return attendance.ErrResetWhileInside
		}

		current.TotalMinutes = 0
		current.Completed = false
		if err := s.records.Save(ctx, current); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "save attendance record")
		}

		entry := attendance.LogEntry{
			ID:            uuid.New(),
			ParticipantID: participantID,
			ConferenceID:  conferenceID,
			Type:          attendance.EntryReset,
			Timestamp:     s.now(),
			Method:        attendance.MethodManual,
			Actor:         actor,
		}
		if err := s.logs.Append(ctx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append reset marker")
		}

		rec = current
		entries = []attendance.LogEntry{entry}
		return nil
	})
	if err != nil {
		return attendance.Record{}, err
	}

	s.afterCommit(ctx, entries)
	if s.metrics != nil {
		s.metrics.MinuteResets.Inc()
	}
	s.logger.InfoContext(ctx, "attendance minutes reset",
		"participant_id", participantID.String(),
		"actor", actor,
	)
	return rec, nil
}

// Record returns the participant's current record, initial if unseen.
func (s *Service) Record(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) (attendance.Record, error) {
	return s.loadOrInit(ctx, conferenceID, participantID)
}

// List returns every known record for the conference, ordered by
// participant ID.
func (s *Service) List(ctx context.Context, conferenceID domain.ConferenceID) ([]attendance.Record, error) {
	recs, err := s.records.ListByConference(ctx, conferenceID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list attendance records")
	}
	return recs, nil
}

// Log returns the participant's transition log, newest first.
func (s *Service) Log(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) ([]attendance.LogEntry, error) {
	entries, err := s.logs.ListByParticipant(ctx, conferenceID, participantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list attendance log")
	}
	return entries, nil
}

// inTx runs fn through the transaction runner, retrying once on a
// transient conflict with fresh state. A second conflict surfaces as a
// generic retryable error, never a partial application.
func (s *Service) inTx(ctx context.Context, participantID domain.ParticipantID, fn func(ctx context.Context) error) error {
	err := s.txr.RunInTx(ctx, participantID, fn)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sentinel.ErrConflict) {
		return err
	}

	if s.metrics != nil {
		s.metrics.TxConflicts.Inc()
	}
	s.logger.WarnContext(ctx, "attendance transaction conflict, retrying",
		"participant_id", participantID.String(),
	)

	err = s.txr.RunInTx(ctx, participantID, fn)
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeConflict, "attendance record busy, try again")
	}
	return err
}

func (s *Service) loadOrInit(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) (attendance.Record, error) {
	rec, err := s.records.Find(ctx, conferenceID, participantID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return attendance.NewRecord(conferenceID, participantID), nil
	}
	if err != nil {
		return attendance.Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "load attendance record")
	}
	return rec, nil
}

func (s *Service) checkInLocked(ctx context.Context, rule rules.DailyRule, participantID domain.ParticipantID, zoneID domain.ZoneID, method attendance.Method) (attendance.Record, []attendance.LogEntry, error) {
	if _, ok := rule.Zone(zoneID); !ok {
		return attendance.Record{}, nil, attendance.ErrZoneNotFound
	}

	rec, err := s.loadOrInit(ctx, rule.ConferenceID, participantID)
	if err != nil {
		return attendance.Record{}, nil, err
	}

	if rec.Inside() {
		if rec.CurrentZoneID == zoneID {
			return attendance.Record{}, nil, attendance.ErrAlreadyInsideSameZone
		}
		return attendance.Record{}, nil, attendance.ErrZoneSwitchRequired
	}

	now := s.now()
	rec.Status = attendance.StatusInside
	rec.CurrentZoneID = zoneID
	rec.LastCheckInAt = &now

	if err := s.records.Save(ctx, rec); err != nil {
		return attendance.Record{}, nil, dErrors.Wrap(err, dErrors.CodeInternal, "save attendance record")
	}

	entry := attendance.LogEntry{
		ID:            uuid.New(),
		ParticipantID: participantID,
		ConferenceID:  rule.ConferenceID,
		Type:          attendance.EntryEnter,
		ZoneID:        zoneID,
		Timestamp:     now,
		Method:        method,
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		return attendance.Record{}, nil, dErrors.Wrap(err, dErrors.CodeInternal, "append enter entry")
	}

	return rec, []attendance.LogEntry{entry}, nil
}

func (s *Service) checkOutLocked(ctx context.Context, rule rules.DailyRule, participantID domain.ParticipantID, method attendance.Method) (attendance.Record, settlement.Result, []attendance.LogEntry, error) {
	rec, err := s.loadOrInit(ctx, rule.ConferenceID, participantID)
	if err != nil {
		return attendance.Record{}, settlement.Result{}, nil, err
	}

	if !rec.Inside() {
		return attendance.Record{}, settlement.Result{}, nil, attendance.ErrNotInside
	}

	zone, ok := rule.Zone(rec.CurrentZoneID)
	if !ok {
		return attendance.Record{}, settlement.Result{}, nil, attendance.ErrZoneNotFound
	}

	now := s.now()
	result := settlement.Settle(*rec.LastCheckInAt, now, zone.Breaks, rule.Date)

	zoneID := rec.CurrentZoneID
	rec.Status = attendance.StatusOutside
	rec.CurrentZoneID = ""
	rec.LastCheckInAt = nil
	rec.TotalMinutes += result.RecognizedMinutes
	rec.Completed = rec.TotalMinutes >= rule.EffectiveGoal(zone)
	rec.LastCheckOutAt = &now

	if err := s.records.Save(ctx, rec); err != nil {
		return attendance.Record{}, settlement.Result{}, nil, dErrors.Wrap(err, dErrors.CodeInternal, "save attendance record")
	}

	res := result
	entry := attendance.LogEntry{
		ID:            uuid.New(),
		ParticipantID: participantID,
		ConferenceID:  rule.ConferenceID,
		Type:          attendance.EntryExit,
		ZoneID:        zoneID,
		Timestamp:     now,
		Method:        method,
		Settlement:    &res,
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		return attendance.Record{}, settlement.Result{}, nil, dErrors.Wrap(err, dErrors.CodeInternal, "append exit entry")
	}

	return rec, result, []attendance.LogEntry{entry}, nil
}

// afterCommit fans committed entries out to the journal. Best-effort:
// the transactional log append is authoritative, so publish failures
// are logged, not returned.
func (s *Service) afterCommit(ctx context.Context, entries []attendance.LogEntry) {
	if s.journal == nil {
		return
	}
	for _, entry := range entries {
		if err := s.journal.Publish(ctx, entry); err != nil {
			s.logger.WarnContext(ctx, "journal publish failed",
				"entry_id", entry.ID.String(),
				"error", err.Error(),
			)
		}
	}
}

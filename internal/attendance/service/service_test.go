package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"presenza/internal/attendance"
	"presenza/internal/attendance/store"
	"presenza/internal/rules"
	"presenza/pkg/domain"
	dErrors "presenza/pkg/domain-errors"
	"presenza/pkg/platform/sentinel"
)

type StateMachineSuite struct {
	suite.Suite
	store *store.InMemoryStore
	svc   *Service
	conf  domain.ConferenceID
	rule  rules.DailyRule
	clock time.Time
}

func TestStateMachineSuite(t *testing.T) {
	suite.Run(t, new(StateMachineSuite))
}

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func (s *StateMachineSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.conf = domain.NewConferenceID()
	s.clock = day.Add(9 * time.Hour) // 09:00
	s.rule = rules.DailyRule{
		ConferenceID:      s.conf,
		Date:              day,
		GlobalGoalMinutes: 240,
		Zones: []rules.ZoneRule{
			{ID: "hall-a", Name: "Main Hall", Breaks: []rules.BreakWindow{
				{Label: "lunch", Start: "12:00", End: "13:00"},
			}},
			{ID: "hall-b", Name: "Workshop Hall"},
		},
	}

	var err error
	s.svc, err = New(s.store, s.store, s.store,
		WithClock(func() time.Time { return s.clock }),
	)
	s.Require().NoError(err)
}

func (s *StateMachineSuite) at(hour, minute int) {
	s.clock = day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func (s *StateMachineSuite) TestNew() {
	s.Run("nil record store returns error", func() {
		_, err := New(nil, s.store, s.store)
		s.Error(err)
	})
	s.Run("nil log store returns error", func() {
		_, err := New(s.store, nil, s.store)
		s.Error(err)
	})
	s.Run("nil tx runner returns error", func() {
		_, err := New(s.store, s.store, nil)
		s.Error(err)
	})
}

func (s *StateMachineSuite) TestCheckIn() {
	ctx := context.Background()

	s.Run("moves outside participant inside with an enter entry", func() {
		pid := domain.NewParticipantID()
		rec, err := s.svc.CheckIn(ctx, s.rule, pid, "hall-a", attendance.MethodManual)
		s.Require().NoError(err)

		s.Equal(attendance.StatusInside, rec.Status)
		s.Equal(domain.ZoneID("hall-a"), rec.CurrentZoneID)
		s.Require().NotNil(rec.LastCheckInAt)
		s.Equal(s.clock, *rec.LastCheckInAt)
		s.Zero(rec.TotalMinutes, "check-in must not change accrued minutes")
		s.True(rec.Consistent())

		entries, err := s.svc.Log(ctx, s.conf, pid)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(attendance.EntryEnter, entries[0].Type)
		s.Equal(domain.ZoneID("hall-a"), entries[0].ZoneID)
		s.Nil(entries[0].Settlement, "enter entries never carry settlement fields")
	})

	s.Run("same zone twice returns AlreadyInsideSameZone with no mutation", func() {
		pid := domain.NewParticipantID()
		_, err := s.svc.CheckIn(ctx, s.rule, pid, "hall-a", attendance.MethodManual)
		s.Require().NoError(err)

		before, err := s.svc.Record(ctx, s.conf, pid)
		s.Require().NoError(err)

		_, err = s.svc.CheckIn(ctx, s.rule, pid, "hall-a", attendance.MethodKiosk)
		s.ErrorIs(err, attendance.ErrAlreadyInsideSameZone)

		after, err := s.svc.Record(ctx, s.conf, pid)
		s.Require().NoError(err)
		s.Equal(before, after, "failed check-in must not mutate state")

		entries, err := s.svc.Log(ctx, s.conf, pid)
		s.Require().NoError(err)
		s.Len(entries, 1, "failed check-in must not append a log entry")
	})

	s.Run("different zone is refused, switch required", func() {
		pid := domain.NewParticipantID()
		_, err := s.svc.CheckIn(ctx, s.rule, pid, "hall-a", attendance.MethodManual)
		s.Require().NoError(err)

		_, err = s.svc.CheckIn(ctx, s.rule, pid, "hall-b", attendance.MethodManual)
		s.ErrorIs(err, attendance.ErrZoneSwitchRequired)
	})

	s.Run("unknown zone returns ZoneNotFound", func() {
		pid := domain.NewParticipantID()
		_, err := s.svc.CheckIn(ctx, s.rule, pid, "hall-z", attendance.MethodManual)
		s.ErrorIs(err, attendance.ErrZoneNotFound)
	})
}

func (s *StateMachineSuite) TestCheckOut() {
	ctx := context.Background()

	s.Run("outside participant returns NotInside", func() {
		pid := domain.NewParticipantID()
		_, _, err := s.svc.CheckOut(ctx, s.rule, pid, attendance.MethodManual)
		s.ErrorIs(err, attendance.ErrNotInside)
	})

	s.Run("settles across the lunch break", func() {
		pid := domain.NewParticipantID()
		s.at(9, 0)
		_, err := s.svc.CheckIn(ctx, s.rule, pid, "hall-a", attendance.MethodManual)
		s.Require().NoError(err)

		s.at(14, 0)
		rec, result, err := s.svc.CheckOut(ctx, s.rule, pid, attendance.MethodManual)
		s.Require().NoError(err)

		s.Equal(300, result.RawMinutes)
		s.Equal(60, result.DeductionMinutes)
		s.Equal(240, result.RecognizedMinutes)

		s.Equal(attendance.StatusOutside, rec.Status)
		s.True(rec.CurrentZoneID.IsNil())
		s.Nil(rec.LastCheckInAt)
		s.Equal(240, rec.TotalMinutes)
		s.Require().NotNil(rec.LastCheckOutAt)
		s.Equal(s.clock, *rec.LastCheckOutAt)
		s.True(rec.Consistent())

		entries, err := s.svc.Log(ctx, s.conf, pid)
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		// Newest first: exit then enter.
		s.Equal(attendance.EntryExit, entries[0].Type)
		s.Require().NotNil(entries[0].Settlement)
		s.Equal(240, entries[0].Settlement.RecognizedMinutes)
		s.Equal(attendance.EntryEnter, entries[1].Type)
	})

	s.Run("completion flips at the goal and stays set", func() {
		pid := domain.NewParticipantID()

		// hall-a inherits the 240-minute global goal (zone goal is 0).
		s.at(9, 0)
		_, err := s.svc.CheckIn(ctx, s.rule, pid, "hall-a", attendance.MethodManual)
		s.Require().NoError(err)
		s.at(14, 0)
		rec, _, err := s.svc.CheckOut(ctx, s.rule, pid, attendance.MethodManual)
		s.Require().NoError(err)
		s.Equal(240, rec.TotalMinutes)
		s.True(rec.Completed, "240 recognized minutes meets the 240 goal")

		s.at(15, 0)
		_, err = s.svc.CheckIn(ctx, s.rule, pid, "hall-b", attendance.MethodManual)
		s.Require().NoError(err)
		s.at(15, 30)
		rec, _, err = s.svc.CheckOut(ctx, s.rule, pid, attendance.MethodManual)
		s.Require().NoError(err)
		s.Equal(270, rec.TotalMinutes)
		s.True(rec.Completed, "completion persists once the goal is met")
	})
}

func (s *StateMachineSuite) TestSwitchZone() {
	ctx := context.Background()

	s.Run("inside another zone produces exit then enter", func() {
		pid := domain.NewParticipantID()
		s.at(9, 0)
		_, err := s.svc.CheckIn(ctx, s.rule, pid, "hall-b", attendance.MethodManual)
		s.Require().NoError(err)

		s.at(10, 0)
		rec, err := s.svc.SwitchZone(ctx, s.rule, pid, "hall-a", attendance.MethodKiosk)
		s.Require().NoError(err)

		s.Equal(attendance.StatusInside, rec.Status)
		s.Equal(domain.ZoneID("hall-a"), rec.CurrentZoneID)
		s.Equal(60, rec.TotalMinutes, "accrued time survives the switch")
		s.True(rec.Consistent())

		entries, err := s.svc.Log(ctx, s.conf, pid)
		s.Require().NoError(err)
		s.Require().Len(entries, 3)
		// Newest first: enter hall-a, exit hall-b, enter hall-b.
		s.Equal(attendance.EntryEnter, entries[0].Type)
		s.Equal(domain.ZoneID("hall-a"), entries[0].ZoneID)
		s.Equal(attendance.EntryExit, entries[1].Type)
		s.Equal(domain.ZoneID("hall-b"), entries[1].ZoneID)
		s.Require().NotNil(entries[1].Settlement)
		s.Equal(60, entries[1].Settlement.RecognizedMinutes)
	})

	s.Run("outside participant is simply checked in", func() {
		pid := domain.NewParticipantID()
		rec, err := s.svc.SwitchZone(ctx, s.rule, pid, "hall-a", attendance.MethodManual)
		s.Require().NoError(err)
		s.Equal(attendance.StatusInside, rec.Status)

		entries, err := s.svc.Log(ctx, s.conf, pid)
		s.Require().NoError(err)
		s.Len(entries, 1)
	})

	s.Run("same zone returns AlreadyInsideSameZone", func() {
		pid := domain.NewParticipantID()
		_, err := s.svc.CheckIn(ctx, s.rule, pid, "hall-a", attendance.MethodManual)
		s.Require().NoError(err)

		_, err = s.svc.SwitchZone(ctx, s.rule, pid, "hall-a", attendance.MethodKiosk)
		s.ErrorIs(err, attendance.ErrAlreadyInsideSameZone)
	})

	s.Run("unknown target zone leaves the record untouched", func() {
		pid := domain.NewParticipantID()
		s.at(9, 0)
		_, err := s.svc.CheckIn(ctx, s.rule, pid, "hall-a", attendance.MethodManual)
		s.Require().NoError(err)

		s.at(10, 0)
		_, err = s.svc.SwitchZone(ctx, s.rule, pid, "hall-x", attendance.MethodKiosk)
		s.ErrorIs(err, attendance.ErrZoneNotFound)

		rec, err := s.svc.Record(ctx, s.conf, pid)
		s.Require().NoError(err)
		s.Equal(attendance.StatusInside, rec.Status, "the refused switch must not settle the exit")
		s.Equal(domain.ZoneID("hall-a"), rec.CurrentZoneID)
		s.Equal(0, rec.TotalMinutes)

		entries, err := s.svc.Log(ctx, s.conf, pid)
		s.Require().NoError(err)
		s.Len(entries, 1, "only the original enter entry")
	})
}

func (s *StateMachineSuite) TestResetMinutes() {
	ctx := context.Background()

	s.Run("zeroes minutes, clears completion, writes a reset marker", func() {
		pid := domain.NewParticipantID()
		s.at(9, 0)
		_, err := s.svc.CheckIn(ctx, s.rule, pid, "hall-a", attendance.MethodManual)
		s.Require().NoError(err)
		s.at(14, 0)
		_, _, err = s.svc.CheckOut(ctx, s.rule, pid, attendance.MethodManual)
		s.Require().NoError(err)

		rec, err := s.svc.ResetMinutes(ctx, s.conf, pid, "op-7")
		s.Require().NoError(err)
		s.Zero(rec.TotalMinutes)
		s.False(rec.Completed)

		entries, err := s.svc.Log(ctx, s.conf, pid)
		s.Require().NoError(err)
		s.Equal(attendance.EntryReset, entries[0].Type)
		s.Equal("op-7", entries[0].Actor)
		s.Len(entries, 3, "reset audits, never deletes history")
	})

	s.Run("refused while inside", func() {
		pid := domain.NewParticipantID()
		_, err := s.svc.CheckIn(ctx, s.rule, pid, "hall-a", attendance.MethodManual)
		s.Require().NoError(err)

		_, err = s.svc.ResetMinutes(ctx, s.conf, pid, "op-7")
		s.ErrorIs(err, attendance.ErrResetWhileInside)
	})
}

// TestMonotonicity drives a mixed operation sequence and asserts
// TotalMinutes never decreases.
func (s *StateMachineSuite) TestMonotonicity() {
	ctx := context.Background()
	pid := domain.NewParticipantID()
	lastTotal := 0

	observe := func() {
		rec, err := s.svc.Record(ctx, s.conf, pid)
		s.Require().NoError(err)
		s.GreaterOrEqual(rec.TotalMinutes, lastTotal, "total minutes must not decrease")
		s.True(rec.Consistent())
		lastTotal = rec.TotalMinutes
	}

	s.at(9, 0)
	_, err := s.svc.CheckIn(ctx, s.rule, pid, "hall-a", attendance.MethodKiosk)
	s.Require().NoError(err)
	observe()

	s.at(10, 15)
	_, err = s.svc.SwitchZone(ctx, s.rule, pid, "hall-b", attendance.MethodKiosk)
	s.Require().NoError(err)
	observe()

	s.at(11, 45)
	_, _, err = s.svc.CheckOut(ctx, s.rule, pid, attendance.MethodManual)
	s.Require().NoError(err)
	observe()

	s.at(13, 30)
	_, err = s.svc.CheckIn(ctx, s.rule, pid, "hall-a", attendance.MethodKiosk)
	s.Require().NoError(err)
	observe()

	s.at(16, 0)
	_, _, err = s.svc.CheckOut(ctx, s.rule, pid, attendance.MethodKiosk)
	s.Require().NoError(err)
	observe()

	s.Equal(75+90+150, lastTotal)
}

// conflictOnceRunner injects one transient conflict before delegating.
type conflictOnceRunner struct {
	inner     *store.InMemoryStore
	conflicts int
	remaining int
}

func (r *conflictOnceRunner) RunInTx(ctx context.Context, pid domain.ParticipantID, fn func(ctx context.Context) error) error {
	if r.remaining > 0 {
		r.remaining--
		r.conflicts++
		return sentinel.ErrConflict
	}
	return r.inner.RunInTx(ctx, pid, fn)
}

func (s *StateMachineSuite) TestConflictRetry() {
	ctx := context.Background()

	s.Run("single conflict is retried transparently", func() {
		runner := &conflictOnceRunner{inner: s.store, remaining: 1}
		svc, err := New(s.store, s.store, runner, WithClock(func() time.Time { return s.clock }))
		s.Require().NoError(err)

		pid := domain.NewParticipantID()
		rec, err := svc.CheckIn(ctx, s.rule, pid, "hall-a", attendance.MethodKiosk)
		s.Require().NoError(err)
		s.Equal(attendance.StatusInside, rec.Status)
		s.Equal(1, runner.conflicts)
	})

	s.Run("second conflict surfaces as retryable, never partial", func() {
		runner := &conflictOnceRunner{inner: s.store, remaining: 2}
		svc, err := New(s.store, s.store, runner, WithClock(func() time.Time { return s.clock }))
		s.Require().NoError(err)

		pid := domain.NewParticipantID()
		_, err = svc.CheckIn(ctx, s.rule, pid, "hall-a", attendance.MethodKiosk)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		rec, err := svc.Record(ctx, s.conf, pid)
		s.Require().NoError(err)
		s.Equal(attendance.StatusOutside, rec.Status, "no partial application on failure")
	})
}

package kiosk

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"presenza/internal/attendance"
	"presenza/internal/attendance/service"
	"presenza/internal/attendance/store"
	"presenza/internal/rules"
	"presenza/pkg/domain"
)

type AdapterSuite struct {
	suite.Suite
	adapter   *Adapter
	lookup    *InMemoryLookup
	svc       *service.Service
	ruleStore rules.Store
	conf      domain.ConferenceID
	clock     time.Time
}

func TestAdapterSuite(t *testing.T) {
	suite.Run(t, new(AdapterSuite))
}

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

const displayWindow = 3 * time.Second

func (s *AdapterSuite) SetupTest() {
	s.conf = domain.NewConferenceID()
	s.clock = day.Add(9 * time.Hour)

	recStore := store.NewInMemory()
	ruleStore := rules.NewInMemoryStore()
	s.ruleStore = ruleStore
	s.Require().NoError(ruleStore.Save(context.Background(), rules.DailyRule{
		ConferenceID:      s.conf,
		Date:              day,
		GlobalGoalMinutes: 240,
		Zones: []rules.ZoneRule{
			{ID: "hall-a", Name: "Main Hall"},
			{ID: "hall-b", Name: "Workshop Hall"},
		},
	}))

	var err error
	s.svc, err = service.New(recStore, recStore, recStore,
		service.WithClock(func() time.Time { return s.clock }),
	)
	s.Require().NoError(err)

	s.lookup = NewInMemoryLookup()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.adapter = NewAdapter(s.svc, ruleStore, s.lookup, displayWindow, logger,
		WithAdapterClock(func() time.Time { return s.clock }),
	)
}

func (s *AdapterSuite) device(zone domain.ZoneID, mode Mode) Device {
	return Device{
		ID:           domain.NewDeviceID(),
		ConferenceID: s.conf,
		ZoneID:       zone,
		Mode:         mode,
	}
}

func (s *AdapterSuite) participant(code string) domain.ParticipantID {
	pid := domain.NewParticipantID()
	s.lookup.Bind(s.conf, code, pid)
	return pid
}

func (s *AdapterSuite) TestEnterOnly() {
	ctx := context.Background()
	dev := s.device("hall-a", ModeEnterOnly)

	s.Run("checks in an outside participant", func() {
		s.participant("badge-1")
		result, err := s.adapter.Scan(ctx, dev, "badge-1")
		s.Require().NoError(err)
		s.Equal(ActionCheckedIn, result.Action)
		s.Equal(attendance.StatusInside, result.Record.Status)
	})

	s.Run("switches a participant inside another zone", func() {
		pid := s.participant("badge-2")
		other := s.device("hall-b", ModeEnterOnly)
		_, err := s.adapter.Scan(ctx, other, "badge-2")
		s.Require().NoError(err)

		s.clock = s.clock.Add(time.Hour)
		result, err := s.adapter.Scan(ctx, dev, "badge-2")
		s.Require().NoError(err)
		s.Equal(ActionSwitched, result.Action)
		s.Equal(domain.ZoneID("hall-a"), result.Record.CurrentZoneID)
		s.Equal(pid, result.ParticipantID)
	})

	s.Run("same zone rescan is denied, not toggled", func() {
		s.participant("badge-3")
		_, err := s.adapter.Scan(ctx, dev, "badge-3")
		s.Require().NoError(err)

		result, err := s.adapter.Scan(ctx, dev, "badge-3")
		s.Require().NoError(err)
		s.Equal(ActionDenied, result.Action)
		s.NotEmpty(result.Reason)
	})

	s.Run("unknown badge is denied", func() {
		result, err := s.adapter.Scan(ctx, dev, "badge-nope")
		s.Require().NoError(err)
		s.Equal(ActionDenied, result.Action)
	})
}

func (s *AdapterSuite) TestExitOnly() {
	ctx := context.Background()
	enter := s.device("hall-a", ModeEnterOnly)
	exit := s.device("hall-a", ModeExitOnly)

	s.Run("checks out with settlement", func() {
		s.participant("badge-1")
		_, err := s.adapter.Scan(ctx, enter, "badge-1")
		s.Require().NoError(err)

		s.clock = s.clock.Add(90 * time.Minute)
		result, err := s.adapter.Scan(ctx, exit, "badge-1")
		s.Require().NoError(err)
		s.Equal(ActionCheckedOut, result.Action)
		s.Require().NotNil(result.Settlement)
		s.Equal(90, result.Settlement.RecognizedMinutes)
	})

	s.Run("outside participant is denied", func() {
		s.participant("badge-2")
		result, err := s.adapter.Scan(ctx, exit, "badge-2")
		s.Require().NoError(err)
		s.Equal(ActionDenied, result.Action)
	})
}

func (s *AdapterSuite) TestAuto() {
	ctx := context.Background()
	devA := s.device("hall-a", ModeAuto)
	devB := s.device("hall-b", ModeAuto)
	s.participant("badge-1")

	result, err := s.adapter.Scan(ctx, devA, "badge-1")
	s.Require().NoError(err)
	s.Equal(ActionCheckedIn, result.Action)

	s.clock = s.clock.Add(30 * time.Minute)
	result, err = s.adapter.Scan(ctx, devB, "badge-1")
	s.Require().NoError(err)
	s.Equal(ActionSwitched, result.Action)
	s.Equal(domain.ZoneID("hall-b"), result.Record.CurrentZoneID)

	s.clock = s.clock.Add(30 * time.Minute)
	result, err = s.adapter.Scan(ctx, devB, "badge-1")
	s.Require().NoError(err)
	s.Equal(ActionCheckedOut, result.Action)
	s.Require().NotNil(result.Settlement)
	s.Equal(30, result.Settlement.RecognizedMinutes)
	s.Equal(60, result.Record.TotalMinutes)
}

func (s *AdapterSuite) TestMissingRuleDenies() {
	ctx := context.Background()
	dev := s.device("hall-a", ModeEnterOnly)
	s.participant("badge-1")

	s.clock = day.AddDate(0, 0, 1).Add(9 * time.Hour)
	result, err := s.adapter.Scan(ctx, dev, "badge-1")
	s.Require().NoError(err)
	s.Equal(ActionDenied, result.Action)
}

func (s *AdapterSuite) TestDisplayWindow() {
	ctx := context.Background()
	dev := s.device("hall-a", ModeEnterOnly)
	s.participant("badge-1")

	phase, _ := s.adapter.State(dev.ID)
	s.Equal(PhaseIdle, phase)

	result, err := s.adapter.Scan(ctx, dev, "badge-1")
	s.Require().NoError(err)

	phase, last := s.adapter.State(dev.ID)
	s.Equal(PhaseDisplay, phase)
	s.Require().NotNil(last)
	s.Equal(result.Action, last.Action)

	// The window expires lazily; no timer needs to fire.
	s.clock = s.clock.Add(displayWindow + time.Second)
	phase, last = s.adapter.State(dev.ID)
	s.Equal(PhaseIdle, phase)
	s.Nil(last)
}

// blockingLookup holds scans open so the suppression path is reachable.
type blockingLookup struct {
	inner   *InMemoryLookup
	release chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (l *blockingLookup) Resolve(ctx context.Context, conferenceID domain.ConferenceID, code string) (domain.ParticipantID, error) {
	l.once.Do(func() { close(l.entered) })
	<-l.release
	return l.inner.Resolve(ctx, conferenceID, code)
}

func (s *AdapterSuite) TestConcurrentScanSuppressed() {
	ctx := context.Background()
	dev := s.device("hall-a", ModeEnterOnly)
	s.participant("badge-1")

	blocking := &blockingLookup{
		inner:   s.lookup,
		release: make(chan struct{}),
		entered: make(chan struct{}),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapter := NewAdapter(s.svc, s.ruleStore, blocking, displayWindow, logger,
		WithAdapterClock(func() time.Time { return s.clock }),
	)

	done := make(chan error, 1)
	go func() {
		_, err := adapter.Scan(ctx, dev, "badge-1")
		done <- err
	}()
	<-blocking.entered

	phase, _ := adapter.State(dev.ID)
	s.Equal(PhaseProcessing, phase)

	_, err := adapter.Scan(ctx, dev, "badge-1")
	s.ErrorIs(err, ErrScanInProgress)

	close(blocking.release)
	s.Require().NoError(<-done)
}

package kiosk

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"presenza/internal/attendance"
	"presenza/internal/kiosk/metrics"
	"presenza/internal/rules"
	"presenza/internal/settlement"
	"presenza/pkg/domain"
	dErrors "presenza/pkg/domain-errors"
	"presenza/pkg/platform/sentinel"
)

// Attendance is the slice of the state machine a kiosk drives.
type Attendance interface {
	CheckIn(ctx context.Context, rule rules.DailyRule, participantID domain.ParticipantID, zoneID domain.ZoneID, method attendance.Method) (attendance.Record, error)
	CheckOut(ctx context.Context, rule rules.DailyRule, participantID domain.ParticipantID, method attendance.Method) (attendance.Record, settlement.Result, error)
	SwitchZone(ctx context.Context, rule rules.DailyRule, participantID domain.ParticipantID, newZoneID domain.ZoneID, method attendance.Method) (attendance.Record, error)
}

// Phase is what the kiosk screen is doing right now.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseProcessing Phase = "processing"
	PhaseDisplay    Phase = "display"
)

// Adapter turns badge scans into state machine operations according to
// each device's mode. One scan per device runs at a time; the outcome
// stays on screen for the display window and the session then falls
// back to idle lazily (no timers, the phase is derived from the clock
// on read).
type Adapter struct {
	svc     Attendance
	rules   rules.Store
	lookup  Lookup
	window  time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	sessions map[domain.DeviceID]*session
}

type session struct {
	processing   bool
	last         *ScanResult
	displayUntil time.Time
}

type AdapterOption func(*Adapter)

func WithAdapterClock(now func() time.Time) AdapterOption {
	return func(a *Adapter) { a.now = now }
}

func WithAdapterMetrics(m *metrics.Metrics) AdapterOption {
	return func(a *Adapter) { a.metrics = m }
}

func NewAdapter(svc Attendance, ruleStore rules.Store, lookup Lookup, displayWindow time.Duration, logger *slog.Logger, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		svc:      svc,
		rules:    ruleStore,
		lookup:   lookup,
		window:   displayWindow,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[domain.DeviceID]*session),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Scan processes one badge scan on the given device. Domain refusals
// come back as a denied ScanResult for the overlay; only transport or
// storage failures are returned as errors. A scan while another is in
// flight on the same device returns ErrScanInProgress.
func (a *Adapter) Scan(ctx context.Context, device Device, code string) (ScanResult, error) {
	sess, err := a.acquire(device.ID)
	if err != nil {
		if a.metrics != nil {
			a.metrics.SuppressedScans.Inc()
		}
		return ScanResult{}, err
	}

	result, err := a.process(ctx, device, code)
	a.release(sess, result, err)
	if err != nil {
		return ScanResult{}, err
	}
	if a.metrics != nil {
		a.metrics.Scans.WithLabelValues(string(result.Action)).Inc()
	}
	return result, nil
}

// State reports the device's current phase and, during the display
// window, the last scan result.
func (a *Adapter) State(deviceID domain.DeviceID) (Phase, *ScanResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.sessions[deviceID]
	if !ok {
		return PhaseIdle, nil
	}
	if sess.processing {
		return PhaseProcessing, nil
	}
	if sess.last != nil && a.now().Before(sess.displayUntil) {
		return PhaseDisplay, sess.last
	}
	return PhaseIdle, nil
}

func (a *Adapter) acquire(deviceID domain.DeviceID) (*session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.sessions[deviceID]
	if !ok {
		sess = &session{}
		a.sessions[deviceID] = sess
	}
	if sess.processing {
		return nil, ErrScanInProgress
	}
	sess.processing = true
	return sess, nil
}

func (a *Adapter) release(sess *session, result ScanResult, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess.processing = false
	if err == nil {
		res := result
		sess.last = &res
		sess.displayUntil = a.now().Add(a.window)
	} else {
		sess.last = nil
	}
}

func (a *Adapter) process(ctx context.Context, device Device, code string) (ScanResult, error) {
	now := a.now()

	participantID, err := a.lookup.Resolve(ctx, device.ConferenceID, code)
	if err != nil {
		return a.deny(ctx, device, domain.ParticipantID{}, err, now)
	}

	rule, err := a.rules.FindByDate(ctx, device.ConferenceID, now)
	if errors.Is(err, sentinel.ErrNotFound) {
		return a.deny(ctx, device, participantID, attendance.ErrRuleNotFoundForDate, now)
	}
	if err != nil {
		return ScanResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "load daily rule")
	}

	switch device.Mode {
	case ModeEnterOnly:
		return a.scanEnter(ctx, device, rule, participantID, now)
	case ModeExitOnly:
		return a.scanExit(ctx, device, rule, participantID, now)
	case ModeAuto:
		return a.scanAuto(ctx, device, rule, participantID, now)
	default:
		return ScanResult{}, dErrors.New(dErrors.CodeInternal, "device has no valid mode")
	}
}

func (a *Adapter) scanEnter(ctx context.Context, device Device, rule rules.DailyRule, participantID domain.ParticipantID, now time.Time) (ScanResult, error) {
	rec, err := a.svc.CheckIn(ctx, rule, participantID, device.ZoneID, attendance.MethodKiosk)
	if errors.Is(err, attendance.ErrZoneSwitchRequired) {
		rec, err = a.svc.SwitchZone(ctx, rule, participantID, device.ZoneID, attendance.MethodKiosk)
		if err != nil {
			return a.outcomeErr(ctx, device, participantID, err, now)
		}
		return a.success(ActionSwitched, participantID, rec, nil, now), nil
	}
	if err != nil {
		return a.outcomeErr(ctx, device, participantID, err, now)
	}
	return a.success(ActionCheckedIn, participantID, rec, nil, now), nil
}

func (a *Adapter) scanExit(ctx context.Context, device Device, rule rules.DailyRule, participantID domain.ParticipantID, now time.Time) (ScanResult, error) {
	rec, result, err := a.svc.CheckOut(ctx, rule, participantID, attendance.MethodKiosk)
	if err != nil {
		return a.outcomeErr(ctx, device, participantID, err, now)
	}
	return a.success(ActionCheckedOut, participantID, rec, &result, now), nil
}

func (a *Adapter) scanAuto(ctx context.Context, device Device, rule rules.DailyRule, participantID domain.ParticipantID, now time.Time) (ScanResult, error) {
	rec, err := a.svc.CheckIn(ctx, rule, participantID, device.ZoneID, attendance.MethodKiosk)
	switch {
	case errors.Is(err, attendance.ErrAlreadyInsideSameZone):
		var result settlement.Result
		rec, result, err = a.svc.CheckOut(ctx, rule, participantID, attendance.MethodKiosk)
		if err != nil {
			return a.outcomeErr(ctx, device, participantID, err, now)
		}
		return a.success(ActionCheckedOut, participantID, rec, &result, now), nil
	case errors.Is(err, attendance.ErrZoneSwitchRequired):
		rec, err = a.svc.SwitchZone(ctx, rule, participantID, device.ZoneID, attendance.MethodKiosk)
		if err != nil {
			return a.outcomeErr(ctx, device, participantID, err, now)
		}
		return a.success(ActionSwitched, participantID, rec, nil, now), nil
	case err != nil:
		return a.outcomeErr(ctx, device, participantID, err, now)
	default:
		return a.success(ActionCheckedIn, participantID, rec, nil, now), nil
	}
}

func (a *Adapter) success(action Action, participantID domain.ParticipantID, rec attendance.Record, result *settlement.Result, now time.Time) ScanResult {
	return ScanResult{
		Action:        action,
		ParticipantID: participantID,
		Record:        &rec,
		Settlement:    result,
		At:            now,
	}
}

// outcomeErr splits domain refusals (rendered on the overlay) from
// real failures (returned to the transport).
func (a *Adapter) outcomeErr(ctx context.Context, device Device, participantID domain.ParticipantID, err error, now time.Time) (ScanResult, error) {
	var dErr *dErrors.DomainError
	if !errors.As(err, &dErr) || dErr.Code == dErrors.CodeInternal {
		return ScanResult{}, err
	}
	return a.deny(ctx, device, participantID, err, now)
}

func (a *Adapter) deny(ctx context.Context, device Device, participantID domain.ParticipantID, err error, now time.Time) (ScanResult, error) {
	var reason string
	var dErr *dErrors.DomainError
	if errors.As(err, &dErr) {
		reason = dErr.Message
	} else {
		reason = "scan failed"
	}
	a.logger.InfoContext(ctx, "kiosk scan denied",
		"device_id", device.ID.String(),
		"reason", reason,
	)
	return ScanResult{
		Action:        ActionDenied,
		ParticipantID: participantID,
		Reason:        reason,
		At:            now,
	}, nil
}

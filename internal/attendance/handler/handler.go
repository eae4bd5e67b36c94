// Package handler exposes the admin console endpoints for attendance.
// Kiosk devices use the separate kiosk handler; this surface is for
// authenticated operators.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"presenza/internal/attendance"
	"presenza/internal/platform/metrics"
	"presenza/internal/platform/middleware"
	"presenza/internal/projector"
	"presenza/internal/rules"
	"presenza/internal/settlement"
	"presenza/internal/transport/http/shared"
	"presenza/pkg/domain"
	dErrors "presenza/pkg/domain-errors"
	"presenza/pkg/platform/sentinel"
)

// Service defines the attendance operations the handler needs.
type Service interface {
	CheckIn(ctx context.Context, rule rules.DailyRule, participantID domain.ParticipantID, zoneID domain.ZoneID, method attendance.Method) (attendance.Record, error)
	CheckOut(ctx context.Context, rule rules.DailyRule, participantID domain.ParticipantID, method attendance.Method) (attendance.Record, settlement.Result, error)
	SwitchZone(ctx context.Context, rule rules.DailyRule, participantID domain.ParticipantID, newZoneID domain.ZoneID, method attendance.Method) (attendance.Record, error)
	ResetMinutes(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID, actor string) (attendance.Record, error)
	Record(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) (attendance.Record, error)
	List(ctx context.Context, conferenceID domain.ConferenceID) ([]attendance.Record, error)
	Log(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) ([]attendance.LogEntry, error)
}

// Handler handles operator-facing attendance endpoints.
type Handler struct {
	logger       *slog.Logger
	svc          Service
	rules        rules.Store
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
	now          func() time.Time
}

func New(svc Service, ruleStore rules.Store, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		svc:          svc,
		rules:        ruleStore,
		metrics:      m,
		jwtValidator: jwtValidator,
		now:          time.Now,
	}
}

// WithClock overrides the time source used for rule resolution.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// Register registers the attendance routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ContentTypeJSON)
	router.Use(metrics.LatencyMiddleware(h.metrics))
	router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	router.Post("/participants/{participantID}/check-in", h.handleCheckIn)
	router.Post("/participants/{participantID}/check-out", h.handleCheckOut)
	router.Post("/participants/{participantID}/switch-zone", h.handleSwitchZone)
	router.Post("/participants/{participantID}/reset-minutes", h.handleResetMinutes)
	router.Get("/participants/{participantID}", h.handleGetRecord)
	router.Get("/participants/{participantID}/log", h.handleGetLog)
	router.Get("/live", h.handleLiveTable)

	r.Mount("/attendance", router)
}

type zoneRequest struct {
	ZoneID string `json:"zone_id"`
}

type checkOutResponse struct {
	Record     attendance.Record `json:"record"`
	Settlement settlement.Result `json:"settlement"`
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conferenceID, participantID, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req zoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	zoneID, err := domain.ParseZoneID(req.ZoneID)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid zone id"))
		return
	}

	rule, err := h.resolveRule(ctx, conferenceID, r.URL.Query().Get("date"))
	if err != nil {
		h.writeOpError(w, r, "check-in", err)
		return
	}

	rec, err := h.svc.CheckIn(ctx, rule, participantID, zoneID, attendance.MethodManual)
	if err != nil {
		h.writeOpError(w, r, "check-in", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conferenceID, participantID, ok := h.scope(w, r)
	if !ok {
		return
	}

	rule, err := h.resolveRule(ctx, conferenceID, r.URL.Query().Get("date"))
	if err != nil {
		h.writeOpError(w, r, "check-out", err)
		return
	}

	rec, result, err := h.svc.CheckOut(ctx, rule, participantID, attendance.MethodManual)
	if err != nil {
		h.writeOpError(w, r, "check-out", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, checkOutResponse{Record: rec, Settlement: result})
}

func (h *Handler) handleSwitchZone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conferenceID, participantID, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req zoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	zoneID, err := domain.ParseZoneID(req.ZoneID)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid zone id"))
		return
	}

	rule, err := h.resolveRule(ctx, conferenceID, r.URL.Query().Get("date"))
	if err != nil {
		h.writeOpError(w, r, "switch-zone", err)
		return
	}

	rec, err := h.svc.SwitchZone(ctx, rule, participantID, zoneID, attendance.MethodManual)
	if err != nil {
		h.writeOpError(w, r, "switch-zone", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleResetMinutes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conferenceID, participantID, ok := h.scope(w, r)
	if !ok {
		return
	}

	rec, err := h.svc.ResetMinutes(ctx, conferenceID, participantID, middleware.GetOperatorID(ctx))
	if err != nil {
		h.writeOpError(w, r, "reset-minutes", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conferenceID, participantID, ok := h.scope(w, r)
	if !ok {
		return
	}

	rec, err := h.svc.Record(ctx, conferenceID, participantID)
	if err != nil {
		h.writeOpError(w, r, "get-record", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleGetLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conferenceID, participantID, ok := h.scope(w, r)
	if !ok {
		return
	}

	entries, err := h.svc.Log(ctx, conferenceID, participantID)
	if err != nil {
		h.writeOpError(w, r, "get-log", err)
		return
	}
	if entries == nil {
		entries = []attendance.LogEntry{}
	}
	shared.WriteJSON(w, http.StatusOK, entries)
}

// handleLiveTable returns the projected view of every participant. A
// missing daily rule degrades open intervals to their settled balance
// rather than failing the whole table.
func (h *Handler) handleLiveTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conferenceID, ok := h.conference(w, r)
	if !ok {
		return
	}

	recs, err := h.svc.List(ctx, conferenceID)
	if err != nil {
		h.writeOpError(w, r, "live-table", err)
		return
	}

	now := h.now()
	var rulePtr *rules.DailyRule
	rule, err := h.rules.FindByDate(ctx, conferenceID, now)
	if err == nil {
		rulePtr = &rule
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		h.writeOpError(w, r, "live-table", dErrors.Wrap(err, dErrors.CodeInternal, "load daily rule"))
		return
	}

	views := projector.ProjectAll(recs, rulePtr, now)
	sort.Slice(views, func(i, j int) bool {
		return views[i].LiveMinutes > views[j].LiveMinutes
	})
	shared.WriteJSON(w, http.StatusOK, views)
}

// scope extracts the conference scope from the token and the
// participant from the path.
func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (domain.ConferenceID, domain.ParticipantID, bool) {
	conferenceID, ok := h.conference(w, r)
	if !ok {
		return domain.ConferenceID{}, domain.ParticipantID{}, false
	}
	participantID, err := domain.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid participant id"))
		return domain.ConferenceID{}, domain.ParticipantID{}, false
	}
	return conferenceID, participantID, true
}

func (h *Handler) conference(w http.ResponseWriter, r *http.Request) (domain.ConferenceID, bool) {
	ctx := r.Context()
	raw := middleware.GetConferenceID(ctx)
	if raw == "" {
		h.logger.ErrorContext(ctx, "conference scope missing despite auth middleware",
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return domain.ConferenceID{}, false
	}
	conferenceID, err := domain.ParseConferenceID(raw)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid conference scope"))
		return domain.ConferenceID{}, false
	}
	return conferenceID, true
}

// resolveRule loads the daily rule for the request's date. The date
// query parameter (2006-01-02) overrides the server clock so operators
// can correct yesterday's forgotten check-outs.
func (h *Handler) resolveRule(ctx context.Context, conferenceID domain.ConferenceID, dateParam string) (rules.DailyRule, error) {
	date := h.now()
	if dateParam != "" {
		parsed, err := time.Parse("2006-01-02", dateParam)
		if err != nil {
			return rules.DailyRule{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid date parameter")
		}
		date = parsed
	}
	rule, err := h.rules.FindByDate(ctx, conferenceID, date)
	if errors.Is(err, sentinel.ErrNotFound) {
		return rules.DailyRule{}, attendance.ErrRuleNotFoundForDate
	}
	if err != nil {
		return rules.DailyRule{}, dErrors.Wrap(err, dErrors.CodeInternal, "load daily rule")
	}
	return rule, nil
}

// writeOpError logs and renders a failed operation. Invariant
// violations are expected operator outcomes and log at info.
func (h *Handler) writeOpError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	attrs := []any{
		"request_id", middleware.GetRequestID(ctx),
		"operation", op,
		"error", err.Error(),
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInvariantViolation, dErrors.CodeNotFound, dErrors.CodeConflict:
		h.logger.InfoContext(ctx, "attendance operation refused", attrs...)
	default:
		h.logger.ErrorContext(ctx, "attendance operation failed", attrs...)
	}
	shared.WriteError(w, err)
}

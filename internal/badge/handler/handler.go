// Package handler exposes badge usage endpoints for operators.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"presenza/internal/badge"
	"presenza/internal/platform/middleware"
	"presenza/internal/transport/http/shared"
	"presenza/pkg/domain"
	dErrors "presenza/pkg/domain-errors"
)

// Handler handles badge endpoints.
type Handler struct {
	logger       *slog.Logger
	svc          *badge.Service
	jwtValidator middleware.JWTValidator
}

func New(svc *badge.Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, svc: svc, jwtValidator: jwtValidator}
}

// Register registers the badge routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(15 * time.Second))
	router.Use(middleware.ContentTypeJSON)
	router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	router.Get("/{participantID}", h.handleGet)
	router.Post("/{participantID}/mark-used", h.handleMarkUsed)
	router.Post("/{participantID}/reset-usage", h.handleResetUsage)

	r.Mount("/badges", router)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conferenceID, participantID, ok := h.scope(w, r)
	if !ok {
		return
	}
	b, err := h.svc.Get(ctx, conferenceID, participantID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) handleMarkUsed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conferenceID, participantID, ok := h.scope(w, r)
	if !ok {
		return
	}
	b, err := h.svc.MarkUsed(ctx, conferenceID, participantID, middleware.GetOperatorID(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) handleResetUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conferenceID, participantID, ok := h.scope(w, r)
	if !ok {
		return
	}
	b, err := h.svc.ResetUsage(ctx, conferenceID, participantID, middleware.GetOperatorID(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (domain.ConferenceID, domain.ParticipantID, bool) {
	conferenceID, err := domain.ParseConferenceID(middleware.GetConferenceID(r.Context()))
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid conference scope"))
		return domain.ConferenceID{}, domain.ParticipantID{}, false
	}
	participantID, err := domain.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid participant id"))
		return domain.ConferenceID{}, domain.ParticipantID{}, false
	}
	return conferenceID, participantID, true
}

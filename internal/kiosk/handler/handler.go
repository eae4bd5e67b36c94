// Package handler exposes the kiosk transport: device registration for
// operators and the scan/state endpoints for the devices themselves.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"presenza/internal/kiosk"
	"presenza/internal/platform/middleware"
	"presenza/internal/transport/http/shared"
	"presenza/pkg/domain"
	dErrors "presenza/pkg/domain-errors"
)

const (
	headerDeviceID  = "X-Device-ID"
	headerDeviceKey = "X-Device-Key"
)

// Handler handles kiosk endpoints. Devices authenticate with their
// registered key; registration itself requires an operator token.
type Handler struct {
	logger       *slog.Logger
	adapter      *kiosk.Adapter
	registry     *kiosk.Registry
	jwtValidator middleware.JWTValidator
}

func New(adapter *kiosk.Adapter, registry *kiosk.Registry, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		adapter:      adapter,
		registry:     registry,
		jwtValidator: jwtValidator,
	}
}

// Register registers the kiosk routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(15 * time.Second))

	// Devices authenticate per request with their key.
	router.Post("/scan", h.handleScan)
	router.Get("/state", h.handleState)

	// Registration is an operator action.
	router.Group(func(admin chi.Router) {
		admin.Use(middleware.ContentTypeJSON)
		admin.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		admin.Post("/devices", h.handleRegisterDevice)
	})

	r.Mount("/kiosk", router)
}

type scanRequest struct {
	Code string `json:"code"`
}

type stateResponse struct {
	Phase kiosk.Phase       `json:"phase"`
	Last  *kiosk.ScanResult `json:"last,omitempty"`
}

type registerDeviceRequest struct {
	ZoneID string `json:"zone_id"`
	Mode   string `json:"mode"`
	Name   string `json:"name"`
}

type registerDeviceResponse struct {
	Device kiosk.Device `json:"device"`
	Key    string       `json:"key"`
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	device, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing badge code"))
		return
	}

	result, err := h.adapter.Scan(ctx, device, req.Code)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			shared.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "kiosk scan failed",
			"request_id", middleware.GetRequestID(ctx),
			"device_id", device.ID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "scan failed, try again"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	device, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	phase, last := h.adapter.State(device.ID)
	shared.WriteJSON(w, http.StatusOK, stateResponse{Phase: phase, Last: last})
}

func (h *Handler) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conferenceID, err := domain.ParseConferenceID(middleware.GetConferenceID(ctx))
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid conference scope"))
		return
	}

	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	zoneID, err := domain.ParseZoneID(req.ZoneID)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid zone id"))
		return
	}
	mode, err := kiosk.ParseMode(req.Mode)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	device, key, err := h.registry.Register(ctx, conferenceID, zoneID, mode, req.Name)
	if err != nil {
		h.logger.ErrorContext(ctx, "device registration failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "could not register device"))
		return
	}

	h.logger.InfoContext(ctx, "kiosk device registered",
		"device_id", device.ID.String(),
		"zone_id", zoneID.String(),
		"mode", string(mode),
	)
	shared.WriteJSON(w, http.StatusCreated, registerDeviceResponse{Device: device, Key: key})
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (kiosk.Device, bool) {
	ctx := r.Context()
	deviceID, err := domain.ParseDeviceID(r.Header.Get(headerDeviceID))
	if err != nil {
		shared.WriteError(w, kiosk.ErrDeviceAuth)
		return kiosk.Device{}, false
	}
	device, err := h.registry.Authenticate(ctx, deviceID, r.Header.Get(headerDeviceKey))
	if err != nil {
		h.logger.WarnContext(ctx, "kiosk device auth failed",
			"request_id", middleware.GetRequestID(ctx),
			"device_id", deviceID.String(),
		)
		shared.WriteError(w, kiosk.ErrDeviceAuth)
		return kiosk.Device{}, false
	}
	return device, true
}

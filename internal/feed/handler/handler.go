// Package handler streams live feed snapshots to display clients over
// server-sent events.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"presenza/internal/feed"
	"presenza/internal/platform/middleware"
	"presenza/internal/transport/http/shared"
	"presenza/pkg/domain"
	dErrors "presenza/pkg/domain-errors"
)

// Handler handles the live feed stream.
type Handler struct {
	logger       *slog.Logger
	broadcaster  *feed.Broadcaster
	jwtValidator middleware.JWTValidator
}

func New(broadcaster *feed.Broadcaster, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, broadcaster: broadcaster, jwtValidator: jwtValidator}
}

// Register registers the feed routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	router.Get("/stream", h.handleStream)
	r.Mount("/feed", router)
}

// handleStream pushes snapshots as SSE events until the client
// disconnects. Snapshots a slow client misses are dropped, the next one
// carries the full table anyway.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conferenceID, err := domain.ParseConferenceID(middleware.GetConferenceID(ctx))
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid conference scope"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "streaming unsupported by connection"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	snapshots, cancel := h.broadcaster.Subscribe(conferenceID)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, open := <-snapshots:
			if !open {
				return
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				h.logger.ErrorContext(ctx, "marshal feed snapshot", "error", err.Error())
				continue
			}
			fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

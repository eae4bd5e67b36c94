// Package httpserver builds the API server shared by the operator
// console, the kiosk endpoints, and the live feed.
package httpserver

import (
	"net/http"
	"time"
)

// New builds the server. Per-request deadlines come from the timeout
// middleware on each module router, and the feed's SSE stream is
// long-lived, so no global read/write timeouts are set here; the
// read-header timeout alone guards against stalled kiosk connections.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

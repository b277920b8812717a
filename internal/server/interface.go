package server

import (
	"context"
	"net/http"
)

// Service owns the process HTTP listener.
type Service interface {
	// Start binds the listener and serves until ctx is cancelled or the
	// server fails. A bind error is returned before anything is served.
	Start(ctx context.Context) error

	// Stop drains open connections, giving up when ctx expires.
	Stop(ctx context.Context) error

	// RegisterHTTPHandler must be called before Start.
	RegisterHTTPHandler(pattern string, handler http.Handler)

	HTTPMux() *http.ServeMux
}

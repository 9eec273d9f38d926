// Package dispatchservice assembles the HTTP service around the dispatch pipeline.
package dispatchservice

import (
	"context"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-dispatch-service/dispatchservice/config"
	"github.com/tinywideclouds/go-dispatch-service/internal/api"
	"github.com/tinywideclouds/go-dispatch-service/pkg/dispatch"
)

// Mux is the subset of *http.ServeMux used for route registration.
type Mux interface {
	Handle(pattern string, handler http.Handler)
}

type Wrapper struct {
	*microservice.BaseServer
	onShutdown []func()
	logger     *slog.Logger
}

// New assembles the service. A nil authMiddleware leaves the inbox routes
// unregistered; the dispatch endpoint is always served.
func New(
	cfg *config.Config,
	runner api.Runner,
	inbox dispatch.InboxReader,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) *Wrapper {
	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Routes
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)
	RegisterRoutes(baseServer.Mux(), runner, inbox, corsMiddleware, authMiddleware, logger)

	return &Wrapper{
		BaseServer: baseServer,
		logger:     logger,
	}
}

// RegisterRoutes mounts the dispatch endpoint and, when auth is configured,
// the inbox read API.
func RegisterRoutes(
	mux Mux,
	runner api.Runner,
	inbox dispatch.InboxReader,
	corsMiddleware func(http.Handler) http.Handler,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) {
	requestScoped := func(h http.Handler) http.Handler {
		return chimw.RequestID(chimw.RealIP(h))
	}

	// Any method, OPTIONS included, reaches the handler so it can answer 405
	// itself. CORS stays off this route: its preflight would answer OPTIONS.
	dispatchAPI := api.NewDispatchAPI(runner, logger)
	mux.Handle("/sendNotification", requestScoped(http.HandlerFunc(dispatchAPI.SendNotification)))

	if authMiddleware == nil || inbox == nil {
		logger.Warn("Inbox API disabled: no identity service configured")
		return
	}

	inboxAPI := api.NewInboxAPI(inbox, logger)
	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, requestScoped(corsMiddleware(authMiddleware(handlerFunc))))
	}
	handle("GET /api/v1/notifications", inboxAPI.List)
	handle("GET /api/v1/notifications/unread-count", inboxAPI.UnreadCount)

	// CORS preflight for the API namespace
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
}

// OnShutdown registers fn to run after the HTTP server has stopped.
func (w *Wrapper) OnShutdown(fn func()) {
	w.onShutdown = append(w.onShutdown, fn)
}

func (w *Wrapper) Start(_ context.Context) error {
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	for i := len(w.onShutdown) - 1; i >= 0; i-- {
		w.onShutdown[i]()
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}

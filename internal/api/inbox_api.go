package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-dispatch-service/pkg/dispatch"
	"github.com/tinywideclouds/go-dispatch-service/pkg/notification"
)

const (
	DefaultInboxLimit = 50
	MaxInboxLimit     = 200
)

// InboxAPI serves the authenticated caller's in-app notifications. It never
// mutates records.
type InboxAPI struct {
	Store  dispatch.InboxReader
	Logger *slog.Logger
}

func NewInboxAPI(store dispatch.InboxReader, logger *slog.Logger) *InboxAPI {
	return &InboxAPI{
		Store:  store,
		Logger: logger.With("component", "InboxAPI"),
	}
}

type listResponse struct {
	Notifications []notification.StoredNotification `json:"notifications"`
}

type unreadResponse struct {
	Unread int `json:"unread"`
}

// List handles GET /api/v1/notifications?limit=N.
func (api *InboxAPI) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	list, err := api.Store.ListNotifications(ctx, userID, limit)
	if err != nil {
		api.Logger.Error("List: store failed", "user", userID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	if list == nil {
		list = []notification.StoredNotification{}
	}

	writeJSON(w, http.StatusOK, listResponse{Notifications: list})
}

// UnreadCount handles GET /api/v1/notifications/unread-count.
func (api *InboxAPI) UnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	n, err := api.Store.CountUnread(ctx, userID)
	if err != nil {
		api.Logger.Error("UnreadCount: store failed", "user", userID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	writeJSON(w, http.StatusOK, unreadResponse{Unread: n})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return DefaultInboxLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, strconv.ErrSyntax
	}
	return min(n, MaxInboxLimit), nil
}

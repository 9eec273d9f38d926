package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-dispatch-service/internal/api"
	"github.com/tinywideclouds/go-dispatch-service/internal/storage/memory"
	"github.com/tinywideclouds/go-dispatch-service/pkg/notification"
)

type MockInbox struct {
	mock.Mock
}

func (m *MockInbox) ListNotifications(ctx context.Context, uid string, limit int) ([]notification.StoredNotification, error) {
	args := m.Called(ctx, uid, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]notification.StoredNotification), args.Error(1)
}

func (m *MockInbox) CountUnread(ctx context.Context, uid string) (int, error) {
	args := m.Called(ctx, uid)
	return args.Int(0), args.Error(1)
}

// Helper to inject UserID into context (simulating Auth Middleware)
func withUser(req *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(req.Context(), userID)
	return req.WithContext(ctx)
}

func TestInboxList(t *testing.T) {
	store := memory.NewStore()
	for i := 0; i < 3; i++ {
		_, err := store.AddNotification(context.Background(), "u1", notification.NotificationRecord{
			Title: fmt.Sprintf("n%d", i), Body: "b", Type: "generic",
		})
		require.NoError(t, err)
	}
	apiHandler := api.NewInboxAPI(store, newTestLogger())

	t.Run("Success", func(t *testing.T) {
		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=2", nil), "u1")
		w := httptest.NewRecorder()

		apiHandler.List(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Notifications []notification.StoredNotification `json:"notifications"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Notifications, 2)
		assert.Equal(t, "n2", body.Notifications[0].Title)
	})

	t.Run("Empty inbox is an empty list", func(t *testing.T) {
		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil), "nobody")
		w := httptest.NewRecorder()

		apiHandler.List(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"notifications":[]}`, w.Body.String())
	})

	t.Run("Rejects bad limit", func(t *testing.T) {
		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=abc", nil), "u1")
		w := httptest.NewRecorder()

		apiHandler.List(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Keyed by uid, not handle", func(t *testing.T) {
		ctx := middleware.ContextWithUser(context.Background(), "u1", "urn:lookup:email:a@b", "a@b")
		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil).WithContext(ctx)
		w := httptest.NewRecorder()

		apiHandler.List(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Notifications []notification.StoredNotification `json:"notifications"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Len(t, body.Notifications, 3)
	})

	t.Run("Unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
		w := httptest.NewRecorder()

		apiHandler.List(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestInboxList_LimitIsClamped(t *testing.T) {
	mockInbox := new(MockInbox)
	apiHandler := api.NewInboxAPI(mockInbox, newTestLogger())

	mockInbox.On("ListNotifications", mock.Anything, "u1", api.MaxInboxLimit).
		Return([]notification.StoredNotification{}, nil).Once()
	mockInbox.On("ListNotifications", mock.Anything, "u1", api.DefaultInboxLimit).
		Return(nil, errors.New("firestore down")).Once()

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=10000", nil), "u1")
	w := httptest.NewRecorder()
	apiHandler.List(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = withUser(httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil), "u1")
	w = httptest.NewRecorder()
	apiHandler.List(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	mockInbox.AssertExpectations(t)
}

func TestInboxUnreadCount(t *testing.T) {
	mockInbox := new(MockInbox)
	apiHandler := api.NewInboxAPI(mockInbox, newTestLogger())

	t.Run("Success", func(t *testing.T) {
		mockInbox.On("CountUnread", mock.Anything, "u1").Return(4, nil).Once()

		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/notifications/unread-count", nil), "u1")
		w := httptest.NewRecorder()
		apiHandler.UnreadCount(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"unread":4}`, w.Body.String())
	})

	t.Run("Store failure", func(t *testing.T) {
		mockInbox.On("CountUnread", mock.Anything, "u2").Return(0, errors.New("boom")).Once()

		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/notifications/unread-count", nil), "u2")
		w := httptest.NewRecorder()
		apiHandler.UnreadCount(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

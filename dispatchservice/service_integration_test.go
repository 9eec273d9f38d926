//go:build integration

package dispatchservice_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tinywideclouds/go-dispatch-service/dispatchservice"
	"github.com/tinywideclouds/go-dispatch-service/internal/pipeline"
	"github.com/tinywideclouds/go-dispatch-service/internal/platform/credentials"
	"github.com/tinywideclouds/go-dispatch-service/internal/platform/fcm"
	fsStore "github.com/tinywideclouds/go-dispatch-service/internal/storage/firestore"
)

// fakeFCM records every message:send call and rejects the token "stale".
type fakeFCM struct {
	mu       sync.Mutex
	messages []map[string]any
}

func (f *fakeFCM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message map[string]any `json:"message"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.messages = append(f.messages, body.Message)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if body.Message["token"] == "stale" {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"status":"NOT_FOUND","details":[{"errorCode":"UNREGISTERED"}]}}`))
		return
	}
	_, _ = w.Write([]byte(`{"name":"projects/test/messages/1"}`))
}

func (f *fakeFCM) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func TestDispatchService_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	projectID := "test-dispatch-integ"

	// 1. Emulator
	fsConn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	fsClient, err := firestore.NewClient(ctx, projectID, fsConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fsClient.Close() })

	// 2. Push API stand-in
	upstream := &fakeFCM{}
	fcmServer := httptest.NewServer(upstream)
	t.Cleanup(fcmServer.Close)

	store := fsStore.NewFirestoreStore(fsClient)
	provider := credentials.NewProvider(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "ya29.test", Expiry: time.Now().Add(time.Hour)}))
	sender := fcm.NewHTTPSender(provider, fcmServer.URL, 5*time.Second, logger)
	p := pipeline.New(store, store, store, sender, logger)

	mux := http.NewServeMux()
	dispatchservice.RegisterRoutes(mux, p, store, passthrough, nil, logger)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	seed := func(path string, data map[string]any) {
		_, err := fsClient.Doc(path).Set(ctx, data)
		require.NoError(t, err)
	}
	seed("users/u1", map[string]any{"name": "no device"})
	seed("users/u3", map[string]any{"fcmToken": "tok-3"})
	seed("users/u4", map[string]any{"fcmToken": "stale"})
	seed("tokens/tokA", map[string]any{"uid": "u1"})
	seed("tokens/tok-3", map[string]any{"uid": "u3"})

	send := func(t *testing.T, body string) (int, map[string]any) {
		t.Helper()
		resp, err := http.Post(server.URL+"/sendNotification", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		var decoded map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
		return resp.StatusCode, decoded
	}
	countNotifications := func(t *testing.T, uid string) int {
		t.Helper()
		docs, err := fsClient.Collection("users").Doc(uid).Collection("notifications").Documents(ctx).GetAll()
		require.NoError(t, err)
		return len(docs)
	}

	t.Run("Target without token records in-app only", func(t *testing.T) {
		status, body := send(t, `{"targetUserId":"u1","title":"Hi","body":"Hello"}`)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, false, body["delivered"])
		assert.Equal(t, "NO_TOKEN", body["reason"])
		assert.Equal(t, 1, countNotifications(t, "u1"))
	})

	t.Run("Ownership conflict writes nothing", func(t *testing.T) {
		before := upstream.count()
		status, body := send(t, `{"token":"tokA","targetUserId":"u2","title":"T","body":"B"}`)

		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "Token belongs to another user; refusing to send", body["error"])
		assert.Equal(t, 0, countNotifications(t, "u2"))
		assert.Equal(t, before, upstream.count())
	})

	t.Run("Delivered push", func(t *testing.T) {
		status, body := send(t, `{"targetUserId":"u3","title":"T","body":"B","type":"booking_request","data":{"rentalId":"r9"}}`)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["delivered"])
		assert.Equal(t, 1, countNotifications(t, "u3"))

		upstream.mu.Lock()
		last := upstream.messages[len(upstream.messages)-1]
		upstream.mu.Unlock()
		data := last["data"].(map[string]any)
		assert.Equal(t, "u3", data["targetUid"])
		assert.Equal(t, "r9", data["rentalId"])
		assert.Equal(t, "booking_request", data["type"])
	})

	t.Run("Rejected push keeps the record", func(t *testing.T) {
		status, body := send(t, `{"targetUserId":"u4","title":"T","body":"B"}`)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, false, body["delivered"])
		assert.Equal(t, "FCM_ERROR", body["reason"])
		assert.NotNil(t, body["details"])
		assert.Equal(t, 1, countNotifications(t, "u4"))
	})

	t.Run("Unknown target", func(t *testing.T) {
		status, _ := send(t, `{"targetUserId":"ghost","title":"T","body":"B"}`)
		assert.Equal(t, http.StatusNotFound, status)
	})
}

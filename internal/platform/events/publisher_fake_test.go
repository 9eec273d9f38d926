package events_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tinywideclouds/go-dispatch-service/internal/platform/events"
	"github.com/tinywideclouds/go-dispatch-service/pkg/notification"
)

const fakeProject = "test-project"

func newFakeClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), fakeProject, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPubsubPublisher_PublishAndClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, srv := newFakeClient(t)

	require.NoError(t, events.EnsureTopic(ctx, client, fakeProject, "dispatch-events"))
	require.NoError(t, events.EnsureTopic(ctx, client, fakeProject, "dispatch-events"))

	publisher := events.NewPubsubPublisher(client, "dispatch-events", logger)
	for _, ev := range []struct {
		id        string
		delivered bool
	}{{"e-1", true}, {"e-2", false}} {
		require.NoError(t, publisher.Publish(ctx, notification.DispatchEvent{
			EventID:        ev.id,
			UID:            "u1",
			NotificationID: "n1",
			Type:           "booking_request",
			Delivered:      ev.delivered,
			OccurredAt:     time.Now().UTC(),
		}))
	}
	// Close waits for every outstanding result.
	publisher.Close()

	msgs := srv.Messages()
	require.Len(t, msgs, 2)

	byEvent := map[string]*pstest.Message{}
	for _, m := range msgs {
		var got notification.DispatchEvent
		require.NoError(t, json.Unmarshal(m.Data, &got))
		assert.Equal(t, "u1", got.UID)
		assert.Equal(t, "n1", got.NotificationID)
		byEvent[got.EventID] = m
	}
	require.Contains(t, byEvent, "e-1")
	require.Contains(t, byEvent, "e-2")
	assert.Equal(t, map[string]string{"type": "booking_request", "delivered": "true"}, byEvent["e-1"].Attributes)
	assert.Equal(t, "false", byEvent["e-2"].Attributes["delivered"])
}

func TestPubsubPublisher_MissingTopicIsNotFatal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, srv := newFakeClient(t)

	publisher := events.NewPubsubPublisher(client, "no-such-topic", logger)
	err := publisher.Publish(ctx, notification.DispatchEvent{EventID: "e-1", Type: "generic"})
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		publisher.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-ctx.Done():
		t.Fatal("Close did not return after a failed publish")
	}
	assert.Empty(t, srv.Messages())
}

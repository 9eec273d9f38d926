// Package events announces completed dispatches on a Pub/Sub topic.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-dispatch-service/pkg/notification"
)

// PubsubPublisher publishes DispatchEvents as JSON. Publishing is
// asynchronous: Publish enqueues and returns, results are logged.
type PubsubPublisher struct {
	publisher *pubsub.Publisher
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func NewPubsubPublisher(client *pubsub.Client, topicID string, logger *slog.Logger) *PubsubPublisher {
	return &PubsubPublisher{
		publisher: client.Publisher(topicID),
		logger:    logger.With("component", "EventsPublisher", "topic", topicID),
	}
}

// EnsureTopic creates the topic if it does not exist yet.
func EnsureTopic(ctx context.Context, client *pubsub.Client, projectID, topicID string) error {
	name := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	_, err := client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: name})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("could not create topic %s: %w", name, err)
	}
	return nil
}

func (p *PubsubPublisher) Publish(ctx context.Context, event notification.DispatchEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch event: %w", err)
	}

	res := p.publisher.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"type":      event.Type,
			"delivered": strconv.FormatBool(event.Delivered),
		},
	})

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		id, err := res.Get(context.WithoutCancel(ctx))
		if err != nil {
			p.logger.Warn("Dispatch event publish failed", "event_id", event.EventID, "err", err)
			return
		}
		p.logger.Debug("Dispatch event published", "event_id", event.EventID, "message_id", id)
	}()
	return nil
}

// Close flushes outstanding messages.
func (p *PubsubPublisher) Close() {
	p.publisher.Stop()
	p.wg.Wait()
}

// Package pipeline contains the notification dispatch pipeline: validation,
// token resolution, ownership checks, in-app recording and push delivery.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-dispatch-service/pkg/dispatch"
	"github.com/tinywideclouds/go-dispatch-service/pkg/notification"
)

const noTokenNote = "In-app notification created; user has no FCM token"

// Pipeline runs a single dispatch request through every stage in order.
// It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	resolver *Resolver
	guard    *Guard
	recorder *Recorder
	sender   dispatch.Sender
	events   dispatch.EventPublisher
	logger   *slog.Logger
}

// Option configures optional collaborators of a Pipeline.
type Option func(*Pipeline)

// WithEvents publishes a DispatchEvent after every completed dispatch.
func WithEvents(events dispatch.EventPublisher) Option {
	return func(p *Pipeline) { p.events = events }
}

// New assembles a pipeline from its stores and push sender.
func New(
	users dispatch.UserStore,
	owners dispatch.TokenOwnerStore,
	notifications dispatch.NotificationWriter,
	sender dispatch.Sender,
	logger *slog.Logger,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		resolver: NewResolver(users),
		guard:    NewGuard(owners),
		recorder: NewRecorder(notifications),
		sender:   sender,
		logger:   logger.With("component", "DispatchPipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run dispatches req. A returned error is terminal and nothing has been sent;
// it is one of ErrValidation, ErrNotFound, ErrOwnershipConflict or an
// *InternalError. Push failures are not errors: they are reported in the
// outcome with Delivered=false.
func (p *Pipeline) Run(ctx context.Context, raw notification.DispatchRequest) (*notification.DeliveryOutcome, error) {
	req, err := Validate(raw)
	if err != nil {
		return nil, err
	}

	log := p.logger.With("target_uid", req.TargetUserID, "type", req.Type)

	token, resolvedUID, err := p.resolver.Resolve(ctx, req)
	if err != nil {
		log.Warn("Token resolution failed", "stage", StageResolvingToken, "err", err)
		return nil, err
	}

	uid, err := p.guard.Check(ctx, token, resolvedUID, req.TargetUserID)
	if err != nil {
		log.Warn("Ownership check failed", "stage", StageCheckingOwnership, "token", redact(token), "err", err)
		return nil, err
	}

	notificationID, err := p.recorder.Record(ctx, uid, req)
	if err != nil {
		log.Error("In-app notification write failed", "stage", StageRecordingNotification, "uid", uid, "err", err)
		return nil, err
	}
	if notificationID != "" {
		log.Debug("In-app notification recorded", "uid", uid, "notification_id", notificationID)
	}

	// The record is committed; the rest of the request must not be cut short
	// by the caller going away.
	sendCtx := context.WithoutCancel(ctx)

	outcome, err := p.send(sendCtx, log, token, uid, req)
	if err != nil {
		return nil, err
	}
	outcome.NotificationID = notificationID
	outcome.UID = uid

	p.publish(sendCtx, log, req, outcome)
	return outcome, nil
}

func (p *Pipeline) send(ctx context.Context, log *slog.Logger, token, uid string, req notification.DispatchRequest) (*notification.DeliveryOutcome, error) {
	if token == "" {
		log.Info("No device token; in-app only", "uid", uid)
		return &notification.DeliveryOutcome{
			OK:     true,
			Reason: notification.ReasonNoToken,
			Note:   noTokenNote,
		}, nil
	}

	rsp, err := p.sender.Send(ctx, notification.PushMessage{
		Token:     token,
		Title:     req.Title,
		Body:      req.Body,
		Type:      req.Type,
		Data:      req.Data,
		TargetUID: uid,
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrCredentials) {
			log.Error("Push credentials unavailable", "stage", StageSending, "err", err)
			return nil, internal(StageSending, err)
		}
		log.Warn("Push delivery failed", "stage", StageSending, "uid", uid, "token", redact(token), "err", err)
		return &notification.DeliveryOutcome{
			OK:      true,
			Reason:  notification.ReasonFCMError,
			Details: deliveryDetails(err),
		}, nil
	}

	log.Info("Push delivered", "uid", uid, "token", redact(token))
	return &notification.DeliveryOutcome{
		OK:          true,
		Delivered:   true,
		FCMResponse: rsp,
	}, nil
}

func (p *Pipeline) publish(ctx context.Context, log *slog.Logger, req notification.DispatchRequest, outcome *notification.DeliveryOutcome) {
	if p.events == nil {
		return
	}
	event := notification.DispatchEvent{
		EventID:        uuid.NewString(),
		UID:            outcome.UID,
		NotificationID: outcome.NotificationID,
		Type:           req.Type,
		Delivered:      outcome.Delivered,
		Reason:         outcome.Reason,
		OccurredAt:     time.Now().UTC(),
	}
	if err := p.events.Publish(ctx, event); err != nil {
		log.Warn("Failed to publish dispatch event", "event_id", event.EventID, "err", err)
	}
}

func deliveryDetails(err error) any {
	var de *dispatch.DeliveryError
	if errors.As(err, &de) && de.Details != nil {
		return de.Details
	}
	return err.Error()
}

// redact keeps enough of a device token to correlate log lines.
func redact(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:12] + "..."
}

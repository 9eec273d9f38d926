package fcm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"golang.org/x/oauth2"

	"github.com/tinywideclouds/go-dispatch-service/pkg/dispatch"
	"github.com/tinywideclouds/go-dispatch-service/pkg/notification"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it; tests substitute a mock.
type MessagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// SDKSender delivers through the Firebase Admin SDK, which manages its own
// credentials from the firebase.App it was created with.
type SDKSender struct {
	client MessagingClient
	logger *slog.Logger
}

func NewSDKSender(client MessagingClient, logger *slog.Logger) *SDKSender {
	return &SDKSender{
		client: client,
		logger: logger.With("component", "FCMSDKSender"),
	}
}

// Send makes exactly one delivery attempt. The returned body mirrors the
// HTTP v1 response: {"name": "<message id>"}.
func (s *SDKSender) Send(ctx context.Context, msg notification.PushMessage) (json.RawMessage, error) {
	id, err := s.client.Send(ctx, &messaging.Message{
		Token: msg.Token,
		Data:  BuildData(msg),
		Android: &messaging.AndroidConfig{
			Priority: androidPriority,
		},
	})
	if err != nil {
		if isCredentialError(err) {
			return nil, fmt.Errorf("%w: %w", dispatch.ErrCredentials, err)
		}
		code := classify(err)
		s.logger.Debug("FCM rejected message", "code", code, "err", err)
		return nil, &dispatch.DeliveryError{
			Details: map[string]string{"code": code, "message": err.Error()},
			Err:     err,
		}
	}

	rsp, err := json.Marshal(map[string]string{"name": id})
	if err != nil {
		return nil, err
	}
	return rsp, nil
}

// isCredentialError reports failures of the service's own authorization
// rather than of the message or the device.
func isCredentialError(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re) ||
		errorutils.IsUnauthenticated(err) ||
		messaging.IsThirdPartyAuthError(err)
}

// classify maps SDK errors onto the FCM v1 error codes.
func classify(err error) string {
	switch {
	case messaging.IsUnregistered(err):
		return "UNREGISTERED"
	case messaging.IsInvalidArgument(err):
		return "INVALID_ARGUMENT"
	case messaging.IsSenderIDMismatch(err):
		return "SENDER_ID_MISMATCH"
	case messaging.IsQuotaExceeded(err):
		return "QUOTA_EXCEEDED"
	case messaging.IsUnavailable(err):
		return "UNAVAILABLE"
	case messaging.IsInternal(err):
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

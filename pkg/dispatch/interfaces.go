package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tinywideclouds/go-dispatch-service/pkg/notification"
)

// ErrRecordNotFound is returned by stores when the requested document does not exist.
var ErrRecordNotFound = errors.New("record not found")

// ErrCredentials marks a failure to obtain an access token for the push API.
var ErrCredentials = errors.New("push credentials unavailable")

// UserStore reads users/{uid}.
type UserStore interface {
	// GetUser returns ErrRecordNotFound when no such user exists.
	GetUser(ctx context.Context, uid string) (*notification.UserRecord, error)
}

// TokenOwnerStore reads the tokens/{token} reverse index.
type TokenOwnerStore interface {
	// GetOwner returns the uid that last registered the token, or ErrRecordNotFound.
	GetOwner(ctx context.Context, token string) (string, error)
}

// NotificationWriter appends in-app notifications.
type NotificationWriter interface {
	// AddNotification stores the record with a server-side creation time and
	// returns the generated document id.
	AddNotification(ctx context.Context, uid string, record notification.NotificationRecord) (string, error)
}

// InboxReader serves a user's in-app notification list.
type InboxReader interface {
	ListNotifications(ctx context.Context, uid string, limit int) ([]notification.StoredNotification, error)
	CountUnread(ctx context.Context, uid string) (int, error)
}

// CredentialProvider hands out short-lived access tokens for the push API.
type CredentialProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Sender delivers a single data-only push message.
// On success it returns the upstream response body. Failures to obtain
// credentials wrap ErrCredentials; upstream rejections are *DeliveryError.
type Sender interface {
	Send(ctx context.Context, msg notification.PushMessage) (json.RawMessage, error)
}

// EventPublisher announces completed dispatches.
type EventPublisher interface {
	Publish(ctx context.Context, event notification.DispatchEvent) error
}

// DeliveryError is an upstream push failure. Details carries whatever the push
// API returned so it can be surfaced to the caller for diagnostics.
type DeliveryError struct {
	StatusCode int
	Details    any
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("push rejected with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("push failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

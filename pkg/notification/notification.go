// Package notification contains the public domain models for the dispatch service.
package notification

import (
	"encoding/json"
	"time"
)

// DefaultType is applied when a dispatch request does not name a notification type.
const DefaultType = "generic"

// Delivery reasons reported when a push was not delivered.
const (
	ReasonNoToken  = "NO_TOKEN"
	ReasonFCMError = "FCM_ERROR"
)

// DispatchRequest is the inbound request to notify a user.
// TargetUserID and Token are both optional; when both are supplied they are
// cross-checked against the token ownership records.
type DispatchRequest struct {
	TargetUserID string            `json:"targetUserId,omitempty"`
	Token        string            `json:"token,omitempty"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Type         string            `json:"type,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

// UserRecord mirrors users/{uid}. FCMToken is empty when the user has no device.
type UserRecord struct {
	UID      string
	FCMToken string
}

// NotificationRecord is the in-app notification appended under users/{uid}/notifications.
type NotificationRecord struct {
	Title string
	Body  string
	Type  string
	Data  map[string]string
}

// StoredNotification is a NotificationRecord as read back from the store.
type StoredNotification struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Type      string            `json:"type"`
	Data      map[string]string `json:"data"`
	CreatedAt time.Time         `json:"createdAt"`
	Read      bool              `json:"read"`
}

// PushMessage is everything a sender needs to build a data-only push.
type PushMessage struct {
	Token     string
	Title     string
	Body      string
	Type      string
	Data      map[string]string
	TargetUID string
}

// DeliveryOutcome is returned to the caller of a completed dispatch. It is never persisted.
type DeliveryOutcome struct {
	OK          bool            `json:"ok"`
	Delivered   bool            `json:"delivered"`
	Reason      string          `json:"reason,omitempty"`
	Note        string          `json:"note,omitempty"`
	Details     any             `json:"details,omitempty"`
	FCMResponse json.RawMessage `json:"fcmResponse,omitempty"`

	// NotificationID is the id of the in-app record, empty when none was written.
	NotificationID string `json:"-"`
	// UID is the effective user the dispatch was attributed to.
	UID string `json:"-"`
}

// DispatchEvent is published after a dispatch completes.
type DispatchEvent struct {
	EventID        string    `json:"eventId"`
	UID            string    `json:"uid,omitempty"`
	NotificationID string    `json:"notificationId,omitempty"`
	Type           string    `json:"type"`
	Delivered      bool      `json:"delivered"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Package fcm delivers data-only push messages through Firebase Cloud Messaging.
package fcm

import (
	"fmt"

	"github.com/tinywideclouds/go-dispatch-service/pkg/notification"
)

const (
	// DefaultEndpoint is the FCM HTTP v1 send URL; %s is the project id.
	DefaultEndpoint = "https://fcm.googleapis.com/v1/projects/%s/messages:send"

	androidPriority = "high"
)

// EndpointForProject returns the messages:send URL for projectID.
func EndpointForProject(projectID string) string {
	return fmt.Sprintf(DefaultEndpoint, projectID)
}

// sendRequest is the HTTP v1 request body.
type sendRequest struct {
	Message message `json:"message"`
}

type message struct {
	Token   string            `json:"token"`
	Data    map[string]string `json:"data"`
	Android *androidConfig    `json:"android,omitempty"`
}

type androidConfig struct {
	Priority string `json:"priority"`
}

// BuildData flattens a push into the data payload. The client renders the
// notification itself, so title and body travel as data keys. Caller data may
// override title, body and type but never targetUid.
func BuildData(msg notification.PushMessage) map[string]string {
	data := make(map[string]string, len(msg.Data)+4)
	data["title"] = msg.Title
	data["body"] = msg.Body
	data["type"] = msg.Type
	for k, v := range msg.Data {
		data[k] = v
	}
	data["targetUid"] = msg.TargetUID
	return data
}

func newSendRequest(msg notification.PushMessage) sendRequest {
	return sendRequest{
		Message: message{
			Token:   msg.Token,
			Data:    BuildData(msg),
			Android: &androidConfig{Priority: androidPriority},
		},
	}
}

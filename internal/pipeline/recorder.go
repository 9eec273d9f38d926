package pipeline

import (
	"context"
	"fmt"

	"github.com/tinywideclouds/go-dispatch-service/pkg/dispatch"
	"github.com/tinywideclouds/go-dispatch-service/pkg/notification"
)

// Recorder writes the in-app notification for the effective user.
type Recorder struct {
	store dispatch.NotificationWriter
}

func NewRecorder(store dispatch.NotificationWriter) *Recorder {
	return &Recorder{store: store}
}

// Record appends exactly one record under uid and returns its id. It is a
// no-op when uid is empty. A store failure is returned as an InternalError.
func (r *Recorder) Record(ctx context.Context, uid string, req notification.DispatchRequest) (string, error) {
	if uid == "" {
		return "", nil
	}

	id, err := r.store.AddNotification(ctx, uid, notification.NotificationRecord{
		Title: req.Title,
		Body:  req.Body,
		Type:  req.Type,
		Data:  req.Data,
	})
	if err != nil {
		return "", internal(StageRecordingNotification, fmt.Errorf("failed to write notification for %s: %w", uid, err))
	}
	return id, nil
}

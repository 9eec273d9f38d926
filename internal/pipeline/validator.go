package pipeline

import (
	"maps"

	"github.com/tinywideclouds/go-dispatch-service/pkg/notification"
)

// Validate checks the required fields and returns a normalized copy of req
// with Type and Data defaulted.
func Validate(req notification.DispatchRequest) (notification.DispatchRequest, error) {
	if req.Title == "" || req.Body == "" {
		return notification.DispatchRequest{}, ErrValidation
	}

	// Ids pass through untouched: a blank-but-present target is still a
	// target, and is looked up as given.
	out := req
	if out.Type == "" {
		out.Type = notification.DefaultType
	}
	out.Data = make(map[string]string, len(req.Data))
	maps.Copy(out.Data, req.Data)
	return out, nil
}

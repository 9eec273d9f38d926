package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/tinywideclouds/go-dispatch-service/pkg/dispatch"
	"github.com/tinywideclouds/go-dispatch-service/pkg/notification"
)

// Resolver picks the device token a request should be delivered to.
type Resolver struct {
	users dispatch.UserStore
}

func NewResolver(users dispatch.UserStore) *Resolver {
	return &Resolver{users: users}
}

// Resolve returns the token to target and the uid it was resolved for.
// An explicit token is used as-is and never triggers a user lookup. When only
// a target user is given, the user's stored token is used; it may be empty.
// With neither, both results are empty and no error is returned.
func (r *Resolver) Resolve(ctx context.Context, req notification.DispatchRequest) (token, resolvedUID string, err error) {
	resolvedUID = req.TargetUserID

	if req.Token != "" {
		return req.Token, resolvedUID, nil
	}
	if req.TargetUserID == "" {
		return "", "", nil
	}

	user, err := r.users.GetUser(ctx, req.TargetUserID)
	if err != nil {
		if errors.Is(err, dispatch.ErrRecordNotFound) {
			return "", "", ErrNotFound
		}
		return "", "", internal(StageResolvingToken, fmt.Errorf("failed to read user %s: %w", req.TargetUserID, err))
	}
	return user.FCMToken, resolvedUID, nil
}

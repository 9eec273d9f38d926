package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the step of the dispatch pipeline a request is in.
type Stage string

const (
	StageValidating            Stage = "validating"
	StageResolvingToken        Stage = "resolving_token"
	StageCheckingOwnership     Stage = "checking_ownership"
	StageRecordingNotification Stage = "recording_notification"
	StageSending               Stage = "sending"
	StageCompleted             Stage = "completed"
)

var (
	// ErrValidation is returned when title or body is missing.
	ErrValidation = errors.New("missing required fields: title, body")
	// ErrNotFound is returned when targetUserId names no user record.
	ErrNotFound = errors.New("target user not found")
	// ErrOwnershipConflict is returned when the token is registered to a different user.
	ErrOwnershipConflict = errors.New("token belongs to another user")
)

// InternalError is a failure of a backing service that ends the request.
type InternalError struct {
	Stage Stage
	Err   error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

func internal(stage Stage, err error) error {
	return &InternalError{Stage: stage, Err: err}
}

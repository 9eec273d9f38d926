package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tinywideclouds/go-dispatch-service/internal/pipeline"
	"github.com/tinywideclouds/go-dispatch-service/pkg/notification"
)

// errorBody is the JSON shape of every non-200 dispatch response.
type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

const (
	msgMethodNotAllowed = "Method not allowed"
	msgMissingFields    = "Missing required fields: title, body"
	msgInvalidBody      = "Invalid request body"
	msgTargetNotFound   = "Target user not found"
	msgOwnership        = "Token belongs to another user; refusing to send"
	msgInternal         = "Failed to send notification"
)

// composeOutcome writes a completed dispatch. It is always 200, whether or not
// the push was delivered.
func composeOutcome(w http.ResponseWriter, outcome *notification.DeliveryOutcome) {
	writeJSON(w, http.StatusOK, outcome)
}

// composeError maps a pipeline error onto its status and body. Anything
// unclassified is an internal failure.
func composeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: msgMissingFields})
	case errors.Is(err, pipeline.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: msgTargetNotFound})
	case errors.Is(err, pipeline.ErrOwnershipConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: msgOwnership})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: msgInternal, Details: internalDetails(err)})
	}
}

func internalDetails(err error) string {
	var ie *pipeline.InternalError
	if errors.As(err, &ie) {
		return ie.Err.Error()
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

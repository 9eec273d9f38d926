// Package api exposes the dispatch pipeline and the inbox over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tinywideclouds/go-dispatch-service/pkg/notification"
)

const maxRequestBytes = 1 << 20

// Runner executes a dispatch. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, req notification.DispatchRequest) (*notification.DeliveryOutcome, error)
}

type DispatchAPI struct {
	Runner Runner
	Logger *slog.Logger
}

func NewDispatchAPI(runner Runner, logger *slog.Logger) *DispatchAPI {
	return &DispatchAPI{
		Runner: runner,
		Logger: logger.With("component", "DispatchAPI"),
	}
}

// SendNotification handles POST /sendNotification.
func (api *DispatchAPI) SendNotification(w http.ResponseWriter, r *http.Request) {
	log := api.Logger.With("request_id", chimw.GetReqID(r.Context()))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("SendNotification: panic recovered", "panic", rec)
			composeError(w, fmt.Errorf("panic: %v", rec))
		}
	}()

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: msgMethodNotAllowed})
		return
	}

	var req notification.DispatchRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := decodeSingle(dec, &req); err != nil {
		log.Warn("SendNotification: JSON Decode failed", "err", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: msgInvalidBody, Details: err.Error()})
		return
	}

	outcome, err := api.Runner.Run(r.Context(), req)
	if err != nil {
		log.Info("SendNotification: dispatch refused", "err", err)
		composeError(w, err)
		return
	}

	log.Info("SendNotification: dispatch completed",
		"uid", outcome.UID,
		"delivered", outcome.Delivered,
		"reason", outcome.Reason,
	)
	composeOutcome(w, outcome)
}

// decodeSingle reads exactly one JSON value into v. An empty body leaves v
// zero; anything after the first value is an error.
func decodeSingle(dec *json.Decoder, v any) error {
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err != nil {
			return err
		}
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

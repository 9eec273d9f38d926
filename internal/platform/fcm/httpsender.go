package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tinywideclouds/go-dispatch-service/pkg/dispatch"
	"github.com/tinywideclouds/go-dispatch-service/pkg/notification"
)

// DefaultTimeout bounds a single messages:send call.
const DefaultTimeout = 10 * time.Second

const maxResponseBytes = 1 << 20

// HTTPSender posts messages to the FCM HTTP v1 REST endpoint with a bearer
// token from a CredentialProvider.
type HTTPSender struct {
	httpClient  *http.Client
	credentials dispatch.CredentialProvider
	endpoint    string
	logger      *slog.Logger
}

// NewHTTPSender creates a sender for endpoint, usually EndpointForProject(projectID).
func NewHTTPSender(credentials dispatch.CredentialProvider, endpoint string, timeout time.Duration, logger *slog.Logger) *HTTPSender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPSender{
		httpClient:  &http.Client{Timeout: timeout},
		credentials: credentials,
		endpoint:    endpoint,
		logger:      logger.With("component", "FCMHTTPSender"),
	}
}

// Send makes exactly one delivery attempt.
func (s *HTTPSender) Send(ctx context.Context, msg notification.PushMessage) (json.RawMessage, error) {
	accessToken, err := s.credentials.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dispatch.ErrCredentials, err)
	}

	payload, err := json.Marshal(newSendRequest(msg))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fcm message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create fcm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &dispatch.DeliveryError{Details: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &dispatch.DeliveryError{StatusCode: resp.StatusCode, Details: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Debug("FCM rejected message", "status", resp.StatusCode)
		return nil, &dispatch.DeliveryError{
			StatusCode: resp.StatusCode,
			Details:    responseDetails(body, resp.Status),
			Err:        fmt.Errorf("fcm responded %s", resp.Status),
		}
	}

	if !json.Valid(body) {
		quoted, _ := json.Marshal(string(body))
		return quoted, nil
	}
	return json.RawMessage(body), nil
}

// responseDetails keeps a JSON error body as-is and falls back to its text.
func responseDetails(body []byte, status string) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return status
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}

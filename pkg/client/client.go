// Package client is a Go client for the dispatch service's /sendNotification endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tinywideclouds/go-dispatch-service/pkg/notification"
)

// Notification types understood by the mobile client.
const (
	TypeBookingRequest  = "booking_request"
	TypeBookingApproved = "booking_approved"
	TypeBookingRejected = "booking_rejected"
	TypeChat            = "chat"
)

const chatPreviewRunes = 100

// Client sends dispatch requests. The zero value is not usable; use New.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client, e.g. to add authentication.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is a successful (HTTP 200) dispatch response.
type Result struct {
	OK          bool            `json:"ok"`
	Delivered   bool            `json:"delivered"`
	Reason      string          `json:"reason,omitempty"`
	Note        string          `json:"note,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	FCMResponse json.RawMessage `json:"fcmResponse,omitempty"`
}

// APIError is any non-200 dispatch response.
type APIError struct {
	StatusCode int
	Message    string          `json:"error"`
	Details    json.RawMessage `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dispatch failed with status %d: %s", e.StatusCode, e.Message)
}

// Send posts req as-is.
func (c *Client) Send(ctx context.Context, req notification.DispatchRequest) (*Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sendNotification", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dispatch request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return nil, apiErr
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// SendToUser notifies a user by id; the service looks up their device token.
func (c *Client) SendToUser(ctx context.Context, uid, title, body, notificationType string, data map[string]string) (*Result, error) {
	return c.Send(ctx, notification.DispatchRequest{
		TargetUserID: uid,
		Title:        title,
		Body:         body,
		Type:         notificationType,
		Data:         data,
	})
}

// SendToToken pushes to a specific device token.
func (c *Client) SendToToken(ctx context.Context, token, title, body, notificationType string, data map[string]string) (*Result, error) {
	return c.Send(ctx, notification.DispatchRequest{
		Token: token,
		Title: title,
		Body:  body,
		Type:  notificationType,
		Data:  data,
	})
}

// BookingRequest tells a rental owner that a guest wants to book.
func (c *Client) BookingRequest(ctx context.Context, ownerID, guestName, rentalTitle string) (*Result, error) {
	return c.SendToUser(ctx, ownerID,
		"New Booking Request",
		fmt.Sprintf("%s has requested to book %s", guestName, rentalTitle),
		TypeBookingRequest, nil)
}

func (c *Client) BookingApproved(ctx context.Context, userID, rentalTitle string) (*Result, error) {
	return c.SendToUser(ctx, userID,
		"Booking Approved! 🎉",
		fmt.Sprintf("Your booking for %s has been approved", rentalTitle),
		TypeBookingApproved, nil)
}

func (c *Client) BookingRejected(ctx context.Context, userID, rentalTitle string) (*Result, error) {
	return c.SendToUser(ctx, userID,
		"Booking Update",
		fmt.Sprintf("Your booking for %s has been rejected", rentalTitle),
		TypeBookingRejected, nil)
}

// ChatMessage notifies receiverID of a new chat message. The preview is cut
// to 100 characters.
func (c *Client) ChatMessage(ctx context.Context, receiverID, senderName, text, senderID, senderPhoto string) (*Result, error) {
	return c.SendToUser(ctx, receiverID,
		"New message from "+senderName,
		preview(text),
		TypeChat,
		map[string]string{
			"otherUserId":    senderID,
			"otherUserName":  senderName,
			"otherUserPhoto": senderPhoto,
		})
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= chatPreviewRunes {
		return text
	}
	return string(runes[:chatPreviewRunes]) + "..."
}

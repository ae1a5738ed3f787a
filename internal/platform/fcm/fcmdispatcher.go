// Package fcm delivers notifications through the FCM v1 HTTP API, one send
// per device token, authorized by a bearer token minted per dispatch.
package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-guardian-notification-service/pkg/notify"
)

// SendURL returns the v1 send endpoint for a Firebase project.
func SendURL(projectID string) string {
	return fmt.Sprintf("https://fcm.googleapis.com/v1/projects/%s/messages:send", projectID)
}

// message is the v1 wire shape: {message: {token, notification: {title, body}}}.
type message struct {
	Message struct {
		Token        string `json:"token"`
		Notification struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		} `json:"notification"`
	} `json:"message"`
}

type Dispatcher struct {
	httpClient *http.Client
	sendURL    string
	logger     *slog.Logger
}

// NewDispatcher accepts the HTTP client so tests can point it at a fake
// gateway. A nil client gets a sane default.
func NewDispatcher(client *http.Client, sendURL string, logger *slog.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Dispatcher{
		httpClient: client,
		sendURL:    sendURL,
		logger:     logger.With("component", "FCMDispatcher"),
	}
}

// Dispatch sends the payload to every token concurrently and joins all sends
// into an aggregate result. Sends are independent and best-effort: a failure
// for one token is recorded and never aborts the others. Failed sends are
// not retried; re-triggering the notification is the retry mechanism.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, payload notify.Payload, bearer string) notify.Result {
	result := notify.Result{
		DispatchID: uuid.NewString(),
		Attempted:  len(tokens),
	}
	if len(tokens) == 0 {
		return result
	}

	errs := make([]error, len(tokens))
	var wg sync.WaitGroup
	for i, token := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = d.send(ctx, token, payload, bearer)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			result.Delivered++
			continue
		}
		result.Failures = append(result.Failures, notify.TokenError{Token: tokens[i], Reason: err.Error()})
		d.logger.Warn("Device send failed", "dispatch_id", result.DispatchID, "token", tokens[i], "err", err)
	}

	d.logger.Info("Dispatch complete",
		"dispatch_id", result.DispatchID,
		"attempted", result.Attempted,
		"delivered", result.Delivered,
		"failed", result.Failed(),
	)
	return result
}

func (d *Dispatcher) send(ctx context.Context, token string, payload notify.Payload, bearer string) error {
	var msg message
	msg.Message.Token = token
	msg.Message.Notification.Title = payload.Title
	msg.Message.Notification.Body = payload.Body

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.sendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway returned %s: %s", resp.Status, gatewayError(resp.Body))
	}
	return nil
}

// gatewayError extracts the error status from an FCM v1 error body, falling
// back to the raw (truncated) body.
func gatewayError(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 2048))
	if err != nil {
		return "unreadable error body"
	}

	var parsed struct {
		Error struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Status != "" {
		return parsed.Error.Status
	}
	return strings.TrimSpace(string(raw))
}

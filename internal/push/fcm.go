package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/noah-isme/gtcollab-api/internal/models"
)

// FCMTransport sends through the Firebase Cloud Messaging HTTP endpoint.
type FCMTransport struct {
	endpoint  string
	serverKey string
	http      *http.Client
}

// NewFCMTransport constructs the transport.
func NewFCMTransport(endpoint, serverKey string, timeout time.Duration) *FCMTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FCMTransport{
		endpoint:  endpoint,
		serverKey: serverKey,
		http:      &http.Client{Timeout: timeout},
	}
}

type fcmMessage struct {
	To           string            `json:"to"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		Error string `json:"error"`
	} `json:"results"`
}

// Send implements Transport.
func (t *FCMTransport) Send(ctx context.Context, device models.Device, title, message string, data models.NotificationData) error {
	payload, err := json.Marshal(fcmMessage{
		To:           device.RegistrationID,
		Notification: fcmNotification{Title: title, Body: message},
		Data:         data,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+t.serverKey)

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrDelivery, resp.StatusCode)
	}

	var result fcmResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrDelivery, err)
	}
	if result.Failure > 0 {
		reason := "unknown"
		if len(result.Results) > 0 && result.Results[0].Error != "" {
			reason = result.Results[0].Error
		}
		return fmt.Errorf("%w: %s", ErrDelivery, reason)
	}
	return nil
}

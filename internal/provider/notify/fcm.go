// Package notify delivers push notifications and text messages.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// FCM sends push notifications through the Firebase HTTP API.
type FCM struct {
	url       string
	serverKey string
	http      *http.Client
}

// NewFCM creates an FCM sender.
func NewFCM(url, serverKey string, timeout time.Duration) *FCM {
	return &FCM{url: url, serverKey: serverKey, http: &http.Client{Timeout: timeout}}
}

type fcmPayload struct {
	To           string            `json:"to"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// SendToDevice pushes to one device token and returns the message id.
func (f *FCM) SendToDevice(ctx context.Context, token, title, body string, data map[string]string) (string, error) {
	if token == "" {
		return "", errors.New("empty device token")
	}
	buf, err := json.Marshal(fcmPayload{
		To:           token,
		Notification: fcmNotification{Title: title, Body: body},
		Data:         data,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "key="+f.serverKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fcm HTTP %d", resp.StatusCode)
	}

	var out struct {
		Success int `json:"success"`
		Results []struct {
			MessageID string `json:"message_id"`
			Error     string `json:"error"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Success == 0 || len(out.Results) == 0 {
		reason := "unknown"
		if len(out.Results) > 0 && out.Results[0].Error != "" {
			reason = out.Results[0].Error
		}
		return "", fmt.Errorf("fcm rejected message: %s", reason)
	}
	return out.Results[0].MessageID, nil
}

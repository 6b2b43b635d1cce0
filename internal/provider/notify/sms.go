package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SMS sends text messages through a Twilio-compatible REST API.
type SMS struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	http       *http.Client
}

// NewSMS creates an SMS sender.
func NewSMS(baseURL, accountSID, authToken, from string, timeout time.Duration) *SMS {
	return &SMS{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		http:       &http.Client{Timeout: timeout},
	}
}

// Send delivers text to phone. The bool is true when the API accepted it.
func (s *SMS) Send(ctx context.Context, phone, text string) (bool, error) {
	form := url.Values{}
	form.Set("To", phone)
	form.Set("From", s.from)
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("sms HTTP %d", resp.StatusCode)
	}
	return true, nil
}

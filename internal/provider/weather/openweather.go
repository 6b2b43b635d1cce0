// Package weather reads current conditions from an OpenWeather-style API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ridehail/internal/domain"
)

// Client fetches current weather.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a weather client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: &http.Client{Timeout: timeout}}
}

// Condition returns the main condition at p ("Rain", "Clear", ...).
func (c *Client) Condition(ctx context.Context, p domain.Point) (string, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', 4, 64))
	q.Set("lon", strconv.FormatFloat(p.Lng, 'f', 4, 64))
	q.Set("appid", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/data/2.5/weather?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather HTTP %d", resp.StatusCode)
	}

	var out struct {
		Weather []struct {
			Main string `json:"main"`
		} `json:"weather"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Weather) == 0 {
		return "", fmt.Errorf("weather response has no conditions")
	}
	return out.Weather[0].Main, nil
}

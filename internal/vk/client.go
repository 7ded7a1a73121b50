package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/exambot/internal/model"
)

const (
	DefaultBaseURL    = "https://api.vk.com/method"
	DefaultAPIVersion = "5.131"
)

// APIError is an error object returned by the VK API.
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk api error %d: %s", e.Code, e.Message)
}

// Client sends messages on behalf of a community.
type Client struct {
	token      string
	baseURL    string
	version    string
	httpClient *http.Client
}

// NewClient creates a Client. An empty baseURL uses the public VK API.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		version:    DefaultAPIVersion,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers reply to the VK user behind userID.
func (c *Client) Send(ctx context.Context, userID string, reply model.Reply) error {
	peer, err := PeerID(userID)
	if err != nil {
		return err
	}
	form := url.Values{
		"access_token": {c.token},
		"v":            {c.version},
		"user_id":      {strconv.FormatInt(peer, 10)},
		"message":      {reply.Text},
		"random_id":    {strconv.FormatInt(rand.Int64N(1<<31-1)+1, 10)},
	}
	if reply.Menu != nil {
		kb, err := Keyboard(reply.Menu)
		if err != nil {
			return fmt.Errorf("render keyboard: %w", err)
		}
		form.Set("keyboard", kb)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages.send", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("messages.send: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("messages.send: status %d", resp.StatusCode)
	}

	var result struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if result.Error != nil {
		return result.Error
	}
	return nil
}

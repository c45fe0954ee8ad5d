// Package assistantclient talks to the assistant proxy routes. It plugs the
// proxy into a conversation.Machine as its gateway, transcript sink and id source.
package assistantclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"assistant-proxy-be/pkg/conversation"
	"assistant-proxy-be/pkg/upstream"
)

// BrowserSessionHeader must match the header the proxy scopes sessions by.
const BrowserSessionHeader = "X-Browser-Session"

// APIError is a non-2xx answer from the proxy.
type APIError struct {
	Status    int
	ErrorType string
	Message   string
	Body      []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("assistant proxy returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("assistant proxy returned %d: %s", e.Status, string(e.Body))
}

type envelope struct {
	Success   bool            `json:"success"`
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

type sessionData struct {
	UserId string `json:"user_id"`
	Token  string `json:"token"`
}

type interactData struct {
	Traces []upstream.Trace `json:"traces"`
}

// Client calls one proxy deployment on behalf of one browser session.
type Client struct {
	baseURL        string
	browserSession string
	HTTP           *http.Client

	mu     sync.Mutex
	userID string
	token  string
}

func New(baseURL, browserSession string) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		browserSession: browserSession,
		HTTP:           &http.Client{Timeout: 60 * time.Second},
	}
}

// GetOrCreateID resolves the correlation id of the browser session through the
// proxy. The result is cached; a failed lookup is retried on the next call.
func (c *Client) GetOrCreateID(ctx context.Context) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID != "" {
		return c.userID, true
	}
	if c.browserSession == "" {
		return "", false
	}

	var data sessionData
	if err := c.call(ctx, http.MethodPost, "/api/assistant/session", struct{}{}, "", &data); err != nil {
		return "", false
	}
	if data.UserId == "" {
		return "", false
	}
	c.userID = data.UserId
	c.token = data.Token
	return c.userID, true
}

func (c *Client) Launch(ctx context.Context, userID string) error {
	_, err := c.interact(ctx, map[string]interface{}{
		"user_id": userID,
		"action":  upstream.ActionLaunch,
	})
	return err
}

func (c *Client) SendMessage(ctx context.Context, userID, message string, services []string) ([]conversation.Step, error) {
	if services == nil {
		services = []string{}
	}
	traces, err := c.interact(ctx, map[string]interface{}{
		"user_id":           userID,
		"action":            upstream.ActionText,
		"message":           message,
		"selected_services": services,
	})
	if err != nil {
		return nil, err
	}
	return conversation.StepsFromTraces(traces), nil
}

func (c *Client) SaveTranscript(ctx context.Context, userID string) error {
	return c.call(ctx, http.MethodPost, "/api/assistant/transcript", map[string]string{"user_id": userID}, c.currentToken(), nil)
}

func (c *Client) interact(ctx context.Context, body map[string]interface{}) ([]upstream.Trace, error) {
	var data interactData
	if err := c.call(ctx, http.MethodPost, "/api/assistant/interact", body, c.currentToken(), &data); err != nil {
		return nil, err
	}
	return data.Traces, nil
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) call(ctx context.Context, method, path string, body interface{}, token string, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.browserSession != "" {
		req.Header.Set(BrowserSessionHeader, c.browserSession)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	var env envelope
	decodeErr := json.Unmarshal(resBody, &env)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &APIError{Status: res.StatusCode, Body: resBody}
		if decodeErr == nil {
			apiErr.ErrorType = env.ErrorType
			apiErr.Message = env.Message
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode proxy response: %w", decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

var (
	_ conversation.Gateway        = (*Client)(nil)
	_ conversation.TranscriptSink = (*Client)(nil)
	_ conversation.IDSource       = (*Client)(nil)
)

package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultRuntimeURL    = "https://general-runtime.voiceflow.com"
	DefaultTranscriptURL = "https://api.voiceflow.com/v2/transcripts"
	DefaultVersionID     = "production"
)

// ServicesDelimiter separates the visitor's text from the machine-readable
// selected services suffix inside a text action payload.
const ServicesDelimiter = "\n\n---\nselected_services: "

// Options configures a Client. Credentials stay on the server.
type Options struct {
	RuntimeURL       string
	TranscriptURL    string
	APIKey           string
	TranscriptAPIKey string
	ProjectID        string
	VersionID        string
	Timeout          time.Duration
}

// Client talks to the dialog runtime and the transcript API.
type Client struct {
	runtimeURL       string
	transcriptURL    string
	apiKey           string
	transcriptAPIKey string
	projectID        string
	versionID        string
	HTTP             *http.Client
}

func NewClient(opts Options) *Client {
	runtimeURL := strings.TrimRight(opts.RuntimeURL, "/")
	if runtimeURL == "" {
		runtimeURL = DefaultRuntimeURL
	}
	transcriptURL := opts.TranscriptURL
	if transcriptURL == "" {
		transcriptURL = DefaultTranscriptURL
	}
	versionID := opts.VersionID
	if versionID == "" {
		versionID = DefaultVersionID
	}
	transcriptKey := opts.TranscriptAPIKey
	if transcriptKey == "" {
		transcriptKey = opts.APIKey
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		runtimeURL:       runtimeURL,
		transcriptURL:    transcriptURL,
		apiKey:           opts.APIKey,
		transcriptAPIKey: transcriptKey,
		projectID:        opts.ProjectID,
		versionID:        versionID,
		HTTP: &http.Client{
			Timeout: timeout,
		},
	}
}

// InteractConfigured reports whether Launch/SendText can be called.
func (c *Client) InteractConfigured() bool {
	return c.apiKey != ""
}

// TranscriptConfigured reports whether SaveTranscript can be called.
func (c *Client) TranscriptConfigured() bool {
	return c.transcriptAPIKey != "" && c.projectID != ""
}

// VersionID is the runtime channel every call targets.
func (c *Client) VersionID() string {
	return c.versionID
}

// Launch sends the "start conversation" action for userID.
func (c *Client) Launch(ctx context.Context, userID string) ([]Trace, error) {
	return c.interact(ctx, userID, interactAction{Type: ActionLaunch})
}

// SendText forwards one already composed text payload for userID.
func (c *Client) SendText(ctx context.Context, userID, payload string) ([]Trace, error) {
	return c.interact(ctx, userID, interactAction{Type: ActionText, Payload: payload})
}

func (c *Client) interact(ctx context.Context, userID string, action interactAction) ([]Trace, error) {
	if !c.InteractConfigured() {
		return nil, &ConfigError{Missing: []string{"api key"}}
	}

	body, err := json.Marshal(interactRequest{
		Action: action,
		Config: defaultInteractConfig(),
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/state/user/%s/interact", c.runtimeURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("versionID", c.versionID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resBody, err := c.do(req)
	if err != nil {
		return nil, err
	}

	traces := make([]Trace, 0)
	if len(bytes.TrimSpace(resBody)) == 0 {
		return traces, nil
	}
	if err := json.Unmarshal(resBody, &traces); err != nil {
		return nil, fmt.Errorf("decode interact response: %w", err)
	}
	return traces, nil
}

// SaveTranscript asks the transcript API to persist the conversation of sessionID.
func (c *Client) SaveTranscript(ctx context.Context, sessionID string) error {
	var missing []string
	if c.transcriptAPIKey == "" {
		missing = append(missing, "transcript api key")
	}
	if c.projectID == "" {
		missing = append(missing, "project id")
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}

	body, err := json.Marshal(transcriptRequest{
		ProjectID: c.projectID,
		VersionID: c.versionID,
		SessionID: sessionID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.transcriptURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.transcriptAPIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	_, err = c.do(req)
	return err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &RejectionError{
			Status:      res.StatusCode,
			Body:        resBody,
			ContentType: res.Header.Get("Content-Type"),
		}
	}
	return resBody, nil
}

// ComposeMessage joins the visitor's text and the selected services into the
// single payload string the runtime receives.
func ComposeMessage(text string, services []string) string {
	if services == nil {
		services = []string{}
	}
	encoded, err := json.Marshal(services)
	if err != nil {
		encoded = []byte("[]")
	}
	return text + ServicesDelimiter + string(encoded)
}

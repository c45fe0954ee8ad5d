package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientLaunch(t *testing.T) {
	var gotPath, gotAuth, gotVersion string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("versionID")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"type":"text","payload":{"message":"Hi there"}},{"type":"visual","payload":{"image":"https://img/x.png"}}]`))
	}))
	defer srv.Close()

	client := NewClient(Options{RuntimeURL: srv.URL, APIKey: "VF.secret"})
	traces, err := client.Launch(context.Background(), "abc-123")
	require.NoError(t, err)

	assert.Equal(t, "/state/user/abc-123/interact", gotPath)
	assert.Equal(t, "VF.secret", gotAuth)
	assert.Equal(t, DefaultVersionID, gotVersion)

	action := gotBody["action"].(map[string]interface{})
	assert.Equal(t, ActionLaunch, action["type"])
	config := gotBody["config"].(map[string]interface{})
	assert.Equal(t, false, config["tts"])
	assert.Equal(t, true, config["stripSSML"])
	assert.ElementsMatch(t, []interface{}{"block", "debug", "flow"}, config["excludeTypes"])

	require.Len(t, traces, 2)
	msg, ok := traces[0].Message()
	assert.True(t, ok)
	assert.Equal(t, "Hi there", msg)
	img, ok := traces[1].Image()
	assert.True(t, ok)
	assert.Equal(t, "https://img/x.png", img)
}

func TestClientSendTextPayload(t *testing.T) {
	var gotAction map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Action map[string]interface{} `json:"action"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotAction = body.Action
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewClient(Options{RuntimeURL: srv.URL, APIKey: "key", VersionID: "staging"})
	payload := ComposeMessage("hello", []string{"seo", "ads"})
	traces, err := client.SendText(context.Background(), "u1", payload)
	require.NoError(t, err)
	assert.Empty(t, traces)
	assert.Equal(t, ActionText, gotAction["type"])
	assert.Equal(t, payload, gotAction["payload"])
}

func TestClientMissingCredential(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewClient(Options{RuntimeURL: srv.URL})
	_, err := client.Launch(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConfigured))

	err = client.SaveTranscript(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConfigured))
	assert.False(t, called)
}

func TestClientRejectionKeepsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid key"}`))
	}))
	defer srv.Close()

	client := NewClient(Options{RuntimeURL: srv.URL, APIKey: "bad"})
	_, err := client.SendText(context.Background(), "u1", "hi")
	require.Error(t, err)

	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, rej.Status)
	assert.Equal(t, `{"message":"invalid key"}`, string(rej.Body))
	assert.Equal(t, "application/json", rej.ContentType)
	assert.False(t, IsTransport(err))
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewClient(Options{RuntimeURL: url, APIKey: "key"})
	_, err := client.Launch(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	_, isRejection := AsRejection(err)
	assert.False(t, isRejection)
}

func TestClientSaveTranscript(t *testing.T) {
	var gotMethod, gotAuth string
	var gotBody transcriptRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(Options{
		TranscriptURL:    srv.URL,
		APIKey:           "runtime-key",
		TranscriptAPIKey: "transcript-key",
		ProjectID:        "proj-1",
	})
	require.NoError(t, client.SaveTranscript(context.Background(), "sess-9"))

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "transcript-key", gotAuth)
	assert.Equal(t, transcriptRequest{ProjectID: "proj-1", VersionID: DefaultVersionID, SessionID: "sess-9"}, gotBody)
}

func TestComposeMessage(t *testing.T) {
	payload := ComposeMessage("I need a website", []string{"web-design", "hosting"})
	assert.Equal(t, "I need a website"+ServicesDelimiter+`["web-design","hosting"]`, payload)

	assert.Equal(t, "hi"+ServicesDelimiter+"[]", ComposeMessage("hi", nil))
}

func TestTraceWithMessageKeepsOtherFields(t *testing.T) {
	tr := Trace{Type: TraceText, Payload: json.RawMessage(`{"message":"old","slate":{"id":"x"}}`)}
	out, err := tr.WithMessage("new")
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Payload, &fields))
	assert.Equal(t, "new", fields["message"])
	assert.Equal(t, map[string]interface{}{"id": "x"}, fields["slate"])
}

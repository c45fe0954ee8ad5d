package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"assistant-proxy-be/internal/dto"
	"assistant-proxy-be/internal/model"
	"assistant-proxy-be/internal/pkg/logger"
	"assistant-proxy-be/internal/pkg/serverutils"
	"assistant-proxy-be/internal/repository/memory"
	"assistant-proxy-be/pkg/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryTurnLogs struct {
	mu   sync.Mutex
	rows []model.AssistantTurnLog
}

func (r *memoryTurnLogs) Create(_ context.Context, entry *model.AssistantTurnLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *entry)
	return nil
}

func (r *memoryTurnLogs) FindByCorrelationId(_ context.Context, correlationId string, _ int) ([]model.AssistantTurnLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AssistantTurnLog
	for _, row := range r.rows {
		if row.CorrelationId == correlationId {
			out = append(out, row)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) add(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, name)
}

func (p *recordingPublisher) PublishConversationLaunched(context.Context, string, int) {
	p.add("launched")
}
func (p *recordingPublisher) PublishTurnCompleted(context.Context, string, []string, int, int64) {
	p.add("completed")
}
func (p *recordingPublisher) PublishTurnRejected(context.Context, string, string, int, bool) {
	p.add("rejected")
}
func (p *recordingPublisher) PublishDocumentReferenced(_ context.Context, _ string, documentId string) {
	p.add("document:" + documentId)
}
func (p *recordingPublisher) PublishTranscriptSaved(context.Context, string) {
	p.add("transcript_saved")
}
func (p *recordingPublisher) PublishTranscriptFailed(context.Context, string, int) {
	p.add("transcript_failed")
}
func (p *recordingPublisher) Enabled() bool { return true }

type captured struct {
	method string
	path   string
	body   map[string]interface{}
}

type captureLog struct {
	mu    sync.Mutex
	calls []captured
}

func (l *captureLog) all() []captured {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]captured(nil), l.calls...)
}

func newUpstream(t *testing.T, status int, response string) (*httptest.Server, *captureLog) {
	t.Helper()
	log := &captureLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)
		log.mu.Lock()
		log.calls = append(log.calls, captured{method: r.Method, path: r.URL.Path, body: body})
		log.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, log
}

func newTestService(srvURL, apiKey string, logs *memoryTurnLogs, pub *recordingPublisher) IAssistantService {
	client := upstream.NewClient(upstream.Options{
		RuntimeURL:    srvURL,
		TranscriptURL: srvURL + "/v2/transcripts",
		APIKey:        apiKey,
		ProjectID:     "project-1",
	})
	svc := &assistantService{upstream: client, logger: logger.NewNopLogger()}
	if logs != nil {
		svc.turnLogs = logs
	}
	if pub != nil {
		svc.publisher = pub
	}
	return svc
}

func TestInteractNormalizesDocumentReferences(t *testing.T) {
	srv, calls := newUpstream(t, http.StatusOK,
		`[{"type":"text","payload":{"message":"See [DOCUMENT:abc-123] for details","slate":{"id":"s1"}}},{"type":"visual","payload":{"image":"https://img/x.png"}},{"type":"path","payload":{"path":"choice:1"}}]`)
	logs := &memoryTurnLogs{}
	pub := &recordingPublisher{}
	svc := newTestService(srv.URL, "VF.DM.secret", logs, pub)

	res, err := svc.Interact(context.Background(), &dto.InteractRequest{
		UserId:           "user-1",
		Action:           upstream.ActionText,
		Message:          "hello",
		SelectedServices: []string{"Consulting"},
	})
	require.NoError(t, err)
	require.Len(t, res.Traces, 3)

	msg, ok := res.Traces[0].Message()
	require.True(t, ok)
	assert.Equal(t, "See <DOCUMENTID>abc-123</DOCUMENTID> for details", msg)
	assert.Contains(t, string(res.Traces[0].Payload), `"slate"`)
	assert.Equal(t, "path", res.Traces[2].Type)

	require.Len(t, calls.all(), 1)
	call := calls.all()[0]
	assert.Equal(t, "/state/user/user-1/interact", call.path)
	action := call.body["action"].(map[string]interface{})
	assert.Equal(t, "text", action["type"])
	assert.Equal(t, "hello\n\n---\nselected_services: [\"Consulting\"]", action["payload"])

	require.Len(t, logs.rows, 1)
	assert.Equal(t, OutcomeOK, logs.rows[0].Outcome)
	assert.Equal(t, 200, logs.rows[0].UpstreamStatus)
	assert.JSONEq(t, `["abc-123"]`, string(logs.rows[0].DocumentIds))
	assert.Equal(t, []string{"completed", "document:abc-123"}, pub.events)
}

func TestInteractLaunch(t *testing.T) {
	srv, calls := newUpstream(t, http.StatusOK, `[{"type":"text","payload":{"message":"Welcome"}}]`)
	pub := &recordingPublisher{}
	svc := newTestService(srv.URL, "key", nil, pub)

	res, err := svc.Interact(context.Background(), &dto.InteractRequest{UserId: "user-1", Action: upstream.ActionLaunch})
	require.NoError(t, err)
	assert.Len(t, res.Traces, 1)

	action := calls.all()[0].body["action"].(map[string]interface{})
	assert.Equal(t, "launch", action["type"])
	assert.Equal(t, []string{"launched"}, pub.events)
}

func TestInteractValidation(t *testing.T) {
	srv, calls := newUpstream(t, http.StatusOK, `[]`)
	svc := newTestService(srv.URL, "key", nil, nil)

	tests := []struct {
		name    string
		request dto.InteractRequest
	}{
		{"missing user id", dto.InteractRequest{Action: "text", Message: "hi"}},
		{"blank user id", dto.InteractRequest{UserId: "   ", Action: "text", Message: "hi"}},
		{"unknown action", dto.InteractRequest{UserId: "u", Action: "reset"}},
		{"empty message", dto.InteractRequest{UserId: "u", Action: "text"}},
		{"whitespace message", dto.InteractRequest{UserId: "u", Action: "text", Message: "  \n "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.request
			_, err := svc.Interact(context.Background(), &req)
			var verr *serverutils.ValidationError
			assert.True(t, errors.As(err, &verr), "got %v", err)
		})
	}
	assert.Empty(t, calls.all())
}

func TestInteractMissingCredential(t *testing.T) {
	srv, calls := newUpstream(t, http.StatusOK, `[]`)
	logs := &memoryTurnLogs{}
	svc := newTestService(srv.URL, "", logs, nil)

	_, err := svc.Interact(context.Background(), &dto.InteractRequest{UserId: "u", Action: "launch"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, upstream.ErrNotConfigured))
	assert.Empty(t, calls.all())
	require.Len(t, logs.rows, 1)
	assert.Equal(t, OutcomeNotConfigured, logs.rows[0].Outcome)
}

func TestInteractRejectionIsReturnedVerbatim(t *testing.T) {
	srv, _ := newUpstream(t, http.StatusUnauthorized, `{"message":"bad key"}`)
	logs := &memoryTurnLogs{}
	pub := &recordingPublisher{}
	svc := newTestService(srv.URL, "key", logs, pub)

	_, err := svc.Interact(context.Background(), &dto.InteractRequest{UserId: "u", Action: "text", Message: "hi"})
	rej, ok := upstream.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, rej.Status)
	assert.Equal(t, `{"message":"bad key"}`, string(rej.Body))

	require.Len(t, logs.rows, 1)
	assert.Equal(t, OutcomeRejected, logs.rows[0].Outcome)
	assert.Equal(t, http.StatusUnauthorized, logs.rows[0].UpstreamStatus)
	assert.Equal(t, []string{"rejected"}, pub.events)
}

func TestInteractTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	svc := newTestService(url, "key", nil, nil)
	_, err := svc.Interact(context.Background(), &dto.InteractRequest{UserId: "u", Action: "launch"})
	assert.True(t, upstream.IsTransport(err))
}

func TestSaveTranscript(t *testing.T) {
	srv, calls := newUpstream(t, http.StatusOK, `{}`)
	pub := &recordingPublisher{}
	svc := newTestService(srv.URL, "key", nil, pub)

	res, err := svc.SaveTranscript(context.Background(), &dto.SaveTranscriptRequest{UserId: "user-9"})
	require.NoError(t, err)
	assert.True(t, res.Saved)

	require.Len(t, calls.all(), 1)
	assert.Equal(t, http.MethodPut, calls.all()[0].method)
	assert.Equal(t, "/v2/transcripts", calls.all()[0].path)
	assert.Equal(t, "user-9", calls.all()[0].body["sessionID"])
	assert.Equal(t, "project-1", calls.all()[0].body["projectID"])
	assert.Equal(t, []string{"transcript_saved"}, pub.events)
}

func TestSaveTranscriptRequiresUserID(t *testing.T) {
	srv, calls := newUpstream(t, http.StatusOK, `{}`)
	svc := newTestService(srv.URL, "key", nil, nil)

	_, err := svc.SaveTranscript(context.Background(), &dto.SaveTranscriptRequest{})
	var verr *serverutils.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Empty(t, calls.all())
}

func TestListTurns(t *testing.T) {
	srv, _ := newUpstream(t, http.StatusOK, `[]`)
	logs := &memoryTurnLogs{}
	svc := newTestService(srv.URL, "key", logs, nil)

	_, err := svc.Interact(context.Background(), &dto.InteractRequest{UserId: "u1", Action: "text", Message: "hi", SelectedServices: []string{"Audit"}})
	require.NoError(t, err)

	turns, err := svc.ListTurns(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, []string{"Audit"}, turns[0].SelectedServices)
	assert.Equal(t, []string{}, turns[0].DocumentIds)

	disabled := newTestService(srv.URL, "key", nil, nil)
	_, err = disabled.ListTurns(context.Background(), "u1", 10)
	assert.ErrorIs(t, err, ErrAuditDisabled)
}

func TestHealthNeverEchoesCredentials(t *testing.T) {
	svc := newTestService("http://127.0.0.1:1", "VF.DM.secret", nil, nil)
	health := svc.Health(context.Background())

	assert.True(t, health.InteractConfigured)
	assert.True(t, health.TranscriptConfigured)
	assert.Equal(t, "production", health.VersionId)
	assert.False(t, health.AuditEnabled)

	raw, err := json.Marshal(health)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "VF.DM.secret"))
}

func TestCreateSessionIsStablePerBrowserSession(t *testing.T) {
	repo := memory.NewSessionRepository(0)
	svc := NewSessionService(repo, "", 0, logger.NewNopLogger())

	first, err := svc.CreateSession(context.Background(), "browser-a")
	require.NoError(t, err)
	again, err := svc.CreateSession(context.Background(), "browser-a")
	require.NoError(t, err)
	other, err := svc.CreateSession(context.Background(), "browser-b")
	require.NoError(t, err)

	assert.NotEmpty(t, first.UserId)
	assert.Equal(t, first.UserId, again.UserId)
	assert.NotEqual(t, first.UserId, other.UserId)
	assert.Empty(t, first.Token)
}

func TestCreateSessionIssuesToken(t *testing.T) {
	svc := NewSessionService(memory.NewSessionRepository(0), "secret", 0, logger.NewNopLogger())

	res, err := svc.CreateSession(context.Background(), "browser-a")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	require.NotNil(t, res.ExpiresAt)

	_, err = svc.CreateSession(context.Background(), "")
	var verr *serverutils.ValidationError
	assert.True(t, errors.As(err, &verr))
}

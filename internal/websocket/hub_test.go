package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"assistant-proxy-be/internal/pkg/logger"
	"assistant-proxy-be/pkg/conversation"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnClosed = errors.New("connection closed")

// fakeConn feeds scripted frames to the read pump and records written frames.
type fakeConn struct {
	inbound  chan []byte
	outbound chan []byte
	done     chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan []byte, 16),
		outbound: make(chan []byte, 256),
		done:     make(chan struct{}),
	}
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-c.inbound:
		return websocket.TextMessage, msg, nil
	case <-c.done:
		return 0, nil, errConnClosed
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return nil
	}
	select {
	case c.outbound <- append([]byte(nil), data...):
	default:
	}
	return nil
}

func (c *fakeConn) send(t *testing.T, v interface{}) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	c.inbound <- raw
}

type outbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// waitFor reads frames until match returns true.
func (c *fakeConn) waitFor(t *testing.T, match func(outbound) bool) outbound {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case raw := <-c.outbound:
			var msg outbound
			require.NoError(t, json.Unmarshal(raw, &msg))
			if match(msg) {
				return msg
			}
		case <-timeout:
			t.Fatal("timed out waiting for frame")
			return outbound{}
		}
	}
}

func snapshotOf(t *testing.T, msg outbound) conversation.Snapshot {
	t.Helper()
	var snap conversation.Snapshot
	require.NoError(t, json.Unmarshal(msg.Data, &snap))
	return snap
}

type stubGateway struct {
	mu    sync.Mutex
	calls []string
}

func (g *stubGateway) Launch(context.Context, string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "launch")
	return nil
}

func (g *stubGateway) SendMessage(_ context.Context, _ string, message string, _ []string) ([]conversation.Step, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "text:"+message)
	return []conversation.Step{{Kind: conversation.StepText, Message: "echo " + message}}, nil
}

type staticIDs string

func (s staticIDs) GetOrCreateID(context.Context) (string, bool) { return string(s), s != "" }

type savedTranscripts struct {
	mu  sync.Mutex
	ids []string
}

func (s *savedTranscripts) SaveTranscript(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, userID)
}

func (s *savedTranscripts) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

func serve(hub *Hub, conn *fakeConn, userID string, gw conversation.Gateway, saver conversation.TranscriptSaver) chan struct{} {
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ServeWs(hub, conn, userID, func(client *Client) *conversation.Machine {
			return conversation.NewMachine(gw, staticIDs(userID),
				conversation.WithTranscriptSaver(saver),
				conversation.WithObserver(client.PushSnapshot),
			)
		})
	}()
	return finished
}

func TestWidgetTurnOverWebsocket(t *testing.T) {
	hub := NewHub(nil, logger.NewNopLogger())
	conn := newFakeConn()
	gw := &stubGateway{}
	saver := &savedTranscripts{}
	finished := serve(hub, conn, "user-1", gw, saver)

	initial := conn.waitFor(t, func(m outbound) bool { return m.Type == MessageConversation })
	assert.Equal(t, conversation.StateIdle, snapshotOf(t, initial).State)

	conn.send(t, map[string]string{"type": MessageSelectService, "service": "Consulting"})
	conn.send(t, map[string]string{"type": MessageInput, "text": "hello"})
	conn.send(t, map[string]string{"type": MessageSubmit})

	settled := conn.waitFor(t, func(m outbound) bool {
		return m.Type == MessageConversation && snapshotOf(t, m).State == conversation.StateSettled
	})
	snap := snapshotOf(t, settled)
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "hello", snap.Entries[0].Text)
	assert.Equal(t, "echo hello", snap.Entries[1].Text)
	assert.Empty(t, snap.SelectedServices)
	assert.Equal(t, 1, hub.Count("user-1"))

	conn.Close()
	<-finished
	assert.Equal(t, 0, hub.Count("user-1"))
	// one save after the turn, one on close
	require.Eventually(t, func() bool { return len(saver.all()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"user-1", "user-1"}, saver.all())
}

func TestWidgetWithoutSessionStaysInert(t *testing.T) {
	hub := NewHub(nil, logger.NewNopLogger())
	conn := newFakeConn()
	gw := &stubGateway{}
	finished := serve(hub, conn, "", gw, &savedTranscripts{})

	conn.waitFor(t, func(m outbound) bool { return m.Type == MessageConversation })
	conn.send(t, map[string]string{"type": MessageInput, "text": "hello"})
	conn.send(t, map[string]string{"type": MessageSubmit})

	// input frame arrives; no turn starts
	msg := conn.waitFor(t, func(m outbound) bool {
		return m.Type == MessageConversation && snapshotOf(t, m).Input == "hello"
	})
	assert.Empty(t, snapshotOf(t, msg).Entries)

	conn.Close()
	<-finished
	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Empty(t, gw.calls)
}

func TestSendToReachesEverySessionTab(t *testing.T) {
	hub := NewHub(nil, logger.NewNopLogger())
	tabA, tabB, other := newFakeConn(), newFakeConn(), newFakeConn()
	gw := &stubGateway{}
	doneA := serve(hub, tabA, "user-1", gw, &savedTranscripts{})
	doneB := serve(hub, tabB, "user-1", gw, &savedTranscripts{})
	doneO := serve(hub, other, "user-2", gw, &savedTranscripts{})

	for _, c := range []*fakeConn{tabA, tabB, other} {
		c.waitFor(t, func(m outbound) bool { return m.Type == MessageConversation })
	}
	require.Eventually(t, func() bool { return hub.Count("user-1") == 2 }, time.Second, 10*time.Millisecond)

	hub.SendTo("user-1", MessageTranscriptSaved, map[string]string{"user_id": "user-1"})

	tabA.waitFor(t, func(m outbound) bool { return m.Type == MessageTranscriptSaved })
	tabB.waitFor(t, func(m outbound) bool { return m.Type == MessageTranscriptSaved })
	select {
	case raw := <-other.outbound:
		var msg outbound
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.NotEqual(t, MessageTranscriptSaved, msg.Type)
	case <-time.After(100 * time.Millisecond):
	}

	for _, c := range []*fakeConn{tabA, tabB, other} {
		c.Close()
	}
	<-doneA
	<-doneB
	<-doneO
}

func TestDeliverAfterUnregisterIsDropped(t *testing.T) {
	hub := NewHub(nil, logger.NewNopLogger())
	client := NewClient(hub, newFakeConn(), "user-1")
	hub.Register(client)
	hub.Unregister(client)

	assert.NotPanics(t, func() {
		hub.Deliver(client, []byte(`{}`))
		hub.Unregister(client)
	})
}

package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"assistant-proxy-be/pkg/conversation"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

// Inbound message types sent by the widget.
const (
	MessageInput          = "input"
	MessageSubmit         = "submit"
	MessageSelectService  = "select_service"
	MessageSaveTranscript = "save_transcript"
)

// Outbound message types.
const (
	MessageConversation    = "conversation"
	MessageTranscriptSaved = "transcript_saved"
)

type inboundMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Service string `json:"service"`
}

// Conn is the part of a websocket connection the pumps use.
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one widget connection. It owns the conversation machine of that
// widget instance.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn Conn

	// CorrelationID of the browser session, empty while no id is available.
	CorrelationID string

	// Buffered channel of outbound messages.
	Send chan []byte

	Machine *conversation.Machine

	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(hub *Hub, conn Conn, correlationID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		Hub:           hub,
		Conn:          conn,
		CorrelationID: correlationID,
		Send:          make(chan []byte, 256),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// PushSnapshot is installed as the machine observer.
func (c *Client) PushSnapshot(snap conversation.Snapshot) {
	data, err := json.Marshal(map[string]interface{}{
		"type": MessageConversation,
		"data": snap,
	})
	if err != nil {
		return
	}
	c.Hub.Deliver(c, data)
}

// handle applies one inbound widget message to the machine.
func (c *Client) handle(raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.Hub.logger.Warn("Widget", "Malformed widget message", map[string]interface{}{"error": err.Error()})
		return
	}

	switch msg.Type {
	case MessageInput:
		c.Machine.SetInput(msg.Text)
	case MessageSelectService:
		c.Machine.SelectService(msg.Service)
	case MessageSubmit:
		// a turn outlives this read; Submit itself refuses overlapping turns
		go func() {
			err := c.Machine.Submit(c.ctx)
			if err != nil && !errors.Is(err, conversation.ErrTurnFailed) {
				c.Hub.logger.Debug("Widget", "Submit ignored", map[string]interface{}{
					"user_id": c.CorrelationID,
					"reason":  err.Error(),
				})
			}
		}()
	case MessageSaveTranscript:
		if c.CorrelationID != "" && c.Hub.transcripts != nil {
			c.Hub.transcripts.SaveTranscript(c.CorrelationID)
		}
	default:
		c.Hub.logger.Warn("Widget", "Unknown widget message type", map[string]interface{}{"type": msg.Type})
	}
}

// readPump pumps messages from the websocket connection to the machine.
func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.cancel()
		c.Machine.Close()
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Widget", "Unexpected close", map[string]interface{}{
					"user_id": c.CorrelationID,
					"error":   err.Error(),
				})
			}
			break
		}
		c.handle(raw)
	}
}

// writePump pumps messages from the hub to the websocket connection. Every
// message is its own frame so the widget can parse them independently.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Hub.logger.Debug("Widget", "Ping failed", map[string]interface{}{"user_id": c.CorrelationID})
				return
			}
		}
	}
}

package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"assistant-proxy-be/internal/pkg/logger"
	"assistant-proxy-be/pkg/conversation"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClusterChannel is the Redis channel widget notifications travel on between instances.
const ClusterChannel = "assistant_widget_events"

type clusterMessage struct {
	Origin       string          `json:"origin"`
	TargetUserID string          `json:"target_user_id"`
	Message      json.RawMessage `json:"message"`
}

type Hub struct {
	// Connected widgets by correlation id (one browser session may have several tabs).
	clients map[string][]*Client

	// Every registered client, including inert ones without a correlation id.
	members map[*Client]bool

	mu sync.RWMutex

	// Redis connection for cross-instance communication
	rdb *redis.Client

	// identifies this instance on the cluster channel
	instanceID string

	transcripts conversation.TranscriptSaver

	// Dedicated Logger
	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		clients:    make(map[string][]*Client),
		members:    make(map[*Client]bool),
		rdb:        rdb,
		instanceID: uuid.New().String(),
		logger:     log,
	}
}

// SetTranscriptSaver sets where explicit save requests from widgets go.
func (h *Hub) SetTranscriptSaver(saver conversation.TranscriptSaver) {
	h.transcripts = saver
}

// Run forwards notifications from other instances until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb == nil {
		<-ctx.Done()
		return
	}
	h.subscribeToRedis(ctx)
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.members[client] = true
	if client.CorrelationID != "" {
		h.clients[client.CorrelationID] = append(h.clients[client.CorrelationID], client)
	}
	h.mu.Unlock()
	h.logger.Info("Hub", "Widget connected", map[string]interface{}{"user_id": client.CorrelationID})
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.members[client] {
		return
	}
	delete(h.members, client)
	close(client.Send)

	if clients, ok := h.clients[client.CorrelationID]; ok {
		for i, c := range clients {
			if c == client {
				h.clients[client.CorrelationID] = append(clients[:i], clients[i+1:]...)
				break
			}
		}
		if len(h.clients[client.CorrelationID]) == 0 {
			delete(h.clients, client.CorrelationID)
		}
	}
	h.logger.Info("Hub", "Widget disconnected", map[string]interface{}{"user_id": client.CorrelationID})
}

// Deliver queues data for one client. Messages to departed clients are dropped.
func (h *Hub) Deliver(client *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.members[client] {
		return
	}
	select {
	case client.Send <- data:
	default:
		// snapshots carry the full state, the next one catches up
		h.logger.Warn("Hub", "Client Send buffer full, dropping message", map[string]interface{}{"user_id": client.CorrelationID})
	}
}

// SendTo notifies every widget of a correlation id, on this and other instances.
func (h *Hub) SendTo(userID, messageType string, payload interface{}) {
	data, err := json.Marshal(map[string]interface{}{
		"type": messageType,
		"data": payload,
	})
	if err != nil {
		return
	}

	h.deliverLocal(userID, data)

	if h.rdb != nil {
		jsonPayload, _ := json.Marshal(clusterMessage{
			Origin:       h.instanceID,
			TargetUserID: userID,
			Message:      data,
		})
		if err := h.rdb.Publish(context.Background(), ClusterChannel, jsonPayload).Err(); err != nil {
			h.logger.Warn("Hub", "Failed to publish widget notification", map[string]interface{}{"error": err.Error()})
		}
	}
}

// Count returns the number of widgets connected for userID on this instance.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) deliverLocal(userID string, data []byte) {
	h.mu.RLock()
	clients := append([]*Client(nil), h.clients[userID]...)
	h.mu.RUnlock()

	for _, client := range clients {
		h.Deliver(client, data)
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn("Hub", "Redis msg parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			if payload.Origin == h.instanceID || payload.TargetUserID == "" {
				continue
			}
			h.deliverLocal(payload.TargetUserID, payload.Message)
		}
	}
}

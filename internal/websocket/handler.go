package websocket

import (
	"assistant-proxy-be/pkg/conversation"
)

// MachineFactory builds the conversation machine of a new widget connection.
// The machine must push its snapshots through client.PushSnapshot.
type MachineFactory func(client *Client) *conversation.Machine

// ServeWs runs one widget connection until it closes.
func ServeWs(hub *Hub, c Conn, correlationID string, newMachine MachineFactory) {
	client := NewClient(hub, c, correlationID)
	client.Machine = newMachine(client)
	hub.Register(client)

	// initial state for the freshly opened widget
	client.PushSnapshot(client.Machine.Snapshot())

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	client.readPump() // Run readPump in current goroutine (handler)
}

// Package websocket streams summary events to subscribed clients.
package websocket

import "encoding/json"

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type    string          `json:"type"`
	Thread  string          `json:"thread,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// BroadcastMessage wraps a frame with its target thread.
// An empty Thread reaches every client.
type BroadcastMessage struct {
	Thread string
	Data   []byte
}

// Message types.
const (
	TypeSubscribe      = "subscribe"
	TypeUnsubscribe    = "unsubscribe"
	TypePing           = "ping"
	TypePong           = "pong"
	TypeSummary        = "summary"
	TypeConfigReloaded = "config_reloaded"
	TypeError          = "error"
)

// Package provider defines the chat completion backends used by summarizers
// and a process-wide registry of them.
package provider

import "context"

// Provider is a chat completion backend.
type Provider interface {
	// Name is the registry key, e.g. "ollama".
	Name() string

	// Models lists the model names the backend accepts.
	Models() []string

	// Chat sends a non-streaming request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Pinger is implemented by providers that can cheaply probe their backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

package summarizer

import (
	"fmt"

	"convwin/internal/conversation"
	"convwin/internal/provider"
)

// Resolver picks the provider that serves a thread.
type Resolver interface {
	Resolve(meta conversation.ThreadMetadata) (provider.Provider, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(meta conversation.ThreadMetadata) (provider.Provider, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(meta conversation.ThreadMetadata) (provider.Provider, error) {
	return f(meta)
}

// RegistryResolver looks providers up in the global provider registry:
// Local for threads flagged llmLocal, Remote otherwise.
type RegistryResolver struct {
	Local  string
	Remote string
}

// Resolve implements Resolver.
func (r RegistryResolver) Resolve(meta conversation.ThreadMetadata) (provider.Provider, error) {
	name := r.Remote
	if meta.LLMLocal {
		name = r.Local
	}
	if name == "" {
		return nil, ErrNoProvider
	}
	p, err := provider.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoProvider, err)
	}
	return p, nil
}

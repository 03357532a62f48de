package omnillm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Adapter translates the neutral message/embedding contract to and from one
// vendor's wire format. Implementations are stateless; per-call configuration
// travels in the Client.
type Adapter interface {
	// Chat sends the messages and returns the reply as content parts.
	Chat(ctx context.Context, client Client, messages []Message) ([]ContentPart, error)
	// Embed returns one vector per input, aligned by index. Providers
	// without an embedding API return an empty result and no error.
	Embed(ctx context.Context, client Client, inputs []string) ([][]float32, error)
}

var (
	ErrAdapterAlreadyRegistered = errors.New("adapter already registered")
)

// AdapterRegistry maps providers to adapters. The zero value is not usable;
// use NewAdapterRegistry.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[Provider]Adapter
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{
		adapters: make(map[Provider]Adapter),
	}
}

func (r *AdapterRegistry) Register(provider Provider, adapter Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := ParseProvider(string(provider)); err != nil {
		return err
	}
	if _, ok := r.adapters[provider]; ok {
		return fmt.Errorf("%w: %s", ErrAdapterAlreadyRegistered, provider)
	}
	r.adapters[provider] = adapter
	return nil
}

func (r *AdapterRegistry) Get(provider Provider) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("adapter for provider %s not registered", provider)
	}
	return adapter, nil
}

func (r *AdapterRegistry) Exists(provider Provider) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[provider]
	return ok
}

func (r *AdapterRegistry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	providers := make([]Provider, 0, len(r.adapters))
	for provider := range r.adapters {
		providers = append(providers, provider)
	}
	return providers
}

func (r *AdapterRegistry) Clone() *AdapterRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := NewAdapterRegistry()
	for provider, adapter := range r.adapters {
		clone.adapters[provider] = adapter
	}
	return clone
}

var globalAdapterRegistry = NewAdapterRegistry()

// RegisterAdapter registers into the process-wide registry. Provider
// packages call this from init().
func RegisterAdapter(provider Provider, adapter Adapter) error {
	return globalAdapterRegistry.Register(provider, adapter)
}

// ChatFunc is a chat call bound to one provider and client configuration.
// It captures no per-call state; concurrent calls are independent.
type ChatFunc func(ctx context.Context, messages []Message) ([]ContentPart, error)

// EmbedFunc is an embedding call bound to one provider and client
// configuration.
type EmbedFunc func(ctx context.Context, inputs []string) ([][]float32, error)

// GetLLMChat resolves the adapter for the client's provider once and returns
// a reusable chat function bound to it.
func GetLLMChat(client Client) (ChatFunc, error) {
	return globalAdapterRegistry.GetLLMChat(client)
}

// GetLLMEmbedding resolves the adapter for the client's provider once and
// returns a reusable embedding function bound to it.
func GetLLMEmbedding(client Client) (EmbedFunc, error) {
	return globalAdapterRegistry.GetLLMEmbedding(client)
}

func (r *AdapterRegistry) GetLLMChat(client Client) (ChatFunc, error) {
	if client.CallType != CallTypeChat {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrCallTypeMismatch, CallTypeChat, client.CallType)
	}
	adapter, err := r.Get(client.Provider)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, messages []Message) ([]ContentPart, error) {
		return adapter.Chat(ctx, client, messages)
	}, nil
}

func (r *AdapterRegistry) GetLLMEmbedding(client Client) (EmbedFunc, error) {
	if client.CallType != CallTypeEmbedding {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrCallTypeMismatch, CallTypeEmbedding, client.CallType)
	}
	adapter, err := r.Get(client.Provider)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, inputs []string) ([][]float32, error) {
		return adapter.Embed(ctx, client, inputs)
	}, nil
}

// ValidateMessages is the shared fail-fast check adapters run before
// translating: at least one message, and no message with an empty parts
// sequence.
func ValidateMessages(messages []Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: no messages", ErrEmptyMessageParts)
	}
	for i, msg := range messages {
		if len(msg.Parts) == 0 {
			return fmt.Errorf("%w: message[%d] (id %s)", ErrEmptyMessageParts, i, msg.ID)
		}
	}
	return nil
}

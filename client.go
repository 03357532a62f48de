package omnillm

import (
	"fmt"
	"log/slog"
)

// Provider identifies one of the supported vendor APIs.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// Conventional base endpoints. Nothing in the adapters hardcodes these; the
// caller always supplies the endpoint on the client.
const (
	DefaultOpenAIEndpoint    = "https://api.openai.com/v1"
	DefaultAnthropicEndpoint = "https://api.anthropic.com/v1"
	DefaultGeminiEndpoint    = "https://generativelanguage.googleapis.com/v1beta"
)

func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		return Provider(s), nil
	default:
		return "", fmt.Errorf("unknown provider: %q", s)
	}
}

// SupportsEmbedding reports whether the provider implements the embedding
// call family. Anthropic does not; its adapter returns an empty result
// rather than an error, and callers that need real vectors should branch on
// this before calling.
func (p Provider) SupportsEmbedding() bool {
	return p != ProviderAnthropic
}

// CallType selects the operation family a client is configured for.
type CallType string

const (
	CallTypeChat      CallType = "chat"
	CallTypeEmbedding CallType = "embedding"
)

// DefaultMaxTokens is applied when Client.MaxTokens is zero, for the vendors
// whose chat endpoint requires or accepts a max_tokens field.
const DefaultMaxTokens = 1024

// Client is an immutable connection configuration. It holds no network
// resources and may be copied freely; the zero value is not usable.
type Client struct {
	Provider  Provider
	APIKey    string
	Endpoint  string
	Model     string
	CallType  CallType
	MaxTokens int
}

func NewClient(provider Provider, apiKey, endpoint, model string, callType CallType) Client {
	return Client{
		Provider: provider,
		APIKey:   apiKey,
		Endpoint: endpoint,
		Model:    model,
		CallType: callType,
	}
}

// LogValue keeps the API key out of log output.
func (c Client) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("provider", string(c.Provider)),
		slog.String("endpoint", c.Endpoint),
		slog.String("model", c.Model),
		slog.String("call_type", string(c.CallType)),
	)
}

// MaxTokensOrDefault returns MaxTokens, or DefaultMaxTokens when unset.
func (c Client) MaxTokensOrDefault() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return DefaultMaxTokens
}

package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mashiike/omnillm"
	provider "github.com/mashiike/omnillm/provider/openai"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nomnillm-test-image")

func newChatClient(endpoint string) omnillm.Client {
	return omnillm.NewClient(omnillm.ProviderOpenAI, "test-key", endpoint, "gpt-4o-mini", omnillm.CallTypeChat)
}

func TestChat__TextOnly(t *testing.T) {
	var gotBody []byte
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"chatcmpl-1","choices":[{"message":{"role":"assistant","content":"Hello there"}}]}`)
	}))
	defer server.Close()

	adapter := provider.New()
	parts, err := adapter.Chat(context.Background(), newChatClient(server.URL), []omnillm.Message{
		omnillm.NewMessage("", "user", omnillm.TextPart("Hi")),
	})
	require.NoError(t, err)
	require.NotEmpty(t, parts)
	require.Equal(t, omnillm.TextPart("Hello there"), parts[0])

	require.Equal(t, "Bearer test-key", gotAuth)
	require.JSONEq(t, `{
		"model": "gpt-4o-mini",
		"messages": [{"role": "user", "content": "Hi"}],
		"max_tokens": 1024
	}`, string(gotBody))
}

// Multiple text segments in one message collapse to a single string joined
// with newlines; a mixed message switches to the block-array content form.
func TestChat__MultimodalRequest(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		io.WriteString(w, `{"id":"chatcmpl-2","choices":[{"message":{"role":"assistant","content":"looks like a png"}}]}`)
	}))
	defer server.Close()

	adapter := provider.New()
	_, err := adapter.Chat(context.Background(), newChatClient(server.URL), []omnillm.Message{
		omnillm.NewMessage("", "system", omnillm.TextPart("be brief"), omnillm.TextPart("be kind")),
		omnillm.NewMessage("", "user", omnillm.TextPart("what is this?"), omnillm.BinaryPart("image/png", pngBytes)),
	})
	require.NoError(t, err)

	var req struct {
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &req))
	require.Len(t, req.Messages, 2)

	var systemContent string
	require.NoError(t, json.Unmarshal(req.Messages[0].Content, &systemContent))
	require.Equal(t, "be brief\nbe kind", systemContent)

	var blocks []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		ImageURL *struct {
			URL string `json:"url"`
		} `json:"image_url"`
	}
	require.NoError(t, json.Unmarshal(req.Messages[1].Content, &blocks))
	require.Len(t, blocks, 2)
	require.Equal(t, "text", blocks[0].Type)
	require.Equal(t, "what is this?", blocks[0].Text)
	require.Equal(t, "image_url", blocks[1].Type)
	require.NotNil(t, blocks[1].ImageURL)
	require.Contains(t, blocks[1].ImageURL.URL, "data:image/png;base64,")
}

func TestChat__BlockArrayResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"chatcmpl-3","choices":[{"message":{"role":"assistant","content":[
			{"type":"output_text","text":"here you go"},
			{"type":"output_image","image_url":{"url":"data:image/png;base64,iVBORw0KGgo="}}
		]}}]}`)
	}))
	defer server.Close()

	adapter := provider.New()
	parts, err := adapter.Chat(context.Background(), newChatClient(server.URL), []omnillm.Message{
		omnillm.NewMessage("", "user", omnillm.TextPart("draw")),
	})
	require.NoError(t, err)
	require.Len(t, parts, 2)
	require.Equal(t, omnillm.TextPart("here you go"), parts[0])
	require.Equal(t, omnillm.PartTypeBinary, parts[1].Type)
	require.NotEmpty(t, parts[1].Data)
}

func TestChat__ProviderErrorNoRetry(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer server.Close()

	adapter := provider.New()
	_, err := adapter.Chat(context.Background(), newChatClient(server.URL), []omnillm.Message{
		omnillm.NewMessage("", "user", omnillm.TextPart("Hi")),
	})
	var providerErr *omnillm.ProviderError
	require.ErrorAs(t, err, &providerErr)
	require.Equal(t, http.StatusTooManyRequests, providerErr.StatusCode)
	require.Contains(t, providerErr.Body, "rate limited")
	require.Equal(t, 1, requests)
}

func TestChat__DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":`)
	}))
	defer server.Close()

	adapter := provider.New()
	_, err := adapter.Chat(context.Background(), newChatClient(server.URL), []omnillm.Message{
		omnillm.NewMessage("", "user", omnillm.TextPart("Hi")),
	})
	var decodeErr *omnillm.DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestChat__EmptyParts(t *testing.T) {
	adapter := provider.New()
	_, err := adapter.Chat(context.Background(), newChatClient("https://unused.example.com"), []omnillm.Message{
		omnillm.NewMessage("", "user"),
	})
	require.ErrorIs(t, err, omnillm.ErrEmptyMessageParts)
}

func TestEmbed(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":0,"embedding":[0.1,0.2]},
			{"object":"embedding","index":1,"embedding":[0.3,0.4]}
		],"usage":{"prompt_tokens":2,"total_tokens":2}}`)
	}))
	defer server.Close()

	adapter := provider.New()
	client := omnillm.NewClient(omnillm.ProviderOpenAI, "test-key", server.URL, "text-embedding-3-small", omnillm.CallTypeEmbedding)
	vectors, err := adapter.Embed(context.Background(), client, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vectors)

	var req struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &req))
	require.Equal(t, []string{"alpha", "beta"}, req.Input)
	require.Equal(t, "text-embedding-3-small", req.Model)
}

func TestEmbed__EmptyInput(t *testing.T) {
	adapter := provider.New()
	client := omnillm.NewClient(omnillm.ProviderOpenAI, "test-key", "https://unused.example.com", "text-embedding-3-small", omnillm.CallTypeEmbedding)
	vectors, err := adapter.Embed(context.Background(), client, nil)
	require.NoError(t, err)
	require.Empty(t, vectors)
}

func TestEmbed__ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	adapter := provider.New()
	client := omnillm.NewClient(omnillm.ProviderOpenAI, "bad-key", server.URL, "text-embedding-3-small", omnillm.CallTypeEmbedding)
	_, err := adapter.Embed(context.Background(), client, []string{"alpha"})
	var providerErr *omnillm.ProviderError
	require.ErrorAs(t, err, &providerErr)
	require.Equal(t, http.StatusUnauthorized, providerErr.StatusCode)
}

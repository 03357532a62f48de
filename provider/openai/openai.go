// Package openai implements the OpenAI-style chat completions and embeddings
// adapter.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mashiike/omnillm"
	"github.com/mashiike/omnillm/imageutil"
	openai "github.com/sashabaranov/go-openai"
)

func init() {
	// Register the adapter
	omnillm.RegisterAdapter(omnillm.ProviderOpenAI, New())
}

type Adapter struct {
	httpClient *http.Client
}

func New() *Adapter {
	return &Adapter{httpClient: http.DefaultClient}
}

func NewWithHTTPClient(client *http.Client) *Adapter {
	return &Adapter{httpClient: client}
}

// request wire types: chat completions with multimodal content blocks.

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role string `json:"role"`
	// Content is a plain string for text-only messages, a block array when
	// images are present.
	Content any `json:"content"`
}

type contentBlock struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *imageURLBlock `json:"image_url,omitempty"`
}

type imageURLBlock struct {
	URL string `json:"url"`
}

// response wire types.

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatChoiceMessage `json:"message"`
}

type chatChoiceMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type responseBlock struct {
	Type        string         `json:"type"`
	Text        string         `json:"text"`
	ImageURL    *imageURLBlock `json:"image_url"`
	ImageBase64 string         `json:"image_base64"`
}

func (a *Adapter) Chat(ctx context.Context, client omnillm.Client, messages []omnillm.Message) ([]omnillm.ContentPart, error) {
	if err := omnillm.ValidateMessages(messages); err != nil {
		return nil, err
	}
	reqBody := chatRequest{
		Model:     client.Model,
		Messages:  convertMessages(messages),
		MaxTokens: client.MaxTokensOrDefault(),
	}
	url := strings.TrimSuffix(client.Endpoint, "/") + "/chat/completions"
	slog.DebugContext(ctx, "openai chat completions", "client", client, "messages", len(messages))
	body, err := a.postJSON(ctx, client, url, reqBody)
	if err != nil {
		return nil, err
	}
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &omnillm.DecodeError{Provider: omnillm.ProviderOpenAI, Body: string(body), Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &omnillm.DecodeError{Provider: omnillm.ProviderOpenAI, Body: string(body), Err: errors.New("no choices returned")}
	}
	parts, err := convertChoice(resp.Choices[0])
	if err != nil {
		return nil, &omnillm.DecodeError{Provider: omnillm.ProviderOpenAI, Body: string(body), Err: err}
	}
	return parts, nil
}

func convertMessages(messages []omnillm.Message) []chatMessage {
	converted := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		converted = append(converted, convertMessage(msg))
	}
	return converted
}

func convertMessage(msg omnillm.Message) chatMessage {
	role := omnillm.CanonicalRole(msg.Role)
	blocks := make([]contentBlock, 0, len(msg.Parts))
	textSegments := make([]string, 0, len(msg.Parts))
	textOnly := true
	for _, part := range msg.Parts {
		switch part.Type {
		case omnillm.PartTypeText:
			textSegments = append(textSegments, part.Text)
			blocks = append(blocks, contentBlock{Type: "text", Text: part.Text})
		case omnillm.PartTypeBinary:
			textOnly = false
			blocks = append(blocks, contentBlock{
				Type: "image_url",
				ImageURL: &imageURLBlock{
					URL: dataURI(part),
				},
			})
		}
	}
	if textOnly {
		return chatMessage{Role: role, Content: strings.Join(textSegments, "\n")}
	}
	return chatMessage{Role: role, Content: blocks}
}

func dataURI(part omnillm.ContentPart) string {
	mimeType := part.MIMEType
	if mimeType == "" {
		mimeType = imageutil.DetectMIMEType(part.Data, "")
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, imageutil.EncodeBytesToBase64(part.Data))
}

func convertChoice(choice chatChoice) ([]omnillm.ContentPart, error) {
	if len(choice.Message.Content) == 0 || string(choice.Message.Content) == "null" {
		return []omnillm.ContentPart{omnillm.TextPart("")}, nil
	}
	var text string
	if err := json.Unmarshal(choice.Message.Content, &text); err == nil {
		return []omnillm.ContentPart{omnillm.TextPart(text)}, nil
	}
	var blocks []responseBlock
	if err := json.Unmarshal(choice.Message.Content, &blocks); err != nil {
		return nil, fmt.Errorf("content is neither string nor block list: %w", err)
	}
	parts := make([]omnillm.ContentPart, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case "text", "output_text":
			parts = append(parts, omnillm.TextPart(block.Text))
		case "image_url", "output_image", "input_image":
			part, ok := convertImageBlock(block)
			if !ok {
				continue
			}
			parts = append(parts, part)
		default:
			// Preserve unsupported content as text for visibility.
			fallback := block.Text
			if fallback == "" {
				fallback = fmt.Sprintf("unsupported openai content type: %s", block.Type)
			}
			parts = append(parts, omnillm.TextPart(fallback))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, omnillm.TextPart(""))
	}
	return parts, nil
}

func convertImageBlock(block responseBlock) (omnillm.ContentPart, bool) {
	b64 := block.ImageBase64
	if b64 == "" && block.ImageURL != nil {
		var ok bool
		b64, ok = extractDataURIBase64(block.ImageURL.URL)
		if !ok {
			// Hosted URL; surface it as text so the caller can fetch it.
			return omnillm.TextPart(block.ImageURL.URL), true
		}
	}
	if b64 == "" {
		return omnillm.ContentPart{}, false
	}
	bs, err := imageutil.DecodeBase64(b64)
	if err != nil {
		return omnillm.ContentPart{}, false
	}
	return omnillm.BinaryPart(imageutil.DetectMIMEType(bs, ""), bs), true
}

func extractDataURIBase64(url string) (string, bool) {
	if !strings.HasPrefix(url, "data:") {
		return "", false
	}
	_, b64, ok := strings.Cut(url, ",")
	return b64, ok
}

func (a *Adapter) postJSON(ctx context.Context, client omnillm.Client, url string, payload any) ([]byte, error) {
	bs, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+client.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &omnillm.ProviderError{
			Provider:   omnillm.ProviderOpenAI,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return body, nil
}

// Embed sends the whole input batch in one embeddings call through the
// go-openai client; the vendor guarantees response order matches input
// order.
func (a *Adapter) Embed(ctx context.Context, client omnillm.Client, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	cfg := openai.DefaultConfig(client.APIKey)
	cfg.BaseURL = strings.TrimSuffix(client.Endpoint, "/")
	cfg.HTTPClient = a.httpClient
	sdk := openai.NewClientWithConfig(cfg)
	resp, err := sdk.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.EmbeddingModel(client.Model),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &omnillm.ProviderError{
				Provider:   omnillm.ProviderOpenAI,
				StatusCode: apiErr.HTTPStatusCode,
				Body:       apiErr.Message,
			}
		}
		return nil, fmt.Errorf("openai embeddings request failed: %w", err)
	}
	vectors := make([][]float32, 0, len(resp.Data))
	for _, data := range resp.Data {
		vectors = append(vectors, data.Embedding)
	}
	return vectors, nil
}

// Package anthropic implements the Anthropic Messages API adapter.
//
// The Messages API has a single top-level system slot: every system-role
// message is folded into it, concatenated in original order with a newline.
// Anthropic has no embedding API; Embed returns an empty result by contract.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mashiike/omnillm"
	"github.com/mashiike/omnillm/imageutil"
)

const (
	apiVersion         = "2023-06-01"
	versionHeader      = "anthropic-version"
	apiKeyHeader       = "x-api-key"
	imageSourceTypeB64 = "base64"
)

func init() {
	// Register the adapter
	omnillm.RegisterAdapter(omnillm.ProviderAnthropic, New())
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

type messagesRequest struct {
	Model     string        `json:"model"`
	Messages  []turnMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
}

type turnMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	ID      string            `json:"id"`
	Role    string            `json:"role"`
	Content []json.RawMessage `json:"content"`
}

type responseBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text"`
	Source *imageSource `json:"source"`
}

func (a *Adapter) Chat(ctx context.Context, client omnillm.Client, messages []omnillm.Message) ([]omnillm.ContentPart, error) {
	if err := omnillm.ValidateMessages(messages); err != nil {
		return nil, err
	}
	turns, system := convertMessages(messages)
	reqBody := messagesRequest{
		Model:     client.Model,
		Messages:  turns,
		MaxTokens: client.MaxTokensOrDefault(),
		System:    system,
	}
	url := strings.TrimSuffix(client.Endpoint, "/") + "/messages"
	slog.DebugContext(ctx, "anthropic messages", "client", client, "turns", len(turns), "has_system", system != "")
	body, err := a.postJSON(ctx, client, url, reqBody)
	if err != nil {
		return nil, err
	}
	var resp messagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &omnillm.DecodeError{Provider: omnillm.ProviderAnthropic, Body: string(body), Err: err}
	}
	parts := convertResponseContent(resp.Content)
	if len(parts) == 0 {
		parts = append(parts, omnillm.TextPart(""))
	}
	return parts, nil
}

// convertMessages splits the neutral message list into alternating turns and
// the merged system string. System segments keep their original order and are
// joined with a newline.
func convertMessages(messages []omnillm.Message) ([]turnMessage, string) {
	turns := make([]turnMessage, 0, len(messages))
	systemSegments := make([]string, 0, len(messages))
	for _, msg := range messages {
		role := omnillm.CanonicalRole(msg.Role)
		if role == omnillm.RoleSystem {
			if text := textOfParts(msg.Parts); text != "" {
				systemSegments = append(systemSegments, text)
			}
			continue
		}
		turns = append(turns, turnMessage{
			Role:    role,
			Content: convertParts(msg.Parts),
		})
	}
	return turns, strings.Join(systemSegments, "\n")
}

func textOfParts(parts []omnillm.ContentPart) string {
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		if part.Type == omnillm.PartTypeText {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func convertParts(parts []omnillm.ContentPart) []contentBlock {
	blocks := make([]contentBlock, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case omnillm.PartTypeText:
			blocks = append(blocks, contentBlock{Type: "text", Text: part.Text})
		case omnillm.PartTypeBinary:
			mimeType := part.MIMEType
			if mimeType == "" {
				mimeType = imageutil.DetectMIMEType(part.Data, "")
			}
			blocks = append(blocks, contentBlock{
				Type: "image",
				Source: &imageSource{
					Type:      imageSourceTypeB64,
					MediaType: mimeType,
					Data:      imageutil.EncodeBytesToBase64(part.Data),
				},
			})
		}
	}
	return blocks
}

func convertResponseContent(content []json.RawMessage) []omnillm.ContentPart {
	parts := make([]omnillm.ContentPart, 0, len(content))
	for _, raw := range content {
		var block responseBlock
		if err := json.Unmarshal(raw, &block); err != nil {
			parts = append(parts, omnillm.TextPart(string(raw)))
			continue
		}
		switch block.Type {
		case "text":
			parts = append(parts, omnillm.TextPart(block.Text))
		case "image":
			if block.Source == nil || block.Source.Data == "" {
				continue
			}
			bs, err := imageutil.DecodeBase64(block.Source.Data)
			if err != nil {
				continue
			}
			mimeType := block.Source.MediaType
			if mimeType == "" {
				mimeType = imageutil.DetectMIMEType(bs, "")
			}
			parts = append(parts, omnillm.BinaryPart(mimeType, bs))
		default:
			// Preserve the raw block as text for visibility.
			parts = append(parts, omnillm.TextPart(string(raw)))
		}
	}
	return parts
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
	req.Header.Set(apiKeyHeader, client.APIKey)
	req.Header.Set(versionHeader, apiVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read anthropic response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &omnillm.ProviderError{
			Provider:   omnillm.ProviderAnthropic,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return body, nil
}

// Embed always returns an empty result: Anthropic has no embedding endpoint.
// This is a documented capability gap, not a failure; see
// Provider.SupportsEmbedding.
func (a *Adapter) Embed(ctx context.Context, client omnillm.Client, inputs []string) ([][]float32, error) {
	return [][]float32{}, nil
}

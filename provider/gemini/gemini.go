// Package gemini implements the Google Generative Language API adapter.
//
// Chat goes through {model}:generateContent. Embeddings pick their endpoint
// by input count: one input uses {model}:embedContent, two or more use
// {model}:batchEmbedContents; the return shape is the same either way.
package gemini

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
)

const apiKeyHeader = "x-goog-api-key"

func init() {
	// Register the adapter
	omnillm.RegisterAdapter(omnillm.ProviderGemini, New())
}

// RequestSink receives each serialized request payload before it is sent.
// It exists for callers that want to capture outgoing traffic for debugging;
// when unset the adapter performs no side I/O.
type RequestSink func(url string, body []byte)

type Adapter struct {
	httpClient  *http.Client
	requestSink RequestSink
}

func New() *Adapter {
	return &Adapter{httpClient: http.DefaultClient}
}

func NewWithHTTPClient(client *http.Client) *Adapter {
	return &Adapter{httpClient: client}
}

func (a *Adapter) SetRequestSink(sink RequestSink) {
	a.requestSink = sink
}

// request wire types.

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type embedContent struct {
	Model   string       `json:"model"`
	Content embedPayload `json:"content"`
}

type embedPayload struct {
	Parts []part `json:"parts"`
}

type batchEmbedRequest struct {
	Requests []embedContent `json:"requests"`
}

// Response is a decoded generateContent reply. It offers three independent
// projections over the same parsed data: Base64Images, ImageData and Text.
// Each is a pure read; calling them repeatedly or in any order yields the
// same results.
type Response struct {
	Candidates   []Candidate `json:"candidates"`
	ModelVersion string      `json:"modelVersion,omitempty"`
	ResponseID   string      `json:"responseId,omitempty"`
}

type Candidate struct {
	Content      CandidateContent `json:"content"`
	FinishReason string           `json:"finishReason,omitempty"`
	Index        int              `json:"index,omitempty"`
}

type CandidateContent struct {
	Parts []ResponsePart `json:"parts"`
	Role  string         `json:"role,omitempty"`
}

type ResponsePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

// Base64Images returns every inline image across all candidates, still
// base64 encoded, in response order.
func (r *Response) Base64Images() []string {
	images := make([]string, 0, 1)
	for _, candidate := range r.Candidates {
		for _, p := range candidate.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				images = append(images, p.InlineData.Data)
			}
		}
	}
	return images
}

// ImageData returns every inline image decoded to raw bytes, skipping
// entries that fail to decode.
func (r *Response) ImageData() [][]byte {
	images := make([][]byte, 0, 1)
	for _, candidate := range r.Candidates {
		for _, p := range candidate.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			bs, err := imageutil.DecodeBase64(p.InlineData.Data)
			if err != nil || len(bs) == 0 {
				continue
			}
			images = append(images, bs)
		}
	}
	return images
}

// Text concatenates the text parts of the first candidate.
func (r *Response) Text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func (a *Adapter) Chat(ctx context.Context, client omnillm.Client, messages []omnillm.Message) ([]omnillm.ContentPart, error) {
	if err := omnillm.ValidateMessages(messages); err != nil {
		return nil, err
	}
	resp, err := a.Generate(ctx, client, messages)
	if err != nil {
		return nil, err
	}
	parts := make([]omnillm.ContentPart, 0, 2)
	for _, candidate := range resp.Candidates {
		for _, p := range candidate.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			bs, err := imageutil.DecodeBase64(p.InlineData.Data)
			if err != nil || len(bs) == 0 {
				continue
			}
			mimeType := p.InlineData.MIMEType
			if mimeType == "" {
				mimeType = imageutil.DetectMIMEType(bs, "")
			}
			parts = append(parts, omnillm.BinaryPart(mimeType, bs))
		}
	}
	parts = append(parts, omnillm.TextPart(resp.Text()))
	return parts, nil
}

// Generate sends a generateContent request and returns the decoded response
// for callers that want the projection views instead of neutral parts.
func (a *Adapter) Generate(ctx context.Context, client omnillm.Client, messages []omnillm.Message) (*Response, error) {
	reqBody := generateRequest{
		Contents: convertMessages(messages),
	}
	url := fmt.Sprintf("%s/%s:generateContent", strings.TrimSuffix(client.Endpoint, "/"), client.Model)
	slog.DebugContext(ctx, "gemini generate content", "client", client, "contents", len(reqBody.Contents))
	body, err := a.postJSON(ctx, client, url, reqBody)
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &omnillm.DecodeError{Provider: omnillm.ProviderGemini, Body: string(body), Err: err}
	}
	if len(resp.Candidates) == 0 {
		return nil, &omnillm.DecodeError{Provider: omnillm.ProviderGemini, Body: string(body), Err: errors.New("no candidates returned")}
	}
	return &resp, nil
}

func convertMessages(messages []omnillm.Message) []content {
	contents := make([]content, 0, len(messages))
	for _, msg := range messages {
		contents = append(contents, content{
			Role:  roleName(msg.Role),
			Parts: ConvertParts(msg.Parts),
		})
	}
	return contents
}

// Gemini names the assistant role "model".
func roleName(role string) string {
	switch omnillm.CanonicalRole(role) {
	case omnillm.RoleAssistant:
		return "model"
	case omnillm.RoleSystem:
		return "system"
	default:
		return "user"
	}
}

// ConvertParts maps neutral content parts onto Gemini request parts: text
// stays text, binary payloads become inlineData with base64 data and MIME
// type.
func ConvertParts(parts []omnillm.ContentPart) []part {
	converted := make([]part, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case omnillm.PartTypeText:
			converted = append(converted, part{Text: p.Text})
		case omnillm.PartTypeBinary:
			mimeType := p.MIMEType
			if mimeType == "" {
				mimeType = imageutil.DetectMIMEType(p.Data, "")
			}
			converted = append(converted, part{
				InlineData: &inlineData{
					MIMEType: mimeType,
					Data:     imageutil.EncodeBytesToBase64(p.Data),
				},
			})
		}
	}
	return converted
}

// embedding response wire types.

type embedResponse struct {
	Embedding *embeddingValues `json:"embedding"`
}

type batchEmbedResponse struct {
	Embeddings []embeddingValues `json:"embeddings"`
}

type embeddingValues struct {
	Values []float32 `json:"values"`
}

// Embed routes a single input to :embedContent and two or more inputs to
// :batchEmbedContents. The split is invisible to the caller: either way one
// vector comes back per input, aligned by index.
func (a *Adapter) Embed(ctx context.Context, client omnillm.Client, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	endpoint := strings.TrimSuffix(client.Endpoint, "/")
	pathModel := strings.TrimPrefix(client.Model, "models/")
	requestModel := client.Model
	if !strings.HasPrefix(requestModel, "models/") {
		requestModel = "models/" + requestModel
	}
	if len(inputs) == 1 {
		url := fmt.Sprintf("%s/%s:embedContent", endpoint, pathModel)
		body, err := a.postJSON(ctx, client, url, newEmbedContent(requestModel, inputs[0]))
		if err != nil {
			return nil, err
		}
		var resp embedResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &omnillm.DecodeError{Provider: omnillm.ProviderGemini, Body: string(body), Err: err}
		}
		if resp.Embedding == nil {
			return nil, &omnillm.DecodeError{Provider: omnillm.ProviderGemini, Body: string(body), Err: errors.New("no embedding produced")}
		}
		return [][]float32{resp.Embedding.Values}, nil
	}
	url := fmt.Sprintf("%s/%s:batchEmbedContents", endpoint, pathModel)
	reqBody := batchEmbedRequest{
		Requests: make([]embedContent, 0, len(inputs)),
	}
	for _, input := range inputs {
		reqBody.Requests = append(reqBody.Requests, newEmbedContent(requestModel, input))
	}
	body, err := a.postJSON(ctx, client, url, reqBody)
	if err != nil {
		return nil, err
	}
	var resp batchEmbedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &omnillm.DecodeError{Provider: omnillm.ProviderGemini, Body: string(body), Err: err}
	}
	if resp.Embeddings == nil {
		return nil, &omnillm.DecodeError{Provider: omnillm.ProviderGemini, Body: string(body), Err: errors.New("no embeddings produced")}
	}
	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		vectors = append(vectors, e.Values)
	}
	return vectors, nil
}

func newEmbedContent(model, text string) embedContent {
	return embedContent{
		Model: model,
		Content: embedPayload{
			Parts: []part{{Text: text}},
		},
	}
}

func (a *Adapter) postJSON(ctx context.Context, client omnillm.Client, url string, payload any) ([]byte, error) {
	bs, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if a.requestSink != nil {
		a.requestSink(url, bs)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set(apiKeyHeader, client.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gemini response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &omnillm.ProviderError{
			Provider:   omnillm.ProviderGemini,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return body, nil
}

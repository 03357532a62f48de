package omnillm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Songmu/flextime"
	"github.com/mashiike/omnillm/imageutil"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

var (
	ErrInvalidMessageRole = errors.New("invalid message role")
	ErrEmptyMessageParts  = errors.New("message has no content parts")
)

const (
	PartTypeText   = "text"
	PartTypeBinary = "binary"
)

// ContentPart is one unit of message content: literal text or a binary
// payload (an image) with its MIME type.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

func TextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

func BinaryPart(mimeType string, data []byte) ContentPart {
	return ContentPart{Type: PartTypeBinary, MIMEType: mimeType, Data: data}
}

// ImagePart builds a binary part from an image source. The source is
// resolved in order: an http(s) URL is fetched, an existing filesystem path
// is read, anything else is treated as standard base64 text. When a string is
// both an existing path and valid base64, the filesystem wins. All three
// routes converge to decoded bytes plus a detected MIME type, so adapters
// never branch on where an image came from.
func ImagePart(source string) (ContentPart, error) {
	return ImagePartContext(context.Background(), source)
}

// ImagePartContext is ImagePart with a caller-supplied context governing the
// remote fetch.
func ImagePartContext(ctx context.Context, source string) (ContentPart, error) {
	switch {
	case imageutil.IsHTTPURL(source):
		bs, err := imageutil.Fetch(ctx, source)
		if err != nil {
			return ContentPart{}, fmt.Errorf("fetch image %s: %w", source, err)
		}
		return BinaryPart(imageutil.DetectMIMEType(bs, source), bs), nil
	case fileExists(source):
		bs, err := os.ReadFile(source)
		if err != nil {
			return ContentPart{}, fmt.Errorf("read image file %s: %w", source, err)
		}
		return BinaryPart(imageutil.DetectMIMEType(bs, source), bs), nil
	default:
		bs, err := imageutil.DecodeBase64(source)
		if err != nil {
			return ContentPart{}, fmt.Errorf("image source is neither url, file nor base64: %w", err)
		}
		return BinaryPart(imageutil.DetectMIMEType(bs, ""), bs), nil
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Message is the provider-neutral chat message: a free-form role and an
// ordered sequence of content parts. Messages are immutable once built;
// adapters only read them.
type Message struct {
	ID        string        `json:"id"`
	Role      string        `json:"role"`
	CreatedAt time.Time     `json:"created_at"`
	Parts     []ContentPart `json:"parts"`
}

// NewMessage builds a message. An empty id is replaced with one derived from
// the current time in unix milliseconds; uniqueness within a conversation
// turn is all that is promised.
func NewMessage(id string, role string, parts ...ContentPart) Message {
	now := flextime.Now()
	if id == "" {
		id = strconv.FormatInt(now.UnixMilli(), 10)
	}
	return Message{
		ID:        id,
		Role:      role,
		CreatedAt: now,
		Parts:     parts,
	}
}

// CanonicalRole maps the free-form role vocabularies the vendors use onto
// the three roles the adapters distinguish. Unknown roles default to user.
func CanonicalRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "user", "human":
		return RoleUser
	case "assistant", "model", "ai":
		return RoleAssistant
	case "system":
		return RoleSystem
	default:
		return RoleUser
	}
}

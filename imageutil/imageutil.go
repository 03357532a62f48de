// Package imageutil provides image payload helpers shared by the provider
// adapters: MIME detection, base64 encoding of local or remote images, and a
// one-shot save-to-directory helper.
package imageutil

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const defaultMIMEType = "application/octet-stream"

// DetectMIMEType sniffs the MIME type from the leading bytes of data and
// falls back to the extension of name. It never fails; when both signals are
// inconclusive it returns "application/octet-stream".
func DetectMIMEType(data []byte, name string) string {
	if len(data) > 0 {
		if mimeType := http.DetectContentType(data); mimeType != defaultMIMEType {
			return mimeType
		}
	}
	if ext := filepath.Ext(name); ext != "" {
		if mimeType := mime.TypeByExtension(ext); mimeType != "" {
			return mimeType
		}
	}
	return defaultMIMEType
}

// Fetch performs an HTTP GET and returns the full response body.
func Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get %s: unexpected status %s", url, resp.Status)
	}
	bs, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	return bs, nil
}

// IsHTTPURL reports whether source looks like an http(s) URL.
func IsHTTPURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// EncodeToBase64 reads an image from a local path or an http(s) URL and
// returns its standard base64 encoding together with the detected MIME type.
// The read is all-or-nothing; a failure returns no partial encoding.
func EncodeToBase64(ctx context.Context, source string) (string, string, error) {
	var bs []byte
	var err error
	if IsHTTPURL(source) {
		bs, err = Fetch(ctx, source)
		if err != nil {
			return "", "", fmt.Errorf("fetch image: %w", err)
		}
	} else {
		bs, err = os.ReadFile(source)
		if err != nil {
			return "", "", fmt.Errorf("read image file: %w", err)
		}
	}
	return base64.StdEncoding.EncodeToString(bs), DetectMIMEType(bs, source), nil
}

// EncodeBytesToBase64 returns the standard base64 encoding of bs.
func EncodeBytesToBase64(bs []byte) string {
	return base64.StdEncoding.EncodeToString(bs)
}

// DecodeBase64 decodes a standard base64 payload.
func DecodeBase64(s string) ([]byte, error) {
	bs, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return bs, nil
}

// SaveToDir writes images into dir as image_000.png, image_001.png, ... and
// returns the written paths. Numbering is scoped to this call; nothing is
// shared across calls.
func SaveToDir(images [][]byte, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", dir, err)
	}
	paths := make([]string, 0, len(images))
	for i, img := range images {
		path := filepath.Join(dir, fmt.Sprintf("image_%03d.png", i))
		if err := os.WriteFile(path, img, 0o644); err != nil {
			return nil, fmt.Errorf("write image file %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

package imageutil_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mashiike/omnillm/imageutil"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nomnillm-test-image")

func TestDetectMIMEType(t *testing.T) {
	cases := []struct {
		name     string
		data     []byte
		fileName string
		expected string
	}{
		{name: "png content", data: pngBytes, fileName: "", expected: "image/png"},
		{name: "extension fallback", data: []byte{0x00, 0x01, 0x02}, fileName: "photo.jpeg", expected: "image/jpeg"},
		{name: "no signal", data: []byte{0x00, 0x01, 0x02}, fileName: "", expected: "application/octet-stream"},
		{name: "empty", data: nil, fileName: "", expected: "application/octet-stream"},
		{name: "content wins over extension", data: pngBytes, fileName: "photo.jpeg", expected: "image/png"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.expected, imageutil.DetectMIMEType(c.data, c.fileName))
		})
	}
}

func TestEncodeToBase64__LocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.png")
	require.NoError(t, os.WriteFile(path, pngBytes, 0o644))

	b64, mimeType, err := imageutil.EncodeToBase64(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, "image/png", mimeType)

	decoded, err := imageutil.DecodeBase64(b64)
	require.NoError(t, err)
	require.Equal(t, pngBytes, decoded)
}

func TestEncodeToBase64__RemoteURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, err := w.Write(pngBytes)
		require.NoError(t, err)
	}))
	defer server.Close()

	b64, mimeType, err := imageutil.EncodeToBase64(context.Background(), server.URL+"/image.png")
	require.NoError(t, err)
	require.Equal(t, "image/png", mimeType)
	require.Equal(t, base64.StdEncoding.EncodeToString(pngBytes), b64)
}

func TestEncodeToBase64__Errors(t *testing.T) {
	_, _, err := imageutil.EncodeToBase64(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()
	_, _, err = imageutil.EncodeToBase64(context.Background(), server.URL+"/missing.png")
	require.Error(t, err)
}

func TestSaveToDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "output")
	images := [][]byte{pngBytes, []byte("second"), []byte("third")}

	paths, err := imageutil.SaveToDir(images, dir)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "image_000.png"),
		filepath.Join(dir, "image_001.png"),
		filepath.Join(dir, "image_002.png"),
	}, paths)
	for i, path := range paths {
		bs, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, images[i], bs)
	}
}

func TestIsHTTPURL(t *testing.T) {
	require.True(t, imageutil.IsHTTPURL("http://example.com/a.png"))
	require.True(t, imageutil.IsHTTPURL("https://example.com/a.png"))
	require.False(t, imageutil.IsHTTPURL("/tmp/a.png"))
	require.False(t, imageutil.IsHTTPURL("aGVsbG8="))
}

package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/italolelis/media_analyzer/internal/analysis"
)

func writeMediaFile(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("mp4 bytes"), 0644))

	return path
}

func generateResponse(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"parts": []map[string]any{{"text": text}},
			},
		}},
	}
}

func TestAnalyzeHappyPath(t *testing.T) {
	var uploadedMIME, uploadProtocol, generatePath string

	var generateBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/upload/v1beta/files"):
			uploadProtocol = r.Header.Get("X-Goog-Upload-Protocol")
			uploadedMIME = r.Header.Get("Content-Type")

			json.NewEncoder(w).Encode(map[string]any{
				"file": map[string]any{
					"name":  "files/abc",
					"uri":   "https://files.example/abc",
					"state": "ACTIVE",
				},
			})
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, ":generateContent"):
			generatePath = r.URL.Path
			json.NewDecoder(r.Body).Decode(&generateBody)
			json.NewEncoder(w).Encode(generateResponse("a dog running on grass"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient("test-key", srv.URL)

	text, err := client.Analyze(context.Background(), analysis.Request{
		FilePath: writeMediaFile(t),
		MIMEType: "video/mp4",
		Prompt:   "Describe this content",
		Model:    "gemini-2.5-flash",
	})
	require.NoError(t, err)
	require.Equal(t, "a dog running on grass", text)
	require.Equal(t, "raw", uploadProtocol)
	require.Equal(t, "video/mp4", uploadedMIME)
	require.Contains(t, generatePath, "gemini-2.5-flash")

	// The generate call carries the uploaded file reference plus the prompt.
	payload, err := json.Marshal(generateBody)
	require.NoError(t, err)
	require.Contains(t, string(payload), "https://files.example/abc")
	require.Contains(t, string(payload), "Describe this content")
}

func TestAnalyzePollsUntilActive(t *testing.T) {
	var polls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/upload/v1beta/files"):
			json.NewEncoder(w).Encode(map[string]any{
				"file": map[string]any{
					"name":  "files/abc",
					"uri":   "https://files.example/abc",
					"state": "PROCESSING",
				},
			})
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1beta/files/abc"):
			polls.Add(1)
			json.NewEncoder(w).Encode(map[string]any{
				"name":  "files/abc",
				"uri":   "https://files.example/abc",
				"state": "ACTIVE",
			})
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, ":generateContent"):
			json.NewEncoder(w).Encode(generateResponse("done"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient("test-key", srv.URL)

	text, err := client.Analyze(context.Background(), analysis.Request{
		FilePath: writeMediaFile(t),
		MIMEType: "video/mp4",
		Prompt:   "Describe this content",
		Model:    "gemini-2.5-flash",
	})
	require.NoError(t, err)
	require.Equal(t, "done", text)
	require.Equal(t, int32(1), polls.Load())
}

func TestAnalyzeFailedProcessing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"file": map[string]any{
				"name":  "files/abc",
				"uri":   "https://files.example/abc",
				"state": "FAILED",
			},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", srv.URL)

	_, err := client.Analyze(context.Background(), analysis.Request{
		FilePath: writeMediaFile(t),
		MIMEType: "video/mp4",
		Model:    "gemini-2.5-flash",
	})

	var bErr *analysis.BackendError
	require.ErrorAs(t, err, &bErr)
	require.Contains(t, err.Error(), "failed to process")
}

func TestAnalyzeUploadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "API key not valid"},
		})
	}))
	defer srv.Close()

	client := NewClient("bad-key", srv.URL)

	_, err := client.Analyze(context.Background(), analysis.Request{
		FilePath: writeMediaFile(t),
		MIMEType: "video/mp4",
		Model:    "gemini-2.5-flash",
	})

	var bErr *analysis.BackendError
	require.ErrorAs(t, err, &bErr)
	require.Contains(t, err.Error(), "API key not valid")
}

func TestAnalyzeMissingFile(t *testing.T) {
	client := NewClient("test-key", "http://unused.invalid")

	_, err := client.Analyze(context.Background(), analysis.Request{
		FilePath: filepath.Join(t.TempDir(), "nope.mp4"),
		MIMEType: "video/mp4",
		Model:    "gemini-2.5-flash",
	})
	require.ErrorIs(t, err, os.ErrNotExist)
}

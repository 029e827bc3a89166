// Package gemini implements the analysis backend against the Gemini API:
// file upload, processing-state polling, and content generation.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/italolelis/media_analyzer/internal/analysis"
	"github.com/italolelis/media_analyzer/internal/logctx"
)

const (
	defaultBaseURL  = "https://generativelanguage.googleapis.com"
	uploadTimeout   = 120 * time.Second
	requestTimeout  = 120 * time.Second
	pollInterval    = 2 * time.Second
	maxPollAttempts = 60
)

type Client struct {
	apiKey  string
	baseURL string
	hc      *http.Client
}

// NewClient creates a Gemini client. An empty baseURL uses the public API
// endpoint; tests point it at a fake server.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		hc:      &http.Client{Timeout: requestTimeout},
	}
}

type fileInfo struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	State    string `json:"state"`
	MIMEType string `json:"mimeType"`
}

type fileResponse struct {
	File fileInfo `json:"file"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze uploads the file, waits for the backend to finish processing it,
// and asks the model for a description.
func (c *Client) Analyze(ctx context.Context, req analysis.Request) (string, error) {
	logger := logctx.LoggerFromContext(ctx).With("model", req.Model)

	file, err := c.upload(ctx, req.FilePath, req.MIMEType)
	if err != nil {
		return "", err
	}

	logger.Debug("uploaded media file", "file", file.Name, "state", file.State)

	file, err = c.waitUntilActive(ctx, file)
	if err != nil {
		return "", err
	}

	return c.generate(ctx, file, req)
}

// upload pushes the raw bytes through the media upload endpoint.
func (c *Client) upload(ctx context.Context, filePath, mimeType string) (fileInfo, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return fileInfo{}, fmt.Errorf("failed to open media file: %w", err)
	}
	defer f.Close()

	url := fmt.Sprintf("%s/upload/v1beta/files?key=%s", c.baseURL, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, f)
	if err != nil {
		return fileInfo{}, fmt.Errorf("failed to build upload request: %w", err)
	}

	req.Header.Set("X-Goog-Upload-Protocol", "raw")
	req.Header.Set("Content-Type", mimeType)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fileInfo{}, &analysis.BackendError{Message: "upload failed: " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fileInfo{}, c.backendError(resp, "upload rejected")
	}

	var out fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fileInfo{}, &analysis.BackendError{Message: "malformed upload response", Err: err}
	}

	return out.File, nil
}

// waitUntilActive polls the file resource until the backend reports it ready.
// FAILED is terminal; so is exceeding the poll budget.
func (c *Client) waitUntilActive(ctx context.Context, file fileInfo) (fileInfo, error) {
	for attempt := 0; file.State == "PROCESSING" && attempt < maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fileInfo{}, ctx.Err()
		case <-time.After(pollInterval):
		}

		url := fmt.Sprintf("%s/v1beta/%s?key=%s", c.baseURL, file.Name, c.apiKey)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fileInfo{}, fmt.Errorf("failed to build poll request: %w", err)
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			return fileInfo{}, &analysis.BackendError{Message: "file state poll failed: " + err.Error(), Err: err}
		}

		err = json.NewDecoder(resp.Body).Decode(&file)
		resp.Body.Close()

		if err != nil {
			return fileInfo{}, &analysis.BackendError{Message: "malformed file state response", Err: err}
		}
	}

	switch file.State {
	case "ACTIVE", "":
		return file, nil
	case "FAILED":
		return fileInfo{}, &analysis.BackendError{Message: "backend failed to process the uploaded file"}
	default:
		return fileInfo{}, &analysis.BackendError{Message: "file did not become ready in time (state " + file.State + ")"}
	}
}

func (c *Client) generate(ctx context.Context, file fileInfo, areq analysis.Request) (string, error) {
	body := map[string]any{
		"contents": []map[string]any{{
			"parts": []map[string]any{
				{"file_data": map[string]string{
					"file_uri":  file.URI,
					"mime_type": areq.MIMEType,
				}},
				{"text": areq.Prompt},
			},
		}},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, areq.Model, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build generate request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", &analysis.BackendError{Message: "generate request failed: " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.backendError(resp, "generate rejected")
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &analysis.BackendError{Message: "malformed generate response", Err: err}
	}

	var sb strings.Builder

	for _, candidate := range out.Candidates {
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}

		break // only the first candidate is used
	}

	if sb.Len() == 0 {
		return "", &analysis.BackendError{Message: "backend returned no text"}
	}

	return sb.String(), nil
}

// backendError decodes the API's error envelope into a BackendError.
func (c *Client) backendError(resp *http.Response, fallback string) error {
	message := fmt.Sprintf("%s (HTTP %d)", fallback, resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil {
		var envelope apiError
		if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
			message = envelope.Error.Message
		}
	}

	return &analysis.BackendError{Message: message}
}

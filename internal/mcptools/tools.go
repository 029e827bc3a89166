// Package mcptools exposes the analysis pipeline as MCP tools, one per
// media class.
package mcptools

import (
	"context"
	"errors"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/italolelis/media_analyzer/internal/logctx"
	"github.com/italolelis/media_analyzer/internal/media"
	"github.com/italolelis/media_analyzer/internal/pipeline"
)

const (
	defaultPrompt = "Describe this content"
	defaultModel  = "gemini-2.5-flash"
)

// AnalyzeInput is the shared argument shape of the three analyze tools.
type AnalyzeInput struct {
	Filepath  string `json:"filepath,omitempty" jsonschema:"absolute path of a local media file"`
	URL       string `json:"url,omitempty" jsonschema:"public URL of the media to fetch"`
	Prompt    string `json:"prompt,omitempty" jsonschema:"instruction for the analysis model"`
	Modelname string `json:"modelname,omitempty" jsonschema:"model to run the analysis with"`
	SaveToDb  *bool  `json:"saveToDb,omitempty" jsonschema:"persist and reuse the analysis result"`
}

// ErrAmbiguousSource rejects calls that provide neither or both of
// filepath and url.
var ErrAmbiguousSource = errors.New("exactly one of filepath or url must be provided")

// BuildRequest validates the tool input and applies defaults.
func BuildRequest(in AnalyzeInput) (pipeline.Request, error) {
	if (in.Filepath == "") == (in.URL == "") {
		return pipeline.Request{}, ErrAmbiguousSource
	}

	req := pipeline.Request{
		FilePath: in.Filepath,
		URL:      in.URL,
		Prompt:   in.Prompt,
		Model:    in.Modelname,
		SaveToDB: true,
	}

	if req.Prompt == "" {
		req.Prompt = defaultPrompt
	}

	if req.Model == "" {
		req.Model = defaultModel
	}

	if in.SaveToDb != nil {
		req.SaveToDB = *in.SaveToDb
	}

	return req, nil
}

// Register adds the analyze tools to the server.
func Register(server *gomcp.Server, p *pipeline.Pipeline) {
	registerAnalyzeTool(server, p, "analyze_image", "Analyze an image from a local path or URL and describe its content.", media.ClassImage)
	registerAnalyzeTool(server, p, "analyze_video", "Analyze a video from a local path or URL and describe its content.", media.ClassVideo)
	registerAnalyzeTool(server, p, "analyze_audio", "Analyze an audio file from a local path or URL and describe its content.", media.ClassAudio)
}

func registerAnalyzeTool(server *gomcp.Server, p *pipeline.Pipeline, name, description string, class media.Class) {
	gomcp.AddTool(server, &gomcp.Tool{
		Name:        name,
		Description: description,
	}, func(ctx context.Context, _ *gomcp.CallToolRequest, in AnalyzeInput) (*gomcp.CallToolResult, any, error) {
		logger := logctx.LoggerFromContext(ctx).With("tool", name)

		req, err := BuildRequest(in)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}

		result, err := p.Acquire(ctx, class, req)
		if err != nil {
			logger.Warn("tool call failed", "err", err)

			return errorResult(err.Error()), nil, nil
		}

		return textResult(result.Text), nil, nil
	})
}

func textResult(text string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: text}},
	}
}

func errorResult(message string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: message}},
		IsError: true,
	}
}

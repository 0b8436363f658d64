package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kfreiman/feishuingest/internal/ingest"
	"github.com/kfreiman/feishuingest/internal/render"
)

// IngestDocumentTool handles the ingest_feishu_document tool
type IngestDocumentTool struct {
	ingestor ingest.Ingestor
	logger   *slog.Logger
}

// NewIngestDocumentTool creates a new ingest document tool
func NewIngestDocumentTool(ingestor ingest.Ingestor) *IngestDocumentTool {
	return &IngestDocumentTool{
		ingestor: ingestor,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithLogger sets a custom logger for the tool
func (t *IngestDocumentTool) WithLogger(logger *slog.Logger) *IngestDocumentTool {
	t.logger = logger
	return t
}

// Call implements the MCP tool interface
func (t *IngestDocumentTool) Call(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		URL string `json:"url"`
	}

	if err := json.Unmarshal(request.Params.Arguments, &args); err != nil {
		return nil, &ValidationError{
			Field:  "arguments",
			Reason: fmt.Sprintf("invalid JSON format: %v", err),
		}
	}

	args.URL = strings.TrimSpace(args.URL)
	if args.URL == "" {
		return toolError("Error: 'url' parameter is required"), &ValidationError{Field: "url", Reason: "required parameter missing"}
	}

	if t.ingestor == nil {
		return toolError("Error: " + errNoCredentials.Error()), errNoCredentials
	}

	result, err := t.ingestor.Ingest(ctx, args.URL)
	if err != nil {
		t.logger.WarnContext(ctx, "ingest tool failed",
			"error", err,
			"url", args.URL,
		)
		_, body := errorStatus(err)
		text := "Error: " + body.Error
		if body.Details != "" {
			text += "\n\n" + body.Details
		}
		return toolError(text), err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: result.Content},
			&mcp.TextContent{Text: statsSummary(result.Stats)},
		},
	}, nil
}

func toolError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// statsSummary renders the non-zero counters as one line
func statsSummary(stats render.Stats) string {
	counters := []struct {
		name  string
		value int
	}{
		{"text blocks", stats.TextBlocks},
		{"headings", stats.Headings},
		{"lists", stats.Lists},
		{"code blocks", stats.CodeBlocks},
		{"images", stats.Images},
		{"files", stats.Files},
		{"tables", stats.Tables},
		{"grids", stats.Grids},
		{"toggles", stats.Toggles},
		{"callouts", stats.Callouts},
		{"errors", stats.Errors},
		{"unknown", stats.Unknown},
	}

	var parts []string
	for _, c := range counters {
		if c.value > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", c.name, c.value))
		}
	}
	if len(parts) == 0 {
		return "Stats: empty document"
	}
	return "Stats: " + strings.Join(parts, ", ")
}

package server

import "github.com/modelcontextprotocol/go-sdk/mcp"

// ServerInstructions contains the MCP server instructions for clients
const ServerInstructions = `Feishu Ingest Server - document reader for Feishu/Lark share links

This server reads cloud documents from the Feishu/Lark open platform and returns them as normalized HTML.

## Transport

This server uses streamable HTTP transport only. Connect via:
- POST /mcp  - Streamable HTTP transport (recommended)

## Tools

### ingest_feishu_document
Read a document behind a share link.
Parameters:
- url: Share link of a docx, docs, doc or wiki document

Example: {"url": "https://example.feishu.cn/docx/AbCdEf123"}

Returns the document HTML followed by content statistics
(text blocks, headings, lists, code blocks, images, files, tables, errors).

Block-based (docx) documents are rendered block by block. Legacy documents are read through
their content endpoint or an export job and converted to the same HTML dialect.

## Environment Variables

- FEISHU_APP_ID / FEISHU_APP_SECRET: app credentials (required)
- FEISHU_BASE_URL: open platform API root
- PORT: HTTP server port (default: 8080)
- REDIS_URL: optional result cache
`

// ToolDefinitions contains the MCP tool definitions
var ToolDefinitions = map[string]*mcp.Tool{
	"ingest_feishu_document": {
		Name:        "ingest_feishu_document",
		Description: "Read a Feishu/Lark cloud document from its share link and return it as HTML with content statistics.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"url": map[string]interface{}{
					"type":        "string",
					"description": "Share link of the document, e.g. https://example.feishu.cn/docx/<token>",
				},
			},
			"required": []string{"url"},
		},
	},
}

package mcpclient

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// Tool describes one remote tool in a transport-neutral shape suitable for
// handing to LLM-provider conversion layers.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ContentItem is one element of a tool result: text, an image payload, or a
// resource reference.
type ContentItem struct {
	Type string `json:"type"`

	// Text is set when Type is "text".
	Text string `json:"text,omitempty"`

	// Data and MIMEType are set when Type is "image". Data is base64-encoded.
	Data     string `json:"data,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`

	// URI is set when Type is "resource".
	URI string `json:"uri,omitempty"`
}

// ToolResult is the normalized outcome of a tool invocation.
type ToolResult struct {
	Content           []ContentItem `json:"content"`
	IsError           bool          `json:"isError,omitempty"`
	StructuredContent any           `json:"structuredContent,omitempty"`
}

// ServerInfo carries the remote server's identity and declared capabilities
// from the protocol handshake.
type ServerInfo struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	ProtocolVersion string `json:"protocolVersion"`
	HasTools        bool   `json:"hasTools"`
	HasResources    bool   `json:"hasResources"`
	HasPrompts      bool   `json:"hasPrompts"`
}

func toolFromMCP(t mcp.Tool) (Tool, error) {
	schema := t.RawInputSchema
	if schema == nil {
		encoded, err := json.Marshal(t.InputSchema)
		if err != nil {
			return Tool{}, err
		}
		schema = encoded
	}
	return Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}, nil
}

func resultFromMCP(r *mcp.CallToolResult) *ToolResult {
	result := &ToolResult{
		IsError:           r.IsError,
		StructuredContent: r.StructuredContent,
		Content:           make([]ContentItem, 0, len(r.Content)),
	}

	for _, item := range r.Content {
		if text, ok := mcp.AsTextContent(item); ok {
			result.Content = append(result.Content, ContentItem{
				Type: "text",
				Text: text.Text,
			})
			continue
		}
		if image, ok := mcp.AsImageContent(item); ok {
			result.Content = append(result.Content, ContentItem{
				Type:     "image",
				Data:     image.Data,
				MIMEType: image.MIMEType,
			})
			continue
		}
		if resource, ok := mcp.AsEmbeddedResource(item); ok {
			uri := ""
			if text, ok := resource.Resource.(mcp.TextResourceContents); ok {
				uri = text.URI
			} else if blob, ok := resource.Resource.(mcp.BlobResourceContents); ok {
				uri = blob.URI
			}
			result.Content = append(result.Content, ContentItem{
				Type: "resource",
				URI:  uri,
			})
		}
	}

	return result
}

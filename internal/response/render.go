// Package response turns MCP tool results into the text fed back to the
// model.
package response

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	// ErrorPrefix marks a tool failure in result text.
	ErrorPrefix = "Tool error: "
	emptyOutput = "(no output)"
	tempPrefix  = "mcpxagent"
)

// Render extracts text from a CallToolResult. Text blocks are joined by
// newlines; structured content is used as JSON only when there is no text.
// Binary content is written to temp files and referenced by path.
func Render(result *mcp.CallToolResult) (string, bool) {
	if result == nil {
		return "", true
	}

	var parts []string
	for _, content := range result.Content {
		if rendered, ok := renderContent(content); ok {
			parts = append(parts, rendered)
			continue
		}
		if raw, err := json.Marshal(content); err == nil {
			parts = append(parts, string(raw))
		}
	}

	if len(parts) == 0 && result.StructuredContent != nil {
		if data, err := json.Marshal(result.StructuredContent); err == nil {
			parts = append(parts, string(data))
		}
	}

	return strings.TrimRight(strings.Join(parts, "\n"), "\n"), result.IsError
}

// ForModel renders result and marks tool-reported failures with ErrorPrefix.
func ForModel(result *mcp.CallToolResult) string {
	text, isError := Render(result)
	if isError {
		if text == "" {
			text = "tool reported failure without details"
		}
		return ErrorPrefix + text
	}
	if text == "" {
		return emptyOutput
	}
	return text
}

// FormatError renders a failure to execute a tool at all.
func FormatError(err error) string {
	if err == nil {
		return ErrorPrefix + "unknown failure"
	}
	return ErrorPrefix + err.Error()
}

func renderContent(content mcp.Content) (string, bool) {
	switch c := content.(type) {
	case mcp.TextContent:
		return c.Text, true
	case *mcp.TextContent:
		return c.Text, true
	case mcp.ImageContent:
		return renderBinary("image", c.MIMEType, c.Data)
	case *mcp.ImageContent:
		return renderBinary("image", c.MIMEType, c.Data)
	case mcp.EmbeddedResource:
		return renderResourceContent(c.Resource)
	case *mcp.EmbeddedResource:
		return renderResourceContent(c.Resource)
	default:
		return "", false
	}
}

func renderResourceContent(resource mcp.ResourceContents) (string, bool) {
	switch r := resource.(type) {
	case mcp.TextResourceContents:
		return fmt.Sprintf("[resource %s]\n%s", r.URI, r.Text), true
	case *mcp.TextResourceContents:
		return fmt.Sprintf("[resource %s]\n%s", r.URI, r.Text), true
	case mcp.BlobResourceContents:
		return renderBinary("resource "+r.URI, r.MIMEType, r.Blob)
	case *mcp.BlobResourceContents:
		return renderBinary("resource "+r.URI, r.MIMEType, r.Blob)
	default:
		return "", false
	}
}

func renderBinary(label, mimeType, encoded string) (string, bool) {
	path, err := writeTempBase64(mimeType, encoded)
	if err != nil {
		return fmt.Sprintf("[%s: %s, not saved: %v]", label, mimeType, err), true
	}
	return fmt.Sprintf("[%s saved to %s]", label, path), true
}

func writeTempBase64(mimeType, encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return writeTempFile(mimeType, data)
}

func writeTempFile(mimeType string, data []byte) (string, error) {
	f, err := os.CreateTemp("", tempPrefix+"-*"+extForMIMEType(mimeType))
	if err != nil {
		return "", err
	}

	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func extForMIMEType(mimeType string) string {
	mimeType = strings.TrimSpace(strings.ToLower(mimeType))
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	if mimeType != "" {
		if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
			return exts[0]
		}
		if strings.HasPrefix(mimeType, "text/") {
			return ".txt"
		}
		if strings.Contains(mimeType, "json") {
			return ".json"
		}
	}
	return ".bin"
}

package response

import (
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestRenderPrefersTextOverStructuredContent(t *testing.T) {
	result := &mcp.CallToolResult{
		StructuredContent: map[string]any{"count": 3},
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "three items"},
		},
	}

	out, isErr := Render(result)
	if isErr {
		t.Fatal("Render isError = true, want false")
	}
	if out != "three items" {
		t.Fatalf("Render output = %q, want %q", out, "three items")
	}
}

func TestRenderFallsBackToStructuredContent(t *testing.T) {
	result := mcp.NewToolResultStructuredOnly(map[string]any{"count": 3})

	out, _ := Render(result)
	if out != `{"count":3}` {
		t.Fatalf("Render output = %q, want %q", out, `{"count":3}`)
	}
}

func TestRenderMultipleTextBlocksAreNewlineSeparated(t *testing.T) {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "alpha"},
			mcp.TextContent{Type: "text", Text: "beta\n"},
		},
	}

	out, _ := Render(result)
	if out != "alpha\nbeta" {
		t.Fatalf("Render output = %q, want %q", out, "alpha\nbeta")
	}
}

func TestRenderImageContentWritesTempFileAndReferencesPath(t *testing.T) {
	payload := []byte("image-bytes")
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.ImageContent{
				Type:     "image",
				Data:     base64.StdEncoding.EncodeToString(payload),
				MIMEType: "application/octet-stream",
			},
		},
	}

	out, _ := Render(result)
	const prefix = "[image saved to "
	if !strings.HasPrefix(out, prefix) || !strings.HasSuffix(out, "]") {
		t.Fatalf("Render output = %q, want image path reference", out)
	}
	path := strings.TrimSuffix(strings.TrimPrefix(out, prefix), "]")
	defer os.Remove(path) //nolint:errcheck

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading emitted file: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("file content = %q, want %q", string(data), string(payload))
	}
}

func TestRenderEmbeddedTextResourceInline(t *testing.T) {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.EmbeddedResource{
				Type: "resource",
				Resource: mcp.TextResourceContents{
					URI:  "file:///tmp/notes.txt",
					Text: "remember the milk",
				},
			},
		},
	}

	out, _ := Render(result)
	want := "[resource file:///tmp/notes.txt]\nremember the milk"
	if out != want {
		t.Fatalf("Render output = %q, want %q", out, want)
	}
}

func TestForModelMarksToolErrors(t *testing.T) {
	result := &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "permission denied"},
		},
	}

	if got := ForModel(result); got != "Tool error: permission denied" {
		t.Fatalf("ForModel = %q, want %q", got, "Tool error: permission denied")
	}
	if got := ForModel(&mcp.CallToolResult{}); got != "(no output)" {
		t.Fatalf("ForModel(empty) = %q, want %q", got, "(no output)")
	}
	if got := FormatError(errors.New("boom")); got != "Tool error: boom" {
		t.Fatalf("FormatError = %q, want %q", got, "Tool error: boom")
	}
}

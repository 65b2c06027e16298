package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lydakis/mcpxagent/internal/mcppool"
)

type toolListEntry struct {
	Name        string `json:"name"`
	Server      string `json:"server"`
	Description string `json:"description,omitempty"`
}

func toolListEntries(tools []mcppool.ToolDescriptor, verbose bool) []toolListEntry {
	entries := make([]toolListEntry, 0, len(tools))
	for _, tool := range tools {
		desc := strings.TrimSpace(tool.Description)
		if !verbose {
			desc = firstLine(desc)
		}
		entries = append(entries, toolListEntry{
			Name:        tool.QualifiedName,
			Server:      tool.Server,
			Description: desc,
		})
	}
	return entries
}

func writeToolList(w io.Writer, entries []toolListEntry, mode outputMode) error {
	if mode.isJSON() {
		return writeJSON(w, entries)
	}
	return writeToolListText(w, entries)
}

func writeToolListText(w io.Writer, entries []toolListEntry) error {
	for _, entry := range entries {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			continue
		}
		line := name
		if desc := strings.TrimSpace(entry.Description); desc != "" {
			line += "\t" + desc
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return fmt.Errorf("writing tool list output: %w", err)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing JSON output: %w", err)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

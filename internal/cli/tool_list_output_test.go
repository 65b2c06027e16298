package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/lydakis/mcpxagent/internal/mcppool"
)

func TestToolListEntriesTrimDescriptionsUnlessVerbose(t *testing.T) {
	tools := []mcppool.ToolDescriptor{
		{QualifiedName: "github__list_issues", Server: "github", Description: "[github] List issues\nSupports paging."},
	}

	got := toolListEntries(tools, false)
	if len(got) != 1 || got[0].Description != "[github] List issues" || got[0].Server != "github" {
		t.Fatalf("toolListEntries() = %#v", got)
	}

	got = toolListEntries(tools, true)
	if got[0].Description != "[github] List issues\nSupports paging." {
		t.Fatalf("verbose description = %q", got[0].Description)
	}
}

func TestWriteToolListTextRendersNameAndDescription(t *testing.T) {
	entries := []toolListEntry{
		{Name: "list_issues", Description: "List issues"},
		{Name: "search_repositories"},
		{Name: "  "},
	}

	var out bytes.Buffer
	if err := writeToolListText(&out, entries); err != nil {
		t.Fatalf("writeToolListText() error = %v", err)
	}

	want := "list_issues\tList issues\nsearch_repositories\n"
	if out.String() != want {
		t.Fatalf("writeToolListText() = %q, want %q", out.String(), want)
	}
}

func TestWriteToolListJSONEncodesEmptyListAsArray(t *testing.T) {
	var out bytes.Buffer
	if err := writeToolList(&out, toolListEntries(nil, false), outputModeFor(true)); err != nil {
		t.Fatalf("writeToolList() error = %v", err)
	}

	var decoded []toolListEntry
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("decoding %q: %v", out.String(), err)
	}
	if decoded == nil || len(decoded) != 0 {
		t.Fatalf("decoded = %#v, want empty array", decoded)
	}
}

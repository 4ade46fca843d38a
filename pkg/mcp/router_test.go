package mcp

import "testing"

func TestPrefixTool(t *testing.T) {
	if got := PrefixTool("echo", "say"); got != "echo__say" {
		t.Fatalf("PrefixTool = %q, want echo__say", got)
	}
}

func TestParsePrefixedTool(t *testing.T) {
	childID, toolName, ok := ParsePrefixedTool("echo__say")
	if !ok || childID != "echo" || toolName != "say" {
		t.Fatalf("ParsePrefixedTool = (%q, %q, %v), want (echo, say, true)", childID, toolName, ok)
	}
}

func TestParsePrefixedTool_NoSeparator(t *testing.T) {
	if _, _, ok := ParsePrefixedTool("badname"); ok {
		t.Fatal("ParsePrefixedTool(badname) should fail: no __ separator")
	}
}

func TestParsePrefixedTool_ToolNameMayContainDelimiter(t *testing.T) {
	childID, toolName, ok := ParsePrefixedTool("echo__sub__tool")
	if !ok || childID != "echo" || toolName != "sub__tool" {
		t.Fatalf("ParsePrefixedTool = (%q, %q, %v), want (echo, sub__tool, true)", childID, toolName, ok)
	}
}

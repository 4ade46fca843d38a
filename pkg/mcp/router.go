package mcp

import "strings"

// ToolNameDelimiter separates a child id from a tool name in the namespaced
// tool names exposed to external MCP clients: "childid__toolname". Double
// underscore keeps namespaced names compatible with the conservative
// `^[a-zA-Z0-9_-]{1,64}$` tool-name pattern several MCP clients enforce.
const ToolNameDelimiter = "__"

// PrefixTool builds a namespaced tool name.
func PrefixTool(childID, toolName string) string {
	return childID + ToolNameDelimiter + toolName
}

// ParsePrefixedTool splits a namespaced tool name at the first delimiter
// occurrence into (childID, toolName). Tool names may themselves contain
// "__"; child ids may not (rejected at config load), so the first split is
// always unambiguous.
func ParsePrefixedTool(prefixed string) (childID, toolName string, ok bool) {
	idx := strings.Index(prefixed, ToolNameDelimiter)
	if idx < 0 {
		return "", "", false
	}
	return prefixed[:idx], prefixed[idx+len(ToolNameDelimiter):], true
}

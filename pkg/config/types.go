// Package config loads and validates the gateway's server definition file:
// a JSON document mapping child ids to the command used to launch them.
package config

import "github.com/kcalvelli/mcp-gateway/pkg/mcp"

// Document is the on-disk shape of the gateway config file. It deliberately
// mirrors the "mcpServers" map used by other MCP clients so existing server
// definitions can be reused without translation.
type Document struct {
	MCPServers map[string]ServerDefinition `json:"mcpServers"`
}

// ServerDefinition describes how to launch one child MCP server.
type ServerDefinition struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// PasswordCommand maps an environment variable name to an argv that
	// prints its value on stdout. Resolved at enable time and merged into
	// Env, letting secrets live outside the config file.
	PasswordCommand map[string][]string `json:"passwordCommand,omitempty"`
}

// toChildConfig converts a parsed definition into the shape pkg/mcp consumes.
func (d ServerDefinition) toChildConfig(id string) mcp.ChildConfig {
	return mcp.ChildConfig{
		ID:             id,
		Command:        d.Command,
		Args:           d.Args,
		Env:            d.Env,
		SecretCommands: d.PasswordCommand,
	}
}

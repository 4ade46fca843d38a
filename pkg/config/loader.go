package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kcalvelli/mcp-gateway/pkg/mcp"
)

// Load reads and validates the gateway config file at path, returning the
// child definitions in the order they appear in the file.
func Load(path string) ([]mcp.ChildConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	configs, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := Validate(configs); err != nil {
		return nil, err
	}

	return configs, nil
}

// Parse decodes a config document, preserving the order in which server
// ids appear. encoding/json's map decoding does not preserve key order, so
// the "mcpServers" object is walked token-by-token instead of being decoded
// straight into a Go map.
func Parse(data []byte) ([]mcp.ChildConfig, error) {
	var root struct {
		MCPServers json.RawMessage `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing config JSON: %w", err)
	}
	if len(root.MCPServers) == 0 {
		return nil, nil
	}
	return parseServersInOrder(root.MCPServers)
}

func parseServersInOrder(raw json.RawMessage) ([]mcp.ChildConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parsing mcpServers: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("mcpServers must be a JSON object")
	}

	var configs []mcp.ChildConfig
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parsing mcpServers: %w", err)
		}
		id, _ := keyTok.(string)

		var def ServerDefinition
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("mcpServers.%s: %w", id, err)
		}
		configs = append(configs, def.toChildConfig(id))
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("parsing mcpServers: %w", err)
	}
	return configs, nil
}

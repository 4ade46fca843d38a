package config

import (
	"fmt"
	"strings"

	"github.com/kcalvelli/mcp-gateway/pkg/mcp"
)

// ValidationError represents a single configuration problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "validation errors:\n  - " + strings.Join(msgs, "\n  - ")
}

// Validate checks a set of child configs for structural problems: empty or
// duplicate ids, and ids that would break tool namespacing. It does not
// reject an empty or unexecutable command; that surfaces as the child
// entering StateError on enable, not as a config-load failure.
func Validate(configs []mcp.ChildConfig) error {
	var errs ValidationErrors

	seen := make(map[string]bool, len(configs))
	for i, c := range configs {
		prefix := fmt.Sprintf("mcpServers[%d]", i)

		if c.ID == "" {
			errs = append(errs, ValidationError{prefix, "id must not be empty"})
			continue
		}
		prefix = fmt.Sprintf("mcpServers.%s", c.ID)

		if seen[c.ID] {
			errs = append(errs, ValidationError{prefix, "duplicate child id"})
		}
		seen[c.ID] = true

		if strings.Contains(c.ID, mcp.ToolNameDelimiter) {
			errs = append(errs, ValidationError{prefix, fmt.Sprintf("id must not contain %q", mcp.ToolNameDelimiter)})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

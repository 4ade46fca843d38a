package mcp

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
)

// resolveSecrets runs each entry of secretCommands with a bounded timeout
// and returns the env-var overlay built from their (trimmed) stdout.
// Per-entry failure is logged as a warning and the entry is omitted from
// the result; it never fails the caller. Operators may configure secrets
// that are optional in a given environment.
func resolveSecrets(ctx context.Context, secretCommands map[string][]string, logger *slog.Logger) map[string]string {
	resolved := make(map[string]string, len(secretCommands))

	for envVar, argv := range secretCommands {
		if len(argv) == 0 {
			logger.Warn("secret command empty, skipping", "env_var", envVar)
			continue
		}

		value, err := runSecretCommand(ctx, argv)
		if err != nil {
			logger.Warn("secret command failed, omitting from environment",
				"env_var", envVar, "command", argv[0], "error", err)
			continue
		}

		resolved[envVar] = value
	}

	return resolved
}

func runSecretCommand(ctx context.Context, argv []string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, SecretCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(out)), nil
}

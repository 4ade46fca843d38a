package reload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kcalvelli/mcp-gateway/pkg/config"
	"github.com/kcalvelli/mcp-gateway/pkg/logging"
	"github.com/kcalvelli/mcp-gateway/pkg/mcp"
)

// Result describes the outcome of one reload pass.
type Result struct {
	Success  bool
	Message  string
	Diff     Diff
	Failures map[string]error
}

// Handler reconciles a running ServerManager's enabled set against a config
// file on disk. It is the hot-reload path wired in by --watch-config: on
// each file change it reloads the config, applies structural changes
// (added/removed/changed children), and re-enables whatever was enabled
// before the reload and still exists.
type Handler struct {
	mu     sync.Mutex
	path   string
	mgr    *mcp.ServerManager
	logger *slog.Logger
}

// NewHandler creates a reload handler for the config file at path.
func NewHandler(path string, mgr *mcp.ServerManager) *Handler {
	return &Handler{
		path:   path,
		mgr:    mgr,
		logger: logging.NewDiscardLogger(),
	}
}

// SetLogger sets the logger used for reload events.
func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// Reload re-reads the config file and reconciles the manager against it.
// A malformed config file is reported in the Result rather than returned
// as an error, so a caller driving this from a file watcher can log and
// keep watching instead of crashing the gateway.
func (h *Handler) Reload(ctx context.Context) (*Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.logger.Info("reloading config", "path", h.path)

	newConfigs, err := config.Load(h.path)
	if err != nil {
		return &Result{
			Success: false,
			Message: fmt.Sprintf("failed to load config: %v", err),
		}, nil
	}

	enabledBefore := h.mgr.EnabledIDs()
	diff := h.mgr.ApplyConfig(newConfigs)

	removed := make(map[string]bool, len(diff.Removed))
	for _, id := range diff.Removed {
		removed[id] = true
	}

	var toReEnable []string
	for _, id := range enabledBefore {
		if !removed[id] {
			toReEnable = append(toReEnable, id)
		}
	}

	failures := h.mgr.EnableMany(ctx, toReEnable)

	resultDiff := Diff{Added: diff.Added, Removed: diff.Removed, Changed: diff.Changed}
	result := &Result{
		Success:  true,
		Diff:     resultDiff,
		Failures: failures,
	}
	if resultDiff.IsEmpty() {
		result.Message = "no changes detected"
	} else {
		result.Message = "config reloaded"
	}

	h.logger.Info("reload complete",
		"added", len(diff.Added),
		"removed", len(diff.Removed),
		"changed", len(diff.Changed),
		"failures", len(failures))

	return result, nil
}

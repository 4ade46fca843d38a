package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kcalvelli/mcp-gateway/pkg/mcp"
)

func writeConfig(t *testing.T, path string, ids ...string) {
	t.Helper()
	servers := ""
	for i, id := range ids {
		if i > 0 {
			servers += ","
		}
		servers += `"` + id + `":{"command":"go","args":["run","../mcp/testdata/echoserver"]}`
	}
	content := `{"mcpServers":{` + servers + `}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}

func TestHandler_Reload_AddsAndRemoves(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp_servers.json")
	writeConfig(t, path, "a")

	mgr := mcp.NewServerManager(nil)
	h := NewHandler(path, mgr)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := h.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if len(result.Diff.Added) != 1 || result.Diff.Added[0] != "a" {
		t.Fatalf("Reload added = %+v, want [a]", result.Diff.Added)
	}

	if err := mgr.Enable(ctx, "a"); err != nil {
		t.Fatalf("Enable a: %v", err)
	}
	defer mgr.Shutdown()

	writeConfig(t, path, "b")
	result, err = h.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if len(result.Diff.Removed) != 1 || result.Diff.Removed[0] != "a" {
		t.Fatalf("Reload removed = %+v, want [a]", result.Diff.Removed)
	}
	if len(result.Diff.Added) != 1 || result.Diff.Added[0] != "b" {
		t.Fatalf("Reload added = %+v, want [b]", result.Diff.Added)
	}
	if _, ok := mgr.ServerInfo("a"); ok {
		t.Fatal("a should no longer be known after removal")
	}
}

func TestHandler_Reload_ReEnablesSurvivors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp_servers.json")
	writeConfig(t, path, "a")

	mgr := mcp.NewServerManager(nil)
	defer mgr.Shutdown()
	h := NewHandler(path, mgr)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if _, err := h.Reload(ctx); err != nil {
		t.Fatalf("initial Reload: %v", err)
	}
	if err := mgr.Enable(ctx, "a"); err != nil {
		t.Fatalf("Enable a: %v", err)
	}

	writeConfig(t, path, "a", "c")
	result, err := h.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if len(result.Diff.Added) != 1 || result.Diff.Added[0] != "c" {
		t.Fatalf("Reload added = %+v, want [c]", result.Diff.Added)
	}

	info, ok := mgr.ServerInfo("a")
	if !ok || info.State != mcp.StateConnected {
		t.Fatalf("a's state after reload = %+v, want Connected (untouched)", info)
	}
}

func TestHandler_Reload_MalformedConfigIsNonFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp_servers.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	mgr := mcp.NewServerManager(nil)
	defer mgr.Shutdown()
	h := NewHandler(path, mgr)

	result, err := h.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload returned an error, want nil with Success=false: %v", err)
	}
	if result.Success {
		t.Fatal("Reload should report Success=false for a malformed config file")
	}
}

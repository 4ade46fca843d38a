package mcp

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T, ids ...string) *ServerManager {
	t.Helper()
	m := NewServerManager(nil)
	configs := make([]ChildConfig, len(ids))
	for i, id := range ids {
		configs[i] = echoConfig(id)
	}
	m.LoadConfig(configs)
	return m
}

func TestServerManager_EnableDisableLifecycle(t *testing.T) {
	m := newTestManager(t, "echo")
	defer m.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := m.Enable(ctx, "echo"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	info, ok := m.ServerInfo("echo")
	if !ok || info.State != StateConnected {
		t.Fatalf("ServerInfo = %+v, ok=%v, want Connected", info, ok)
	}
	if info.Server.Name != "echoserver" {
		t.Fatalf("Server.Name = %q, want the child's reported identity", info.Server.Name)
	}

	if err := m.Enable(ctx, "echo"); err != nil {
		t.Fatalf("Enable (idempotent): %v", err)
	}

	if err := m.Disable("echo"); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	info, _ = m.ServerInfo("echo")
	if info.State != StateDisconnected {
		t.Fatalf("State after Disable = %v, want Disconnected", info.State)
	}

	if err := m.Enable(ctx, "echo"); err != nil {
		t.Fatalf("re-Enable: %v", err)
	}
	info, _ = m.ServerInfo("echo")
	if info.State != StateConnected {
		t.Fatalf("State after re-Enable = %v, want Connected", info.State)
	}
}

func TestServerManager_UnknownChild(t *testing.T) {
	m := newTestManager(t)
	if err := m.Enable(context.Background(), "ghost"); !errors.Is(err, ErrUnknownChild) {
		t.Fatalf("Enable(unknown) = %v, want ErrUnknownChild", err)
	}
	if _, err := m.CallTool(context.Background(), "ghost", "say", nil); !errors.Is(err, ErrUnknownChild) {
		t.Fatalf("CallTool(unknown child) = %v, want ErrUnknownChild", err)
	}
}

func TestServerManager_CallToolNotConnected(t *testing.T) {
	m := newTestManager(t, "echo")
	if _, err := m.CallTool(context.Background(), "echo", "say", nil); !errors.Is(err, ErrChildNotConnected) {
		t.Fatalf("CallTool before enable = %v, want ErrChildNotConnected", err)
	}
}

func TestServerManager_AllToolsOnlyConnected(t *testing.T) {
	m := newTestManager(t, "a", "b")
	defer m.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := m.Enable(ctx, "a"); err != nil {
		t.Fatalf("Enable a: %v", err)
	}

	entries := m.AllTools()
	if len(entries) != 1 || entries[0].ChildID != "a" || entries[0].Tool.Name != "say" {
		t.Fatalf("AllTools() = %+v, want one entry from a", entries)
	}
}

func TestServerManager_EnableManyIsolatesFailures(t *testing.T) {
	m := NewServerManager(nil)
	m.LoadConfig([]ChildConfig{
		echoConfig("good"),
		{ID: "bad"}, // empty command: must fail without affecting "good"
	})
	defer m.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	failures := m.EnableMany(ctx, []string{"good", "bad"})
	if len(failures) != 1 {
		t.Fatalf("EnableMany failures = %+v, want exactly one", failures)
	}
	if _, ok := failures["bad"]; !ok {
		t.Fatalf("EnableMany failures = %+v, want bad to have failed", failures)
	}

	info, _ := m.ServerInfo("good")
	if info.State != StateConnected {
		t.Fatalf("good's state = %v, want Connected despite bad's failure", info.State)
	}
}

func TestServerManager_ShutdownDisconnectsAll(t *testing.T) {
	m := newTestManager(t, "a", "b", "c")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if failures := m.EnableMany(ctx, []string{"a", "b", "c"}); len(failures) != 0 {
		t.Fatalf("EnableMany failures = %+v, want none", failures)
	}

	done := make(chan struct{})
	go func() {
		m.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("Shutdown did not complete in bounded time")
	}

	for _, id := range []string{"a", "b", "c"} {
		info, _ := m.ServerInfo(id)
		if info.State != StateDisconnected {
			t.Errorf("%s state after Shutdown = %v, want Disconnected", id, info.State)
		}
		if info.Enabled {
			t.Errorf("%s still enabled after Shutdown", id)
		}
	}
}

func TestServerManager_ParallelFanOut(t *testing.T) {
	m := newTestManager(t, "a", "b")
	defer m.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if failures := m.EnableMany(ctx, []string{"a", "b"}); len(failures) != 0 {
		t.Fatalf("EnableMany failures = %+v, want none", failures)
	}

	const n = 50
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		child := "a"
		if i%2 == 0 {
			child = "b"
		}
		go func(child string) {
			_, err := m.CallTool(ctx, child, "say", map[string]any{"msg": "x"})
			results <- err
		}(child)
	}
	for i := 0; i < n; i++ {
		if err := <-results; err != nil {
			t.Errorf("call %d failed: %v", i, err)
		}
	}
}

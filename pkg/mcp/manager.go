package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/kcalvelli/mcp-gateway/pkg/logging"
	"golang.org/x/sync/errgroup"
)

// ServerInfoView is the read-only projection of one child's state returned
// by ServerManager.ServerInfo.
type ServerInfoView struct {
	ID        string
	State     State
	Enabled   bool
	ToolNames []string
	LastError string

	// Server is the identity the child reported in its initialize
	// response; zero value until the first successful connect.
	Server ServerInfo
}

// ToolEntry pairs a child id with one of its tool schemas, the shape
// ServerManager.AllTools enumerates.
type ToolEntry struct {
	ChildID string
	Tool    ToolSchema
}

// ServerManager aggregates the configured fleet of children: the enabled
// set, lifecycle orchestration, catalog fan-in, and tool-call routing. It
// is the sole owner of every ChildSession's lifecycle transitions.
type ServerManager struct {
	logger *slog.Logger

	mu       sync.RWMutex
	order    []string // config file order, stable across the manager's life
	children map[string]*ChildSession
	enabled  map[string]bool
}

// NewServerManager creates an empty manager. Call LoadConfig to populate it.
func NewServerManager(logger *slog.Logger) *ServerManager {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &ServerManager{
		logger:   logger,
		children: make(map[string]*ChildSession),
		enabled:  make(map[string]bool),
	}
}

// LoadConfig populates ChildConfig records from configs, in the given
// order. It replaces any existing configuration; intended to be called
// once at startup before anything is enabled.
func (m *ServerManager) LoadConfig(configs []ChildConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.order = nil
	m.children = make(map[string]*ChildSession, len(configs))
	m.enabled = make(map[string]bool, len(configs))

	for _, cfg := range configs {
		m.order = append(m.order, cfg.ID)
		m.children[cfg.ID] = NewChildSession(cfg, m.logger)
	}
}

// ServerIDs returns every configured child id, in stable config-file order.
func (m *ServerManager) ServerIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// ServerInfo returns the current view of one child, or false if unknown.
func (m *ServerManager) ServerInfo(id string) (ServerInfoView, bool) {
	m.mu.RLock()
	child, ok := m.children[id]
	enabled := m.enabled[id]
	m.mu.RUnlock()
	if !ok {
		return ServerInfoView{}, false
	}
	return ServerInfoView{
		ID:        id,
		State:     child.State(),
		Enabled:   enabled,
		ToolNames: toolNames(child.Catalog()),
		LastError: child.LastError(),
		Server:    child.ServerInfo(),
	}, true
}

func toolNames(schemas []ToolSchema) []string {
	names := make([]string, len(schemas))
	for i, s := range schemas {
		names[i] = s.Name
	}
	return names
}

// Enable adds id to the enabled set and connects its child session. Returns
// success iff the child reached Connected by the time Enable returns.
// Idempotent: enabling an already-Connected child is a no-op success.
func (m *ServerManager) Enable(ctx context.Context, id string) error {
	m.mu.Lock()
	child, ok := m.children[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownChild, id)
	}
	m.enabled[id] = true
	m.mu.Unlock()

	if err := child.Connect(ctx); err != nil {
		return fmt.Errorf("enabling %s: %w", id, err)
	}
	return nil
}

// Disable removes id from the enabled set and disconnects its child
// session. Idempotent.
func (m *ServerManager) Disable(id string) error {
	m.mu.Lock()
	child, ok := m.children[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownChild, id)
	}
	delete(m.enabled, id)
	m.mu.Unlock()

	child.Disconnect()
	return nil
}

// EnableMany enables every id concurrently, one errgroup goroutine per id
// with no limit on how many connect at once, and waits for all of them. A
// fault connecting one child never cancels the others' connect attempts.
// Returns a map of id to the error encountered (if any) for every id that
// failed to reach Connected.
func (m *ServerManager) EnableMany(ctx context.Context, ids []string) map[string]error {
	var mu sync.Mutex
	failures := make(map[string]error)

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := m.Enable(gctx, id); err != nil {
				mu.Lock()
				failures[id] = err
				mu.Unlock()
			}
			return nil // isolate failures; never cancel sibling connects
		})
	}
	_ = g.Wait()

	return failures
}

// AllTools enumerates tools from Connected children only, ordered by child
// id then tool name.
func (m *ServerManager) AllTools() []ToolEntry {
	m.mu.RLock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	children := make(map[string]*ChildSession, len(m.children))
	for k, v := range m.children {
		children[k] = v
	}
	m.mu.RUnlock()

	sort.Strings(ids)

	var entries []ToolEntry
	for _, id := range ids {
		child := children[id]
		if child == nil || child.State() != StateConnected {
			continue
		}
		schemas := child.Catalog()
		sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
		for _, t := range schemas {
			entries = append(entries, ToolEntry{ChildID: id, Tool: t})
		}
	}
	return entries
}

// ToolSchemaFor returns the catalog entry for (childID, toolName).
func (m *ServerManager) ToolSchemaFor(childID, toolName string) (ToolSchema, bool) {
	m.mu.RLock()
	child, ok := m.children[childID]
	m.mu.RUnlock()
	if !ok {
		return ToolSchema{}, false
	}
	return child.ToolSchemaFor(toolName)
}

// CallTool routes a call to childID's ChildSession.
func (m *ServerManager) CallTool(ctx context.Context, childID, toolName string, args map[string]any) (*ToolCallResult, error) {
	m.mu.RLock()
	child, ok := m.children[childID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChild, childID)
	}

	result, err := child.CallTool(ctx, toolName, args)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			return nil, fmt.Errorf("%w: %s", ErrChildNotConnected, childID)
		}
		return nil, err
	}
	return result, nil
}

// EnabledIDs returns every currently-enabled child id, in no particular
// order.
func (m *ServerManager) EnabledIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.enabled))
	for id, on := range m.enabled {
		if on {
			ids = append(ids, id)
		}
	}
	return ids
}

// ConfigDiff reports which child ids changed shape across an ApplyConfig
// call.
type ConfigDiff struct {
	Added   []string
	Removed []string
	Changed []string
}

// ApplyConfig reconciles the manager's configured children against configs,
// without disturbing children whose ChildConfig is unchanged. Children
// whose config changed are disconnected and rebuilt with the new config
// (callers must re-Enable them); removed children are disconnected and
// forgotten; added children start Disconnected. Unlike LoadConfig, this is
// safe to call against a manager with live connections - it is the
// mechanism behind config hot-reload.
func (m *ServerManager) ApplyConfig(configs []ChildConfig) ConfigDiff {
	m.mu.Lock()

	next := make(map[string]ChildConfig, len(configs))
	order := make([]string, 0, len(configs))
	for _, c := range configs {
		next[c.ID] = c
		order = append(order, c.ID)
	}

	var diff ConfigDiff
	var toDisconnect []*ChildSession

	for id, child := range m.children {
		if _, ok := next[id]; !ok {
			diff.Removed = append(diff.Removed, id)
			toDisconnect = append(toDisconnect, child)
			delete(m.children, id)
			delete(m.enabled, id)
		}
	}

	for _, cfg := range configs {
		existing, ok := m.children[cfg.ID]
		switch {
		case !ok:
			diff.Added = append(diff.Added, cfg.ID)
			m.children[cfg.ID] = NewChildSession(cfg, m.logger)
		case !childConfigEqual(existing.config, cfg):
			diff.Changed = append(diff.Changed, cfg.ID)
			toDisconnect = append(toDisconnect, existing)
			m.children[cfg.ID] = NewChildSession(cfg, m.logger)
		}
	}

	m.order = order
	m.mu.Unlock()

	for _, c := range toDisconnect {
		c.Disconnect()
	}

	return diff
}

func childConfigEqual(a, b ChildConfig) bool {
	if a.Command != b.Command || !stringSliceEqual(a.Args, b.Args) {
		return false
	}
	if !stringMapEqual(a.Env, b.Env) {
		return false
	}
	if len(a.SecretCommands) != len(b.SecretCommands) {
		return false
	}
	for k, v := range a.SecretCommands {
		if !stringSliceEqual(v, b.SecretCommands[k]) {
			return false
		}
	}
	return true
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringMapEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// Shutdown best-effort disconnects every child and clears the enabled set.
// Individual child errors never propagate; Disconnect itself is
// best-effort and returns none.
func (m *ServerManager) Shutdown() {
	m.mu.Lock()
	children := make([]*ChildSession, 0, len(m.children))
	for _, c := range m.children {
		children = append(children, c)
	}
	m.enabled = make(map[string]bool)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range children {
		wg.Add(1)
		go func(c *ChildSession) {
			defer wg.Done()
			c.Disconnect()
		}(c)
	}
	wg.Wait()
}

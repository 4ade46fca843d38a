package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/kcalvelli/mcp-gateway/pkg/logging"
)

// State is one of the four states a ChildSession may be in.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ChildConfig is the immutable spawn descriptor for one child, loaded once
// at config time and never mutated afterward.
type ChildConfig struct {
	ID             string
	Command        string
	Args           []string
	Env            map[string]string
	SecretCommands map[string][]string
}

// childCatalog is the copy-on-write snapshot published on every successful
// Connect and cleared on every transition away from Connected.
type childCatalog struct {
	order  []string
	byName map[string]ToolSchema
}

func (c *childCatalog) has(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// rpcToolCallResult is the wire shape of a child's tools/call response,
// kept as raw content elements so normalizeContent can inspect each one.
type rpcToolCallResult struct {
	Content []json.RawMessage `json:"content"`
	IsError bool              `json:"isError,omitempty"`
}

type rawContentItem struct {
	Type string  `json:"type"`
	Text *string `json:"text,omitempty"`
}

// ChildSession represents one MCP peer reachable over stdio: it owns the
// subprocess handle, the two stdio endpoints, the JSON-RPC request
// correlator and the cached tool catalog for that child.
type ChildSession struct {
	config ChildConfig

	mu         sync.Mutex // serializes state transitions (connect/disconnect)
	state      State
	lastError  string
	serverInfo ServerInfo
	logger     *slog.Logger

	procMu sync.Mutex // guards cmd/stdin and serializes writes to stdin
	cmd    *exec.Cmd
	stdin  io.WriteCloser

	requestID   atomic.Int64
	responsesMu sync.Mutex
	responses   map[int64]chan *Response

	catalog atomic.Pointer[childCatalog]
}

// NewChildSession builds a ChildSession in the Disconnected state. It does
// not spawn anything until Connect is called.
func NewChildSession(cfg ChildConfig, logger *slog.Logger) *ChildSession {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &ChildSession{
		config: cfg,
		state:  StateDisconnected,
		logger: logger,
	}
}

// ID returns the child id this session was configured with.
func (c *ChildSession) ID() string { return c.config.ID }

// SetLogger replaces the session's logger.
func (c *ChildSession) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// State returns the current state.
func (c *ChildSession) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the last recorded error message, if any.
func (c *ChildSession) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// ServerInfo returns the server info reported by the child's initialize
// response. Zero value before the first successful connect.
func (c *ChildSession) ServerInfo() ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Catalog returns the child's currently published tool catalog, in
// discovery order. Nil while not Connected.
func (c *ChildSession) Catalog() []ToolSchema {
	cat := c.catalog.Load()
	if cat == nil {
		return nil
	}
	out := make([]ToolSchema, 0, len(cat.order))
	for _, name := range cat.order {
		out = append(out, cat.byName[name])
	}
	return out
}

// ToolSchemaFor returns the catalog entry for name, if present.
func (c *ChildSession) ToolSchemaFor(name string) (ToolSchema, bool) {
	cat := c.catalog.Load()
	if cat == nil {
		return ToolSchema{}, false
	}
	t, ok := cat.byName[name]
	return t, ok
}

// Connect spawns the subprocess (if not already Connected) and runs the
// handshake: initialize, notifications/initialized, tools/list. Idempotent
// when already Connected.
func (c *ChildSession) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateConnected {
		return nil
	}
	c.state = StateConnecting
	c.lastError = ""

	if c.config.Command == "" {
		return c.failLocked(fmt.Errorf("no command configured"))
	}

	secretEnv := resolveSecrets(ctx, c.config.SecretCommands, c.logger)
	env := buildEnv(c.config.Env, secretEnv)

	c.logger.Debug("spawning child",
		"child_id", c.config.ID,
		"command", c.config.Command,
		"args", c.config.Args,
		"env", logging.RedactEnv(c.config.Env))

	cmd := exec.Command(c.config.Command, c.config.Args...)
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return c.failLocked(&SpawnError{Err: err})
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return c.failLocked(&SpawnError{Err: err})
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stderr = nil
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return c.failLocked(&SpawnError{Err: err})
	}

	c.procMu.Lock()
	c.cmd = cmd
	c.stdin = stdin
	c.procMu.Unlock()
	c.responses = make(map[int64]chan *Response)

	go c.pumpStdout(stdout, cmd)
	if stderr != nil {
		go c.pumpStderr(stderr)
	}

	hctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()

	initResult, err := c.doInitialize(hctx)
	if err != nil {
		return c.failLocked(c.classifyHandshakeError(hctx, err))
	}

	if err := c.notify(context.Background(), "notifications/initialized", nil); err != nil {
		return c.failLocked(&ProtocolError{Err: err})
	}

	toolsResult, err := c.doToolsList(hctx)
	if err != nil {
		return c.failLocked(c.classifyHandshakeError(hctx, err))
	}

	c.serverInfo = initResult.ServerInfo
	c.publishCatalog(toolsResult.Tools)
	c.state = StateConnected
	return nil
}

func (c *ChildSession) classifyHandshakeError(hctx context.Context, err error) error {
	if errors.Is(hctx.Err(), context.DeadlineExceeded) {
		return ErrHandshakeTimeout
	}
	return &ProtocolError{Err: err}
}

// failLocked tears the session down and records err as the terminal state.
// Caller must hold c.mu.
func (c *ChildSession) failLocked(err error) error {
	c.teardown()
	c.state = StateError
	c.lastError = err.Error()
	return err
}

// Disconnect closes stdio, reaps the subprocess, clears the catalog and
// resolves in-flight waiters with ErrPeerGone. Idempotent; best-effort.
func (c *ChildSession) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardown()
	c.state = StateDisconnected
	c.lastError = ""
}

// teardown is the shared close path for both explicit disable and internal
// faults. Caller must hold c.mu.
func (c *ChildSession) teardown() {
	c.procMu.Lock()
	cmd := c.cmd
	stdin := c.stdin
	c.cmd = nil
	c.stdin = nil
	c.procMu.Unlock()

	if stdin != nil {
		stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		done := make(chan struct{})
		go func() {
			cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(ProcessKillGrace):
			_ = cmd.Process.Kill()
			<-done
		}
	}

	c.failWaiters()
	c.catalog.Store(nil)
}

func (c *ChildSession) failWaiters() {
	c.responsesMu.Lock()
	defer c.responsesMu.Unlock()
	for id, ch := range c.responses {
		ch <- &Response{
			JSONRPC: "2.0",
			Error:   &Error{Code: InternalError, Message: ErrPeerGone.Error()},
		}
		delete(c.responses, id)
	}
}

// handlePeerGone is invoked by the stdout pump when the child's stream
// ends. It only acts if the session is Connected and, when cmd is non-nil,
// still owns that same process: an ended pump following an explicit
// Disconnect, a handshake failure or a later reconnect is expected and
// already handled by that path.
func (c *ChildSession) handlePeerGone(cmd *exec.Cmd) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.procMu.Lock()
	current := c.cmd
	c.procMu.Unlock()
	if c.state != StateConnected || (cmd != nil && current != cmd) {
		return
	}
	c.teardown()
	c.state = StateError
	c.lastError = ErrPeerGone.Error()
}

// CallTool invokes name with args on the child. name must exist in the
// currently published catalog.
func (c *ChildSession) CallTool(ctx context.Context, name string, args map[string]any) (*ToolCallResult, error) {
	c.mu.Lock()
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected {
		return nil, ErrNotConnected
	}

	cat := c.catalog.Load()
	if cat == nil || !cat.has(name) {
		return nil, ErrUnknownTool
	}

	var raw rpcToolCallResult
	if err := c.call(ctx, "tools/call", ToolCallParams{Name: name, Arguments: args}, &raw); err != nil {
		if errors.Is(err, ErrPeerGone) {
			c.handlePeerGone(nil)
		}
		return nil, err
	}

	if raw.Content == nil {
		raw.Content = []json.RawMessage{}
	}
	return &ToolCallResult{
		Content:    normalizeContent(raw.Content),
		IsError:    raw.IsError,
		RawContent: raw.Content,
	}, nil
}

func (c *ChildSession) doInitialize(ctx context.Context) (*InitializeResult, error) {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      ClientInfo{Name: "mcp-gateway", Version: "1.0.0"},
		Capabilities:    Capabilities{Tools: &ToolsCapability{}},
	}
	var result InitializeResult
	if err := c.call(ctx, "initialize", params, &result); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return &result, nil
}

func (c *ChildSession) doToolsList(ctx context.Context) (*ToolsListResult, error) {
	var result ToolsListResult
	if err := c.call(ctx, "tools/list", nil, &result); err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	return &result, nil
}

// call performs one JSON-RPC request/response round trip over the child's
// stdio, correlating by request id. Responses may arrive in any order;
// correlation never depends on arrival order.
func (c *ChildSession) call(ctx context.Context, method string, params any, result any) error {
	id := c.requestID.Add(1)
	idBytes, _ := json.Marshal(id)
	rawID := json.RawMessage(idBytes)

	var paramsBytes json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshaling params: %w", err)
		}
		paramsBytes = b
	}

	req := Request{JSONRPC: "2.0", ID: &rawID, Method: method, Params: paramsBytes}

	respCh := make(chan *Response, 1)
	c.responsesMu.Lock()
	c.responses[id] = respCh
	c.responsesMu.Unlock()

	if err := c.send(req); err != nil {
		c.responsesMu.Lock()
		delete(c.responses, id)
		c.responsesMu.Unlock()
		return err
	}

	select {
	case <-ctx.Done():
		c.responsesMu.Lock()
		delete(c.responses, id)
		c.responsesMu.Unlock()
		return ctx.Err()
	case resp := <-respCh:
		if resp.Error != nil {
			if resp.Error.Message == ErrPeerGone.Error() {
				return ErrPeerGone
			}
			return &PeerError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshaling result: %w", err)
			}
		}
		return nil
	}
}

func (c *ChildSession) notify(ctx context.Context, method string, params any) error {
	var paramsBytes json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshaling params: %w", err)
		}
		paramsBytes = b
	}
	return c.send(Request{JSONRPC: "2.0", Method: method, Params: paramsBytes})
}

// send writes one line to the child's stdin. procMu serializes concurrent
// writers so lines are never interleaved.
func (c *ChildSession) send(req Request) error {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	if c.stdin == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	data = append(data, '\n')

	if _, err := c.stdin.Write(data); err != nil {
		return fmt.Errorf("writing to stdin: %w", err)
	}
	return nil
}

// pumpStdout reads line-delimited JSON-RPC messages from the child's
// stdout. A malformed line is logged and discarded; the session keeps
// running and correlation of other in-flight requests is unaffected.
func (c *ChildSession) pumpStdout(r io.Reader, cmd *exec.Cmd) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, MaxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			c.logger.Warn("malformed line from child, discarding", "child_id", c.config.ID, "error", err)
			continue
		}

		if resp.ID == nil {
			// Notification from the child; nothing to correlate in this version.
			c.logger.Debug("notification from child", "child_id", c.config.ID)
			continue
		}

		var id int64
		if err := json.Unmarshal(*resp.ID, &id); err != nil {
			continue
		}

		c.responsesMu.Lock()
		if ch, ok := c.responses[id]; ok {
			delete(c.responses, id)
			ch <- &resp
		}
		c.responsesMu.Unlock()
	}

	c.handlePeerGone(cmd)
}

func (c *ChildSession) pumpStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		c.logger.Warn("child stderr", "child_id", c.config.ID, "line", scanner.Text())
	}
}

func (c *ChildSession) publishCatalog(tools []ToolSchema) {
	cat := &childCatalog{byName: make(map[string]ToolSchema, len(tools))}
	for _, t := range tools {
		cat.order = append(cat.order, t.Name)
		cat.byName[t.Name] = t
	}
	c.catalog.Store(cat)
}

// normalizeContent converts a child's raw content array into the
// normalized shape: recognized text elements become {type:"text", text},
// everything else becomes {type, data: stringified}.
func normalizeContent(raw []json.RawMessage) []Content {
	out := make([]Content, 0, len(raw))
	for _, item := range raw {
		var probe rawContentItem
		if err := json.Unmarshal(item, &probe); err == nil && probe.Type == "text" && probe.Text != nil {
			out = append(out, Content{Type: "text", Text: *probe.Text})
			continue
		}
		t := probe.Type
		if t == "" {
			t = "unknown"
		}
		out = append(out, Content{Type: t, Data: string(item)})
	}
	return out
}

// buildEnv overlays literal env values then secret-command outputs onto
// the current process environment; later layers win on name collision.
func buildEnv(literal, secret map[string]string) []string {
	merged := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			merged[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range literal {
		merged[k] = v
	}
	for k, v := range secret {
		merged[k] = v
	}

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}

package mcp

import (
	"encoding/json"
	"time"

	"github.com/kcalvelli/mcp-gateway/pkg/jsonrpc"
)

// JSON-RPC 2.0 types, re-exported from pkg/jsonrpc so callers of this
// package never need to import it directly.
type Request = jsonrpc.Request
type Response = jsonrpc.Response
type Error = jsonrpc.Error

const (
	ParseError     = jsonrpc.ParseError
	InvalidRequest = jsonrpc.InvalidRequest
	MethodNotFound = jsonrpc.MethodNotFound
	InvalidParams  = jsonrpc.InvalidParams
	InternalError  = jsonrpc.InternalError
)

// ProtocolVersion is the MCP protocol version this gateway advertises to
// both its children and its own external clients.
const ProtocolVersion = "2025-06-18"

// Default timeouts. Tool calls carry no gateway-level bound; the caller's
// context is the only limit on them.
const (
	// HandshakeTimeout bounds the initialize + tools/list exchange during
	// connect().
	HandshakeTimeout = 30 * time.Second

	// SecretCommandTimeout bounds each passwordCommand invocation.
	SecretCommandTimeout = 10 * time.Second

	// ProcessKillGrace is how long disconnect waits after SIGTERM before
	// escalating to SIGKILL.
	ProcessKillGrace = 5 * time.Second
)

// MaxRequestBodySize caps incoming JSON-RPC request bodies on the transport
// endpoint (1MB).
const MaxRequestBodySize = 1 * 1024 * 1024

// MaxLineSize bounds a single line read from a child's stdout, so one
// misbehaving peer cannot exhaust gateway memory.
const MaxLineSize = 1 * 1024 * 1024

// ServerInfo identifies an MCP server (gateway or child) in a handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientInfo identifies an MCP client in a handshake.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities describes what a server or client supports.
type Capabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeParams is sent by the caller of initialize.
type InitializeParams struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ClientInfo      ClientInfo   `json:"clientInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// InitializeResult is the response to initialize.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// ToolSchema is `{name, description, input_schema}`; InputSchema is kept as
// an opaque JSON value and reproduced verbatim to callers.
type ToolSchema struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolsListResult is the response to tools/list.
type ToolsListResult struct {
	Tools      []ToolSchema `json:"tools"`
	NextCursor *string      `json:"nextCursor,omitempty"`
}

// ToolCallParams is the request payload for tools/call.
type ToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolCallResult is the response to tools/call. Content is the normalized
// view served to REST callers; RawContent preserves the child's elements
// byte-for-byte for the MCP transport, which forwards them unmodified.
type ToolCallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`

	RawContent []json.RawMessage `json:"-"`
}

// Content is one normalized element of a tool call result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data string `json:"data,omitempty"`
}

// NewErrorResponse creates a JSON-RPC error response.
var NewErrorResponse = jsonrpc.NewErrorResponse

// NewSuccessResponse creates a JSON-RPC success response.
var NewSuccessResponse = jsonrpc.NewSuccessResponse

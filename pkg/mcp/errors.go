package mcp

import "fmt"

// Domain-level error kinds, independent of transport. Callers check these
// with errors.Is/errors.As rather than matching strings.
var (
	// ErrUnknownChild means the referenced child id is not in the
	// configured set.
	ErrUnknownChild = fmt.Errorf("unknown child")

	// ErrUnknownTool means the tool name is not present in the child's
	// current catalog.
	ErrUnknownTool = fmt.Errorf("unknown tool")

	// ErrChildNotConnected means the child exists but is not in the
	// Connected state.
	ErrChildNotConnected = fmt.Errorf("child not connected")

	// ErrPeerGone means the child's subprocess exited or its stdio closed
	// while a request was outstanding.
	ErrPeerGone = fmt.Errorf("peer gone")

	// ErrHandshakeTimeout means connect() did not complete the
	// initialize/tools-list exchange within the bound.
	ErrHandshakeTimeout = fmt.Errorf("handshake timeout")

	// ErrNotConnected means call_tool was invoked while the session was not
	// Connected (never connected, disconnected, or failed).
	ErrNotConnected = fmt.Errorf("not connected")
)

// SpawnError wraps a failure to start the child subprocess.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string { return fmt.Sprintf("spawn: %s", e.Err) }
func (e *SpawnError) Unwrap() error { return e.Err }

// ProtocolError wraps a malformed or unexpected response from a child
// during the handshake.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol error: %s", e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// PeerError represents a JSON-RPC error object returned by a child.
type PeerError struct {
	Code    int
	Message string
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer error %d: %s", e.Code, e.Message)
}

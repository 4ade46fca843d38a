package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kcalvelli/mcp-gateway/pkg/logging"
)

// SessionIDHeader is the header external MCP clients use to carry their
// session id on every request after initialize.
const SessionIDHeader = "Mcp-Session-Id"

// ProtocolVersionHeader is optionally sent by clients; it is recorded for
// diagnostics and never used to downgrade.
const ProtocolVersionHeader = "MCP-Protocol-Version"

// Session hygiene bounds: clients that never send DELETE /mcp would
// otherwise accumulate session records forever.
const (
	sessionCleanupInterval = 5 * time.Minute
	sessionMaxAge          = 30 * time.Minute
)

// Dispatcher terminates the MCP Streamable-HTTP transport protocol:
// initialize/notifications/tools-list/tools-call over POST /mcp, 405 on
// GET /mcp, and session teardown on DELETE /mcp.
type Dispatcher struct {
	manager  *ServerManager
	sessions *SessionManager
	logger   *slog.Logger
}

// NewDispatcher wires a dispatcher to a manager. Each dispatcher owns its
// own SessionManager.
func NewDispatcher(manager *ServerManager, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Dispatcher{
		manager:  manager,
		sessions: NewSessionManager(),
		logger:   logger,
	}
}

// StartSessionCleanup starts a periodic sweep dropping sessions idle
// longer than sessionMaxAge. The sweep stops when ctx is cancelled.
func (d *Dispatcher) StartSessionCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sessionCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := d.sessions.Cleanup(sessionMaxAge); removed > 0 {
					d.logger.Info("cleaned up stale sessions",
						"removed", removed, "remaining", d.sessions.Count())
				}
			}
		}
	}()
}

// ServeHTTP implements the /mcp endpoint.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		d.handlePost(w, r)
	case http.MethodGet:
		http.Error(w, "GET /mcp is reserved for server-initiated streaming", http.StatusMethodNotAllowed)
	case http.MethodDelete:
		d.handleDelete(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (d *Dispatcher) handlePost(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if v := r.Header.Get(ProtocolVersionHeader); v != "" && v != ProtocolVersion {
		d.logger.Debug("client requested protocol version", "version", v)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		d.writeEnvelopeError(w, nil, ParseError, "reading request body")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		d.writeEnvelopeError(w, nil, ParseError, "invalid JSON")
		return
	}

	if req.JSONRPC != "2.0" {
		d.writeEnvelopeError(w, req.ID, InvalidRequest, "invalid or missing jsonrpc version")
		return
	}

	var session *MCPSession
	if req.Method != "initialize" {
		sid := r.Header.Get(SessionIDHeader)
		if sid == "" {
			d.writeEnvelopeError(w, req.ID, InvalidRequest, "missing "+SessionIDHeader+" header")
			return
		}
		session = d.sessions.Get(sid)
		if session == nil {
			d.writeEnvelopeError(w, req.ID, InvalidRequest, "unknown session")
			return
		}
		d.sessions.Touch(sid)
	}

	if req.IsNotification() {
		// A request without an id never gets a response body, whatever its
		// method; only notifications/initialized has an effect.
		if req.Method == "notifications/initialized" && session != nil {
			d.sessions.MarkInitialized(session.ID)
		}
		d.writeAccepted(w)
		return
	}

	switch req.Method {
	case "initialize":
		d.handleInitialize(w, &req)
	case "notifications/initialized":
		if session != nil {
			d.sessions.MarkInitialized(session.ID)
		}
		d.writeAccepted(w)
	case "ping":
		d.writeResult(w, req.ID, struct{}{})
	case "tools/list":
		d.handleToolsList(w, &req)
	case "tools/call":
		d.handleToolsCall(w, r, &req)
	default:
		if req.IsNotification() || strings.HasPrefix(req.Method, "notifications/") {
			// notifications/cancelled and any other unrecognized notification:
			// acknowledged, never produce a response body.
			d.writeAccepted(w)
			return
		}
		d.writeDomainError(w, req.ID, MethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (d *Dispatcher) handleInitialize(w http.ResponseWriter, req *Request) {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			d.writeDomainError(w, req.ID, InvalidParams, "invalid initialize params")
			return
		}
	}

	session := d.sessions.Create(params.ClientInfo, params.ProtocolVersion)

	result := InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      ServerInfo{Name: "mcp-gateway", Version: "1.0.0"},
		Capabilities:    Capabilities{Tools: &ToolsCapability{}},
	}

	w.Header().Set(SessionIDHeader, session.ID)
	d.writeResult(w, req.ID, result)
}

func (d *Dispatcher) handleToolsList(w http.ResponseWriter, req *Request) {
	entries := d.manager.AllTools()
	tools := make([]ToolSchema, 0, len(entries))
	for _, e := range entries {
		tools = append(tools, ToolSchema{
			Name:        PrefixTool(e.ChildID, e.Tool.Name),
			Title:       e.Tool.Title,
			Description: fmt.Sprintf("[%s] %s", e.ChildID, e.Tool.Description),
			InputSchema: e.Tool.InputSchema,
		})
	}
	d.writeResult(w, req.ID, ToolsListResult{Tools: tools})
}

func (d *Dispatcher) handleToolsCall(w http.ResponseWriter, r *http.Request, req *Request) {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		d.writeDomainError(w, req.ID, InvalidParams, "invalid tools/call params")
		return
	}

	childID, toolName, ok := ParsePrefixedTool(params.Name)
	if !ok {
		d.writeDomainError(w, req.ID, InvalidParams, fmt.Sprintf("malformed tool name (expected child__tool): %s", params.Name))
		return
	}

	result, err := d.manager.CallTool(r.Context(), childID, toolName, params.Arguments)
	if err != nil {
		d.writeDomainError(w, req.ID, InternalError, err.Error())
		return
	}

	// The child's content elements are forwarded as received; only REST
	// callers see the normalized shape.
	d.writeResult(w, req.ID, rpcToolCallResult{Content: result.RawContent, IsError: result.IsError})
}

func (d *Dispatcher) handleDelete(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get(SessionIDHeader)
	if sid == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if d.sessions.Delete(sid) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

// writeEnvelopeError reports a malformed envelope (bad JSON, wrong
// jsonrpc version, missing/unknown session) with HTTP 400.
func (d *Dispatcher) writeEnvelopeError(w http.ResponseWriter, id *json.RawMessage, code int, message string) {
	w.WriteHeader(http.StatusBadRequest)
	d.encode(w, NewErrorResponse(id, code, message))
}

// writeDomainError reports a request-level failure (unknown method,
// invalid params, manager/child error) as HTTP 200 with the JSON-RPC error
// embedded in the body, per the transport's error mapping.
func (d *Dispatcher) writeDomainError(w http.ResponseWriter, id *json.RawMessage, code int, message string) {
	d.encode(w, NewErrorResponse(id, code, message))
}

func (d *Dispatcher) writeResult(w http.ResponseWriter, id *json.RawMessage, result any) {
	d.encode(w, NewSuccessResponse(id, result))
}

func (d *Dispatcher) writeAccepted(w http.ResponseWriter) {
	w.WriteHeader(http.StatusAccepted)
}

func (d *Dispatcher) encode(w http.ResponseWriter, resp Response) {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		d.logger.Error("encoding response failed", "error", err)
	}
}

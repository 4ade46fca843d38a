// Package restapi projects a running ServerManager as a plain HTTP/JSON
// surface: one endpoint per tool, plus server control and a live OpenAPI
// document describing the current catalog.
package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kcalvelli/mcp-gateway/pkg/logging"
	"github.com/kcalvelli/mcp-gateway/pkg/mcp"
)

// Server is the REST facade over a ServerManager.
type Server struct {
	manager *mcp.ServerManager
	logger  *slog.Logger
}

// NewServer creates a REST facade for manager.
func NewServer(manager *mcp.ServerManager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Server{manager: manager, logger: logger}
}

// Handler builds the HTTP mux for the facade.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/servers", s.handleListServers)
	mux.HandleFunc("GET /api/servers/{id}", s.handleGetServer)
	mux.HandleFunc("PATCH /api/servers/{id}", s.handlePatchServer)

	mux.HandleFunc("GET /api/tools", s.handleListTools)
	mux.HandleFunc("GET /api/tools/{child}/{tool}", s.handleGetTool)
	mux.HandleFunc("POST /api/tools/{child}/{tool}", s.handleCallTool)
	mux.HandleFunc("POST /tools/{child}/{tool}", s.handleCallTool)

	mux.HandleFunc("GET /openapi.json", s.handleOpenAPI)

	return corsMiddleware(mux)
}

type serverView struct {
	ID            string   `json:"id"`
	State         string   `json:"state"`
	Enabled       bool     `json:"enabled"`
	Tools         []string `json:"tools"`
	LastError     string   `json:"lastError,omitempty"`
	ServerName    string   `json:"serverName,omitempty"`
	ServerVersion string   `json:"serverVersion,omitempty"`
}

func toServerView(info mcp.ServerInfoView) serverView {
	return serverView{
		ID:            info.ID,
		State:         info.State.String(),
		Enabled:       info.Enabled,
		Tools:         info.ToolNames,
		LastError:     info.LastError,
		ServerName:    info.Server.Name,
		ServerVersion: info.Server.Version,
	}
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	ids := s.manager.ServerIDs()
	views := make([]serverView, 0, len(ids))
	for _, id := range ids {
		if info, ok := s.manager.ServerInfo(id); ok {
			views = append(views, toServerView(info))
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, ok := s.manager.ServerInfo(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown server: %s", id))
		return
	}
	writeJSON(w, http.StatusOK, toServerView(info))
}

type patchServerRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handlePatchServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body patchServerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if body.Enabled == nil {
		writeError(w, http.StatusBadRequest, "'enabled' is required")
		return
	}

	var err error
	if *body.Enabled {
		err = s.manager.Enable(r.Context(), id)
	} else {
		err = s.manager.Disable(id)
	}

	switch {
	case errors.Is(err, mcp.ErrUnknownChild):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.logger.Warn("enable/disable failed", "server_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	info, _ := s.manager.ServerInfo(id)
	writeJSON(w, http.StatusOK, toServerView(info))
}

type toolView struct {
	Name        string          `json:"name"`
	ChildID     string          `json:"childId"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

func toToolView(e mcp.ToolEntry) toolView {
	return toolView{
		Name:        mcp.PrefixTool(e.ChildID, e.Tool.Name),
		ChildID:     e.ChildID,
		Description: e.Tool.Description,
		InputSchema: e.Tool.InputSchema,
	}
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	entries := s.manager.AllTools()
	views := make([]toolView, len(entries))
	for i, e := range entries {
		views[i] = toToolView(e)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	childID, toolName := r.PathValue("child"), r.PathValue("tool")
	schema, ok := s.manager.ToolSchemaFor(childID, toolName)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown tool: %s/%s", childID, toolName))
		return
	}
	writeJSON(w, http.StatusOK, toToolView(mcp.ToolEntry{ChildID: childID, Tool: schema}))
}

// callToolRequest is the wrapped `{"arguments": {...}}` request body.
// parseToolArguments accepts both this shape and a bare arguments object.
type callToolRequest struct {
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	childID, toolName := r.PathValue("child"), r.PathValue("tool")

	args, err := parseToolArguments(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	result, err := s.manager.CallTool(r.Context(), childID, toolName, args)
	if err != nil {
		s.writeToolCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result.Content, "isError": result.IsError})
}

func parseToolArguments(r *http.Request) (map[string]any, error) {
	if r.ContentLength == 0 {
		return nil, nil
	}

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	if wrapped, ok := raw["arguments"]; ok {
		if m, ok := wrapped.(map[string]any); ok {
			return m, nil
		}
	}
	return raw, nil
}

func (s *Server) writeToolCallError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mcp.ErrUnknownChild), errors.Is(err, mcp.ErrUnknownTool):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, mcp.ErrChildNotConnected):
		writeError(w, http.StatusConflict, err.Error())
	default:
		var peerErr *mcp.PeerError
		if errors.As(err, &peerErr) {
			writeError(w, http.StatusInternalServerError, peerErr.Message)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestDispatcher(t *testing.T, ids ...string) (*Dispatcher, *ServerManager) {
	t.Helper()
	m := newTestManager(t, ids...)
	return NewDispatcher(m, nil), m
}

func doRPC(t *testing.T, d *Dispatcher, sessionID string, body map[string]any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(raw))
	if sessionID != "" {
		req.Header.Set(SessionIDHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	resp := rec.Result()

	var parsed map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("unmarshal response body %q: %v", rec.Body.String(), err)
		}
	}
	return resp, parsed
}

func TestDispatcher_HappyPath(t *testing.T) {
	d, m := newTestDispatcher(t, "echo")
	defer m.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := m.Enable(ctx, "echo"); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	resp, body := doRPC(t, d, "", map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
		"params": map[string]any{"clientInfo": map[string]any{"name": "t"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initialize status = %d, want 200", resp.StatusCode)
	}
	sid := resp.Header.Get(SessionIDHeader)
	if sid == "" {
		t.Fatal("initialize response missing Mcp-Session-Id header")
	}
	if body["error"] != nil {
		t.Fatalf("initialize returned error: %+v", body["error"])
	}

	resp, _ = doRPC(t, d, sid, map[string]any{
		"jsonrpc": "2.0", "method": "notifications/initialized",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("notifications/initialized status = %d, want 202", resp.StatusCode)
	}

	resp, body = doRPC(t, d, sid, map[string]any{
		"jsonrpc": "2.0", "id": 2, "method": "tools/list",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tools/list status = %d, want 200", resp.StatusCode)
	}
	result, _ := body["result"].(map[string]any)
	tools, _ := result["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("tools/list tools = %+v, want exactly one", tools)
	}
	tool := tools[0].(map[string]any)
	if tool["name"] != "echo__say" {
		t.Fatalf("tool name = %v, want echo__say", tool["name"])
	}

	resp, body = doRPC(t, d, sid, map[string]any{
		"jsonrpc": "2.0", "id": 3, "method": "tools/call",
		"params": map[string]any{"name": "echo__say", "arguments": map[string]any{"msg": "hi"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tools/call status = %d, want 200", resp.StatusCode)
	}
	result, _ = body["result"].(map[string]any)
	content, _ := result["content"].([]any)
	if len(content) != 1 {
		t.Fatalf("tools/call content = %+v, want one element", content)
	}
	item := content[0].(map[string]any)
	if item["type"] != "text" || item["text"] != "hi" {
		t.Fatalf("content[0] = %+v, want {type:text text:hi}", item)
	}

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(SessionIDHeader, sid)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE /mcp status = %d, want 204", rec.Code)
	}
}

func TestDispatcher_NamespacingError(t *testing.T) {
	d, m := newTestDispatcher(t, "echo")
	defer m.Shutdown()

	initResp, _ := doRPC(t, d, "", map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "initialize", "params": map[string]any{},
	})
	sid := initResp.Header.Get(SessionIDHeader)

	httpResp, rpcBody := doRPC(t, d, sid, map[string]any{
		"jsonrpc": "2.0", "id": 2, "method": "tools/call",
		"params": map[string]any{"name": "badname"},
	})
	if httpResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (domain error embedded)", httpResp.StatusCode)
	}
	rpcErr, ok := rpcBody["error"].(map[string]any)
	if !ok {
		t.Fatalf("response = %+v, want an error object", rpcBody)
	}
	if int(rpcErr["code"].(float64)) != InvalidParams {
		t.Fatalf("error code = %v, want %d", rpcErr["code"], InvalidParams)
	}
}

func TestDispatcher_MissingSessionRejected(t *testing.T) {
	d, m := newTestDispatcher(t, "echo")
	defer m.Shutdown()

	resp, _ := doRPC(t, d, "", map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "tools/list",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing session", resp.StatusCode)
	}
}

func TestDispatcher_GetReturns405(t *testing.T) {
	d, m := newTestDispatcher(t)
	defer m.Shutdown()

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /mcp status = %d, want 405", rec.Code)
	}
}

func TestDispatcher_DeleteUnknownSessionReturns404(t *testing.T) {
	d, m := newTestDispatcher(t)
	defer m.Shutdown()

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(SessionIDHeader, "does-not-exist")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("DELETE unknown session status = %d, want 404", rec.Code)
	}
}

// echoserver is a fake MCP child used by pkg/mcp's tests. It speaks the
// same line-delimited JSON-RPC dialect the gateway expects from a real
// child: initialize, tools/list (one tool, "say"), and tools/call. Given
// the argument "crash-on-call" it exits without replying to the first
// tools/call, to exercise the peer-crash path while a request is in
// flight. Given "noisy" it writes a garbage line before every response,
// to exercise the gateway's malformed-line tolerance.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

func main() {
	var crashOnCall, noisy bool
	for _, arg := range os.Args[1:] {
		switch arg {
		case "crash-on-call":
			crashOnCall = true
		case "noisy":
			noisy = true
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	out := bufio.NewWriter(os.Stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}

		if crashOnCall && req.Method == "tools/call" {
			// Die with the request unanswered so the gateway sees the
			// stream close while a waiter is registered.
			os.Exit(1)
		}

		resp := handle(req)
		if resp == nil {
			continue
		}
		if noisy {
			out.WriteString("!!! this line is not JSON !!!\n")
		}
		data, _ := json.Marshal(resp)
		out.Write(data)
		out.WriteByte('\n')
		out.Flush()
	}
}

func handle(req request) *response {
	switch req.Method {
	case "initialize":
		return &response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]any{
				"protocolVersion": "2025-06-18",
				"serverInfo":      map[string]string{"name": "echoserver", "version": "1.0.0"},
				"capabilities":    map[string]any{"tools": map[string]any{}},
			},
		}
	case "notifications/initialized":
		return nil
	case "tools/list":
		return &response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]any{
				"tools": []map[string]any{
					{
						"name":        "say",
						"description": "Echoes the msg argument back as text",
						"inputSchema": map[string]any{
							"type":       "object",
							"properties": map[string]any{"msg": map[string]any{"type": "string"}},
							"required":   []string{"msg"},
						},
					},
				},
			},
		}
	case "tools/call":
		var params toolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return &response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32602, Message: "invalid params"}}
		}
		if params.Name != "say" {
			return &response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32602, Message: "unknown tool"}}
		}
		msg, _ := params.Arguments["msg"].(string)
		return &response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]any{
				"content": []map[string]any{{"type": "text", "text": msg}},
			},
		}
	case "ping":
		return &response{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}}
	default:
		return &response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: fmt.Sprintf("unknown method: %s", req.Method)}}
	}
}

// Command mcp-gateway fronts a fleet of locally-spawned MCP child processes
// and re-exposes their aggregated tool surface as a REST/OpenAPI facade and
// a native MCP Streamable-HTTP transport endpoint.
package main

func main() {
	Execute()
}

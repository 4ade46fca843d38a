package restapi

import (
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/kcalvelli/mcp-gateway/pkg/mcp"
)

// handleOpenAPI builds and serves an OpenAPI document describing every
// Connected child's tools as HTTP operations, regenerated on each request
// so it always reflects the live catalog.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	doc := buildOpenAPIDocument(s.manager.AllTools())
	writeJSON(w, http.StatusOK, doc)
}

func buildOpenAPIDocument(entries []mcp.ToolEntry) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   "MCP Gateway",
			Version: "1.0.0",
		},
		Paths: openapi3.NewPaths(),
	}

	for _, e := range entries {
		path := fmt.Sprintf("/api/tools/%s/%s", e.ChildID, e.Tool.Name)

		schema := &openapi3.Schema{}
		if len(e.Tool.InputSchema) > 0 {
			_ = schema.UnmarshalJSON(e.Tool.InputSchema)
		} else {
			schema.Type = &openapi3.Types{"object"}
		}

		op := &openapi3.Operation{
			OperationID: mcp.PrefixTool(e.ChildID, e.Tool.Name),
			Summary:     e.Tool.Description,
			RequestBody: &openapi3.RequestBodyRef{
				Value: &openapi3.RequestBody{
					Content: openapi3.Content{
						"application/json": &openapi3.MediaType{
							Schema: &openapi3.SchemaRef{Value: schema},
						},
					},
				},
			},
			Responses: openapi3.NewResponses(),
		}

		doc.Paths.Set(path, &openapi3.PathItem{Post: op})
	}

	return doc
}

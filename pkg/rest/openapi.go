package rest

import (
	"cmp"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/edgeflare/restful/pkg/pgx/schema"
	"github.com/edgeflare/restful/pkg/rest/filter"
	"github.com/edgeflare/restful/pkg/rest/pagination"
)

// OpenAPIInfo is the info object of the generated document.
type OpenAPIInfo struct {
	Title       string `json:"title" mapstructure:"title"`
	Description string `json:"description" mapstructure:"description"`
	Version     string `json:"version" mapstructure:"version"`
	// BaseURL is the server URL, omitted when empty.
	BaseURL string `json:"-" mapstructure:"base_url"`
}

// OpenAPI documents the registered routes as an OpenAPI 3.1 document.
func (s *Server) OpenAPI(info OpenAPIInfo) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make(map[string]any)
	schemas := make(map[string]any)
	for _, rt := range s.routeList {
		res := s.resources[rt.Resource]
		schemas[res.Name] = res.serializer.table.ObjectSchema(res.serializer.Fields, true)

		ops := make(map[string]any, len(rt.Bindings))
		for _, b := range rt.Bindings {
			ops[strings.ToLower(b.Method)] = s.operation(res, rt, b)
		}
		paths[rt.Path] = ops
	}

	doc := map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":       cmp.Or(info.Title, "restful"),
			"description": info.Description,
			"version":     cmp.Or(info.Version, "0.0.0"),
		},
		"paths": paths,
		"components": map[string]any{
			"schemas": schemas,
			"securitySchemes": map[string]any{
				"bearerAuth": map[string]any{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
					"description":  "OIDC access token. Use format: Bearer <token>",
				},
				"basicAuth": map[string]any{
					"type":        "http",
					"scheme":      "basic",
					"description": "Basic HTTP authentication using username and password",
				},
			},
		},
		"security": []map[string][]string{
			{"bearerAuth": {}},
			{"basicAuth": {}},
		},
	}
	if info.BaseURL != "" {
		doc["servers"] = []map[string]any{{"url": strings.TrimSuffix(info.BaseURL, "/")}}
	}
	return doc
}

// OpenAPIHandler serves the document as JSON.
func (s *Server) OpenAPIHandler(info OpenAPIInfo) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(s.OpenAPI(info))
	})
}

func ref(name string) map[string]string {
	return map[string]string{"$ref": "#/components/schemas/" + name}
}

func jsonContent(schema any) map[string]any {
	return map[string]any{"application/json": map[string]any{"schema": schema}}
}

func (s *Server) operation(res *resource, rt Route, b Binding) map[string]any {
	op := map[string]any{
		"operationId": res.Name + "_" + b.Action,
		"summary":     fmt.Sprintf("%s %s", strings.ReplaceAll(b.Action, "_", " "), res.Name),
		"tags":        []string{res.Name},
	}

	var params []map[string]any
	if rt.Detail {
		col, _ := res.table.Column(res.lookup)
		params = append(params, map[string]any{
			"name":     res.lookup,
			"in":       "path",
			"required": true,
			"schema":   schema.ColumnSchema(col),
		})
	}

	responses := map[string]any{
		"403": map[string]string{"description": "Forbidden"},
	}
	switch b.Action {
	case ActionList:
		params = append(params, s.listParameters(res)...)
		responses["200"] = map[string]any{"description": "Success", "content": jsonContent(listSchema(res))}
	case ActionRetrieve:
		params = append(params, expandParameter(res)...)
		responses["200"] = map[string]any{"description": "Success", "content": jsonContent(ref(res.Name))}
		responses["404"] = map[string]string{"description": "Not Found"}
	case ActionCreate, ActionUpdate, ActionPartialUpdate:
		op["requestBody"] = map[string]any{
			"required": true,
			"content":  jsonContent(res.serializer.Schema(b.Action == ActionPartialUpdate)),
		}
		code := "200"
		if b.Action == ActionCreate {
			code = "201"
			responses["409"] = map[string]string{"description": "Conflict"}
		} else {
			responses["404"] = map[string]string{"description": "Not Found"}
		}
		responses[code] = map[string]any{"description": "Success", "content": jsonContent(ref(res.Name))}
		responses["400"] = map[string]string{"description": "Bad Request"}
	case ActionDestroy:
		responses["204"] = map[string]string{"description": "No Content"}
		responses["404"] = map[string]string{"description": "Not Found"}
	default:
		responses["200"] = map[string]string{"description": "Success"}
	}

	if len(params) > 0 {
		op["parameters"] = params
	}
	op["responses"] = responses
	return op
}

func listSchema(res *resource) map[string]any {
	array := map[string]any{"type": "array", "items": ref(res.Name)}
	switch res.pagination.(type) {
	case nil, *pagination.LinkHeader:
		return array
	default:
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"count":    map[string]string{"type": "integer"},
				"next":     map[string]any{"type": []string{"string", "null"}, "format": "uri"},
				"previous": map[string]any{"type": []string{"string", "null"}, "format": "uri"},
				"results":  array,
			},
		}
	}
}

func (s *Server) listParameters(res *resource) []map[string]any {
	var params []map[string]any
	for _, k := range res.kinds {
		for _, f := range res.spec.Fields(k) {
			path, ok := s.fieldPath(res.table, f, k == filter.Order)
			if !ok {
				continue
			}
			p := map[string]any{
				"name":        fmt.Sprintf("%s[%s]", k, path),
				"in":          "query",
				"description": kindDescription(k, path),
				"schema":      map[string]string{"type": "string"},
			}
			if k == filter.Order {
				p["schema"] = map[string]any{"type": "string", "enum": []string{"asc", "desc"}}
			}
			params = append(params, p)
		}
	}

	if res.pagination != nil {
		base := res.pagination.Base()
		params = append(params, map[string]any{
			"name":        cmp.Or(base.PageQueryParam, pagination.DefaultPageQueryParam),
			"in":          "query",
			"description": "A page number within the paginated result set.",
			"schema":      map[string]string{"type": "integer"},
		})
		if base.PageSizeQueryParam != "" {
			params = append(params, map[string]any{
				"name":        base.PageSizeQueryParam,
				"in":          "query",
				"description": "Number of results to return per page.",
				"schema":      map[string]string{"type": "integer"},
			})
		}
	}
	return append(params, expandParameter(res)...)
}

func expandParameter(res *resource) []map[string]any {
	if len(res.expand) == 0 {
		return nil
	}
	return []map[string]any{{
		"name":        ExpandQueryParam,
		"in":          "query",
		"description": "Comma separated relationships to embed.",
		"schema":      map[string]string{"type": "string"},
	}}
}

func kindDescription(k filter.Kind, path string) string {
	switch k {
	case filter.Search:
		return fmt.Sprintf("Case-insensitive search on %s. Comma separated values match any.", path)
	case filter.Order:
		return fmt.Sprintf("Sort by %s.", path)
	default:
		return fmt.Sprintf("Filter by %s. Comma separated values match any.", path)
	}
}

// maxFieldDepth bounds the relationship walk of fieldPath.
const maxFieldDepth = 3

// fieldPath finds the shortest relationship path from root to the table
// owning f, rendered as the dotted parameter path. Sort paths cannot cross
// to-many relationships.
func (s *Server) fieldPath(root schema.Table, f filter.Field, forwardOnly bool) (string, bool) {
	type step struct {
		table schema.Table
		path  []string
	}
	queue := []step{{table: root}}
	visited := map[string]bool{root.Key(): true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.table.Key() == f.Table {
			return strings.Join(append(cur.path, f.Column), "."), true
		}
		if len(cur.path) == maxFieldDepth {
			continue
		}
		for _, rel := range cur.table.Relationships {
			if visited[rel.Target] || (forwardOnly && rel.Many) {
				continue
			}
			next, ok := s.catalog.Lookup(rel.Target)
			if !ok {
				continue
			}
			visited[rel.Target] = true
			queue = append(queue, step{table: next, path: append(append([]string(nil), cur.path...), rel.Name)})
		}
	}
	return "", false
}

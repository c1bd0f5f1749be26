package schema

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/edgeflare/pgview/pkg/view"
)

// OpenAPIInfo contains API metadata for the OpenAPI specification
type OpenAPIInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Snapshotter provides the relations to describe. *Cache implements it.
type Snapshotter interface {
	Snapshot() map[string]Relation
}

// OpenAPIGenerator describes the view query endpoint, with one request body
// variant per cached relation.
type OpenAPIGenerator struct {
	catalog   Snapshotter
	baseURL   string
	targetKey string
	info      OpenAPIInfo
}

func NewOpenAPIGenerator(catalog Snapshotter, baseURL, targetKey string, info OpenAPIInfo) *OpenAPIGenerator {
	if targetKey == "" {
		targetKey = view.DefaultTargetKey
	}
	return &OpenAPIGenerator{
		catalog:   catalog,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		targetKey: targetKey,
		info:      info,
	}
}

// ServeHTTP implements http.Handler to serve the OpenAPI specification
func (g *OpenAPIGenerator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(g.GenerateSpecification())
}

// GenerateSpecification creates a complete OpenAPI specification
func (g *OpenAPIGenerator) GenerateSpecification() map[string]any {
	relations := g.catalog.Snapshot()

	names := make([]string, 0, len(relations))
	for name := range relations {
		names = append(names, name)
	}
	slices.Sort(names)

	schemas := make(map[string]any, len(relations)+1)
	variants := make([]map[string]any, 0, len(relations))
	for _, name := range names {
		r := relations[name]
		schemas[r.fullName()] = g.buildRequestSchema(r)
		variants = append(variants, map[string]any{"$ref": "#/components/schemas/" + r.fullName()})
	}
	schemas["Error"] = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"success": map[string]any{"type": "boolean"},
			"message": map[string]any{"type": "string"},
		},
	}

	requestSchema := map[string]any{"type": "object"}
	if len(variants) > 0 {
		requestSchema = map[string]any{"oneOf": variants}
	}

	errorResponse := func(description string) map[string]any {
		return map[string]any{
			"description": description,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": "#/components/schemas/Error"},
				},
			},
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":       g.info.Title,
			"description": g.info.Description,
			"version":     g.info.Version,
		},
		"servers": []map[string]any{
			{"url": g.baseURL, "description": "API Server"},
		},
		"paths": map[string]any{
			"/view/query": map[string]any{
				"post": map[string]any{
					"summary":     "Query a view",
					"operationId": "queryView",
					"requestBody": map[string]any{
						"required": true,
						"content": map[string]any{
							"application/json": map[string]any{"schema": requestSchema},
						},
					},
					"responses": map[string]any{
						"200": map[string]any{"description": "Matching rows and column metadata"},
						"400": errorResponse("Invalid request or query rejected by the database"),
						"500": errorResponse("Internal server error"),
					},
				},
			},
		},
		"components": map[string]any{"schemas": schemas},
	}
}

// buildRequestSchema lists the target key and every filter key accepted for r.
func (g *OpenAPIGenerator) buildRequestSchema(r Relation) map[string]any {
	target := r.fullName()
	properties := map[string]any{
		g.targetKey: map[string]any{"type": "string", "enum": []string{target}},
	}

	for _, col := range r.Columns {
		schema := getColumnSchema(col)
		if col.Description != "" {
			schema["description"] = col.Description
		}
		properties[col.Name] = schema
		for _, token := range view.Operators() {
			if token == view.DefaultOperator {
				continue
			}
			properties[col.Name+view.KeySeparator+token] = getColumnSchema(col)
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             []string{g.targetKey},
		"additionalProperties": false,
	}
	if r.Description != "" {
		schema["description"] = r.Description
	}
	return schema
}

// getColumnSchema maps PostgreSQL data types to OpenAPI schema types
func getColumnSchema(col Column) map[string]any {
	t := col.DataType
	switch {
	case strings.HasPrefix(t, "interval"):
		return map[string]any{"type": "string"}
	case strings.HasPrefix(t, "smallint"):
		return map[string]any{"type": "integer", "format": "int16"}
	case strings.HasPrefix(t, "bigint"):
		return map[string]any{"type": "integer", "format": "int64"}
	case strings.HasPrefix(t, "integer"):
		return map[string]any{"type": "integer", "format": "int32"}
	case strings.HasPrefix(t, "numeric"), strings.HasPrefix(t, "real"), strings.HasPrefix(t, "double"):
		return map[string]any{"type": "number"}
	case t == "boolean":
		return map[string]any{"type": "boolean"}
	case strings.HasPrefix(t, "timestamp"):
		return map[string]any{"type": "string", "format": "date-time"}
	case t == "date":
		return map[string]any{"type": "string", "format": "date"}
	case strings.HasPrefix(t, "time"):
		return map[string]any{"type": "string", "format": "time"}
	case t == "uuid":
		return map[string]any{"type": "string", "format": "uuid"}
	default:
		return map[string]any{"type": "string"}
	}
}

package httpapi

import (
	"net/http"

	"github.com/Guilhem-Bonnet/anisync/internal/httpjson"
)

// handleOpenAPI décrit l'API locale de façon minimale.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	jsonOK := func(schemaRef string) map[string]any {
		return map[string]any{
			"description": "OK",
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": schemaRef},
				},
			},
		}
	}
	jsonErr := map[string]any{
		"description": "Error",
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{"$ref": "#/components/schemas/Error"},
			},
		},
	}
	op := func(summary, okRef string) map[string]any {
		return map[string]any{
			"summary": summary,
			"responses": map[string]any{
				"200":     jsonOK(okRef),
				"default": jsonErr,
			},
		}
	}
	object := map[string]any{"type": "object", "additionalProperties": true}

	spec := map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "anisync API",
			"version": "v1",
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"Object": object,
				"Error": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error":  map[string]any{"type": "string"},
						"code":   map[string]any{"type": "string"},
						"fields": map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
					},
					"required": []any{"error"},
				},
				"ListEntry": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"localId":         map[string]any{"type": "integer"},
						"mediaId":         map[string]any{"type": "integer"},
						"remoteId":        map[string]any{"type": "integer"},
						"status":          map[string]any{"type": "string", "enum": []any{"CURRENT", "PLANNING", "COMPLETED", "DROPPED", "PAUSED", "REPEATING"}},
						"score":           map[string]any{"type": "number", "minimum": 0, "maximum": 10},
						"progress":        map[string]any{"type": "integer", "minimum": 0},
						"updatedAtLocal":  map[string]any{"type": "string", "format": "date-time"},
						"updatedAtRemote": map[string]any{"type": "string", "format": "date-time"},
						"syncState":       map[string]any{"type": "string", "enum": []any{"CLEAN", "DIRTY", "CONFLICTED"}},
					},
				},
			},
		},
		"paths": map[string]any{
			"/api/v1/health":                 map[string]any{"get": op("Health", "#/components/schemas/Object")},
			"/api/v1/version":                map[string]any{"get": op("Build info", "#/components/schemas/Object")},
			"/api/v1/events":                 map[string]any{"get": map[string]any{"summary": "Server-Sent Events (media.ready, list.updated, auth.required, sync.error)"}},
			"/api/v1/media/{id}":             map[string]any{"get": op("Media details, served from cache when fresh", "#/components/schemas/Object")},
			"/api/v1/search":                 map[string]any{"get": op("Search the catalog", "#/components/schemas/Object")},
			"/api/v1/profile/{name}":         map[string]any{"get": op("User profile", "#/components/schemas/Object")},
			"/api/v1/list":                   map[string]any{"get": op("Local list entries", "#/components/schemas/ListEntry")},
			"/api/v1/list/{mediaID}":         map[string]any{"put": op("Edit a list entry", "#/components/schemas/ListEntry")},
			"/api/v1/list/{localID}/resolve": map[string]any{"post": op("Resolve a conflict (keep-local | adopt-remote)", "#/components/schemas/Object")},
			"/api/v1/conflicts":              map[string]any{"get": op("Pending conflicts", "#/components/schemas/Object")},
			"/api/v1/sync": map[string]any{
				"get":  op("Sync status", "#/components/schemas/Object"),
				"post": op("Pull then push", "#/components/schemas/Object"),
			},
			"/api/v1/sync/cancel":  map[string]any{"post": op("Cancel the running sync", "#/components/schemas/Object")},
			"/api/v1/sync/offline": map[string]any{"put": op("Toggle offline mode", "#/components/schemas/Object")},
			"/api/v1/auth/status":  map[string]any{"get": op("Auth state", "#/components/schemas/Object")},
			"/api/v1/auth/login":   map[string]any{"post": op("Start an authorization", "#/components/schemas/Object")},
			"/api/v1/auth/logout":  map[string]any{"post": map[string]any{"summary": "Clear the credential", "responses": map[string]any{"204": map[string]any{"description": "No Content"}}}},
		},
	}

	httpjson.Write(w, http.StatusOK, spec)
}

// Package docs is the API documentation package, written by hand in the
// shape swaggo/swag init produces from the @-annotations in cmd/api/main.go
// and internal/handlers; swag init is not run, so edit it alongside them.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["text/plain"],
                "tags": ["System"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/upload": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Uploads"],
                "summary": "Upload a sightings CSV",
                "parameters": [
                    {"type": "file", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"}
                }
            }
        },
        "/api/uploads/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Uploads"],
                "summary": "Get upload metadata",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            },
            "put": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Uploads"],
                "summary": "Replace an upload's data",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "file", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized"}
                }
            },
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Uploads"],
                "summary": "Rename an upload",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized"}
                }
            },
            "delete": {
                "tags": ["Uploads"],
                "summary": "Delete an upload",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/api/uploads/{id}/count": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Sightings"],
                "summary": "Count sightings",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "filter", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/uploads/{id}/sightings": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Sightings"],
                "summary": "List or group sightings",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "filter", "in": "query"},
                    {"type": "string", "name": "sort_by", "in": "query"},
                    {"type": "string", "name": "sort_dir", "in": "query"},
                    {"type": "integer", "name": "page_size", "in": "query"},
                    {"type": "string", "name": "cursor", "in": "query"},
                    {"type": "array", "items": {"type": "string"}, "name": "group_by", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/uploads/{id}/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Sightings"],
                "summary": "Upload summary statistics",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "filter", "in": "query"},
                    {"type": "boolean", "name": "lifers_only", "in": "query"},
                    {"type": "integer", "name": "year_tick_year", "in": "query"},
                    {"type": "string", "name": "country_tick_country", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/fields": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Fields"],
                "summary": "List filterable fields",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/uploads/{id}/fields/{field}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Fields"],
                "summary": "List distinct values for a field",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "field", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/tiles/{id}/{z}/{x}/{y}": {
            "get": {
                "produces": ["application/x-protobuf"],
                "tags": ["Tiles"],
                "summary": "Get a vector tile of sightings",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "name": "z", "in": "path", "required": true},
                    {"type": "integer", "name": "x", "in": "path", "required": true},
                    {"type": "string", "name": "y", "in": "path", "required": true},
                    {"type": "string", "name": "filter", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Redgrouse Backend API",
	Description:      "Bird-sighting CSV ingestion, query, and vector-tile serving API",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

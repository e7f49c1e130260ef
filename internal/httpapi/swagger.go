//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// spec is the served OpenAPI document; `swag init` output can replace it.
var spec = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "shardgen API",
	Description:      "Greedy text generation over sharded checkpoints served by an external runtime.",
	InfoInstanceName: swag.Name,
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

const docTemplate = `{
  "swagger": "2.0",
  "info": {"title": "{{.Title}}", "description": "{{escape .Description}}", "version": "{{.Version}}"},
  "basePath": "{{.BasePath}}",
  "schemes": {{ marshal .Schemes }},
  "paths": {
    "/generate": {"post": {
      "summary": "Generate continuations",
      "consumes": ["application/json"],
      "produces": ["application/json"],
      "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/GenerateRequest"}}],
      "responses": {
        "200": {"description": "OK", "schema": {"$ref": "#/definitions/GenerateResponse"}},
        "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
        "409": {"description": "Not materialized", "schema": {"$ref": "#/definitions/ErrorResponse"}},
        "429": {"description": "Too busy", "schema": {"$ref": "#/definitions/ErrorResponse"}},
        "503": {"description": "Not ready", "schema": {"$ref": "#/definitions/ErrorResponse"}}
      }
    }},
    "/manifest": {"get": {"summary": "Checkpoint manifest", "produces": ["application/json"],
      "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Manifest"}}}}},
    "/status": {"get": {"summary": "Pipeline status", "produces": ["application/json"],
      "responses": {"200": {"description": "OK"}}}}
  },
  "definitions": {
    "GenerateRequest": {"type": "object", "properties": {
      "inputs": {"type": "array", "items": {"type": "string"}},
      "max_new_tokens": {"type": "integer", "example": 5}}},
    "GenerateResponse": {"type": "object", "properties": {
      "outputs": {"type": "array", "items": {"type": "string"}},
      "cached": {"type": "boolean"}}},
    "Manifest": {"type": "object", "properties": {
      "type": {"type": "string"},
      "checkpoints": {"type": "array", "items": {"type": "string"}},
      "version": {"type": "number"}}},
    "ErrorResponse": {"type": "object", "properties": {
      "error": {"type": "string"},
      "code": {"type": "integer"}}}
  }
}`

func init() {
	swag.Register(spec.InstanceName(), spec)
}

// MountSwagger serves the UI under /swagger/ and the document at /swagger/doc.json.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

// Package docs swagger document of the debug surface.
// Regenerate with: swag init -g internal/chatsync/router/router.go -o cmd/chat_sync/docs
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
        "/": {
            "get": {
                "description": "Returns a simple confirmation message",
                "tags": ["Shared"],
                "summary": "Check chat sync status",
                "responses": {
                    "200": {"description": "chat sync start!", "schema": {"type": "string"}}
                }
            }
        },
        "/debug": {
            "post": {
                "description": "Enable or disable debug logging, requires an admin token when jwt_secret is set",
                "tags": ["Shared"],
                "summary": "Toggle Debug Log Flag",
                "parameters": [
                    {"type": "boolean", "description": "Debug status", "name": "status", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "debug mode updated", "schema": {"type": "string"}},
                    "400": {"description": "Invalid status value", "schema": {"type": "string"}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "403": {"description": "Forbidden", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/debug/chat/events": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Debug"],
                "summary": "Debug events",
                "parameters": [
                    {"type": "integer", "description": "Max events, 0 returns every buffered event", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/debug/chat/metrics": {
            "get": {
                "description": "Connections, joined rooms, messages and disconnects in the window, top error codes",
                "produces": ["application/json"],
                "tags": ["Debug"],
                "summary": "Debug metrics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Metrics"}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/debug/chat/reset": {
            "post": {
                "description": "Only when debug.allow_reset is set, requires an admin token when jwt_secret is set",
                "produces": ["application/json"],
                "tags": ["Debug"],
                "summary": "Reset debug store",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "403": {"description": "Forbidden", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/debug/chat/session": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Debug"],
                "summary": "Session state",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/app.SessionStats"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "app.SessionStats": {
            "type": "object",
            "properties": {
                "active": {"type": "string"},
                "connected": {"type": "boolean"},
                "conversations": {"type": "integer"},
                "entries": {"type": "integer"},
                "joinedRoom": {"type": "string"},
                "outbox": {"type": "integer"},
                "seen": {"type": "integer"},
                "socketId": {"type": "string"}
            }
        },
        "domain.ErrorCount": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "count": {"type": "integer"}
            }
        },
        "domain.Metrics": {
            "type": "object",
            "properties": {
                "activeConnections": {"type": "integer"},
                "disconnectsInWindow": {"type": "integer"},
                "eventCount": {"type": "integer"},
                "generatedAt": {"type": "string"},
                "joinedRooms": {"type": "integer"},
                "messagesInWindow": {"type": "integer"},
                "topErrors": {"type": "array", "items": {"$ref": "#/definitions/domain.ErrorCount"}},
                "window": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8090",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Chat Sync Debug API",
	Description:      "Debug surface of the chat sync daemon",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

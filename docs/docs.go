// Package docs registers the OpenAPI description served at /swagger.
// Regenerate with `swag init -g cmd/bmcc/main.go -o docs`.
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
        "/healthz": {
            "get": {"tags": ["health"], "summary": "Health check", "responses": {"200": {"description": "OK"}}}
        },
        "/readyz": {
            "get": {"tags": ["health"], "summary": "Readiness check", "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}}
        },
        "/tracking/owntracks/": {
            "post": {
                "tags": ["tracking"],
                "summary": "OwnTracks HTTP webhook",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "OwnTracks user", "name": "X-Limit-U", "in": "header"},
                    {"type": "string", "description": "OwnTracks device", "name": "X-Limit-D", "in": "header"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/tracking/api/{beacon_id}/ping/": {
            "post": {
                "tags": ["tracking"],
                "summary": "Direct beacon report",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "beacon id", "name": "beacon_id", "in": "path", "required": true},
                    {"description": "position", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/tracking.APIPing"}}
                ],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/missions/{mission_id}/parameters": {
            "put": {
                "tags": ["missions"],
                "summary": "Replace the mission flight profile",
                "parameters": [{"type": "string", "name": "mission_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/missions/{mission_id}/launch-sites/{site_id}/predictions": {
            "post": {
                "tags": ["predictions"],
                "summary": "Request a prediction for a launch site",
                "parameters": [
                    {"type": "string", "name": "mission_id", "in": "path", "required": true},
                    {"type": "string", "name": "site_id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "202": {"description": "Accepted"}}
            }
        },
        "/api/missions/{mission_id}/assets/{asset_id}/launched": {
            "post": {
                "tags": ["missions"],
                "summary": "Mark an asset launched",
                "parameters": [
                    {"type": "string", "name": "mission_id", "in": "path", "required": true},
                    {"type": "string", "name": "asset_id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/missions/{mission_id}/assets/{asset_id}/landed": {
            "post": {
                "tags": ["missions"],
                "summary": "Mark an asset landed",
                "parameters": [
                    {"type": "string", "name": "mission_id", "in": "path", "required": true},
                    {"type": "string", "name": "asset_id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/beacons/{beacon_id}/messages": {
            "post": {
                "tags": ["beacons"],
                "summary": "Queue a message for an OwnTracks beacon",
                "parameters": [{"type": "string", "name": "beacon_id", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/beacons/{beacon_id}/backend": {
            "get": {
                "tags": ["beacons"],
                "summary": "Beacon backend diagnostics",
                "parameters": [{"type": "string", "name": "beacon_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/beacons/{beacon_id}/pings/latest": {
            "get": {
                "tags": ["beacons"],
                "summary": "Latest ping of a beacon",
                "parameters": [{"type": "string", "name": "beacon_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/predictions/{id}": {
            "get": {
                "tags": ["predictions"],
                "summary": "Get a prediction",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/predictions/sweep": {
            "post": {"tags": ["predictions"], "summary": "Enqueue a prediction sweep", "responses": {"202": {"description": "Accepted"}}}
        },
        "/api/settings/switches": {
            "get": {"tags": ["settings"], "summary": "List feature switches", "responses": {"200": {"description": "OK"}}}
        },
        "/api/settings/switches/{name}": {
            "put": {
                "tags": ["settings"],
                "summary": "Turn a feature switch on or off",
                "parameters": [{"type": "string", "name": "name", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "tracking.APIPing": {
            "type": "object",
            "required": ["latitude", "longitude"],
            "properties": {
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "altitude": {"type": "number"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "bmcc API",
	Description:      "Balloon mission tracking and flight prediction.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

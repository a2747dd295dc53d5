// Package docs registers the OpenAPI document served at /api/openapi.json and /swagger/.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {"name": "Quill"},
        "license": {"name": "MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Liveness probe",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/api/users/register": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Register a new user",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/httpapp.registerRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/blog.Session"}},
                    "400": {"description": "Validation failed or user exists", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}}
                }
            }
        },
        "/api/users/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Log in",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/httpapp.loginRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/blog.Session"}},
                    "400": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}}
                }
            }
        },
        "/api/users/profile": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Get the current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.User"}},
                    "401": {"description": "Unauthenticated", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Update username or email",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/httpapp.profileRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.User"}},
                    "400": {"description": "Validation failed or email in use", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}},
                    "401": {"description": "Unauthenticated", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}}
                }
            }
        },
        "/api/posts": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Posts"],
                "summary": "List posts, newest first",
                "parameters": [
                    {"type": "integer", "default": 1, "name": "page", "in": "query"},
                    {"type": "integer", "default": 10, "maximum": 100, "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/model.PostPage"}}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Posts"],
                "summary": "Create a post",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/httpapp.postRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/model.Post"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}},
                    "401": {"description": "Unauthenticated", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}}
                }
            }
        },
        "/api/posts/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Posts"],
                "summary": "Get a post",
                "parameters": [{"type": "string", "format": "uuid", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Post"}},
                    "400": {"description": "Invalid ID format", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}},
                    "404": {"description": "Post not found", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Posts"],
                "summary": "Update your own post",
                "parameters": [
                    {"type": "string", "format": "uuid", "name": "id", "in": "path", "required": true},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/httpapp.postRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Post"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}},
                    "401": {"description": "Unauthenticated", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}},
                    "403": {"description": "Not the author", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}},
                    "404": {"description": "Post not found", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}},
                    "409": {"description": "Modified concurrently", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Posts"],
                "summary": "Delete your own post",
                "parameters": [{"type": "string", "format": "uuid", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Post removed", "schema": {"$ref": "#/definitions/httpapp.messageResponse"}},
                    "401": {"description": "Unauthenticated", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}},
                    "403": {"description": "Not the author", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}},
                    "404": {"description": "Post not found", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}}
                }
            }
        },
        "/api/posts/{id}/comments": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Posts"],
                "summary": "Comment on a post",
                "parameters": [
                    {"type": "string", "format": "uuid", "name": "id", "in": "path", "required": true},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/httpapp.commentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Comments, newest first", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.Comment"}}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}},
                    "404": {"description": "Post not found", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}}
                }
            }
        },
        "/api/posts/{id}/like": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Posts"],
                "summary": "Toggle your like on a post",
                "parameters": [{"type": "string", "format": "uuid", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Current like set", "schema": {"$ref": "#/definitions/httpapp.likesResponse"}},
                    "404": {"description": "Post not found", "schema": {"$ref": "#/definitions/httpapp.errorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "blog.Identity": {
            "type": "object",
            "properties": {"id": {"type": "string"}, "username": {"type": "string"}, "email": {"type": "string"}}
        },
        "blog.Session": {
            "type": "object",
            "properties": {"token": {"type": "string"}, "user": {"$ref": "#/definitions/blog.Identity"}}
        },
        "model.User": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "username": {"type": "string"},
                "email": {"type": "string"},
                "createdAt": {"type": "string", "format": "date-time"},
                "updatedAt": {"type": "string", "format": "date-time"}
            }
        },
        "model.AuthorRef": {
            "type": "object",
            "properties": {"id": {"type": "string"}, "username": {"type": "string"}}
        },
        "model.Comment": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user": {"$ref": "#/definitions/model.AuthorRef"},
                "text": {"type": "string"},
                "createdAt": {"type": "string", "format": "date-time"}
            }
        },
        "model.Post": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "content": {"type": "string"},
                "author": {"$ref": "#/definitions/model.AuthorRef"},
                "tags": {"type": "array", "items": {"type": "string"}},
                "comments": {"type": "array", "items": {"$ref": "#/definitions/model.Comment"}},
                "likes": {"type": "array", "items": {"type": "string"}},
                "createdAt": {"type": "string", "format": "date-time"},
                "updatedAt": {"type": "string", "format": "date-time"}
            }
        },
        "model.PostPage": {
            "type": "object",
            "properties": {
                "posts": {"type": "array", "items": {"$ref": "#/definitions/model.Post"}},
                "currentPage": {"type": "integer"},
                "totalPages": {"type": "integer"},
                "totalPosts": {"type": "integer"}
            }
        },
        "httpapp.registerRequest": {
            "type": "object",
            "required": ["username", "email", "password"],
            "properties": {
                "username": {"type": "string", "minLength": 3},
                "email": {"type": "string"},
                "password": {"type": "string", "minLength": 6}
            }
        },
        "httpapp.loginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {"email": {"type": "string"}, "password": {"type": "string"}}
        },
        "httpapp.profileRequest": {
            "type": "object",
            "properties": {"username": {"type": "string", "minLength": 3}, "email": {"type": "string"}}
        },
        "httpapp.postRequest": {
            "type": "object",
            "required": ["title", "content"],
            "properties": {
                "title": {"type": "string", "minLength": 5, "maxLength": 100},
                "content": {"type": "string", "minLength": 10},
                "tags": {"type": "array", "items": {"type": "string"}}
            }
        },
        "httpapp.commentRequest": {
            "type": "object",
            "required": ["text"],
            "properties": {"text": {"type": "string", "minLength": 3}}
        },
        "httpapp.likesResponse": {
            "type": "object",
            "properties": {"likes": {"type": "array", "items": {"type": "string"}}}
        },
        "httpapp.messageResponse": {
            "type": "object",
            "properties": {"message": {"type": "string"}}
        },
        "httpapp.errorResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "errors": {"type": "array", "items": {"$ref": "#/definitions/validate.Violation"}}
            }
        },
        "validate.Violation": {
            "type": "object",
            "properties": {"field": {"type": "string"}, "message": {"type": "string"}}
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"description": "Bearer token from /api/users/login", "type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Quill API",
	Description:      "Blogging API: accounts, posts, comments and likes.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// Package httpapp provides the HTTP server for Quill.
//
//	@title						Quill API
//	@version					1.0
//	@description				A blogging API. Users register, log in, write posts and comment on and like each other's posts.
//	@description
//	@description				## Authentication
//	@description
//	@description				Register or log in to receive a token, then send it on every write:
//	@description				```bash
//	@description				curl -X POST /api/users/login -d '{"email":"a@b.com","password":"secret1"}'
//	@description				# Returns: {"token": "TOKEN", "user": {...}}
//	@description				curl -X POST /api/posts -H "Authorization: Bearer TOKEN" -d '{...}'
//	@description				```
//	@description				Tokens expire after seven days.
//
//	@contact.name				Quill
//	@license.name				MIT
//
//	@host						localhost:5000
//	@BasePath					/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token from /api/users/login
//
//	@tag.name					Users
//	@tag.description			Registration, login and profile management.
//
//	@tag.name					Posts
//	@tag.description			Posts with comments and likes. Only the author may edit or delete a post.
//
//	@tag.name					System
//	@tag.description			Health and API description.
package httpapp

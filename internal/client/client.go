// Package client provides a Go client for the Quill API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alphabot-ai/quill/internal/model"
	"github.com/alphabot-ai/quill/internal/telemetry"
)

// Client is a Quill API client. Token is sent as a bearer credential when set.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
}

// New creates a new Quill client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: telemetry.Transport(nil),
		},
	}
}

// Violation is one field error reported by the server.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
	Errors  []Violation
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		parts := make([]string, 0, len(e.Errors))
		for _, v := range e.Errors {
			parts = append(parts, v.Field+": "+v.Message)
		}
		return fmt.Sprintf("request failed (%d): %s", e.Status, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("request failed (%d): %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// User is the account returned with a session.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Register creates an account and stores the returned token on c.
func (c *Client) Register(ctx context.Context, username, email, password string) (*Session, error) {
	var sess Session
	err := c.do(ctx, http.MethodPost, "/api/users/register", map[string]any{
		"username": username,
		"email":    email,
		"password": password,
	}, &sess)
	if err != nil {
		return nil, err
	}
	c.Token = sess.Token
	return &sess, nil
}

// Login exchanges credentials for a token and stores it on c.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var sess Session
	if err := c.do(ctx, http.MethodPost, "/api/users/login", map[string]any{"email": email, "password": password}, &sess); err != nil {
		return nil, err
	}
	c.Token = sess.Token
	return &sess, nil
}

func (c *Client) Profile(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodGet, "/api/users/profile", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile changes the fields that are non-empty.
func (c *Client) UpdateProfile(ctx context.Context, username, email string) (*model.User, error) {
	body := map[string]any{}
	if username != "" {
		body["username"] = username
	}
	if email != "" {
		body["email"] = email
	}
	var user model.User
	if err := c.do(ctx, http.MethodPut, "/api/users/profile", body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) CreatePost(ctx context.Context, title, content string, tags []string) (*model.Post, error) {
	body := map[string]any{"title": title, "content": content}
	if len(tags) > 0 {
		body["tags"] = tags
	}
	var post model.Post
	if err := c.do(ctx, http.MethodPost, "/api/posts", body, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// UpdatePost replaces title and content. Tags are kept unless tags is non-nil.
func (c *Client) UpdatePost(ctx context.Context, id, title, content string, tags []string) (*model.Post, error) {
	body := map[string]any{"title": title, "content": content}
	if tags != nil {
		body["tags"] = tags
	}
	var post model.Post
	if err := c.do(ctx, http.MethodPut, "/api/posts/"+url.PathEscape(id), body, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *Client) GetPost(ctx context.Context, id string) (*model.Post, error) {
	var post model.Post
	if err := c.do(ctx, http.MethodGet, "/api/posts/"+url.PathEscape(id), nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *Client) ListPosts(ctx context.Context, page, limit int) (*model.PostPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/posts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var result model.PostPage
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/posts/"+url.PathEscape(id), nil, nil)
}

// Comment adds a comment and returns the post's comments, newest first.
func (c *Client) Comment(ctx context.Context, postID, text string) ([]model.Comment, error) {
	var comments []model.Comment
	if err := c.do(ctx, http.MethodPost, "/api/posts/"+url.PathEscape(postID)+"/comments", map[string]any{"text": text}, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// Like toggles the caller's like and returns the resulting like set.
func (c *Client) Like(ctx context.Context, postID string) ([]string, error) {
	var result struct {
		Likes []string `json:"likes"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/posts/"+url.PathEscape(postID)+"/like", nil, &result); err != nil {
		return nil, err
	}
	return result.Likes, nil
}

// do performs a JSON request and decodes a 2xx response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Message string      `json:"message"`
			Errors  []Violation `json:"errors"`
		}
		if json.Unmarshal(respBody, &payload) == nil {
			apiErr.Message = payload.Message
			apiErr.Errors = payload.Errors
		}
		if apiErr.Message == "" && len(apiErr.Errors) == 0 {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// TestHelper provides utilities for creating authenticated clients in tests.
type TestHelper struct {
	BaseURL string
}

// NewTestHelper creates a new test helper for the given base URL.
func NewTestHelper(baseURL string) *TestHelper {
	return &TestHelper{BaseURL: baseURL}
}

// CreateAuthenticatedClient registers name (or logs in when it already
// exists) and returns a client holding its token.
func (h *TestHelper) CreateAuthenticatedClient(ctx context.Context, name string) (*Client, error) {
	c := New(h.BaseURL)
	email := name + "@example.test"
	if _, err := c.Register(ctx, name, email, "password1"); err != nil {
		if StatusOf(err) != http.StatusBadRequest {
			return nil, fmt.Errorf("register: %w", err)
		}
		if _, err := c.Login(ctx, email, "password1"); err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
	}
	return c, nil
}

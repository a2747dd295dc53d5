package httpapp

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/alphabot-ai/quill/internal/blog"
	"github.com/alphabot-ai/quill/internal/config"
	"github.com/alphabot-ai/quill/internal/pipeline"
	"github.com/alphabot-ai/quill/internal/rate"
	"github.com/alphabot-ai/quill/internal/telemetry"
	"github.com/alphabot-ai/quill/internal/validate"

	_ "github.com/alphabot-ai/quill/docs" // swagger docs

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

type Server struct {
	blog           *blog.Service
	limiter        rate.Limiter
	cfg            config.Config
	trustedProxies []*net.IPNet
	logger         *slog.Logger
	router         chi.Router
}

func NewServer(svc *blog.Service, limiter rate.Limiter, cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{blog: svc, limiter: limiter, cfg: cfg, logger: logger}
	proxies, err := config.ParseCIDRs(cfg.TrustedProxies)
	if err != nil {
		logger.Warn("ignoring trusted proxies", "err", err)
	}
	s.trustedProxies = proxies
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverer)
	r.Use(s.logRequests)
	r.Use(telemetry.Middleware)
	r.Use(corsMiddleware(s.cfg.CORSOrigins))
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	r.Route("/api", func(r chi.Router) {
		r.Use(securityHeaders)
		r.Use(s.rateLimit)
		r.Use(s.limitBody)

		r.Get("/health", s.handleHealth)
		r.Get("/openapi.json", s.serveOpenAPIJSON)

		r.Post("/users/register", s.handleRegister)
		r.Post("/users/login", s.handleLogin)
		r.Get("/users/profile", s.handleGetProfile)
		r.Put("/users/profile", s.handleUpdateProfile)

		r.Get("/posts", s.handleListPosts)
		r.Post("/posts", s.handleCreatePost)
		r.Get("/posts/{id}", s.handleGetPost)
		r.Put("/posts/{id}", s.handleUpdatePost)
		r.Delete("/posts/{id}", s.handleDeletePost)
		r.Post("/posts/{id}/comments", s.handleAddComment)
		r.Post("/posts/{id}/like", s.handleToggleLike)
	})
	return r
}

// handleHealth godoc
//
//	@Summary		Liveness probe
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	map[string]interface{}
//	@Router			/api/health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) serveOpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		s.logger.ErrorContext(r.Context(), "read openapi doc", "err", err)
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

type postRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

type commentRequest struct {
	Text string `json:"text"`
}

type likesResponse struct {
	Likes []string `json:"likes"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Message string               `json:"message,omitempty"`
	Errors  []validate.Violation `json:"errors,omitempty"`
}

// handleRegister godoc
//
//	@Summary		Register a new user
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			body	body		registerRequest	true	"Account details"
//	@Success		201		{object}	blog.Session
//	@Failure		400		{object}	errorResponse	"Validation failed or user exists"
//	@Router			/api/users/register [post]
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	sess, err := s.blog.Register(r.Context(), body)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// handleLogin godoc
//
//	@Summary		Log in
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			body	body		loginRequest	true	"Credentials"
//	@Success		200		{object}	blog.Session
//	@Failure		400		{object}	errorResponse	"Invalid credentials"
//	@Router			/api/users/login [post]
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	sess, err := s.blog.Login(r.Context(), body)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleGetProfile godoc
//
//	@Summary		Get the current user
//	@Tags			Users
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	model.User
//	@Failure		401	{object}	errorResponse
//	@Router			/api/users/profile [get]
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.blog.Profile(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleUpdateProfile godoc
//
//	@Summary		Update username or email
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			body	body		profileRequest	true	"Fields to change"
//	@Success		200		{object}	model.User
//	@Failure		400		{object}	errorResponse	"Validation failed or email in use"
//	@Failure		401		{object}	errorResponse
//	@Router			/api/users/profile [put]
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	user, err := s.blog.UpdateProfile(r.Context(), r.Header.Get("Authorization"), body)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleListPosts godoc
//
//	@Summary		List posts
//	@Description	Posts sorted by creation time, newest first
//	@Tags			Posts
//	@Produce		json
//	@Param			page	query		int	false	"Page number"		default(1)
//	@Param			limit	query		int	false	"Posts per page"	default(10)	maximum(100)
//	@Success		200		{object}	model.PostPage
//	@Router			/api/posts [get]
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	page := parseIntDefault(r.URL.Query().Get("page"), blog.DefaultPage)
	limit := parseIntDefault(r.URL.Query().Get("limit"), blog.DefaultLimit)
	result, err := s.blog.ListPosts(r.Context(), page, limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCreatePost godoc
//
//	@Summary		Create a post
//	@Tags			Posts
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			body	body		postRequest	true	"Post"
//	@Success		201		{object}	model.Post
//	@Failure		400		{object}	errorResponse	"Validation failed"
//	@Failure		401		{object}	errorResponse
//	@Router			/api/posts [post]
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	post, err := s.blog.CreatePost(r.Context(), r.Header.Get("Authorization"), body)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// handleGetPost godoc
//
//	@Summary		Get a post
//	@Tags			Posts
//	@Produce		json
//	@Param			id	path		string	true	"Post ID"
//	@Success		200	{object}	model.Post
//	@Failure		400	{object}	errorResponse	"Invalid ID format"
//	@Failure		404	{object}	errorResponse	"Post not found"
//	@Router			/api/posts/{id} [get]
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.blog.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// handleUpdatePost godoc
//
//	@Summary		Update your own post
//	@Tags			Posts
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string		true	"Post ID"
//	@Param			body	body		postRequest	true	"Post"
//	@Success		200		{object}	model.Post
//	@Failure		400		{object}	errorResponse	"Validation failed"
//	@Failure		401		{object}	errorResponse
//	@Failure		403		{object}	errorResponse	"Not the author"
//	@Failure		404		{object}	errorResponse	"Post not found"
//	@Failure		409		{object}	errorResponse	"Modified concurrently"
//	@Router			/api/posts/{id} [put]
func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	post, err := s.blog.UpdatePost(r.Context(), r.Header.Get("Authorization"), chi.URLParam(r, "id"), body)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// handleDeletePost godoc
//
//	@Summary		Delete your own post
//	@Tags			Posts
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Post ID"
//	@Success		200	{object}	messageResponse
//	@Failure		401	{object}	errorResponse
//	@Failure		403	{object}	errorResponse	"Not the author"
//	@Failure		404	{object}	errorResponse	"Post not found"
//	@Router			/api/posts/{id} [delete]
func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := s.blog.DeletePost(r.Context(), r.Header.Get("Authorization"), chi.URLParam(r, "id")); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Post removed"})
}

// handleAddComment godoc
//
//	@Summary		Comment on a post
//	@Tags			Posts
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string			true	"Post ID"
//	@Param			body	body		commentRequest	true	"Comment"
//	@Success		201		{array}		model.Comment	"Comments, newest first"
//	@Failure		400		{object}	errorResponse	"Validation failed"
//	@Failure		404		{object}	errorResponse	"Post not found"
//	@Router			/api/posts/{id}/comments [post]
func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	comments, err := s.blog.AddComment(r.Context(), r.Header.Get("Authorization"), chi.URLParam(r, "id"), body)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comments)
}

// handleToggleLike godoc
//
//	@Summary		Toggle your like on a post
//	@Tags			Posts
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Post ID"
//	@Success		200	{object}	likesResponse
//	@Failure		404	{object}	errorResponse	"Post not found"
//	@Router			/api/posts/{id}/like [post]
func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	likes, err := s.blog.ToggleLike(r.Context(), r.Header.Get("Authorization"), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, likesResponse{Likes: likes})
}

// readBody decodes a JSON object. An empty body decodes to an empty object.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	defer r.Body.Close()
	body := map[string]any{}
	err := json.NewDecoder(r.Body).Decode(&body)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF):
		if body == nil {
			body = map[string]any{}
		}
		return body, true
	case errors.As(err, &tooLarge):
		writeMessage(w, http.StatusRequestEntityTooLarge, "Request body too large")
	default:
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
	}
	return nil, false
}

// statusFor is the single mapping from failure kind to HTTP status.
func statusFor(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindAuthentication:
		return http.StatusUnauthorized
	case pipeline.KindValidation, pipeline.KindBadRequest:
		return http.StatusBadRequest
	case pipeline.KindNotFound:
		return http.StatusNotFound
	case pipeline.KindAuthorization:
		return http.StatusForbidden
	case pipeline.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		s.logger.ErrorContext(r.Context(), "unclassified failure", "err", err)
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return
	}
	if perr.Kind == pipeline.KindValidation {
		writeJSON(w, http.StatusBadRequest, errorResponse{Errors: perr.Violations})
		return
	}
	writeMessage(w, statusFor(perr.Kind), perr.Message)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

func writeRateLimit(w http.ResponseWriter, retry time.Duration) {
	secs := int((retry + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"message":     "Too many requests from this IP, please try again later",
		"retry_after": secs,
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"status":  "fail",
		"message": "Can't find " + r.URL.Path + " on this server",
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"status":  "fail",
		"message": r.Method + " is not allowed on " + r.URL.Path,
	})
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return n
}

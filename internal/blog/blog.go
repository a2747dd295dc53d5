// Package blog exposes the account and post operations of the API. Every
// mutation that needs a principal goes through the pipeline package.
package blog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alphabot-ai/quill/internal/auth"
	"github.com/alphabot-ai/quill/internal/model"
	"github.com/alphabot-ai/quill/internal/pipeline"
	"github.com/alphabot-ai/quill/internal/store"
	"github.com/alphabot-ai/quill/internal/validate"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

type Service struct {
	store    store.Store
	auth     *auth.Service
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(st store.Store, authSvc *auth.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		auth:     authSvc,
		pipeline: pipeline.New(authSvc, logger),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Identity is the public part of a user returned with a session.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Session struct {
	Token string   `json:"token"`
	User  Identity `json:"user"`
}

func identityOf(u model.User) Identity {
	return Identity{ID: u.ID, Username: u.Username, Email: u.Email}
}

// Register creates an account and returns a session for it.
func (s *Service) Register(ctx context.Context, body map[string]any) (Session, error) {
	values, err := validate.For(validate.OpRegister).Validate(body)
	if err != nil {
		return Session{}, pipeline.Invalid(err)
	}

	email := values.String("email")
	if _, err := s.store.FindUserByEmail(ctx, email); err == nil {
		return Session{}, pipeline.Fail(pipeline.KindBadRequest, "User already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return Session{}, s.internal(ctx, "lookup user", err)
	}

	digest, err := auth.HashPassword(values.String("password"))
	if err != nil {
		return Session{}, s.internal(ctx, "hash password", err)
	}
	user := model.User{
		Username:     values.String("username"),
		Email:        email,
		PasswordHash: digest,
	}
	if err := s.store.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return Session{}, pipeline.Fail(pipeline.KindBadRequest, "User already exists")
		}
		return Session{}, s.internal(ctx, "create user", err)
	}
	return s.session(ctx, user)
}

// Login exchanges credentials for a session. Unknown email and wrong password
// are reported identically.
func (s *Service) Login(ctx context.Context, body map[string]any) (Session, error) {
	values, err := validate.For(validate.OpLogin).Validate(body)
	if err != nil {
		return Session{}, pipeline.Invalid(err)
	}
	user, err := s.store.FindUserByEmail(ctx, values.String("email"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, pipeline.Fail(pipeline.KindBadRequest, "Invalid credentials")
		}
		return Session{}, s.internal(ctx, "lookup user", err)
	}
	if !auth.VerifyPassword(values.String("password"), user.PasswordHash) {
		return Session{}, pipeline.Fail(pipeline.KindBadRequest, "Invalid credentials")
	}
	return s.session(ctx, user)
}

func (s *Service) session(ctx context.Context, user model.User) (Session, error) {
	token, err := s.auth.Issue(user.ID)
	if err != nil {
		return Session{}, s.internal(ctx, "issue token", err)
	}
	return Session{Token: token, User: identityOf(user)}, nil
}

// Profile returns the authenticated user.
func (s *Service) Profile(ctx context.Context, authorization string) (model.User, error) {
	user, err := s.pipeline.Authenticate(ctx, authorization)
	if err != nil && pipeline.KindOf(err) == pipeline.KindInfrastructure {
		s.logger.ErrorContext(ctx, "load principal failed", "err", err)
	}
	return user, err
}

// UpdateProfile changes the username and email of the authenticated user.
// Only fields present in body change.
func (s *Service) UpdateProfile(ctx context.Context, authorization string, body map[string]any) (model.User, error) {
	op := pipeline.Operation[struct{}, model.User]{
		Name:  "update_profile",
		Rules: validate.For(validate.OpProfile),
		Commit: func(ctx context.Context, in pipeline.Input[struct{}]) (model.User, error) {
			user := in.Principal
			if in.Values.Has("username") {
				user.Username = in.Values.String("username")
			}
			if in.Values.Has("email") {
				email := in.Values.String("email")
				if email != user.Email {
					existing, err := s.store.FindUserByEmail(ctx, email)
					switch {
					case err == nil && existing.ID != user.ID:
						return model.User{}, pipeline.Fail(pipeline.KindBadRequest, "Email already in use")
					case err != nil && !errors.Is(err, store.ErrNotFound):
						return model.User{}, err
					}
				}
				user.Email = email
			}
			if err := s.store.UpdateUser(ctx, &user); err != nil {
				if errors.Is(err, store.ErrDuplicateEmail) {
					return model.User{}, pipeline.Fail(pipeline.KindBadRequest, "Email already in use")
				}
				return model.User{}, err
			}
			return user, nil
		},
	}
	return pipeline.Run(ctx, s.pipeline, op, pipeline.Request{Authorization: authorization, Body: body})
}

func (s *Service) internal(ctx context.Context, what string, err error) error {
	s.logger.ErrorContext(ctx, what+" failed", "err", err)
	return pipeline.Internal(err)
}

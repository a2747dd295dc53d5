package store

import (
	"context"
	"errors"

	"github.com/alphabot-ai/quill/internal/model"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("duplicate email")
	ErrConflict       = errors.New("version conflict")
)

// ListOpts selects a window of posts ordered by creation time, newest first.
type ListOpts struct {
	Skip  int
	Limit int
}

type Store interface {
	UserStore
	PostStore
	Ping(ctx context.Context) error
	Close() error
}

type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (model.User, error)
	FindUserByEmail(ctx context.Context, email string) (model.User, error)
	// UpdateUser writes username and email. The password digest is left alone.
	UpdateUser(ctx context.Context, user *model.User) error
}

// PostStore treats a post, its comments and its likes as one document.
// Returned posts have author and comment user names populated.
type PostStore interface {
	InsertPost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id string) (model.Post, error)
	// SavePost replaces the stored document if its version still equals
	// post.Version, then increments post.Version. A stale version yields ErrConflict.
	SavePost(ctx context.Context, post *model.Post) error
	DeletePost(ctx context.Context, id string) error
	CountPosts(ctx context.Context) (int64, error)
	ListPosts(ctx context.Context, opts ListOpts) ([]model.Post, error)
}

package blog

import (
	"context"
	"errors"
	"math"

	"github.com/alphabot-ai/quill/internal/model"
	"github.com/alphabot-ai/quill/internal/pipeline"
	"github.com/alphabot-ai/quill/internal/store"
	"github.com/alphabot-ai/quill/internal/validate"

	"github.com/google/uuid"
)

func (s *Service) loadPost(ctx context.Context, id string) (model.Post, error) {
	return s.store.GetPost(ctx, id)
}

func postOwner(p model.Post) any { return p.Author.ID }

func (s *Service) CreatePost(ctx context.Context, authorization string, body map[string]any) (model.Post, error) {
	op := pipeline.Operation[struct{}, model.Post]{
		Name:  "create_post",
		Rules: validate.For(validate.OpPost),
		Commit: func(ctx context.Context, in pipeline.Input[struct{}]) (model.Post, error) {
			tags, _ := in.Values.Strings("tags")
			if tags == nil {
				tags = []string{}
			}
			post := model.Post{
				Title:     in.Values.String("title"),
				Content:   in.Values.String("content"),
				Author:    model.AuthorRef{ID: in.Principal.ID, Username: in.Principal.Username},
				Tags:      tags,
				Comments:  []model.Comment{},
				Likes:     []string{},
				CreatedAt: s.now(),
			}
			if err := s.store.InsertPost(ctx, &post); err != nil {
				return model.Post{}, err
			}
			return post, nil
		},
	}
	return pipeline.Run(ctx, s.pipeline, op, pipeline.Request{Authorization: authorization, Body: body})
}

// UpdatePost rewrites title and content, and tags when given. Only the author may update.
func (s *Service) UpdatePost(ctx context.Context, authorization, id string, body map[string]any) (model.Post, error) {
	op := pipeline.Operation[model.Post, model.Post]{
		Name:     "update_post",
		PathID:   true,
		Rules:    validate.For(validate.OpPost),
		Load:     s.loadPost,
		NotFound: "Post not found",
		Owner:    postOwner,
		Denied:   "Not authorized to update this post",
		Commit: func(ctx context.Context, in pipeline.Input[model.Post]) (model.Post, error) {
			post := in.Resource
			post.Title = in.Values.String("title")
			post.Content = in.Values.String("content")
			if tags, ok := in.Values.Strings("tags"); ok {
				post.Tags = tags
			}
			if err := s.store.SavePost(ctx, &post); err != nil {
				return model.Post{}, err
			}
			return post, nil
		},
	}
	return pipeline.Run(ctx, s.pipeline, op, pipeline.Request{Authorization: authorization, ID: id, Body: body})
}

func (s *Service) DeletePost(ctx context.Context, authorization, id string) error {
	op := pipeline.Operation[model.Post, struct{}]{
		Name:     "delete_post",
		PathID:   true,
		Load:     s.loadPost,
		NotFound: "Post not found",
		Owner:    postOwner,
		Denied:   "Not authorized to delete this post",
		Commit: func(ctx context.Context, in pipeline.Input[model.Post]) (struct{}, error) {
			return struct{}{}, s.store.DeletePost(ctx, in.Resource.ID)
		},
	}
	_, err := pipeline.Run(ctx, s.pipeline, op, pipeline.Request{Authorization: authorization, ID: id})
	return err
}

// AddComment puts a new comment first and returns the full list, newest first.
func (s *Service) AddComment(ctx context.Context, authorization, id string, body map[string]any) ([]model.Comment, error) {
	op := pipeline.Operation[model.Post, []model.Comment]{
		Name:     "add_comment",
		PathID:   true,
		Rules:    validate.For(validate.OpComment),
		Load:     s.loadPost,
		NotFound: "Post not found",
		Commit: func(ctx context.Context, in pipeline.Input[model.Post]) ([]model.Comment, error) {
			post := in.Resource
			post.PrependComment(model.Comment{
				ID:        uuid.NewString(),
				User:      model.AuthorRef{ID: in.Principal.ID, Username: in.Principal.Username},
				Text:      in.Values.String("text"),
				CreatedAt: s.now(),
			})
			if err := s.store.SavePost(ctx, &post); err != nil {
				return nil, err
			}
			return post.Comments, nil
		},
	}
	return pipeline.Run(ctx, s.pipeline, op, pipeline.Request{Authorization: authorization, ID: id, Body: body})
}

// ToggleLike flips the caller's membership in the like set and returns the set.
func (s *Service) ToggleLike(ctx context.Context, authorization, id string) ([]string, error) {
	op := pipeline.Operation[model.Post, []string]{
		Name:     "toggle_like",
		PathID:   true,
		Load:     s.loadPost,
		NotFound: "Post not found",
		Commit: func(ctx context.Context, in pipeline.Input[model.Post]) ([]string, error) {
			post := in.Resource
			post.ToggleLike(in.Principal.ID)
			if err := s.store.SavePost(ctx, &post); err != nil {
				return nil, err
			}
			return post.Likes, nil
		},
	}
	return pipeline.Run(ctx, s.pipeline, op, pipeline.Request{Authorization: authorization, ID: id})
}

// ListPosts returns one page of posts, newest first. Non-positive page or
// limit fall back to the defaults; limit is capped at MaxLimit.
func (s *Service) ListPosts(ctx context.Context, page, limit int) (model.PostPage, error) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	total, err := s.store.CountPosts(ctx)
	if err != nil {
		return model.PostPage{}, s.internal(ctx, "count posts", err)
	}
	posts := []model.Post{}
	// a page whose offset does not fit in an int is past the end
	if page-1 <= math.MaxInt/limit {
		posts, err = s.store.ListPosts(ctx, store.ListOpts{Skip: (page - 1) * limit, Limit: limit})
		if err != nil {
			return model.PostPage{}, s.internal(ctx, "list posts", err)
		}
		if posts == nil {
			posts = []model.Post{}
		}
	}
	return model.PostPage{
		Posts:       posts,
		CurrentPage: page,
		TotalPages:  int((total + int64(limit) - 1) / int64(limit)),
		TotalPosts:  total,
	}, nil
}

func (s *Service) GetPost(ctx context.Context, id string) (model.Post, error) {
	values, err := validate.For(validate.OpID).Validate(map[string]any{"id": id})
	if err != nil {
		return model.Post{}, pipeline.Invalid(err)
	}
	post, err := s.store.GetPost(ctx, values.String("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Post{}, pipeline.Fail(pipeline.KindNotFound, "Post not found")
		}
		return model.Post{}, s.internal(ctx, "get post", err)
	}
	return post, nil
}

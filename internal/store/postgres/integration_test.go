//go:build integration

package postgres

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/alphabot-ai/quill/internal/model"
	"github.com/alphabot-ai/quill/internal/store"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Run with: go test -tags=integration -timeout 120s ./internal/store/postgres/...
func newContainerStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("quill"),
		tcpostgres.WithUsername("quill"),
		tcpostgres.WithPassword("quill"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			log.Printf("failed to terminate postgres container: %v", err)
		}
	})
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	st, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestPostgresDocumentLifecycle(t *testing.T) {
	st := newContainerStore(t)
	ctx := context.Background()

	author := model.User{Username: "author", Email: "author@example.com", PasswordHash: "digest"}
	if err := st.CreateUser(ctx, &author); err != nil {
		t.Fatalf("create user: %v", err)
	}
	dup := model.User{Username: "x", Email: "author@example.com", PasswordHash: "digest"}
	if err := st.CreateUser(ctx, &dup); !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	post := model.Post{Title: "Hello postgres", Content: "content content", Author: model.AuthorRef{ID: author.ID}, Tags: []string{"pg"}}
	if err := st.InsertPost(ctx, &post); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := st.GetPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Author.Username != "author" || len(got.Tags) != 1 {
		t.Fatalf("unexpected post: %+v", got)
	}

	stale := got
	got.PrependComment(model.Comment{User: model.AuthorRef{ID: author.ID}, Text: "first!"})
	got.ToggleLike(author.ID)
	if err := st.SavePost(ctx, &got); err != nil {
		t.Fatalf("save: %v", err)
	}
	stale.Title = "stale"
	if err := st.SavePost(ctx, &stale); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	again, err := st.GetPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(again.Comments) != 1 || again.Comments[0].User.Username != "author" || len(again.Likes) != 1 {
		t.Fatalf("unexpected document: %+v", again)
	}

	if err := st.DeletePost(ctx, post.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.GetPost(ctx, post.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

package httpapp_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alphabot-ai/quill/internal/auth"
	"github.com/alphabot-ai/quill/internal/blog"
	"github.com/alphabot-ai/quill/internal/client"
	"github.com/alphabot-ai/quill/internal/config"
	httpapp "github.com/alphabot-ai/quill/internal/http"
	"github.com/alphabot-ai/quill/internal/rate"
	"github.com/alphabot-ai/quill/internal/store/sqlite"
)

func TestEndToEndServer(t *testing.T) {
	st, err := sqlite.Open("file:e2e_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	cfg := config.Config{
		Addr:        ":0",
		JWTSecret:   "e2e-secret",
		TokenTTL:    time.Hour,
		CORSOrigins: "*",
		BodyLimit:   10 << 10,
		RateLimit:   config.RateLimit{Requests: 1000, Window: time.Minute},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authSvc := auth.NewService(st, []byte(cfg.JWTSecret), cfg.TokenTTL)
	server := httpapp.NewServer(blog.NewService(st, authSvc, logger), rate.NewMemory(), cfg, logger)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	httpServer := &http.Server{Handler: server}
	go func() {
		_ = httpServer.Serve(listener)
	}()
	defer httpServer.Close()

	baseURL := "http://" + listener.Addr().String()
	ctx := context.Background()

	helper := client.NewTestHelper(baseURL)
	author, err := helper.CreateAuthenticatedClient(ctx, "e2e_author")
	if err != nil {
		t.Fatalf("create author: %v", err)
	}
	reader, err := helper.CreateAuthenticatedClient(ctx, "e2e_reader")
	if err != nil {
		t.Fatalf("create reader: %v", err)
	}
	again, err := helper.CreateAuthenticatedClient(ctx, "e2e_reader")
	if err != nil {
		t.Fatalf("log in existing reader: %v", err)
	}
	if again.Token == "" {
		t.Fatal("expected existing account to log in")
	}

	post, err := author.CreatePost(ctx, "End to end post", "Written through the client", []string{"e2e"})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	if _, err := reader.UpdatePost(ctx, post.ID, "Hijacked post", "Written by someone else", nil); client.StatusOf(err) != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner update, got %v", err)
	}
	if _, err := reader.Comment(ctx, post.ID, "Nice one"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	likes, err := reader.Like(ctx, post.ID)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if len(likes) != 1 {
		t.Fatalf("expected one like, got %v", likes)
	}

	got, err := client.New(baseURL).GetPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if len(got.Comments) != 1 || got.Comments[0].User.Username != "e2e_reader" || len(got.Likes) != 1 {
		t.Fatalf("unexpected post: %+v", got)
	}

	if err := author.DeletePost(ctx, post.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := author.GetPost(ctx, post.ID); client.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %v", err)
	}
}

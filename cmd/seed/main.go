package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/alphabot-ai/quill/internal/client"
)

var writers = []string{"ada", "brian", "grace", "linus", "margaret"}

var posts = []struct {
	title   string
	content string
	tags    []string
}{
	{"Getting started with Quill", "A short tour of registering, posting and commenting.", []string{"meta", "intro"}},
	{"Why version checks beat locks", "Optimistic writes let readers stay fast while writers retry.", []string{"databases"}},
	{"Structured logging in practice", "Key/value logs make incidents much easier to untangle.", []string{"ops", "logging"}},
	{"Notes on pagination", "Skip and limit are simple until the table gets big.", []string{"api"}},
	{"A week with Postgres", "Moving the blog from sqlite to Postgres took one config change.", []string{"databases", "postgres"}},
	{"Rate limiting at the edge", "Fixed windows are crude but easy to reason about.", []string{"ops"}},
	{"Tracing a request end to end", "Spans from the client all the way to the store.", []string{"observability"}},
	{"What makes a good tag", "Lowercase, short and reused often.", nil},
}

var comments = []string{
	"Great write-up, thanks!",
	"I ran into the same thing last month.",
	"Could you share the config you used?",
	"Not sure I agree, but it's a good argument.",
	"Bookmarking this one.",
	"Would love a follow-up on this.",
	"This cleared up a lot for me.",
}

func main() {
	baseURL := flag.String("url", "http://localhost:5000", "Quill server URL")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(context.Background(), *baseURL, logger); err != nil {
		logger.Error("seed failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, baseURL string, logger *slog.Logger) error {
	logger.Info("seeding", "url", baseURL)

	helper := client.NewTestHelper(baseURL)
	var clients []*client.Client
	for _, name := range writers {
		c, err := helper.CreateAuthenticatedClient(ctx, name)
		if err != nil {
			return fmt.Errorf("account %s: %w", name, err)
		}
		logger.Info("account ready", "username", name)
		clients = append(clients, c)
	}

	var postIDs []string
	for _, p := range posts {
		idx := rand.Intn(len(clients))
		post, err := clients[idx].CreatePost(ctx, p.title, p.content, p.tags)
		if err != nil {
			logger.Warn("create post", "title", p.title, "err", err)
			continue
		}
		postIDs = append(postIDs, post.ID)
		logger.Info("posted", "id", post.ID, "title", p.title, "author", writers[idx])

		// spread createdAt so the listing order is visible
		time.Sleep(50 * time.Millisecond)
	}

	commentCount := 0
	for _, id := range postIDs {
		for i := rand.Intn(4) + 1; i > 0; i-- {
			c := clients[rand.Intn(len(clients))]
			if _, err := c.Comment(ctx, id, comments[rand.Intn(len(comments))]); err != nil {
				logger.Warn("comment", "post", id, "err", err)
				continue
			}
			commentCount++
		}
	}

	likeCount := 0
	for _, c := range clients {
		for _, id := range postIDs {
			if rand.Float32() < 0.5 {
				continue
			}
			if _, err := c.Like(ctx, id); err != nil {
				logger.Warn("like", "post", id, "err", err)
				continue
			}
			likeCount++
		}
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("Accounts: %d\n", len(clients))
	fmt.Printf("Posts:    %d\n", len(postIDs))
	fmt.Printf("Comments: %d\n", commentCount)
	fmt.Printf("Likes:    %d\n", likeCount)
	return nil
}

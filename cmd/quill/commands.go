package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/urfave/cli/v2"

	"github.com/alphabot-ai/quill/internal/client"
	"github.com/alphabot-ai/quill/internal/model"
)

const defaultBaseURL = "http://localhost:5000"

// CLIConfig holds the client credentials persisted to disk.
type CLIConfig struct {
	BaseURL  string `json:"base_url"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Token    string `json:"token"`
	TokenExp string `json:"token_expires,omitempty"`
}

func cmdRegister(c *cli.Context) error {
	api := client.New(baseURL(c))
	sess, err := api.Register(c.Context, c.String("username"), c.String("email"), c.String("password"))
	if err != nil {
		return err
	}
	if err := saveSession(api.BaseURL, sess); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Registered %s (%s)\n", sess.User.Username, sess.User.ID)
	return nil
}

func cmdLogin(c *cli.Context) error {
	api := client.New(baseURL(c))
	sess, err := api.Login(c.Context, c.String("email"), c.String("password"))
	if err != nil {
		return err
	}
	if err := saveSession(api.BaseURL, sess); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Logged in as %s\n", sess.User.Username)
	return nil
}

func cmdPost(c *cli.Context) error {
	api, err := loadAuthenticatedClient()
	if err != nil {
		return err
	}
	post, err := api.CreatePost(c.Context, c.String("title"), c.String("content"), splitTags(c.StringSlice("tags")))
	if err != nil {
		return err
	}
	fmt.Printf("Posted %q (%s)\n", post.Title, post.ID)
	return nil
}

func cmdComment(c *cli.Context) error {
	api, err := loadAuthenticatedClient()
	if err != nil {
		return err
	}
	comments, err := api.Comment(c.Context, c.String("post"), c.String("text"))
	if err != nil {
		return err
	}
	fmt.Printf("Commented (%d comments on post)\n", len(comments))
	return nil
}

func cmdLike(c *cli.Context) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	api, err := loadAuthenticatedClient()
	if err != nil {
		return err
	}
	likes, err := api.Like(c.Context, c.String("post"))
	if err != nil {
		return err
	}
	fmt.Println(likeSummary(likes, cfg.UserID))
	return nil
}

func likeSummary(likes []string, userID string) string {
	post := model.Post{Likes: likes}
	state := "Unliked"
	if post.LikedBy(userID) {
		state = "Liked"
	}
	return fmt.Sprintf("%s (%d likes)", state, len(likes))
}

func cmdRead(c *cli.Context) error {
	api := client.New(baseURL(c))
	if id := c.String("post"); id != "" {
		post, err := api.GetPost(c.Context, id)
		if err != nil {
			return err
		}
		if c.Bool("json") {
			return printJSON(post)
		}
		printPost(*post, true)
		return nil
	}

	page, err := api.ListPosts(c.Context, c.Int("page"), c.Int("limit"))
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return printJSON(page)
	}
	if len(page.Posts) == 0 {
		fmt.Println("No posts found.")
		return nil
	}
	for _, p := range page.Posts {
		printPost(p, false)
	}
	fmt.Printf("Page %d of %d (%d posts)\n", page.CurrentPage, page.TotalPages, page.TotalPosts)
	return nil
}

func cmdWhoami(c *cli.Context) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	fmt.Printf("Server:   %s\n", cfg.BaseURL)
	fmt.Printf("User:     %s <%s>\n", cfg.Username, cfg.Email)
	fmt.Printf("User ID:  %s\n", cfg.UserID)
	if exp, ok := tokenExpiry(cfg); ok {
		if time.Now().After(exp) {
			fmt.Printf("Token:    expired at %s\n", exp.Format(time.RFC3339))
		} else {
			fmt.Printf("Token:    valid until %s\n", exp.Format(time.RFC3339))
		}
	}
	api, err := loadAuthenticatedClient()
	if err != nil {
		return nil
	}
	if user, err := api.Profile(c.Context); err == nil {
		fmt.Printf("Verified: %s\n", user.Username)
	} else {
		fmt.Printf("Verified: no (%v)\n", err)
	}
	return nil
}

func printPost(p model.Post, full bool) {
	fmt.Printf("[%s] %s\n", p.ID, p.Title)
	fmt.Printf("    by %s | %d likes | %d comments", p.Author.Username, len(p.Likes), len(p.Comments))
	if len(p.Tags) > 0 {
		fmt.Printf(" | %s", strings.Join(p.Tags, ", "))
	}
	fmt.Println()
	if !full {
		return
	}
	fmt.Printf("\n%s\n", p.Content)
	if len(p.Comments) > 0 {
		fmt.Println("\nComments:")
		for _, cm := range p.Comments {
			fmt.Printf("  %s (%s): %s\n", cm.User.Username, cm.CreatedAt.Format("2006-01-02 15:04"), cm.Text)
		}
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// splitTags accepts both repeated flags and comma separated values.
func splitTags(values []string) []string {
	var tags []string
	for _, v := range values {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	return tags
}

func baseURL(c *cli.Context) string {
	if u := c.String("url"); u != "" {
		return u
	}
	if cfg, err := loadCLIConfig(); err == nil && cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	return defaultBaseURL
}

// ============================================================================
// CREDENTIALS
// ============================================================================

func quillDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".quill")
}

func cliConfigPath() string {
	return filepath.Join(quillDir(), "config.json")
}

func loadCLIConfig() (CLIConfig, error) {
	data, err := os.ReadFile(cliConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return CLIConfig{}, errors.New("not logged in - run 'quill register' or 'quill login'")
		}
		return CLIConfig{}, err
	}
	var cfg CLIConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, fmt.Errorf("parse %s: %w", cliConfigPath(), err)
	}
	return cfg, nil
}

func saveCLIConfig(cfg CLIConfig) error {
	if err := os.MkdirAll(quillDir(), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cliConfigPath(), data, 0600)
}

func saveSession(base string, sess *client.Session) error {
	cfg := CLIConfig{
		BaseURL:  base,
		UserID:   sess.User.ID,
		Username: sess.User.Username,
		Email:    sess.User.Email,
		Token:    sess.Token,
	}
	if exp, ok := tokenExpiry(cfg); ok {
		cfg.TokenExp = exp.Format(time.RFC3339)
	}
	return saveCLIConfig(cfg)
}

func loadAuthenticatedClient() (*client.Client, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Token == "" {
		return nil, errors.New("not authenticated - run 'quill login'")
	}
	if exp, ok := tokenExpiry(cfg); ok && time.Now().After(exp) {
		return nil, errors.New("token expired - run 'quill login'")
	}
	api := client.New(cfg.BaseURL)
	api.Token = cfg.Token
	return api, nil
}

// tokenExpiry reads the exp claim without verifying the signature.
func tokenExpiry(cfg CLIConfig) (time.Time, bool) {
	if cfg.TokenExp != "" {
		if exp, err := time.Parse(time.RFC3339, cfg.TokenExp); err == nil {
			return exp, true
		}
	}
	if cfg.Token == "" {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(cfg.Token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

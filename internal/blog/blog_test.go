package blog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/alphabot-ai/quill/internal/auth"
	"github.com/alphabot-ai/quill/internal/model"
	"github.com/alphabot-ai/quill/internal/pipeline"
	"github.com/alphabot-ai/quill/internal/store"
	"github.com/alphabot-ai/quill/internal/store/sqlite"
)

type fixture struct {
	svc   *Service
	store *sqlite.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_").Replace(t.Name())
	st, err := sqlite.Open(fmt.Sprintf("file:blog_%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return fixture{svc: newService(st), store: st}
}

func newService(st store.Store) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(st, auth.NewService(st, []byte("test-secret"), 7*24*time.Hour), logger)
}

func (f fixture) register(t *testing.T, username string) Session {
	t.Helper()
	sess, err := f.svc.Register(context.Background(), map[string]any{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret1",
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return sess
}

func bearer(s Session) string { return "Bearer " + s.Token }

func (f fixture) createPost(t *testing.T, s Session, title string) model.Post {
	t.Helper()
	post, err := f.svc.CreatePost(context.Background(), bearer(s), map[string]any{
		"title":   title,
		"content": "Some content long enough",
		"tags":    []any{"go", "web"},
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	return post
}

func expectKind(t *testing.T, err error, kind pipeline.Kind, message string) *pipeline.Error {
	t.Helper()
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected pipeline error, got %v", err)
	}
	if perr.Kind != kind || (message != "" && perr.Message != message) {
		t.Fatalf("expected %s %q, got %s %q", kind, message, perr.Kind, perr.Message)
	}
	return perr
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Register(ctx, map[string]any{
		"username": "ab_user",
		"email":    "A@B.com",
		"password": "secret1",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sess.Token == "" || sess.User.ID == "" || sess.User.Email != "a@b.com" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	_, err = f.svc.Register(ctx, map[string]any{"username": "someone", "email": "a@b.com", "password": "other123"})
	expectKind(t, err, pipeline.KindBadRequest, "User already exists")
	existing, err := f.store.FindUserByEmail(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if existing.Username != "ab_user" || !auth.VerifyPassword("secret1", existing.PasswordHash) {
		t.Fatalf("duplicate registration altered the user: %+v", existing)
	}

	logged, err := f.svc.Login(ctx, map[string]any{"email": "a@b.com", "password": "secret1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.User.ID != sess.User.ID {
		t.Fatalf("login resolved a different user")
	}

	_, err = f.svc.Login(ctx, map[string]any{"email": "a@b.com", "password": "wrong-password"})
	expectKind(t, err, pipeline.KindBadRequest, "Invalid credentials")
	_, err = f.svc.Login(ctx, map[string]any{"email": "nobody@b.com", "password": "secret1"})
	expectKind(t, err, pipeline.KindBadRequest, "Invalid credentials")
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), map[string]any{
		"username": "us",
		"email":    "invalid-email",
		"password": "123",
	})
	perr := expectKind(t, err, pipeline.KindValidation, "")
	if len(perr.Violations) != 3 {
		t.Fatalf("expected 3 violations, got %+v", perr.Violations)
	}
	if _, err := f.store.FindUserByEmail(context.Background(), "invalid-email"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("rejected registration created a user: %v", err)
	}
}

func TestProfileUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	f.register(t, "bob")

	_, err := f.svc.UpdateProfile(ctx, bearer(alice), map[string]any{"email": "bob@example.com"})
	expectKind(t, err, pipeline.KindBadRequest, "Email already in use")

	updated, err := f.svc.UpdateProfile(ctx, bearer(alice), map[string]any{"username": "alice2"})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Username != "alice2" || updated.Email != "alice@example.com" {
		t.Fatalf("unexpected profile: %+v", updated)
	}

	if _, err := f.svc.UpdateProfile(ctx, bearer(alice), map[string]any{"email": " New@Example.com "}); err != nil {
		t.Fatalf("update email: %v", err)
	}
	profile, err := f.svc.Profile(ctx, bearer(alice))
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Email != "new@example.com" {
		t.Fatalf("expected normalized email, got %q", profile.Email)
	}
	if _, err := f.svc.Login(ctx, map[string]any{"email": "new@example.com", "password": "secret1"}); err != nil {
		t.Fatalf("password must survive a profile update: %v", err)
	}

	_, err = f.svc.UpdateProfile(ctx, "", map[string]any{"username": "x"})
	expectKind(t, err, pipeline.KindAuthentication, "Authentication required")
}

func TestPostOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "owner")
	other := f.register(t, "other")
	post := f.createPost(t, owner, "Original title")

	if post.Author.ID != owner.User.ID || post.Author.Username != "owner" {
		t.Fatalf("author not populated: %+v", post.Author)
	}

	_, err := f.svc.UpdatePost(ctx, bearer(other), post.ID, map[string]any{"title": "Hijacked title", "content": "Some content long enough"})
	expectKind(t, err, pipeline.KindAuthorization, "Not authorized to update this post")
	err = f.svc.DeletePost(ctx, bearer(other), post.ID)
	expectKind(t, err, pipeline.KindAuthorization, "Not authorized to delete this post")

	got, err := f.svc.GetPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.Title != "Original title" {
		t.Fatalf("rejected update changed the post: %q", got.Title)
	}

	updated, err := f.svc.UpdatePost(ctx, bearer(owner), post.ID, map[string]any{"title": "  Better title  ", "content": "Rewritten content here"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Better title" || !reflect.DeepEqual(updated.Tags, []string{"go", "web"}) {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	if err := f.svc.DeletePost(ctx, bearer(owner), post.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = f.svc.GetPost(ctx, post.ID)
	expectKind(t, err, pipeline.KindNotFound, "Post not found")
	err = f.svc.DeletePost(ctx, bearer(owner), post.ID)
	expectKind(t, err, pipeline.KindNotFound, "Post not found")
}

func TestGetPostBadID(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetPost(context.Background(), "123")
	perr := expectKind(t, err, pipeline.KindValidation, "")
	if perr.Violations[0].Message != "Invalid ID format" {
		t.Fatalf("unexpected violations: %+v", perr.Violations)
	}
	_, err = f.svc.GetPost(context.Background(), "6f9619ff-8b86-d011-b42d-00c04fc964ff")
	expectKind(t, err, pipeline.KindNotFound, "Post not found")
}

func TestCommentsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "owner")
	other := f.register(t, "other")
	post := f.createPost(t, owner, "Commented post")

	if _, err := f.svc.AddComment(ctx, bearer(owner), post.ID, map[string]any{"text": "first"}); err != nil {
		t.Fatalf("comment: %v", err)
	}
	comments, err := f.svc.AddComment(ctx, bearer(other), post.ID, map[string]any{"text": "  second  "})
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if len(comments) != 2 || comments[0].Text != "second" || comments[1].Text != "first" {
		t.Fatalf("unexpected order: %+v", comments)
	}
	if comments[0].User.Username != "other" {
		t.Fatalf("comment author not populated: %+v", comments[0].User)
	}

	_, err = f.svc.AddComment(ctx, bearer(other), post.ID, map[string]any{"text": "no"})
	expectKind(t, err, pipeline.KindValidation, "")
}

func TestToggleLikeIsInvolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "owner")
	other := f.register(t, "other")
	post := f.createPost(t, owner, "Liked post")

	likes, err := f.svc.ToggleLike(ctx, bearer(other), post.ID)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if !reflect.DeepEqual(likes, []string{other.User.ID}) {
		t.Fatalf("unexpected likes: %v", likes)
	}
	likes, err = f.svc.ToggleLike(ctx, bearer(other), post.ID)
	if err != nil {
		t.Fatalf("unlike: %v", err)
	}
	if len(likes) != 0 {
		t.Fatalf("expected like set to return to empty, got %v", likes)
	}
}

// racingStore commits a competing like right before the first save, so the
// service's first write carries a stale version.
type racingStore struct {
	store.Store
	rival string
	raced bool
}

func (r *racingStore) SavePost(ctx context.Context, post *model.Post) error {
	if !r.raced {
		r.raced = true
		fresh, err := r.Store.GetPost(ctx, post.ID)
		if err != nil {
			return err
		}
		fresh.ToggleLike(r.rival)
		if err := r.Store.SavePost(ctx, &fresh); err != nil {
			return err
		}
	}
	return r.Store.SavePost(ctx, post)
}

func TestConcurrentLikesAreNotLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "owner")
	other := f.register(t, "other")
	post := f.createPost(t, owner, "Contended post")

	racing := &racingStore{Store: f.store, rival: owner.User.ID}
	svc := newService(racing)
	likes, err := svc.ToggleLike(ctx, bearer(other), post.ID)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if !reflect.DeepEqual(likes, []string{owner.User.ID, other.User.ID}) {
		t.Fatalf("expected both likes to survive, got %v", likes)
	}
}

func TestListPostsPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "owner")
	for i := 0; i < 5; i++ {
		f.createPost(t, owner, fmt.Sprintf("Post number %d", i))
	}

	page, err := f.svc.ListPosts(ctx, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.CurrentPage != 1 || page.TotalPosts != 5 || page.TotalPages != 1 || len(page.Posts) != 5 {
		t.Fatalf("unexpected default page: %+v", page)
	}
	if page.Posts[0].Title != "Post number 4" {
		t.Fatalf("expected newest first, got %q", page.Posts[0].Title)
	}

	page, err = f.svc.ListPosts(ctx, 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalPages != 3 || len(page.Posts) != 2 || page.Posts[0].Title != "Post number 2" {
		t.Fatalf("unexpected second page: %+v", page)
	}

	page, err = f.svc.ListPosts(ctx, 9, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Posts == nil || len(page.Posts) != 0 {
		t.Fatalf("expected empty, non-nil page, got %+v", page.Posts)
	}

	for _, huge := range []int{math.MaxInt / 50, math.MaxInt} {
		page, err = f.svc.ListPosts(ctx, huge, MaxLimit)
		if err != nil {
			t.Fatalf("list page %d: %v", huge, err)
		}
		if page.CurrentPage != huge || len(page.Posts) != 0 || page.TotalPosts != 5 {
			t.Fatalf("expected empty page %d, got %d posts (page %d)", huge, len(page.Posts), page.CurrentPage)
		}
	}
}

type brokenUsers struct {
	store.Store
}

func (brokenUsers) GetUser(context.Context, string) (model.User, error) {
	return model.User{}, errors.New("disk on fire")
}

func TestProfileStoreFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	sess := f.register(t, "writer")

	var logs bytes.Buffer
	st := brokenUsers{Store: f.store}
	svc := NewService(st, auth.NewService(st, []byte("test-secret"), 7*24*time.Hour), slog.New(slog.NewTextHandler(&logs, nil)))

	_, err := svc.Profile(context.Background(), bearer(sess))
	expectKind(t, err, pipeline.KindInfrastructure, "Server error")
	if !strings.Contains(logs.String(), "load principal failed") || !strings.Contains(logs.String(), "disk on fire") {
		t.Fatalf("expected the store failure to be logged, got %q", logs.String())
	}

	logs.Reset()
	_, err = svc.Profile(context.Background(), "")
	expectKind(t, err, pipeline.KindAuthentication, "Authentication required")
	if logs.Len() != 0 {
		t.Fatalf("authentication failures are not errors, got %q", logs.String())
	}
}

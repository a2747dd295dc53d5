package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alphabot-ai/quill/internal/model"
	"github.com/alphabot-ai/quill/internal/store"
	"github.com/alphabot-ai/quill/internal/store/sqlite"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	bcryptCost = bcrypt.MinCost
}

func newTestUsers(t *testing.T) (*sqlite.Store, model.User) {
	t.Helper()
	name := strings.NewReplacer("/", "_").Replace(t.Name())
	st, err := sqlite.Open(fmt.Sprintf("file:auth_%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	u := model.User{Username: "alice", Email: "alice@example.com", PasswordHash: "digest"}
	if err := st.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return st, u
}

func TestIssueAndVerify(t *testing.T) {
	st, u := newTestUsers(t)
	svc := NewService(st, []byte("secret"), 7*24*time.Hour)

	token, err := svc.Issue(u.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := svc.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.ID != u.ID || got.Username != "alice" {
		t.Fatalf("unexpected principal: %+v", got)
	}
}

func TestIssueIsDeterministicForClock(t *testing.T) {
	st, u := newTestUsers(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(st, []byte("secret"), time.Hour).WithClock(func() time.Time { return at })

	a, err := svc.Issue(u.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	b, err := svc.Issue(u.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if a != b {
		t.Fatalf("expected identical tokens for identical inputs")
	}
}

func TestVerifyExpiredWithValidSignature(t *testing.T) {
	st, u := newTestUsers(t)
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ttl := 7 * 24 * time.Hour
	svc := NewService(st, []byte("secret"), ttl).WithClock(func() time.Time { return issued })

	token, err := svc.Issue(u.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cases := []struct {
		name string
		at   time.Time
		want error
	}{
		{"just before expiry", issued.Add(ttl - time.Second), nil},
		{"at expiry", issued.Add(ttl), ErrTokenExpired},
		{"after expiry", issued.Add(ttl + time.Hour), ErrTokenExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			at := tc.at
			_, err := svc.WithClock(func() time.Time { return at }).Verify(context.Background(), token)
			if !errors.Is(err, tc.want) && !(tc.want == nil && err == nil) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	st, u := newTestUsers(t)
	svc := NewService(st, []byte("secret"), time.Hour)

	other, err := NewService(st, []byte("other-secret"), time.Hour).Issue(u.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   u.ID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: u.ID}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	for name, token := range map[string]string{
		"malformed":    "not-a-token",
		"wrong secret": other,
		"alg none":     none,
		"no expiry":    noExpiry,
		"no subject":   noSubject,
	} {
		if _, err := svc.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
	if _, err := svc.Verify(context.Background(), ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestVerifyUnknownPrincipal(t *testing.T) {
	st, _ := newTestUsers(t)
	svc := NewService(st, []byte("secret"), time.Hour)

	token, err := svc.Issue("6f9619ff-8b86-d011-b42d-00c04fc964ff")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Verify(context.Background(), token); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}

type failingUsers struct{ store.UserStore }

func (failingUsers) GetUser(context.Context, string) (model.User, error) {
	return model.User{}, errors.New("disk on fire")
}

func TestVerifyStoreFailureIsNotAuthError(t *testing.T) {
	svc := NewService(failingUsers{}, []byte("secret"), time.Hour)
	token, err := svc.Issue("someone")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	_, err = svc.Verify(context.Background(), token)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, sentinel := range []error{ErrInvalidToken, ErrTokenExpired, ErrPrincipalNotFound, ErrMissingToken} {
		if errors.Is(err, sentinel) {
			t.Fatalf("store failure classified as %v", sentinel)
		}
	}
}

func TestSecretIsCopied(t *testing.T) {
	st, u := newTestUsers(t)
	secret := []byte("secret")
	svc := NewService(st, secret, time.Hour)
	token, err := svc.Issue(u.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	secret[0] = 'X'
	if _, err := svc.Verify(context.Background(), token); err != nil {
		t.Fatalf("mutating the caller's slice changed the key: %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		err    error
	}{
		{"Bearer abc", "abc", nil},
		{"bearer  abc ", "abc", nil},
		{"", "", ErrMissingToken},
		{"Bearer ", "", ErrMissingToken},
		{"Basic abc", "", ErrInvalidToken},
		{"abc", "", ErrInvalidToken},
	}
	for _, tc := range cases {
		got, err := BearerToken(tc.header)
		if got != tc.want || !errors.Is(err, tc.err) && !(tc.err == nil && err == nil) {
			t.Fatalf("BearerToken(%q) = %q, %v; want %q, %v", tc.header, got, err, tc.want, tc.err)
		}
	}
}

func TestPasswordDigest(t *testing.T) {
	digest, err := HashPassword("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if digest == "secret1" {
		t.Fatal("digest must not equal the plain password")
	}
	if !VerifyPassword("secret1", digest) {
		t.Fatal("expected password to verify")
	}
	if VerifyPassword("secret2", digest) {
		t.Fatal("wrong password verified")
	}
	if VerifyPassword("secret1", "not-a-digest") {
		t.Fatal("garbage digest verified")
	}
}

package authz

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

type named struct{ id string }

func (n named) String() string { return n.id }

func TestAuthorize(t *testing.T) {
	id := uuid.MustParse("6f9619ff-8b86-d011-b42d-00c04fc964ff")
	other := uuid.MustParse("0b1b9d4e-0a5c-4f4e-9d0e-4f0a7c2b9a11")
	raw := [16]byte(id)

	cases := []struct {
		name  string
		owner any
		actor any
		want  bool
	}{
		{"same string", id.String(), id.String(), true},
		{"string vs uuid", id.String(), id, true},
		{"upper vs lower", strings.ToUpper(id.String()), id.String(), true},
		{"array vs string", raw, id.String(), true},
		{"bytes vs uuid", raw[:], id, true},
		{"textual bytes", []byte(id.String()), id, true},
		{"pointer", &id, id.String(), true},
		{"stringer", named{id.String()}, id, true},
		{"different ids", id, other, false},
		{"different strings", id.String(), other.String(), false},
		{"garbage owner", "not-an-id", id, false},
		{"garbage both", "same", "same", false},
		{"nil uuid", uuid.Nil, uuid.Nil, false},
		{"nil values", nil, nil, false},
		{"unsupported type", 42, 42, false},
		{"short bytes", []byte{1, 2, 3}, []byte{1, 2, 3}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Authorize(tc.owner, tc.actor); got != tc.want {
				t.Fatalf("Authorize(%v, %v) = %v, want %v", tc.owner, tc.actor, got, tc.want)
			}
		})
	}
}

func TestAuthorizeReflexiveAndSymmetric(t *testing.T) {
	for i := 0; i < 20; i++ {
		a, b := uuid.New(), uuid.New()
		if !Authorize(a, a) || !Authorize(a.String(), a) {
			t.Fatalf("not reflexive for %s", a)
		}
		if Authorize(a, b) != Authorize(b, a) {
			t.Fatalf("not symmetric for %s and %s", a, b)
		}
		if Authorize(a, b) {
			t.Fatalf("distinct ids matched: %s %s", a, b)
		}
	}
}

// Package authz decides whether a principal may modify a resource it owns.
package authz

import (
	"fmt"

	"github.com/google/uuid"
)

// Authorize reports whether actor is the owner. Identifiers are compared in
// canonical UUID form, so a string from a decoded token matches the same id
// read from the store as uuid.UUID or raw bytes. Values that cannot be
// canonicalized never match.
func Authorize(owner, actor any) bool {
	a, ok := canonical(owner)
	if !ok {
		return false
	}
	b, ok := canonical(actor)
	if !ok {
		return false
	}
	return a == b
}

func canonical(v any) (uuid.UUID, bool) {
	switch id := v.(type) {
	case uuid.UUID:
		return id, id != uuid.Nil
	case *uuid.UUID:
		if id == nil {
			return uuid.Nil, false
		}
		return canonical(*id)
	case [16]byte:
		return canonical(uuid.UUID(id))
	case string:
		return parse(id)
	case []byte:
		if len(id) == 16 {
			parsed, err := uuid.FromBytes(id)
			if err != nil {
				return uuid.Nil, false
			}
			return canonical(parsed)
		}
		return parse(string(id))
	case fmt.Stringer:
		return parse(id.String())
	default:
		return uuid.Nil, false
	}
}

func parse(s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

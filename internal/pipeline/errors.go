package pipeline

import (
	"errors"

	"github.com/alphabot-ai/quill/internal/auth"
	"github.com/alphabot-ai/quill/internal/validate"
)

// Kind classifies a rejected operation. Transports map each kind to a status.
type Kind int

const (
	KindInfrastructure Kind = iota
	KindAuthentication
	KindValidation
	KindBadRequest
	KindNotFound
	KindAuthorization
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	default:
		return "infrastructure"
	}
}

// Error is the classified failure of an operation. Message is safe to show to
// clients; Err keeps the underlying cause for logs.
type Error struct {
	Kind       Kind
	Message    string
	Violations validate.Violations
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Fail builds a classified error for use inside a commit.
func Fail(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Invalid wraps validation failures.
func Invalid(err error) *Error {
	return &Error{Kind: KindValidation, Message: "Validation failed", Violations: asViolations(err), Err: err}
}

// Internal wraps an unclassified failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInfrastructure, Message: "Server error", Err: err}
}

// KindOf returns the kind of err, treating unclassified errors as infrastructure.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindInfrastructure
}

func authError(err error) *Error {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return &Error{Kind: KindAuthentication, Message: "Authentication required", Err: err}
	case errors.Is(err, auth.ErrTokenExpired):
		return &Error{Kind: KindAuthentication, Message: "Token expired", Err: err}
	case errors.Is(err, auth.ErrPrincipalNotFound):
		return &Error{Kind: KindAuthentication, Message: "User not found", Err: err}
	case errors.Is(err, auth.ErrInvalidToken):
		return &Error{Kind: KindAuthentication, Message: "Please authenticate", Err: err}
	default:
		return Internal(err)
	}
}

func asError(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return Internal(err)
}

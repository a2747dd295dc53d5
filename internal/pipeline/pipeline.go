// Package pipeline runs authenticated mutations through a fixed sequence of
// gates: authenticate, validate, load, authorize, commit. Each gate rejects
// with exactly one error kind and nothing is written before the first three
// have passed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alphabot-ai/quill/internal/auth"
	"github.com/alphabot-ai/quill/internal/authz"
	"github.com/alphabot-ai/quill/internal/model"
	"github.com/alphabot-ai/quill/internal/store"
	"github.com/alphabot-ai/quill/internal/validate"
)

type State int

const (
	StateStart State = iota
	StateAuthenticated
	StateValidated
	StateLoaded
	StateAuthorized
	StateCommitted
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateAuthenticated:
		return "authenticated"
	case StateValidated:
		return "validated"
	case StateLoaded:
		return "loaded"
	case StateAuthorized:
		return "authorized"
	case StateCommitted:
		return "committed"
	case StateRejected:
		return "rejected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// DefaultAttempts bounds how often a commit that lost a version race is retried.
const DefaultAttempts = 3

// Verifier resolves a bearer token to its principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (model.User, error)
}

// Request is the transport-independent input of one operation.
type Request struct {
	Authorization string
	ID            string
	Body          map[string]any
}

// Input is what a commit sees once every gate has passed.
type Input[R any] struct {
	Principal model.User
	ID        string
	Values    validate.Values
	Resource  R
}

// Operation describes one mutation. Load and Owner are optional: without Load
// the load gate is skipped, without Owner the authorize gate is skipped.
type Operation[R, T any] struct {
	Name     string
	PathID   bool
	Rules    validate.RuleSet
	Load     func(ctx context.Context, id string) (R, error)
	NotFound string
	Owner    func(R) any
	Denied   string
	Commit   func(ctx context.Context, in Input[R]) (T, error)
}

type Pipeline struct {
	verifier Verifier
	logger   *slog.Logger
	attempts int
}

func New(verifier Verifier, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{verifier: verifier, logger: logger, attempts: DefaultAttempts}
}

// Authenticate runs only the first gate. Read-only operations that need a
// principal use it directly.
func (p *Pipeline) Authenticate(ctx context.Context, header string) (model.User, error) {
	token, err := auth.BearerToken(header)
	if err != nil {
		return model.User{}, authError(err)
	}
	principal, err := p.verifier.Verify(ctx, token)
	if err != nil {
		return model.User{}, authError(err)
	}
	return principal, nil
}

// Run drives op through every gate for req.
func Run[R, T any](ctx context.Context, p *Pipeline, op Operation[R, T], req Request) (T, error) {
	var zero T
	log := p.logger.With("op", op.Name)
	state := StateStart
	advance := func(next State) {
		log.DebugContext(ctx, "pipeline transition", "from", state.String(), "to", next.String())
		state = next
	}
	reject := func(err *Error) (T, error) {
		log.DebugContext(ctx, "pipeline rejected", "from", state.String(), "kind", err.Kind.String())
		state = StateRejected
		return zero, err
	}

	principal, err := p.Authenticate(ctx, req.Authorization)
	if err != nil {
		perr := asError(err)
		if perr.Kind == KindInfrastructure {
			log.ErrorContext(ctx, "principal lookup failed", "err", perr.Err)
		}
		return reject(perr)
	}
	advance(StateAuthenticated)

	in := Input[R]{Principal: principal}
	if violations := check(op, req, &in); len(violations) > 0 {
		return reject(&Error{Kind: KindValidation, Message: "Validation failed", Violations: violations})
	}
	advance(StateValidated)

	for attempt := 1; ; attempt++ {
		if op.Load != nil {
			resource, err := op.Load(ctx, in.ID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return reject(&Error{Kind: KindNotFound, Message: op.NotFound, Err: err})
				}
				log.ErrorContext(ctx, "load failed", "id", in.ID, "err", err)
				return reject(&Error{Kind: KindInfrastructure, Message: "Server error", Err: err})
			}
			in.Resource = resource
			advance(StateLoaded)
		}

		if op.Owner != nil {
			if !authz.Authorize(op.Owner(in.Resource), principal.ID) {
				return reject(&Error{Kind: KindAuthorization, Message: op.Denied})
			}
			advance(StateAuthorized)
		}

		out, err := op.Commit(ctx, in)
		if err == nil {
			advance(StateCommitted)
			return out, nil
		}

		var perr *Error
		switch {
		case errors.As(err, &perr):
			return reject(perr)
		case errors.Is(err, store.ErrConflict) && op.Load != nil:
			if attempt < p.attempts {
				log.DebugContext(ctx, "version conflict, reloading", "attempt", attempt)
				state = StateValidated
				continue
			}
			return reject(&Error{Kind: KindConflict, Message: "Post was modified concurrently", Err: err})
		case errors.Is(err, store.ErrNotFound):
			return reject(&Error{Kind: KindNotFound, Message: op.NotFound, Err: err})
		default:
			log.ErrorContext(ctx, "commit failed", "id", in.ID, "err", err)
			return reject(&Error{Kind: KindInfrastructure, Message: "Server error", Err: err})
		}
	}
}

// check validates the path id and then the body, collecting violations from both.
func check[R, T any](op Operation[R, T], req Request, in *Input[R]) validate.Violations {
	var violations validate.Violations
	if op.PathID {
		values, err := validate.For(validate.OpID).Validate(map[string]any{"id": req.ID})
		if err != nil {
			violations = append(violations, asViolations(err)...)
		} else {
			in.ID = values.String("id")
		}
	}
	if op.Rules != nil {
		body := req.Body
		if body == nil {
			body = map[string]any{}
		}
		values, err := op.Rules.Validate(body)
		if err != nil {
			violations = append(violations, asViolations(err)...)
		} else {
			in.Values = values
		}
	}
	return violations
}

func asViolations(err error) validate.Violations {
	var v validate.Violations
	if errors.As(err, &v) {
		return v
	}
	return validate.Violations{{Message: err.Error()}}
}

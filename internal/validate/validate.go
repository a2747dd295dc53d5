// Package validate runs declarative field rules against a decoded JSON payload.
//
// Every rule in a RuleSet is evaluated and every violated constraint is
// reported, so a client sees all problems with a request at once. Values are
// only normalized when the whole payload passes.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Violation is one failed constraint on one field.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Violations is returned as an error when a payload fails its rule set.
type Violations []Violation

func (v Violations) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(v))
	for _, item := range v {
		parts = append(parts, item.Field+": "+item.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type presence int

const (
	presenceNone presence = iota
	presenceRequired
	presenceOptional
)

// Constraint is a single check attached to a field rule.
type Constraint struct {
	message  string
	presence presence
	check    func(value any) bool
}

// Required fails when the field is absent, null or an empty string.
func Required(message string) Constraint {
	return Constraint{message: message, presence: presenceRequired}
}

// Optional makes absence acceptable. Present values still run the other constraints.
func Optional() Constraint {
	return Constraint{presence: presenceOptional}
}

// String requires a JSON string.
func String(message string) Constraint {
	return Constraint{message: message, check: func(v any) bool {
		_, ok := v.(string)
		return ok
	}}
}

// Length bounds the number of characters in a string. max <= 0 means unbounded.
func Length(min, max int, message string) Constraint {
	return Constraint{message: message, check: func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		n := utf8.RuneCountInString(s)
		if n < min {
			return false
		}
		return max <= 0 || n <= max
	}}
}

func MinLength(min int, message string) Constraint {
	return Length(min, 0, message)
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Email requires an address of the form local@domain.tld.
func Email(message string) Constraint {
	return Constraint{message: message, check: func(v any) bool {
		s, ok := v.(string)
		return ok && emailPattern.MatchString(strings.TrimSpace(s))
	}}
}

// Sequence requires a JSON array whose elements are all strings.
func Sequence(message string) Constraint {
	return Constraint{message: message, check: func(v any) bool {
		switch items := v.(type) {
		case []string:
			return true
		case []any:
			for _, item := range items {
				if _, ok := item.(string); !ok {
					return false
				}
			}
			return true
		default:
			return false
		}
	}}
}

// UUID requires the canonical 36 character textual form used for store identifiers.
func UUID(message string) Constraint {
	return Constraint{message: message, check: func(v any) bool {
		s, ok := v.(string)
		if !ok || len(s) != 36 {
			return false
		}
		_, err := uuid.Parse(s)
		return err == nil
	}}
}

// Rule validates one field. Trim strips surrounding whitespace from string
// values before any constraint runs; Normalize runs only when the payload passes.
type Rule struct {
	Field       string
	Trim        bool
	Constraints []Constraint
	Normalize   func(value any) any
}

// RuleSet is an ordered list of field rules.
type RuleSet []Rule

// Values is a validated, normalized payload.
type Values map[string]any

func (v Values) Has(field string) bool {
	_, ok := v[field]
	return ok
}

func (v Values) String(field string) string {
	s, _ := v[field].(string)
	return s
}

// Strings returns a sequence field. ok is false when the field is absent.
func (v Values) Strings(field string) ([]string, bool) {
	raw, ok := v[field]
	if !ok {
		return nil, false
	}
	switch items := raw.(type) {
	case []string:
		return items, true
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	}
	return nil, false
}

// Validate evaluates every rule against payload. On failure it returns
// Violations in rule order and constraint order; on success the normalized values.
func (rs RuleSet) Validate(payload map[string]any) (Values, error) {
	var violations Violations
	values := Values{}
	for _, rule := range rs {
		value, present := lookup(payload, rule.Field)
		if present && rule.Trim {
			if s, ok := value.(string); ok {
				value = strings.TrimSpace(s)
			}
		}
		if present {
			if s, ok := value.(string); ok && s == "" {
				present = false
			}
		}

		mode := presenceNone
		requiredMessage := ""
		for _, c := range rule.Constraints {
			switch c.presence {
			case presenceRequired:
				mode = presenceRequired
				requiredMessage = c.message
			case presenceOptional:
				if mode == presenceNone {
					mode = presenceOptional
				}
			}
		}

		if !present {
			if mode == presenceRequired {
				violations = append(violations, Violation{Field: rule.Field, Message: requiredMessage})
			}
			continue
		}

		for _, c := range rule.Constraints {
			if c.check == nil {
				continue
			}
			if !c.check(value) {
				violations = append(violations, Violation{Field: rule.Field, Message: c.message})
			}
		}
		values[rule.Field] = value
	}
	if len(violations) > 0 {
		return nil, violations
	}
	for _, rule := range rs {
		if rule.Normalize == nil {
			continue
		}
		if v, ok := values[rule.Field]; ok {
			values[rule.Field] = rule.Normalize(v)
		}
	}
	return values, nil
}

// lookup resolves a dotted field path inside nested objects.
func lookup(payload map[string]any, path string) (any, bool) {
	var current any = payload
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeStrings converts a JSON array to []string.
func NormalizeStrings(v any) any {
	out, _ := Values{"v": v}.Strings("v")
	if out == nil {
		out = []string{}
	}
	return out
}

// NormalizeUUID rewrites an identifier in lowercase canonical form.
func NormalizeUUID(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return v
	}
	return id.String()
}

func requiredMessage(field string) string {
	return fmt.Sprintf("%s is required", strings.ToUpper(field[:1])+field[1:])
}

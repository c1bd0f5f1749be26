package view

import (
	"encoding/json"
	"strings"

	"github.com/jackc/pgx/v5"
)

// KeySeparator splits a filter key into field and operator token.
const KeySeparator = "__"

// noCriteria is reported as the filter criteria when no filter applies.
const noCriteria = "none"

// Target names the relation a query runs against.
type Target struct {
	Schema string // empty when the caller did not qualify the name
	Name   string
}

// ParseTarget validates a caller supplied relation name of the form
// `name` or `schema.name`.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, ValidationError("Target name must not be empty.")
	}
	parts := strings.Split(s, ".")
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return Target{}, ValidationError("Target name '%s' is malformed.", s)
		}
	}
	switch len(parts) {
	case 1:
		return Target{Name: parts[0]}, nil
	case 2:
		return Target{Schema: parts[0], Name: parts[1]}, nil
	default:
		return Target{}, ValidationError("Target name '%s' is malformed.", s)
	}
}

func (t Target) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Sanitize returns the target quoted for use as an SQL identifier.
func (t Target) Sanitize() string {
	if t.Schema == "" {
		return pgx.Identifier{t.Name}.Sanitize()
	}
	return pgx.Identifier{t.Schema, t.Name}.Sanitize()
}

// Entry is one caller supplied filter key and its raw JSON value.
type Entry struct {
	Key string
	Raw json.RawMessage
}

// ParsedKey is a filter key split into field and operator token.
type ParsedKey struct {
	Field string
	Token string
}

// ParseKey splits key on the first KeySeparator. The token defaults to
// DefaultOperator when the separator is absent.
func ParseKey(key string) (ParsedKey, error) {
	field, token, found := strings.Cut(key, KeySeparator)
	if !found {
		token = DefaultOperator
	}
	if strings.TrimSpace(field) == "" {
		return ParsedKey{}, ValidationError("Filter key '%s' does not name a field.", key)
	}
	return ParsedKey{Field: field, Token: token}, nil
}

// Filter is one compiled, bindable condition.
type Filter struct {
	Value    Scalar
	Key      string // key as supplied by the caller
	Field    string
	Operator string // always taken from the operator whitelist
	Param    string // bind parameter name, unique within a Query
}

// Query is the compiled form of one request. It is owned by that request.
type Query struct {
	Target  Target
	Filters []Filter
}

// Compile turns a target name and ordered filter entries into a Query.
// Entries whose value is null or blank are skipped. Compilation stops at the
// first invalid entry; no partial Query is returned.
func Compile(target string, entries []Entry) (*Query, error) {
	t, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}

	q := &Query{Target: t, Filters: make([]Filter, 0, len(entries))}
	params := make(map[string]string, len(entries))

	for _, e := range entries {
		value := Coerce(e.Raw)
		if value.Blank() {
			continue
		}
		if !value.InRange() {
			return nil, ValidationError("Filter '%s' holds a number outside the supported range.", e.Key)
		}

		pk, err := ParseKey(e.Key)
		if err != nil {
			return nil, err
		}

		op, err := ResolveOperator(pk.Token)
		if err != nil {
			return nil, err
		}

		param := paramName(e.Key)
		if prev, ok := params[param]; ok {
			return nil, ValidationError("Filter keys '%s' and '%s' bind the same parameter '%s'.", prev, e.Key, param)
		}
		params[param] = e.Key

		q.Filters = append(q.Filters, Filter{
			Key:      e.Key,
			Field:    pk.Field,
			Operator: op,
			Param:    param,
			Value:    value,
		})
	}

	return q, nil
}

// Criteria renders the applied filters as text joined by AND.
func (q *Query) Criteria() string {
	if len(q.Filters) == 0 {
		return noCriteria
	}
	parts := make([]string, len(q.Filters))
	for i, f := range q.Filters {
		parts[i] = f.Field + " " + f.Operator + " " + f.Value.Text()
	}
	return strings.Join(parts, " AND ")
}

// CheckColumns rejects filters on fields that are not among columns.
func (q *Query) CheckColumns(columns []string) error {
	known := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		known[c] = struct{}{}
	}
	for _, f := range q.Filters {
		if _, ok := known[f.Field]; !ok {
			return ValidationError("Field '%s' does not exist in '%s'.", f.Field, q.Target)
		}
	}
	return nil
}

// paramName normalizes a filter key into a bind parameter identifier.
func paramName(key string) string {
	key = strings.ReplaceAll(key, KeySeparator, "_")

	var b strings.Builder
	b.Grow(len(key) + 2)
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}

	name := b.String()
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "p_" + name
	}
	return name
}

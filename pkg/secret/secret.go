// Package secret resolves named secrets, such as database passwords, and
// substitutes them into configuration strings.
package secret

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var ErrNotFound = errors.New("secret not found")

// Resolver looks up a secret by name.
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, name string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// Env resolves secrets from the process environment. The variable looked up
// is Prefix followed by the name. Empty values count as missing.
type Env struct {
	Prefix string
}

func (e Env) Resolve(_ context.Context, name string) (string, error) {
	key := e.Prefix + name
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: environment variable %s is not set", ErrNotFound, key)
}

// Static resolves secrets from a fixed map.
type Static map[string]string

func (s Static) Resolve(_ context.Context, name string) (string, error) {
	if v, ok := s[name]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// placeholder matches __NAME__ where NAME is made of alphanumeric words
// joined by single underscores, e.g. __DB_PASSWORD__.
var placeholder = regexp.MustCompile(`__([A-Za-z][A-Za-z0-9]*(?:_[A-Za-z0-9]+)*)__`)

// Placeholders returns the secret names referenced by s, in order of first use.
func Placeholders(s string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholder.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Expand replaces every __NAME__ placeholder in s with the secret NAME from r.
// It fails on the first secret r cannot resolve.
func Expand(ctx context.Context, s string, r Resolver) (string, error) {
	names := Placeholders(s)
	if len(names) == 0 {
		return s, nil
	}
	if r == nil {
		return "", fmt.Errorf("secret: no resolver for %s", strings.Join(names, ", "))
	}

	pairs := make([]string, 0, 2*len(names))
	for _, name := range names {
		v, err := r.Resolve(ctx, name)
		if err != nil {
			return "", fmt.Errorf("secret %s: %w", name, err)
		}
		pairs = append(pairs, "__"+name+"__", v)
	}
	return strings.NewReplacer(pairs...).Replace(s), nil
}

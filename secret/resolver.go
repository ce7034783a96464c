package secret

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const refPrefix = "secretref:"

var inlineRefPattern = regexp.MustCompile(`secretref:([^:\s]+):([^\s]+)`)

// Resolver expands environment variables and secret references.
//
// Contract:
// - Concurrency: safe for concurrent use once providers are registered.
// - Errors: unknown providers fail with ErrUnknownProvider; a strict
//   resolver fails empty values with ErrEmptySecret.
type Resolver struct {
	providers map[string]Provider
	strict    bool
}

// NewResolver creates a resolver. Nil providers are skipped.
func NewResolver(strict bool, providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider), strict: strict}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// Resolve expands value and replaces every secret reference in it. A nil
// Resolver only expands the environment.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	expanded, err := ExpandEnvStrict(value)
	if err != nil {
		return "", err
	}
	return r.ResolveRefs(ctx, expanded)
}

// ResolveRefs replaces every secret reference in value without expanding
// the environment. A nil Resolver returns value unchanged.
func (r *Resolver) ResolveRefs(ctx context.Context, value string) (string, error) {
	if r == nil {
		return value, nil
	}
	if provider, ref, ok := ParseRef(value); ok {
		return r.lookup(ctx, provider, ref)
	}

	matches := inlineRefPattern.FindAllStringSubmatchIndex(value, -1)
	out := value
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		resolved, err := r.lookup(ctx, out[m[2]:m[3]], out[m[4]:m[5]])
		if err != nil {
			return "", err
		}
		out = out[:m[0]] + resolved + out[m[1]:]
	}
	return out, nil
}

// ResolveAll applies ResolveRefs to every pointed-to string in place and
// stops at the first failure. Values are assumed to be expanded already.
func (r *Resolver) ResolveAll(ctx context.Context, values ...*string) error {
	for _, v := range values {
		if v == nil || *v == "" {
			continue
		}
		out, err := r.ResolveRefs(ctx, *v)
		if err != nil {
			return err
		}
		*v = out
	}
	return nil
}

// Close closes every provider.
func (r *Resolver) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, p := range r.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// ParseRef parses a whole-value reference "secretref:<provider>:<ref>".
// References containing whitespace are not whole values.
func ParseRef(value string) (provider, ref string, ok bool) {
	rest, found := strings.CutPrefix(value, refPrefix)
	if !found {
		return "", "", false
	}
	provider, ref, found = strings.Cut(rest, ":")
	if !found || provider == "" || ref == "" || strings.ContainsAny(ref, " \t\r\n") {
		return "", "", false
	}
	return provider, ref, true
}

func (r *Resolver) lookup(ctx context.Context, providerName, ref string) (string, error) {
	p, ok := r.providers[providerName]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, providerName)
	}
	v, err := p.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if r.strict && v == "" {
		return "", fmt.Errorf("%w: %s:%s", ErrEmptySecret, providerName, ref)
	}
	return v, nil
}

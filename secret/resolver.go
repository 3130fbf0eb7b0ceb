package secret

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

const refPrefix = "secretref:"

var inlineRef = regexp.MustCompile(`secretref:([A-Za-z0-9_-]+):([^\s@]+)`)

// Resolver expands environment references and resolves secretrefs.
type Resolver struct {
	providers map[string]Provider
	strict    bool
}

// NewResolver creates a Resolver. A strict resolver rejects empty
// provider values.
func NewResolver(strict bool, providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider), strict: strict}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Default returns a strict Resolver with the env and file providers.
func Default() *Resolver {
	return NewResolver(true, EnvProvider{}, FileProvider{})
}

// Register adds or replaces a provider.
func (r *Resolver) Register(p Provider) {
	if p == nil {
		return
	}
	r.providers[p.Name()] = p
}

// ParseSecretRef splits a whole-value reference secretref:<provider>:<ref>.
func ParseSecretRef(value string) (provider, ref string, ok bool) {
	rest, found := strings.CutPrefix(value, refPrefix)
	if !found {
		return "", "", false
	}
	provider, ref, found = strings.Cut(rest, ":")
	if !found || provider == "" || ref == "" {
		return "", "", false
	}
	return provider, ref, true
}

// ResolveValue expands environment references in value, then resolves a
// whole-value or inline secretrefs.
func (r *Resolver) ResolveValue(ctx context.Context, value string) (string, error) {
	expanded, err := ExpandEnvStrict(value)
	if err != nil {
		return "", err
	}
	if provider, ref, ok := ParseSecretRef(expanded); ok {
		return r.resolve(ctx, provider, ref)
	}

	matches := inlineRef.FindAllStringSubmatchIndex(expanded, -1)
	out := expanded
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		v, err := r.resolve(ctx, out[m[2]:m[3]], out[m[4]:m[5]])
		if err != nil {
			return "", err
		}
		out = out[:m[0]] + v + out[m[1]:]
	}
	return out, nil
}

func (r *Resolver) resolve(ctx context.Context, provider, ref string) (string, error) {
	p, ok := r.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	v, err := p.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if r.strict && v == "" {
		return "", fmt.Errorf("%w: %s:%s", ErrEmptySecret, provider, ref)
	}
	return v, nil
}

// ResolveFields resolves every settable string field reachable from ptr,
// descending into nested structs, in place. Fields tagged secret:"-" are
// skipped.
func (r *Resolver) ResolveFields(ctx context.Context, ptr any) error {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("secret: ResolveFields needs a non-nil pointer, got %T", ptr)
	}
	return r.walk(ctx, v.Elem(), "")
}

func (r *Resolver) walk(ctx context.Context, v reflect.Value, path string) error {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return r.walk(ctx, v.Elem(), path)
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("secret") == "-" {
				continue
			}
			name := f.Name
			if path != "" {
				name = path + "." + f.Name
			}
			if err := r.walk(ctx, v.Field(i), name); err != nil {
				return err
			}
		}
	case reflect.String:
		if !v.CanSet() || !strings.ContainsAny(v.String(), "$:") {
			return nil
		}
		out, err := r.ResolveValue(ctx, v.String())
		if err != nil {
			return fmt.Errorf("resolve %s: %w", path, err)
		}
		v.SetString(out)
	}
	return nil
}

package secret

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// NewResolver creates a resolver with the default providers registered.
func NewResolver() *Resolver {
	r := &Resolver{providers: make(map[string]Provider)}
	r.RegisterProvider(SecretTypeEnv, NewEnvProvider())
	r.RegisterProvider(SecretTypeFile, NewFileProvider())
	r.RegisterProvider(SecretTypeKeyring, NewKeyringProvider())
	return r
}

// RegisterProvider adds or replaces the provider for one reference type.
func (r *Resolver) RegisterProvider(secretType string, provider Provider) {
	r.providers[secretType] = provider
}

// Resolve resolves a single reference.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (string, error) {
	provider, exists := r.providers[ref.Type]
	if !exists {
		return "", fmt.Errorf("no provider for secret type: %s", ref.Type)
	}
	if !provider.IsAvailable() {
		return "", fmt.Errorf("provider for %s is not available on this system", ref.Type)
	}
	return provider.Resolve(ctx, ref)
}

// ResolveValue expands every reference in a configured value. Values
// without references are inline secrets and pass through unchanged.
func (r *Resolver) ResolveValue(ctx context.Context, input string) (string, error) {
	if !ContainsRef(input) {
		return input, nil
	}
	result := input
	for _, ref := range FindRefs(input) {
		value, err := r.Resolve(ctx, *ref)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", ref.Original, err)
		}
		result = strings.ReplaceAll(result, ref.Original, value)
	}
	return result, nil
}

// ResolveMap resolves a whole secret definition map, as declared in the
// site config. Resolution is all-or-nothing so a reload never installs
// a partial secret set.
func (r *Resolver) ResolveMap(ctx context.Context, defs map[string]string) (map[string]string, error) {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(defs))
	for _, name := range names {
		value, err := r.ResolveValue(ctx, defs[name])
		if err != nil {
			return nil, fmt.Errorf("secret %q: %w", name, err)
		}
		out[name] = value
	}
	return out, nil
}

// AvailableProviders lists the reference types usable on this system.
func (r *Resolver) AvailableProviders() []string {
	var available []string
	for secretType, provider := range r.providers {
		if provider.IsAvailable() {
			available = append(available, secretType)
		}
	}
	sort.Strings(available)
	return available
}

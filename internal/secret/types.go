package secret

import (
	"context"
)

// Ref is one parsed secret reference of the form ${type:name}.
type Ref struct {
	Type     string // env, file, keyring
	Name     string // variable name, file path, keyring alias
	Original string // reference text as written
}

// Provider resolves one reference type.
type Provider interface {
	// CanResolve reports whether this provider handles the given type.
	CanResolve(secretType string) bool

	// Resolve retrieves the secret value.
	Resolve(ctx context.Context, ref Ref) (string, error)

	// IsAvailable checks that the provider works on the current system.
	IsAvailable() bool
}

// Resolver dispatches references to registered providers.
type Resolver struct {
	providers map[string]Provider
}

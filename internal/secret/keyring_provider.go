package secret

import (
	"context"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	// ServiceName scopes keyring entries to this server.
	ServiceName = "mxcp"

	SecretTypeKeyring = "keyring"

	availabilityProbe = "_mxcp_keyring_probe"
)

// KeyringProvider resolves secrets from the OS keyring (Keychain,
// Secret Service, WinCred).
type KeyringProvider struct {
	serviceName string
}

func NewKeyringProvider() *KeyringProvider {
	return &KeyringProvider{serviceName: ServiceName}
}

func (p *KeyringProvider) CanResolve(secretType string) bool {
	return secretType == SecretTypeKeyring
}

func (p *KeyringProvider) Resolve(_ context.Context, ref Ref) (string, error) {
	if !p.CanResolve(ref.Type) {
		return "", fmt.Errorf("keyring provider cannot resolve secret type: %s", ref.Type)
	}
	value, err := keyring.Get(p.serviceName, ref.Name)
	if err != nil {
		return "", fmt.Errorf("get secret %s from keyring: %w", ref.Name, err)
	}
	return value, nil
}

// IsAvailable probes the keyring backend. Headless systems often lack a
// Secret Service daemon; resolution should fail at reference time with
// a clear message rather than at process start.
func (p *KeyringProvider) IsAvailable() bool {
	_, err := keyring.Get(p.serviceName, availabilityProbe)
	return err == nil || err == keyring.ErrNotFound
}

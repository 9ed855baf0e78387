package secret

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvProviderResolve(t *testing.T) {
	t.Setenv("MXCP_ENV_PROVIDER_TEST", "value")

	p := NewEnvProvider()
	value, err := p.Resolve(context.Background(), Ref{Type: SecretTypeEnv, Name: "MXCP_ENV_PROVIDER_TEST"})
	require.NoError(t, err)
	assert.Equal(t, "value", value)
}

func TestEnvProviderMissing(t *testing.T) {
	p := NewEnvProvider()
	_, err := p.Resolve(context.Background(), Ref{Type: SecretTypeEnv, Name: "MXCP_ENV_PROVIDER_ABSENT"})
	assert.Error(t, err)
}

func TestEnvProviderWrongType(t *testing.T) {
	p := NewEnvProvider()
	_, err := p.Resolve(context.Background(), Ref{Type: "file", Name: "x"})
	assert.Error(t, err)
}

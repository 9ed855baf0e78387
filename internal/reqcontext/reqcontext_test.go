package reqcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxcp-labs/mxcp-go/internal/identity"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
}

func TestRequestIDMintedWhenAbsent(t *testing.T) {
	id := RequestID(context.Background())
	require.NotEmpty(t, id)

	// Each bare context gets its own identifier.
	assert.NotEqual(t, id, RequestID(context.Background()))
}

func TestUserRoundTrip(t *testing.T) {
	user := &identity.UserContext{UserID: "u1", Role: "admin"}
	ctx := WithUser(context.Background(), user)
	assert.Same(t, user, User(ctx))
}

func TestUserDefaultsToAnonymous(t *testing.T) {
	user := User(context.Background())
	require.NotNil(t, user)
	assert.Equal(t, "anonymous", user.Role)
}

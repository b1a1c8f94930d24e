package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/arloliu/sourcecoord/types"
	"github.com/stretchr/testify/require"
)

func TestNewNop(t *testing.T) {
	hooks := NewNop()

	require.NotNil(t, hooks.OnLeadershipAcquired)
	require.NotNil(t, hooks.OnLeadershipLost)
	require.NotNil(t, hooks.OnError)

	ctx := context.Background()
	require.NoError(t, hooks.OnLeadershipAcquired(ctx, "worker-1"))
	require.NoError(t, hooks.OnLeadershipLost(ctx, "worker-1"))
	require.NoError(t, hooks.OnError(ctx, errors.New("boom")))
}

func TestFill(t *testing.T) {
	var acquired string
	custom := types.Hooks{
		OnLeadershipAcquired: func(_ context.Context, ownerID string) error {
			acquired = ownerID
			return nil
		},
	}

	filled := Fill(custom)
	require.NotNil(t, filled.OnLeadershipLost)
	require.NotNil(t, filled.OnError)

	require.NoError(t, filled.OnLeadershipAcquired(context.Background(), "worker-2"))
	require.Equal(t, "worker-2", acquired)
	require.NoError(t, filled.OnLeadershipLost(context.Background(), "worker-2"))
}

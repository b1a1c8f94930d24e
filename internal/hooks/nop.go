package hooks

import (
	"context"

	"github.com/arloliu/sourcecoord/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the scheduler.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(context.Context, string) error = (*NopHooks)(nil).OnLeadershipAcquired
	_ func(context.Context, string) error = (*NopHooks)(nil).OnLeadershipLost
	_ func(context.Context, error) error  = (*NopHooks)(nil).OnError
)

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - types.Hooks: Hooks with no-op implementations
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnLeadershipAcquired: h.OnLeadershipAcquired,
		OnLeadershipLost:     h.OnLeadershipLost,
		OnError:              h.OnError,
	}
}

// Fill returns a copy of hooks with every nil callback replaced by a no-op.
func Fill(hooks types.Hooks) types.Hooks {
	nop := NewNop()
	if hooks.OnLeadershipAcquired == nil {
		hooks.OnLeadershipAcquired = nop.OnLeadershipAcquired
	}
	if hooks.OnLeadershipLost == nil {
		hooks.OnLeadershipLost = nop.OnLeadershipLost
	}
	if hooks.OnError == nil {
		hooks.OnError = nop.OnError
	}

	return hooks
}

// OnLeadershipAcquired is a no-op implementation.
func (h *NopHooks) OnLeadershipAcquired(_ context.Context, _ string) error {
	return nil
}

// OnLeadershipLost is a no-op implementation.
func (h *NopHooks) OnLeadershipLost(_ context.Context, _ string) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(_ context.Context, _ error) error {
	return nil
}

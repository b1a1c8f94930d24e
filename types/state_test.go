package types

import "testing"

func TestSchedulerStateString(t *testing.T) {
	tests := []struct {
		state SchedulerState
		want  string
	}{
		{StateFollower, "Follower"},
		{StateInitializing, "Initializing"},
		{StateLeading, "Leading"},
		{StateStopped, "Stopped"},
		{SchedulerState(999), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("SchedulerState.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

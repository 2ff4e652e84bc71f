package buoy_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kelpwave/buoysim/internal/buoy"
	"github.com/kelpwave/buoysim/internal/channel"
	"github.com/kelpwave/buoysim/internal/policy"
	"github.com/stretchr/testify/require"
)

func TestFSMTransitionTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		state       buoy.State
		event       buoy.Event
		wantState   buoy.State
		wantChanged bool
		wantActions []buoy.Action
	}{
		{
			name:        "receiving wants to send senses channel",
			state:       buoy.StateReceiving,
			event:       buoy.EventWantToSend,
			wantState:   buoy.StateReceiving,
			wantChanged: false,
			wantActions: []buoy.Action{buoy.ActionSenseChannel},
		},
		{
			name:        "receiving finds idle channel moves to waiting difs",
			state:       buoy.StateReceiving,
			event:       buoy.EventChannelIdle,
			wantState:   buoy.StateWaitingDIFS,
			wantChanged: true,
			wantActions: []buoy.Action{buoy.ActionStartDIFSTimer},
		},
		{
			name:        "receiving finds busy channel retries",
			state:       buoy.StateReceiving,
			event:       buoy.EventChannelBusy,
			wantState:   buoy.StateReceiving,
			wantChanged: false,
			wantActions: []buoy.Action{buoy.ActionScheduleRetry},
		},
		{
			name:        "waiting difs aborts on busy channel",
			state:       buoy.StateWaitingDIFS,
			event:       buoy.EventChannelBusy,
			wantState:   buoy.StateReceiving,
			wantChanged: true,
			wantActions: []buoy.Action{buoy.ActionScheduleRetry},
		},
		{
			name:        "waiting difs elapses into backoff",
			state:       buoy.StateWaitingDIFS,
			event:       buoy.EventDIFSElapsed,
			wantState:   buoy.StateBackoff,
			wantChanged: true,
			wantActions: []buoy.Action{buoy.ActionStartBackoffTimer},
		},
		{
			name:        "backoff aborts on busy channel",
			state:       buoy.StateBackoff,
			event:       buoy.EventChannelBusy,
			wantState:   buoy.StateReceiving,
			wantChanged: true,
			wantActions: []buoy.Action{buoy.ActionScheduleRetry},
		},
		{
			name:        "backoff elapses and transmits",
			state:       buoy.StateBackoff,
			event:       buoy.EventBackoffElapsed,
			wantState:   buoy.StateReceiving,
			wantChanged: true,
			wantActions: []buoy.Action{buoy.ActionTransmit},
		},
		{
			name:        "unrelated event in a state is ignored",
			state:       buoy.StateBackoff,
			event:       buoy.EventChannelIdle,
			wantState:   buoy.StateBackoff,
			wantChanged: false,
			wantActions: nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := buoy.Apply(tt.state, tt.event)
			require.Equal(t, tt.wantState, got.NewState)
			require.Equal(t, tt.wantChanged, got.Changed)
			require.Equal(t, tt.wantActions, got.Actions)
		})
	}
}

func TestStepReflectsOffBoundary(t *testing.T) {
	t.Parallel()

	b := buoy.New(0, uuid.New(), channel.Vec2{X: 105, Y: 50}, channel.Vec2{X: 10, Y: 0},
		false, policy.New(policy.KindStatic, policy.Config{}, 1.0), buoy.Params{}, nil, nil)

	b.Step(1.0, 100, 100)

	// x=105 + 10*1=115, which overshoots the 100-wide world by 15 and
	// reflects back to 2*100-115=85.
	require.InDelta(t, 85.0, b.Pos.X, 1e-9)
	require.InDelta(t, -10.0, b.Velocity.X, 1e-9)
}

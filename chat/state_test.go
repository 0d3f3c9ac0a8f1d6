package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnMachineHappyPath(t *testing.T) {
	m := newTurnMachine(RecoveryReplacePartial)
	require.NoError(t, m.Start())
	assert.False(t, m.BotInserted())

	effect, text, err := m.Feed("Hel")
	require.NoError(t, err)
	assert.Equal(t, EffectInsertBot, effect)
	assert.Equal(t, "Hel", text)
	assert.True(t, m.BotInserted())

	effect, text, err = m.Feed("lo")
	require.NoError(t, err)
	assert.Equal(t, EffectUpdateBot, effect)
	assert.Equal(t, "Hello", text)

	require.NoError(t, m.End())
	assert.Equal(t, StateFinalized, m.state)
	assert.True(t, m.state.Terminal())
}

func TestTurnMachineFailure(t *testing.T) {
	tests := []struct {
		name   string
		policy RecoveryPolicy
		units  []string
		want   Effect
	}{
		{"before first unit", RecoveryReplacePartial, nil, EffectAppendError},
		{"before first unit keep policy", RecoveryKeepPartial, nil, EffectAppendError},
		{"after first unit", RecoveryReplacePartial, []string{"a", "b"}, EffectReplaceWithError},
		{"after first unit keep policy", RecoveryKeepPartial, []string{"a"}, EffectAppendErrorKeepPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTurnMachine(tt.policy)
			require.NoError(t, m.Start())
			for _, u := range tt.units {
				_, _, err := m.Feed(u)
				require.NoError(t, err)
			}
			effect, err := m.Fail()
			require.NoError(t, err)
			assert.Equal(t, tt.want, effect)
			assert.Equal(t, StateErrorRecovery, m.state)
		})
	}
}

func TestTurnMachineEmptyResponse(t *testing.T) {
	m := newTurnMachine(RecoveryReplacePartial)
	require.NoError(t, m.Start())
	require.ErrorIs(t, m.End(), errEmptyResponse)
	assert.Equal(t, StateAwaitingFirstByte, m.state)

	effect, err := m.Fail()
	require.NoError(t, err)
	assert.Equal(t, EffectAppendError, effect)
}

func TestTurnMachineRejectsInvalidTransitions(t *testing.T) {
	m := newTurnMachine(RecoveryReplacePartial)

	_, _, err := m.Feed("x")
	var transition *TransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, StateIdle, transition.From)

	require.Error(t, m.End())
	_, err = m.Fail()
	require.Error(t, err)
	require.Error(t, m.Cancel())

	require.NoError(t, m.Start())
	require.Error(t, m.Start())
	require.NoError(t, m.Cancel())

	// Nothing leaves a terminal state.
	_, _, err = m.Feed("late")
	require.Error(t, err)
	require.Error(t, m.End())
	_, err = m.Fail()
	require.Error(t, err)
	assert.Equal(t, StateCancelled, m.state)
	assert.Empty(t, m.Text())
}

func TestTurnMachineCancelKeepsText(t *testing.T) {
	m := newTurnMachine(RecoveryReplacePartial)
	require.NoError(t, m.Start())
	_, _, err := m.Feed("partial")
	require.NoError(t, err)
	require.NoError(t, m.Cancel())
	assert.Equal(t, "partial", m.Text())
}

func TestParseRecoveryPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    RecoveryPolicy
		wantErr bool
	}{
		{"", RecoveryReplacePartial, false},
		{"replace", RecoveryReplacePartial, false},
		{" Keep ", RecoveryKeepPartial, false},
		{"drop", RecoveryReplacePartial, true},
	}
	for _, tt := range tests {
		got, err := ParseRecoveryPolicy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_first_byte", StateAwaitingFirstByte.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.False(t, StateStreaming.Terminal())
}

package chat

import (
	"fmt"
	"strings"
)

// State is the lifecycle position of one turn
type State int

const (
	StateIdle State = iota
	StateAwaitingFirstByte
	StateStreaming
	StateFinalized
	StateErrorRecovery
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFirstByte:
		return "awaiting_first_byte"
	case StateStreaming:
		return "streaming"
	case StateFinalized:
		return "finalized"
	case StateErrorRecovery:
		return "error_recovery"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateErrorRecovery || s == StateCancelled
}

// Effect is the store mutation a transition asks the controller to apply
type Effect int

const (
	EffectNone Effect = iota
	// EffectInsertBot inserts the reserved bot message with the accumulated text
	EffectInsertBot
	// EffectUpdateBot replaces the bot message text with the accumulated text
	EffectUpdateBot
	// EffectAppendError appends an error message; no bot message exists
	EffectAppendError
	// EffectReplaceWithError swaps the partial bot message for an error message
	EffectReplaceWithError
	// EffectAppendErrorKeepPartial leaves the partial answer and appends an error after it
	EffectAppendErrorKeepPartial
)

// RecoveryPolicy decides what happens to a partial answer when its stream fails
type RecoveryPolicy int

const (
	// RecoveryReplacePartial removes the partial answer so a truncated reply
	// is never left looking complete
	RecoveryReplacePartial RecoveryPolicy = iota
	// RecoveryKeepPartial keeps the partial answer and appends the error below it
	RecoveryKeepPartial
)

// ParseRecoveryPolicy maps a config value to a policy
func ParseRecoveryPolicy(s string) (RecoveryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace":
		return RecoveryReplacePartial, nil
	case "keep":
		return RecoveryKeepPartial, nil
	}
	return RecoveryReplacePartial, fmt.Errorf("unknown recovery policy %q (want \"replace\" or \"keep\")", s)
}

// TransitionError reports an event that is not valid in the current state
type TransitionError struct {
	From  State
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s in state %s", e.Event, e.From)
}

// turnMachine holds the state and accumulator of one turn. It performs no
// I/O; the controller feeds it events and applies the returned effects.
type turnMachine struct {
	state       State
	policy      RecoveryPolicy
	accumulator strings.Builder
	units       int
}

func newTurnMachine(policy RecoveryPolicy) *turnMachine {
	return &turnMachine{state: StateIdle, policy: policy}
}

// Start moves Idle to AwaitingFirstByte when the request is issued
func (m *turnMachine) Start() error {
	if m.state != StateIdle {
		return &TransitionError{From: m.state, Event: "start"}
	}
	m.state = StateAwaitingFirstByte
	return nil
}

// Feed appends one decoded unit. The first unit inserts the bot message,
// exactly once per turn; later units update it with the whole text.
func (m *turnMachine) Feed(unit string) (Effect, string, error) {
	switch m.state {
	case StateAwaitingFirstByte:
		m.accumulator.WriteString(unit)
		m.units++
		m.state = StateStreaming
		return EffectInsertBot, m.accumulator.String(), nil
	case StateStreaming:
		m.accumulator.WriteString(unit)
		m.units++
		return EffectUpdateBot, m.accumulator.String(), nil
	}
	return EffectNone, "", &TransitionError{From: m.state, Event: "feed"}
}

// End handles the end-of-data signal. Ending before any content arrived
// is reported as errEmptyResponse so the caller recovers instead.
func (m *turnMachine) End() error {
	switch m.state {
	case StateStreaming:
		m.state = StateFinalized
		return nil
	case StateAwaitingFirstByte:
		return errEmptyResponse
	}
	return &TransitionError{From: m.state, Event: "end"}
}

// Fail moves to ErrorRecovery and reports how the store must be repaired
func (m *turnMachine) Fail() (Effect, error) {
	switch m.state {
	case StateAwaitingFirstByte:
		m.state = StateErrorRecovery
		return EffectAppendError, nil
	case StateStreaming:
		m.state = StateErrorRecovery
		if m.policy == RecoveryKeepPartial {
			return EffectAppendErrorKeepPartial, nil
		}
		return EffectReplaceWithError, nil
	}
	return EffectNone, &TransitionError{From: m.state, Event: "fail"}
}

// Cancel stops the turn, keeping whatever was already shown
func (m *turnMachine) Cancel() error {
	if m.state != StateAwaitingFirstByte && m.state != StateStreaming {
		return &TransitionError{From: m.state, Event: "cancel"}
	}
	m.state = StateCancelled
	return nil
}

// BotInserted reports whether the first-content transition has fired
func (m *turnMachine) BotInserted() bool {
	return m.units > 0
}

func (m *turnMachine) Text() string {
	return m.accumulator.String()
}

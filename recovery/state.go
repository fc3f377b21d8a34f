package recovery

// State is the recovery run phase. A run moves strictly forward through the
// phases; StateError is reachable from any non-terminal phase.
type State int32

const (
	// StateIdle means no run is active.
	StateIdle State = iota
	// StateInitializing means a run has been admitted and is choosing its
	// start sequence.
	StateInitializing
	// StateScanning means the journal range is being scanned for records,
	// partial transactions and dependency edges.
	StateScanning
	// StateReplaying means records are being applied.
	StateReplaying
	// StateResolving means partial transactions are being unwound.
	StateResolving
	// StateFinalizing means post-run work (checkpointing) is underway.
	StateFinalizing
	// StateComplete means the last run finished successfully.
	StateComplete
	// StateError means the last run failed.
	StateError
)

// String returns the phase mnemonic.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInitializing:
		return "INITIALIZING"
	case StateScanning:
		return "SCANNING"
	case StateReplaying:
		return "REPLAYING"
	case StateResolving:
		return "RESOLVING"
	case StateFinalizing:
		return "FINALIZING"
	case StateComplete:
		return "COMPLETE"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}

// startable reports whether a new run may be admitted from this state.
func (s State) startable() bool {
	return s == StateIdle || s.Terminal()
}

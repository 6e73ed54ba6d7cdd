package realtime

// TurnState is the conversational state of one open connection.
type TurnState int

const (
	// TurnIdle: no connection, or connection torn down.
	TurnIdle TurnState = iota

	// TurnListening: capturing the user, awaiting an utterance.
	TurnListening

	// TurnThinking: user utterance committed, awaiting the response.
	TurnThinking

	// TurnSpeaking: assistant response in flight.
	TurnSpeaking
)

// String returns the lowercase name of the state.
func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnListening:
		return "listening"
	case TurnThinking:
		return "thinking"
	case TurnSpeaking:
		return "speaking"
	}
	return "unknown"
}

// turnSignal is the closed set of inputs that can move the turn machine.
// Events and track callbacks are reduced to signals before they touch state,
// so the legality of every transition lives in one table.
type turnSignal int

const (
	// sigConnected: the transport became live.
	sigConnected turnSignal = iota

	// sigCommitted: the user utterance was committed (buffer-committed).
	sigCommitted

	// sigAssistantActive: remote audio became active or the first assistant
	// transcript arrived, whichever came first.
	sigAssistantActive

	// sigResponseDone: authoritative turn completion.
	sigResponseDone

	// sigResponseAborted: response failed or was cancelled.
	sigResponseAborted

	// sigDisconnected: the connection ended.
	sigDisconnected
)

// nextTurn returns the successor state for signal in state, and whether the
// transition is legal. Illegal combinations leave the machine untouched —
// no event sequence can reach an undefined transition.
func nextTurn(state TurnState, sig turnSignal) (TurnState, bool) {
	switch sig {
	case sigConnected:
		if state == TurnIdle {
			return TurnListening, true
		}

	case sigCommitted:
		if state == TurnListening {
			return TurnThinking, true
		}

	case sigAssistantActive:
		if state == TurnThinking {
			return TurnSpeaking, true
		}

	case sigResponseDone:
		// Speaking is the normal exit; Thinking covers a response that
		// completed without ever producing audio or transcript.
		if state == TurnSpeaking || state == TurnThinking {
			return TurnListening, true
		}

	case sigResponseAborted:
		if state == TurnThinking || state == TurnSpeaking {
			return TurnListening, true
		}

	case sigDisconnected:
		return TurnIdle, true
	}
	return state, false
}

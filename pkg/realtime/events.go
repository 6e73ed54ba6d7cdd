package realtime

import (
	"encoding/json"
	"fmt"
)

// Event is the closed set of protocol events the engine consumes from the
// side-channel. The sealed marker keeps the set closed: every inbound
// message decodes to exactly one of the concrete types below, with
// [EventUnknown] as the guaranteed no-op arm for forward compatibility.
type Event interface {
	isEvent()
}

// EventSpeechStarted: the endpoint detected the user starting to speak.
// While the assistant is speaking this is a barge-in.
type EventSpeechStarted struct{}

// EventSpeechStopped: the endpoint detected the user going quiet. Advisory;
// never drives the turn machine.
type EventSpeechStopped struct{}

// EventBufferCommitted: the user utterance was committed. This, not
// speech-stopped, is the authoritative "user turn ended" signal.
type EventBufferCommitted struct{}

// EventUserTranscript carries the final transcription of the user utterance.
type EventUserTranscript struct {
	Text string
}

// EventAssistantDelta carries one incremental chunk of the assistant reply
// transcript.
type EventAssistantDelta struct {
	Text string
}

// EventAssistantDone carries the authoritative full assistant transcript,
// replacing any accumulated deltas.
type EventAssistantDone struct {
	Text string
}

// EventResponseCreated: the model started generating a response.
type EventResponseCreated struct{}

// EventResponseDone: authoritative turn completion. The only signal that
// finalizes a turn.
type EventResponseDone struct{}

// EventResponseFailed: the response terminated abnormally. The partial
// assistant transcript for the turn is discarded.
type EventResponseFailed struct {
	Reason string
}

// EventResponseCancelled: the response was cancelled (typically after a
// barge-in). Handled like a failure without an error.
type EventResponseCancelled struct{}

// EventAudioDone: the assistant audio stream stopped. May fire more than
// once per turn and must never be treated as turn completion.
type EventAudioDone struct{}

// EventServerError carries a server-side error. Always surfaced, never
// dropped.
type EventServerError struct {
	Message string
}

// EventUnknown wraps a message type outside the closed set. Guaranteed
// no-op.
type EventUnknown struct {
	Type string
}

func (EventSpeechStarted) isEvent()     {}
func (EventSpeechStopped) isEvent()     {}
func (EventBufferCommitted) isEvent()   {}
func (EventUserTranscript) isEvent()    {}
func (EventAssistantDelta) isEvent()    {}
func (EventAssistantDone) isEvent()     {}
func (EventResponseCreated) isEvent()   {}
func (EventResponseDone) isEvent()      {}
func (EventResponseFailed) isEvent()    {}
func (EventResponseCancelled) isEvent() {}
func (EventAudioDone) isEvent()         {}
func (EventServerError) isEvent()       {}
func (EventUnknown) isEvent()           {}

// wireEvent is the superset of fields across all inbound message types.
type wireEvent struct {
	Type string `json:"type"`

	// response.audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed and
	// response.audio_transcript.done
	Transcript string `json:"transcript,omitempty"`

	// response.done / response.failed carry the response status
	Response *wireResponse `json:"response,omitempty"`

	// error event
	Error *wireError `json:"error,omitempty"`
}

type wireResponse struct {
	Status        string `json:"status,omitempty"`
	StatusDetails *struct {
		Reason string `json:"reason,omitempty"`
		Error  *struct {
			Message string `json:"message,omitempty"`
		} `json:"error,omitempty"`
	} `json:"status_details,omitempty"`
}

type wireError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ParseEvent decodes one side-channel message into an [Event]. A decode
// failure returns an error (the caller drops the message); a type outside
// the closed set returns [EventUnknown], never an error.
func ParseEvent(data []byte) (Event, error) {
	var we wireEvent
	if err := json.Unmarshal(data, &we); err != nil {
		return nil, fmt.Errorf("realtime: malformed event: %w", err)
	}
	if we.Type == "" {
		return nil, fmt.Errorf("realtime: event missing type")
	}

	switch we.Type {
	case "input_audio_buffer.speech_started":
		return EventSpeechStarted{}, nil

	case "input_audio_buffer.speech_stopped":
		return EventSpeechStopped{}, nil

	case "input_audio_buffer.committed":
		return EventBufferCommitted{}, nil

	case "conversation.item.input_audio_transcription.completed":
		return EventUserTranscript{Text: we.Transcript}, nil

	case "response.audio_transcript.delta":
		return EventAssistantDelta{Text: we.Delta}, nil

	case "response.audio_transcript.done":
		return EventAssistantDone{Text: we.Transcript}, nil

	case "response.created":
		return EventResponseCreated{}, nil

	case "response.done":
		// The terminal status distinguishes normal completion from failure
		// and cancellation.
		if we.Response != nil {
			switch we.Response.Status {
			case "failed":
				return EventResponseFailed{Reason: failureReason(we.Response)}, nil
			case "cancelled":
				return EventResponseCancelled{}, nil
			}
		}
		return EventResponseDone{}, nil

	case "response.failed":
		return EventResponseFailed{Reason: failureReason(we.Response)}, nil

	case "response.cancelled":
		return EventResponseCancelled{}, nil

	// Both signal "assistant audio stopped". They are deliberately kept
	// apart from response.done: audio ending is advisory and can repeat,
	// only response.done completes a turn.
	case "response.audio.done", "output_audio_buffer.speech_stopped":
		return EventAudioDone{}, nil

	case "error":
		msg := "unknown error"
		if we.Error != nil && we.Error.Message != "" {
			msg = we.Error.Message
		}
		return EventServerError{Message: msg}, nil
	}

	return EventUnknown{Type: we.Type}, nil
}

// failureReason extracts the most specific failure description available.
func failureReason(r *wireResponse) string {
	if r == nil || r.StatusDetails == nil {
		return ""
	}
	if r.StatusDetails.Error != nil && r.StatusDetails.Error.Message != "" {
		return r.StatusDetails.Error.Message
	}
	return r.StatusDetails.Reason
}
